package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event identifies a lifecycle transition.
type Event string

const (
	EventJobQueued    Event = "job.queued"
	EventJobProgress  Event = "job.progress"
	EventJobSucceeded Event = "job.succeeded"
	EventJobFailed    Event = "job.failed"
	EventJobCancelled Event = "job.cancelled"
	EventGCArchived   Event = "gc.archived"
	EventGCDeleted    Event = "gc.deleted"
	EventTest         Event = "test"
)

// Payload carries event attributes. Keys are camelCase strings.
type Payload map[string]any

// Message is an event as delivered to webhook and hub subscribers.
type Message struct {
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload,omitempty"`
}

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// String returns the payload value at key as a trimmed string.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Noop returns a Service that discards every event.
func Noop() Service { return noopService{} }

type fanout []Service

// Fanout publishes to every service and joins their errors.
func Fanout(services ...Service) Service {
	filtered := make(fanout, 0, len(services))
	for _, svc := range services {
		if svc == nil {
			continue
		}
		if _, ok := svc.(noopService); ok {
			continue
		}
		filtered = append(filtered, svc)
	}
	switch len(filtered) {
	case 0:
		return noopService{}
	case 1:
		return filtered[0]
	}
	return filtered
}

func (f fanout) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range f {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
