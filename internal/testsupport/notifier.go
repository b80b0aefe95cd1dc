package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"cutline/internal/notifications"
)

// RecordedEvent is one captured notification.
type RecordedEvent struct {
	Event   notifications.Event
	Payload notifications.Payload
}

// Notifier records published events. When Gate is set, Publish blocks
// until it is closed.
type Notifier struct {
	Gate <-chan struct{}

	mu     sync.Mutex
	events []RecordedEvent
}

func (n *Notifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	if n.Gate != nil {
		<-n.Gate
	}
	copied := make(notifications.Payload, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	n.mu.Lock()
	n.events = append(n.events, RecordedEvent{Event: event, Payload: copied})
	n.mu.Unlock()
	return nil
}

// Events returns captured payloads for event.
func (n *Notifier) Events(event notifications.Event) []notifications.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifications.Payload
	for _, rec := range n.events {
		if rec.Event == event {
			out = append(out, rec.Payload)
		}
	}
	return out
}

// WaitFor polls until at least count events of the given type arrive.
func (n *Notifier) WaitFor(t testing.TB, event notifications.Event, count int, timeout time.Duration) []notifications.Payload {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		got := n.Events(event)
		if len(got) >= count {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d %s events, got %d", count, event, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
