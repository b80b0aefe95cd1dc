package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cutline/internal/logging"
)

// ErrBufferFull reports an event dropped because the dispatcher's buffer was
// full.
var ErrBufferFull = errors.New("notification buffer full")

// Dispatcher delivers events to a Service from one background goroutine.
// Publish never waits on the wrapped service: when the buffer is full the
// event is dropped and ErrBufferFull is returned. After Close, Publish
// delivers inline.
type Dispatcher struct {
	next   Service
	logger *slog.Logger
	events chan dispatched
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

type dispatched struct {
	ctx     context.Context
	event   Event
	payload Payload
}

// NewDispatcher starts a dispatcher that buffers up to size events.
func NewDispatcher(next Service, size int, logger *slog.Logger) *Dispatcher {
	if next == nil {
		next = Noop()
	}
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		next:   next,
		logger: logging.NewComponentLogger(logger, "notifications"),
		events: make(chan dispatched, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, event Event, payload Payload) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return d.next.Publish(context.WithoutCancel(ctx), event, payload)
	}
	select {
	case d.events <- dispatched{ctx: context.WithoutCancel(ctx), event: event, payload: payload}:
		return nil
	default:
		return ErrBufferFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		if err := d.next.Publish(ev.ctx, ev.event, ev.payload); err != nil {
			d.logger.Warn("notification failed",
				logging.String("event", string(ev.event)),
				logging.String(logging.FieldJobID, ev.payload.String("jobId")),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.String(logging.FieldErrorHint, "check notification endpoint configuration"),
			)
		}
	}
}

// Close delivers the buffered events and stops the goroutine. It is safe to
// call more than once.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
	})
	<-d.done
}
