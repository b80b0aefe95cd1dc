package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookService POSTs every event as a JSON Message. Progress events are
// forwarded only when enabled.
type webhookService struct {
	sender
	url      string
	progress bool
	now      func() time.Time
}

func (w *webhookService) Publish(ctx context.Context, event Event, payload Payload) error {
	if event == EventJobProgress && !w.progress {
		return nil
	}
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	body, err := json.Marshal(Message{Event: event, Timestamp: now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cutline-Event", string(event))
	return w.do(ctx, req)
}
