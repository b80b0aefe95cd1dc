package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type ntfyMessage struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	sender
	topic string
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := formatNtfy(event, payload)
	if !ok {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topic, strings.NewReader(msg.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}
	return n.do(ctx, req)
}

// formatNtfy renders an event for a phone push. Queue and progress chatter
// is suppressed.
func formatNtfy(event Event, payload Payload) (ntfyMessage, bool) {
	project := shortID(payload.String("projectId"))
	version := payload.String("version")
	kind := payload.String("kind")
	if kind == "" {
		kind = "render"
	}

	switch event {
	case EventJobSucceeded:
		if kind == "proxy" {
			return ntfyMessage{}, false
		}
		message := fmt.Sprintf("Export ready: project %s v%s", project, version)
		if key := payload.String("artifactKey"); key != "" {
			message += "\n" + key
		}
		return ntfyMessage{
			title:   "Cutline - Export Ready",
			message: message,
			tags:    []string{"cutline", kind, "succeeded"},
		}, true
	case EventJobFailed:
		return ntfyMessage{
			title:    "Cutline - Render Failed",
			message:  fmt.Sprintf("%s render failed: project %s v%s: %s", kind, project, version, payload.String("error")),
			tags:     []string{"cutline", kind, "failed"},
			priority: "high",
		}, true
	case EventGCArchived:
		return ntfyMessage{
			title:   "Cutline - Exports Archived",
			message: fmt.Sprintf("Archived %s exports (%s failed)", orZero(payload.String("archived")), orZero(payload.String("failed"))),
			tags:    []string{"cutline", "gc", "archive"},
		}, true
	case EventGCDeleted:
		return ntfyMessage{
			title:   "Cutline - Archives Deleted",
			message: fmt.Sprintf("Deleted %s archived exports (%s failed)", orZero(payload.String("deleted")), orZero(payload.String("failed"))),
			tags:    []string{"cutline", "gc", "delete"},
		}, true
	case EventTest:
		return ntfyMessage{
			title:    "Cutline - Test",
			message:  "Notification system test",
			tags:     []string{"cutline", "test"},
			priority: "low",
		}, true
	default:
		return ntfyMessage{}, false
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "?"
	}
	return id
}

func orZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}
