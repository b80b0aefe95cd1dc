package notifications_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cutline/internal/config"
	"cutline/internal/notifications"
)

func TestNewServiceReturnsNoopWhenNothingConfigured(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"error": "boom"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "export succeeded",
			event: notifications.EventJobSucceeded,
			payload: notifications.Payload{
				"projectId":   "0123456789abcdef",
				"version":     4,
				"kind":        "export",
				"artifactKey": "exports/0123/v4.mp4",
			},
			expectTitle:   "Cutline - Export Ready",
			expectMessage: "Export ready: project 01234567 v4\nexports/0123/v4.mp4",
			expectTags:    "cutline,export,succeeded",
		},
		{
			name:  "render failed",
			event: notifications.EventJobFailed,
			payload: notifications.Payload{
				"projectId": "p1",
				"version":   int64(2),
				"kind":      "proxy",
				"error":     "render timeout",
			},
			expectTitle:    "Cutline - Render Failed",
			expectMessage:  "proxy render failed: project p1 v2: render timeout",
			expectTags:     "cutline,proxy,failed",
			expectPriority: "high",
		},
		{
			name:          "gc archived",
			event:         notifications.EventGCArchived,
			payload:       notifications.Payload{"archived": 3},
			expectTitle:   "Cutline - Exports Archived",
			expectMessage: "Archived 3 exports (0 failed)",
			expectTags:    "cutline,gc,archive",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Cutline - Test",
			expectMessage:  "Notification system test",
			expectTags:     "cutline,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	suppressed := []struct {
		event   notifications.Event
		payload notifications.Payload
	}{
		{notifications.EventJobQueued, nil},
		{notifications.EventJobProgress, notifications.Payload{"percent": 50}},
		{notifications.EventJobCancelled, nil},
		{notifications.EventJobSucceeded, notifications.Payload{"kind": "proxy"}},
	}
	for _, tc := range suppressed {
		if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", tc.event, err)
		}
	}
}

func TestWebhookReceivesJSONAndSkipsProgressByDefault(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notifications.Message
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type %q", got)
		}
		var msg notifications.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.Header.Get("X-Cutline-Event") != string(msg.Event) {
			t.Errorf("event header mismatch")
		}
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.WebhookURL = server.URL
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	_ = svc.Publish(ctx, notifications.EventJobQueued, notifications.Payload{"jobId": "j1"})
	_ = svc.Publish(ctx, notifications.EventJobProgress, notifications.Payload{"jobId": "j1", "percent": 10})
	if err := svc.Publish(ctx, notifications.EventJobSucceeded, notifications.Payload{"jobId": "j1", "artifactKey": "proxies/p/v1.mp4"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 webhook deliveries, got %d", len(received))
	}
	if received[1].Event != notifications.EventJobSucceeded || received[1].Payload["artifactKey"] != "proxies/p/v1.mp4" {
		t.Fatalf("unexpected delivery: %+v", received[1])
	}
}

func TestWebhookErrorStatusIsReported(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.WebhookURL = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, nil); err == nil {
		t.Fatal("expected error for 502 response")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := notifications.NewHub()
	ch, cancel := hub.Subscribe(1)

	cfg := config.Default()
	svc := notifications.NewService(&cfg, hub)
	_ = svc.Publish(context.Background(), notifications.EventJobQueued, notifications.Payload{"jobId": "a"})
	_ = svc.Publish(context.Background(), notifications.EventJobQueued, notifications.Payload{"jobId": "b"})

	msg := <-ch
	if msg.Payload.String("jobId") != "a" {
		t.Fatalf("unexpected first message %+v", msg)
	}
	if hub.Dropped() != 1 {
		t.Fatalf("expected one dropped delivery, got %d", hub.Dropped())
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
}
