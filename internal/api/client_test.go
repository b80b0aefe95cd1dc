package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cutline/internal/api"
	"cutline/internal/edl"
	"cutline/internal/notifications"
	"cutline/internal/services"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	var gotAuth string
	var gotBody api.AppendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost || r.URL.Path != "/api/projects/p1/edits" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.AppendResponse{Version: 4, JobID: "job-4"})
	}))
	defer srv.Close()

	client, err := api.NewClientForURL(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClientForURL: %v", err)
	}
	resp, err := client.Append(context.Background(), "p1", 3, []edl.Op{{Type: "cut"}})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if resp.Version != 4 || resp.JobID != "job-4" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.BaseVersion != 3 || len(gotBody.Ops) != 1 || gotBody.Ops[0].Type != "cut" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
}

func TestClientMapsErrorKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "base version 1 behind 2", Kind: "version_conflict"})
	}))
	defer srv.Close()

	client, _ := api.NewClientForURL(srv.URL, "")
	_, err := client.Append(context.Background(), "p1", 1, []edl.Op{{Type: "cut"}})
	if !errors.Is(err, services.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected *api.Error with 409, got %#v", err)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.Wrap(services.ErrVersionConflict, "catalog", "append", "", nil), http.StatusConflict},
		{services.Wrap(services.ErrNotFound, "catalog", "get", "", nil), http.StatusNotFound},
		{services.Wrap(services.ErrInvalidState, "catalog", "pin", "", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrValidation, "edl", "validate", "", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrStorage, "catalog", "append", "", nil), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := api.StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestClientEventsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 1; i <= 3; i++ {
			msg := notifications.Message{Event: notifications.EventJobProgress, Payload: notifications.Payload{"percent": i * 10}}
			data, _ := json.Marshal(msg)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
		}
	}))
	defer srv.Close()

	client, _ := api.NewClientForURL(srv.URL, "")
	var got []string
	err := client.Events(context.Background(), func(msg notifications.Message) bool {
		got = append(got, msg.Payload.String("percent"))
		return len(got) < 2
	})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 2 || got[0] != "10" || got[1] != "20" {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestNewClientRequiresBind(t *testing.T) {
	if _, err := api.NewClient(nil); !errors.Is(err, api.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
