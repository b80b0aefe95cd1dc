package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cutline/internal/api"
)

func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestStatusReportsNotRunningWhenNothingListens(t *testing.T) {
	client, err := api.NewClientForURL(closedAddress(t), "")
	if err != nil {
		t.Fatalf("NewClientForURL: %v", err)
	}
	if _, err := Status(context.Background(), client); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestEnsureStartedSkipsLaunchWhenRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 4242})
	}))
	defer srv.Close()

	client, err := api.NewClientForURL(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClientForURL: %v", err)
	}
	result, err := EnsureStarted(context.Background(), client, "", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != StartStateAlreadyRunning || result.PID != 4242 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestAPIErrorsAreNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	client, err := api.NewClientForURL(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClientForURL: %v", err)
	}
	_, err = Status(context.Background(), client)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestReadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cutlined.pid")
	if _, ok := readPID(path); ok {
		t.Fatal("missing pid file should not parse")
	}
	if err := os.WriteFile(path, []byte("1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, ok := readPID(path); !ok || pid != 1234 {
		t.Fatalf("readPID = %d, %v", pid, ok)
	}
}
