package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cutline/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrStorage, "catalog", "append", "insert failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"catalog", "append", "insert failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindAndRetryable(t *testing.T) {
	cases := []struct {
		err       error
		kind      string
		retryable bool
	}{
		{services.Wrap(services.ErrVersionConflict, "catalog", "append", "stale", nil), "version_conflict", false},
		{services.Wrap(services.ErrNotFound, "catalog", "pin", "", nil), "not_found", false},
		{services.Wrap(services.ErrInvalidState, "catalog", "pin", "", nil), "invalid_state", false},
		{services.Wrap(services.ErrRenderTimeout, "render", "", "", context.DeadlineExceeded), "render_timeout", true},
		{services.Wrap(services.ErrRender, "render", "", "", nil), "render", true},
		{services.Wrap(services.ErrStorage, "storage", "put", "", nil), "storage", true},
		{errors.New("plain"), "unknown", true},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
		if got := services.Retryable(tc.err); got != tc.retryable {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
	if services.Kind(nil) != "" || services.Retryable(nil) {
		t.Fatal("nil error should have no kind and not be retryable")
	}
}
