package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"cutline/internal/logging"
	"cutline/internal/services"
)

func TestJSONLoggerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("render finished", logging.Int64(logging.FieldVersion, 3))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if entry["msg"] != "render finished" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["version"] != float64(3) {
		t.Fatalf("unexpected version: %v", entry["version"])
	}
}

func TestConsoleLoggerRendersSubjectFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := services.WithProjectID(context.Background(), "0123456789abcdef")
	ctx = services.WithJobID(ctx, "job-12345678-xyz")
	ctx = services.WithComponent(ctx, "renderqueue")

	logging.WithContext(ctx, logger).Info("job started", logging.String("kind", "proxy"))

	line := buf.String()
	for _, want := range []string{"INFO", "[renderqueue]", "project 01234567", "job job-1234", "job started", "kind=proxy"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "project_id=") {
		t.Fatalf("expected project id folded into subject, got %q", line)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logging.WarnWithContext(logger, "storage slow", "storage_slow")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "event_type=storage_slow") || !strings.Contains(out, "impact=") {
		t.Fatalf("expected enforced warn fields: %q", out)
	}
}

func TestUnknownFormatFails(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := logging.NewProgressSampler(25)
	steps := []struct {
		percent float64
		phase   string
		want    bool
	}{
		{0, "render", true},
		{10, "render", false},
		{26, "render", true},
		{30, "render", false},
		{5, "upload", true},
		{100, "upload", true},
		{100, "upload", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.phase); got != step.want {
			t.Fatalf("step %d: ShouldLog(%v, %q)=%v want %v", i, step.percent, step.phase, got, step.want)
		}
	}
}
