package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"cutline/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Cutline", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Cutline:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Cutline", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "Renderer", Available: false, Detail: `binary "cutline-render" not found`},
		{Name: "FFmpeg", Available: true, Command: "ffmpeg"},
		{Name: "FFprobe", Available: false, Optional: true, Detail: "skipped"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] Missing: Renderer, FFprobe") {
		t.Fatalf("expected summary line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] binary") {
		t.Fatalf("expected error detail in second line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready (command: ffmpeg)") {
		t.Fatalf("expected ready detail in third line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[WARN] skipped") {
		t.Fatalf("expected warn detail in fourth line, got %q", lines[3])
	}
}

func TestStatusLinesNotRunning(t *testing.T) {
	lines := statusLines(api.DaemonStatus{}, false, false)
	if !strings.Contains(strings.Join(lines, "\n"), "[ERROR] Not running") {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestStatusLinesGCDisabled(t *testing.T) {
	lines := strings.Join(statusLines(api.DaemonStatus{Running: true, PID: 7}, true, false), "\n")
	if !strings.Contains(lines, "Running (pid 7)") || !strings.Contains(lines, "Disabled") {
		t.Fatalf("unexpected status output:\n%s", lines)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1536:    "1.5 KiB",
		5 << 30: "5.0 GiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := label("invalid_state"); got != "Invalid State" {
		t.Fatalf("label = %q", got)
	}
	if got := label(""); got != "-" {
		t.Fatalf("label(empty) = %q", got)
	}
}
