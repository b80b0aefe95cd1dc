package render

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cutline/internal/edl"
)

var commandContext = exec.CommandContext

const (
	stderrTailBytes = 4096
	maxProgressLine = 1 << 20
)

// CLI renders by invoking an external EDL renderer. The op list is written to
// the process as JSON on stdin; progress is read back as JSON lines on stdout.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI renderer for binary.
func NewCLI(binary string) *CLI {
	if strings.TrimSpace(binary) == "" {
		binary = "cutline-render"
	}
	return &CLI{binary: binary}
}

// Binary reports the configured executable.
func (c *CLI) Binary() string {
	return c.binary
}

func (c *CLI) Render(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	format := req.Format
	if format == "" {
		format = "mp4"
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", classify(ctx, "prepare output", err)
	}
	outputPath := filepath.Join(req.OutputDir, string(req.Kind)+"."+format)

	payload, err := edl.Marshal(req.Ops)
	if err != nil {
		return "", err
	}

	args := []string{
		"render",
		"--source", req.SourceRef,
		"--kind", string(req.Kind),
		"--format", format,
		"--output", outputPath,
		"--progress-json",
	}
	if req.Resolution != "" {
		args = append(args, "--resolution", req.Resolution)
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", classify(ctx, "stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return "", classify(ctx, "start renderer", err)
	}

	scanErr := readProgress(stdout, req.report)

	if err := cmd.Wait(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return "", classify(ctx, "run renderer", err)
	}
	if scanErr != nil {
		return "", classify(ctx, "read renderer output", scanErr)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", classify(ctx, "verify output", err)
	}
	if info.Size() == 0 {
		return "", classify(ctx, "verify output", errors.New("renderer produced an empty file"))
	}
	return outputPath, nil
}

// readProgress reports each JSON line read from r until EOF. Lines that are
// not JSON or longer than maxProgressLine are skipped without stalling the
// writer.
func readProgress(r io.Reader, report func(Progress)) error {
	reader := bufio.NewReader(r)
	var line []byte
	oversized := false
	emit := func() {
		var update Progress
		if !oversized && json.Unmarshal(bytes.TrimSpace(line), &update) == nil {
			report(update)
		}
		line = line[:0]
		oversized = false
	}
	for {
		chunk, err := reader.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxProgressLine {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case err == nil:
			emit()
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			if oversized || len(line) > 0 {
				emit()
			}
			return nil
		default:
			return err
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

var _ Renderer = (*CLI)(nil)
