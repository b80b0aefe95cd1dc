package testsupport

import (
	"context"
	"path/filepath"
	"sync"

	"cutline/internal/render"
)

// FakeRenderer writes a small file for every request and records calls.
// Hook, when set, runs first and can fail or block the render.
type FakeRenderer struct {
	Size int64
	Hook func(ctx context.Context, req render.Request, call int) error

	mu    sync.Mutex
	calls []render.Request
}

// NewFakeRenderer returns a renderer that always succeeds.
func NewFakeRenderer() *FakeRenderer {
	return &FakeRenderer{Size: 1024}
}

func (f *FakeRenderer) Render(ctx context.Context, req render.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	call := len(f.calls)
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, req, call); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Progress != nil {
		req.Progress(render.Progress{Percent: 50, Stage: "compose"})
	}
	format := req.Format
	if format == "" {
		format = "mp4"
	}
	path := filepath.Join(req.OutputDir, string(req.Kind)+"."+format)
	if err := writePattern(path, f.Size); err != nil {
		return "", err
	}
	if req.Progress != nil {
		req.Progress(render.Progress{Percent: 100, Stage: "mux"})
	}
	return path, nil
}

// Calls returns the recorded requests.
func (f *FakeRenderer) Calls() []render.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]render.Request(nil), f.calls...)
}

// Versions lists the versions rendered for kind in call order.
func (f *FakeRenderer) Versions(kind render.Kind) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var versions []int64
	for _, req := range f.calls {
		if req.Kind == kind {
			versions = append(versions, req.Version)
		}
	}
	return versions
}

// BlockUntil returns a hook that parks the render until release is closed or
// the context ends. started receives the request version when a render parks.
func BlockUntil(release <-chan struct{}, started chan<- int64) func(context.Context, render.Request, int) error {
	return func(ctx context.Context, req render.Request, _ int) error {
		if started != nil {
			select {
			case started <- req.Version:
			default:
			}
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
