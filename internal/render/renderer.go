package render

import (
	"context"
	"fmt"
	"strings"

	"cutline/internal/edl"
	"cutline/internal/services"
)

// Kind distinguishes low-resolution previews from full exports.
type Kind string

const (
	KindProxy  Kind = "proxy"
	KindExport Kind = "export"
)

// ParseKind validates a kind string.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindProxy:
		return KindProxy, nil
	case KindExport:
		return KindExport, nil
	default:
		return "", services.Wrap(services.ErrValidation, "render", "parse kind", fmt.Sprintf("unknown render kind %q", value), nil)
	}
}

// Progress is a renderer progress observation.
type Progress struct {
	Percent float64 `json:"percent"`
	Stage   string  `json:"stage,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Request describes one render.
type Request struct {
	ProjectID  string
	Version    int64
	SourceRef  string
	Ops        []edl.Op
	Kind       Kind
	Resolution string
	Format     string
	OutputDir  string
	Progress   func(Progress)
}

func (r Request) report(p Progress) {
	if r.Progress != nil {
		r.Progress(p)
	}
}

func (r Request) validate() error {
	if strings.TrimSpace(r.OutputDir) == "" {
		return services.Wrap(services.ErrValidation, "render", "request", "output directory is required", nil)
	}
	if strings.TrimSpace(r.SourceRef) == "" {
		return services.Wrap(services.ErrValidation, "render", "request", "source reference is required", nil)
	}
	if r.Kind != KindProxy && r.Kind != KindExport {
		return services.Wrap(services.ErrValidation, "render", "request", fmt.Sprintf("unknown render kind %q", r.Kind), nil)
	}
	return nil
}

// Renderer produces an artifact for a request and returns its local path.
type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, req Request) (string, error)

func (f RendererFunc) Render(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// classify maps a failed render to the timeout or generic render marker.
// Cancellation is returned unchanged so callers can tell supersede and
// shutdown apart from failures.
func classify(ctx context.Context, op string, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return services.Wrap(services.ErrRenderTimeout, "render", op, "attempt timed out", err)
	case context.Canceled:
		return context.Canceled
	}
	return services.Wrap(services.ErrRender, "render", op, "", err)
}
