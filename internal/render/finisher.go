package render

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"cutline/internal/logging"
	"cutline/internal/services/drapto"
)

// Finisher renders through next and then, for exports, re-encodes the result
// with Drapto. Proxies pass through untouched. Progress is split evenly
// between the two phases.
type Finisher struct {
	next    Renderer
	encoder drapto.Client
	logger  *slog.Logger
}

// NewFinisher wraps next with a Drapto finishing pass.
func NewFinisher(next Renderer, encoder drapto.Client, logger *slog.Logger) *Finisher {
	return &Finisher{
		next:    next,
		encoder: encoder,
		logger:  logging.NewComponentLogger(logger, "render-finisher"),
	}
}

func (f *Finisher) Render(ctx context.Context, req Request) (string, error) {
	if req.Kind != KindExport || f.encoder == nil {
		return f.next.Render(ctx, req)
	}

	inner := req
	inner.Progress = func(p Progress) {
		p.Percent /= 2
		req.report(p)
	}
	rendered, err := f.next.Render(ctx, inner)
	if err != nil {
		return "", err
	}

	finishDir := filepath.Join(req.OutputDir, "finished")
	if err := os.MkdirAll(finishDir, 0o755); err != nil {
		return "", classify(ctx, "finish", err)
	}
	f.logger.InfoContext(ctx, "finishing export",
		logging.String(logging.FieldEventType, "render_finish_start"),
		logging.String(logging.FieldProjectID, req.ProjectID),
		logging.Int64(logging.FieldVersion, req.Version),
		logging.String("input", rendered),
	)
	out, err := f.encoder.Encode(ctx, rendered, finishDir, func(u drapto.ProgressUpdate) {
		if u.Warning {
			f.logger.WarnContext(ctx, "drapto warning",
				logging.String(logging.FieldEventType, "render_finish_warning"),
				logging.String(logging.FieldErrorHint, "inspect the rendered export"),
				logging.String("detail", u.Message),
			)
			return
		}
		req.report(Progress{Percent: 50 + u.Percent/2, Stage: "finish:" + u.Stage, Message: u.Message})
	})
	if err != nil {
		return "", classify(ctx, "finish", err)
	}
	_ = os.Remove(rendered)
	return out, nil
}

var _ Renderer = (*Finisher)(nil)
