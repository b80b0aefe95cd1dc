package renderqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"cutline/internal/edl"
	"cutline/internal/logging"
	"cutline/internal/notifications"
	"cutline/internal/render"
	"cutline/internal/services"
)

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		e, jobCtx, cancel, ok := q.next(ctx)
		if !ok {
			return
		}
		q.run(jobCtx, e)
		cancel(nil)
	}
}

// next blocks until a job is available or the queue closes.
func (q *Queue) next(ctx context.Context) (*entry, context.Context, context.CancelCauseFunc, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, nil, nil, false
	}
	e := q.pending[0]
	q.pending = q.pending[1:]

	now := q.now()
	jobCtx, cancel := context.WithCancelCause(ctx)
	e.cancel = cancel
	e.job.State = StateRunning
	e.job.StartedAt = &now
	q.updateDepthLocked()
	return e, jobCtx, cancel, true
}

func (q *Queue) run(ctx context.Context, e *entry) {
	job := q.snapshotOf(e)
	ctx = services.WithJobID(services.WithProjectID(ctx, job.ProjectID), job.ID)
	logger := logging.WithContext(ctx, q.logger).With(
		logging.String("kind", string(job.Kind)),
		logging.Int64(logging.FieldVersion, job.Version),
	)
	workDir := filepath.Join(q.tempDir, job.ID)
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Debug("remove render workdir failed", logging.Error(err))
		}
	}()

	logger.Info("render job started", logging.String(logging.FieldEventType, "job_started"))
	key, err := q.execute(ctx, e, job, logger, workDir)

	state := StateSucceeded
	switch {
	case err == nil:
	case context.Cause(ctx) != nil:
		state = StateCancelled
		err = context.Cause(ctx)
	case errors.Is(err, errStale):
		state = StateCancelled
	default:
		state = StateFailed
	}

	final, changed := q.finish(e, state, err, key)
	if !changed {
		logger.Debug("render job ended after cancellation",
			logging.String("state", string(final.State)),
			logging.String(logging.FieldEventType, "job_discarded"),
		)
		return
	}
	q.metrics.JobFinished(string(final.Kind), string(final.State))

	switch final.State {
	case StateSucceeded:
		logger.Info("render job succeeded",
			logging.String("artifact_key", final.ArtifactKey),
			logging.Int("attempts", final.Attempts),
			logging.String(logging.FieldEventType, "job_succeeded"),
		)
		q.emit(ctx, notifications.EventJobSucceeded, final, nil)
	case StateCancelled:
		logger.Info("render job cancelled",
			logging.String("reason", final.LastError),
			logging.String(logging.FieldEventType, "job_cancelled"),
		)
		q.emit(ctx, notifications.EventJobCancelled, final, nil)
	default:
		logging.ErrorWithContext(logger, "render job failed", "job_failed",
			logging.Error(err),
			logging.Int("attempts", final.Attempts),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, "inspect renderer output and retry the request"),
			logging.String(logging.FieldImpact, "previous artifact remains current"),
		)
		q.emit(ctx, notifications.EventJobFailed, final, nil)
	}
}

func (q *Queue) execute(ctx context.Context, e *entry, job Job, logger *slog.Logger, workDir string) (string, error) {
	project, err := q.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return "", err
	}
	ops, err := q.store.Read(ctx, job.ProjectID, job.Version)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		q.setAttempt(e, attempt)
		outputDir := filepath.Join(workDir, fmt.Sprintf("attempt-%d", attempt))
		key, err := q.attempt(ctx, e, job, project.SourceRef, ops, outputDir, logger)
		if err == nil {
			return key, nil
		}
		lastErr = err
		if context.Cause(ctx) != nil || errors.Is(err, errStale) {
			return "", err
		}
		if !services.Retryable(err) || attempt == q.maxAttempts {
			break
		}
		delay := q.backoffFor(attempt)
		logging.WarnWithContext(logger, "render attempt failed; retrying", "render_attempt_failed",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient renderer or storage failure"),
			logging.String(logging.FieldImpact, "job will be retried"),
		)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", context.Cause(ctx)
			case <-timer.C:
			}
		}
	}
	return "", lastErr
}

func (q *Queue) attempt(ctx context.Context, e *entry, job Job, sourceRef string, ops []edl.Op, outputDir string, logger *slog.Logger) (string, error) {
	attemptCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	format := "mp4"
	if job.Kind == render.KindExport && q.exportFormat != "" {
		format = q.exportFormat
	}
	gate := &progressGate{every: q.progressEvery, sampler: logging.NewProgressSampler(25), now: q.now}
	var abandoned atomic.Bool
	req := render.Request{
		ProjectID:  job.ProjectID,
		Version:    job.Version,
		SourceRef:  sourceRef,
		Ops:        ops,
		Kind:       job.Kind,
		Resolution: job.Resolution,
		Format:     format,
		OutputDir:  outputDir,
		Progress: func(p render.Progress) {
			if abandoned.Load() {
				return
			}
			q.onProgress(ctx, e, p, gate, logger)
		},
	}

	start := q.now()
	path, err := q.renderWithin(attemptCtx, req, &abandoned, logger)
	if err == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = services.Wrap(services.ErrRenderTimeout, "render-queue", "render", "attempt exceeded its timeout", nil)
	}
	if err != nil {
		switch {
		case context.Cause(ctx) != nil:
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrRenderTimeout):
			err = services.Wrap(services.ErrRenderTimeout, "render-queue", "render", "attempt exceeded its timeout", err)
		case !errors.Is(err, services.ErrRender) && !errors.Is(err, services.ErrRenderTimeout) && !errors.Is(err, services.ErrValidation):
			err = services.Wrap(services.ErrRender, "render-queue", "render", "", err)
		}
		result := services.Kind(err)
		if context.Cause(ctx) != nil {
			result = "cancelled"
		}
		q.metrics.AttemptFinished(string(job.Kind), result, q.now().Sub(start))
		return "", err
	}
	q.metrics.AttemptFinished(string(job.Kind), "ok", q.now().Sub(start))
	return q.promote(ctx, e, job, path, logger)
}

// abandonGrace is how long a cancelled render may take to return before the
// worker stops waiting for it.
const abandonGrace = 250 * time.Millisecond

type renderResult struct {
	path string
	err  error
}

// renderWithin runs the renderer on its own goroutine so the attempt ends
// when ctx does even if the renderer ignores cancellation. An abandoned
// render has its output directory removed when it finally returns.
func (q *Queue) renderWithin(ctx context.Context, req render.Request, abandoned *atomic.Bool, logger *slog.Logger) (string, error) {
	// settled is claimed once, either by the returning render or by the
	// waiter giving up on it.
	var settled atomic.Bool
	done := make(chan renderResult, 1)
	go func() {
		path, err := q.renderer.Render(ctx, req)
		if !settled.CompareAndSwap(false, true) {
			discardOutput(req.OutputDir, logger)
			return
		}
		done <- renderResult{path: path, err: err}
	}()

	select {
	case res := <-done:
		return res.path, res.err
	case <-ctx.Done():
	}
	grace := time.NewTimer(abandonGrace)
	defer grace.Stop()
	select {
	case res := <-done:
		return res.path, res.err
	case <-grace.C:
		abandoned.Store(true)
		if !settled.CompareAndSwap(false, true) {
			<-done
			discardOutput(req.OutputDir, logger)
		} else {
			logging.WarnWithContext(logger, "renderer did not stop at cancellation; abandoning it", "render_abandoned",
				logging.Error(context.Cause(ctx)),
				logging.String(logging.FieldErrorHint, "check that the renderer honours cancellation"),
				logging.String(logging.FieldImpact, "late output is discarded"),
			)
		}
		return "", ctx.Err()
	}
}

func discardOutput(dir string, logger *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Debug("remove abandoned render output failed", logging.Error(err))
	}
}

func (q *Queue) backoffFor(attempt int) time.Duration {
	if q.backoff <= 0 {
		return 0
	}
	delay := q.backoff << (attempt - 1)
	if q.maxBackoff > 0 && (delay > q.maxBackoff || delay <= 0) {
		delay = q.maxBackoff
	}
	return delay
}

func (q *Queue) snapshotOf(e *entry) Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return e.job.snapshot()
}

func (q *Queue) setAttempt(e *entry, attempt int) {
	q.mu.Lock()
	if !e.job.State.Terminal() {
		e.job.Attempts = attempt
		e.job.Progress = 0
		e.job.Stage = ""
	}
	q.mu.Unlock()
}

// beginCommit claims the job for promotion. It fails if the job was
// cancelled while rendering.
func (q *Queue) beginCommit(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.job.State != StateRunning {
		return false
	}
	e.committing = true
	return true
}

func (q *Queue) endCommit(e *entry) {
	q.mu.Lock()
	e.committing = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// finish records the terminal state unless the job was already cancelled.
func (q *Queue) finish(e *entry, state State, err error, artifactKey string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.committing {
		e.committing = false
		q.cond.Broadcast()
	}
	if e.job.State.Terminal() {
		return e.job.snapshot(), false
	}
	now := q.now()
	e.job.State = state
	e.job.FinishedAt = &now
	if err != nil {
		e.job.LastError = err.Error()
	}
	if state == StateSucceeded {
		e.job.ArtifactKey = artifactKey
		e.job.Progress = 100
		e.job.LastError = ""
	}
	q.updateDepthLocked()
	return e.job.snapshot(), true
}

// progressGate throttles progress events and logs for one attempt.
type progressGate struct {
	mu       sync.Mutex
	every    time.Duration
	lastSent time.Time
	sampler  *logging.ProgressSampler
	now      func() time.Time
}

func (g *progressGate) allow(p render.Progress) (event, log bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if g.lastSent.IsZero() || now.Sub(g.lastSent) >= g.every || p.Percent >= 100 {
		g.lastSent = now
		event = true
	}
	return event, g.sampler.ShouldLog(p.Percent, p.Stage)
}

func (q *Queue) onProgress(ctx context.Context, e *entry, p render.Progress, gate *progressGate, logger *slog.Logger) {
	q.mu.Lock()
	if e.job.State != StateRunning {
		q.mu.Unlock()
		return
	}
	if p.Percent < 0 {
		p.Percent = 0
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	e.job.Progress = p.Percent
	e.job.Stage = p.Stage
	snap := e.job.snapshot()
	q.mu.Unlock()

	sendEvent, writeLog := gate.allow(p)
	if writeLog {
		logger.Info("render progress",
			logging.Float64("percent", p.Percent),
			logging.String("stage", p.Stage),
			logging.String(logging.FieldEventType, "render_progress"),
		)
	}
	if sendEvent {
		q.emit(ctx, notifications.EventJobProgress, snap, notifications.Payload{
			"percent": p.Percent,
			"stage":   p.Stage,
		})
	}
}
