package renderqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cutline/internal/catalog"
	"cutline/internal/config"
	"cutline/internal/edl"
	"cutline/internal/logging"
	"cutline/internal/metrics"
	"cutline/internal/notifications"
	"cutline/internal/render"
	"cutline/internal/services"
	"cutline/internal/storage"
)

const eventBuffer = 256

var (
	errSuperseded = errors.New("superseded by a newer proxy request")
	errCancelled  = errors.New("cancelled by request")
	errStale      = errors.New("a newer proxy was promoted first")
)

// Deps are the collaborators a Queue drives.
type Deps struct {
	Store    *catalog.Store
	Renderer render.Renderer
	Proxies  storage.Backend
	Exports  storage.Backend
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

type settings struct {
	workers          int
	maxAttempts      int
	backoff          time.Duration
	maxBackoff       time.Duration
	timeout          time.Duration
	retention        time.Duration
	progressEvery    time.Duration
	proxyResolution  string
	exportResolution string
	exportFormat     string
	tempDir          string
}

// Queue is the render job queue and its worker pool.
type Queue struct {
	settings

	store    *catalog.Store
	renderer render.Renderer
	proxies  storage.Backend
	exports  storage.Backend
	notifier notifications.Service
	events   *notifications.Dispatcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    map[string]*entry
	pending []*entry
	closed  bool
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type entry struct {
	job        Job
	cancel     context.CancelCauseFunc
	committing bool
}

// New constructs a Queue from config. Workers start with Start.
func New(cfg *config.Config, deps Deps, opts ...Option) *Queue {
	backoff, maxBackoff := cfg.RetryBackoff()
	q := &Queue{
		settings: settings{
			workers:          cfg.Render.Workers,
			maxAttempts:      cfg.Render.MaxAttempts,
			backoff:          backoff,
			maxBackoff:       maxBackoff,
			timeout:          cfg.JobTimeout(),
			retention:        cfg.JobRetention(),
			progressEvery:    time.Duration(cfg.Notifications.ProgressSeconds) * time.Second,
			proxyResolution:  cfg.Render.ProxyResolution,
			exportResolution: cfg.Render.ExportResolution,
			exportFormat:     cfg.Render.ExportFormat,
			tempDir:          cfg.TempDir(),
		},
		store:    deps.Store,
		renderer: deps.Renderer,
		proxies:  deps.Proxies,
		exports:  deps.Exports,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   logging.NewComponentLogger(deps.Logger, "render-queue"),
		now:      time.Now,
		jobs:     make(map[string]*entry),
	}
	if q.workers <= 0 {
		q.workers = 1
	}
	if q.maxAttempts <= 0 {
		q.maxAttempts = 1
	}
	if q.notifier == nil {
		q.notifier = notifications.Noop()
	}
	q.events = notifications.NewDispatcher(q.notifier, eventBuffer, deps.Logger)
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return errors.New("render queue already running")
	}
	if q.closed {
		q.mu.Unlock()
		return errors.New("render queue stopped")
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.runCtx = runCtx
	q.cancel = cancel
	q.started = true
	q.wg.Add(q.workers)
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		go q.worker(runCtx)
	}
	go func() {
		<-runCtx.Done()
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	q.logger.Info("render workers started",
		logging.Int("workers", q.workers),
		logging.Int("max_attempts", q.maxAttempts),
		logging.Duration("job_timeout", q.timeout),
		logging.String(logging.FieldEventType, "render_queue_started"),
	)
	return nil
}

// Stop cancels running jobs and waits for workers to exit, then flushes
// pending notifications. Queued jobs are left in place.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	started := q.started
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	if started {
		cancel()
		q.wg.Wait()
	}
	q.events.Close()
}

// Enqueue requests a render of version for projectID and returns the job id.
// Proxy requests coalesce into an active job at the same or a higher version
// and supersede lower ones. Export requests coalesce on version.
func (q *Queue) Enqueue(ctx context.Context, projectID string, version int64, kind render.Kind) (string, error) {
	if kind != render.KindProxy && kind != render.KindExport {
		return "", services.Wrap(services.ErrValidation, "render-queue", "enqueue", fmt.Sprintf("unknown kind %q", kind), nil)
	}
	project, err := q.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if version < 1 || version > project.CurrentVersion {
		return "", services.Wrap(services.ErrValidation, "render-queue", "enqueue",
			fmt.Sprintf("version %d outside 1..%d", version, project.CurrentVersion), nil)
	}
	switch kind {
	case render.KindProxy:
		if project.LatestProxyVersion >= version {
			return "", services.Wrap(services.ErrInvalidState, "render-queue", "enqueue",
				fmt.Sprintf("proxy for version %d is already current", version), nil)
		}
	case render.KindExport:
		live, err := q.store.HasLiveExport(ctx, projectID, version)
		if err != nil {
			return "", err
		}
		if live {
			return "", services.Wrap(services.ErrInvalidState, "render-queue", "enqueue",
				fmt.Sprintf("version %d already has an export", version), nil)
		}
	}

	q.mu.Lock()
	if kind == render.KindProxy {
		// A committing proxy cannot be superseded; wait for it to settle so
		// at most one proxy job per project is ever live.
		for !q.closed && q.committingBelowLocked(projectID, version) {
			q.cond.Wait()
		}
	}
	if q.closed {
		q.mu.Unlock()
		return "", services.Wrap(services.ErrInvalidState, "render-queue", "enqueue", "queue is stopped", nil)
	}
	q.pruneLocked()

	var superseded []Job
	if existing := q.coalesceLocked(projectID, version, kind); existing != nil {
		id := existing.job.ID
		q.mu.Unlock()
		return id, nil
	}
	if kind == render.KindProxy {
		for _, e := range q.activeLocked(projectID, kind) {
			if q.cancelLocked(e, errSuperseded) {
				superseded = append(superseded, e.job.snapshot())
			}
		}
	}

	resolution := q.proxyResolution
	if kind == render.KindExport {
		resolution = q.exportResolution
	}
	e := &entry{job: Job{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Version:    version,
		Kind:       kind,
		State:      StateQueued,
		Resolution: resolution,
		CreatedAt:  q.now(),
	}}
	q.jobs[e.job.ID] = e
	q.pending = append(q.pending, e)
	q.cond.Broadcast()
	q.updateDepthLocked()
	queued := e.job.snapshot()
	q.mu.Unlock()

	for _, job := range superseded {
		q.logger.Info("proxy job superseded",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldProjectID, job.ProjectID),
			logging.Int64(logging.FieldVersion, job.Version),
			logging.Int64("superseded_by", version),
			logging.String(logging.FieldEventType, "job_superseded"),
		)
		q.metrics.JobFinished(string(job.Kind), string(StateCancelled))
		q.emit(ctx, notifications.EventJobCancelled, job, nil)
	}
	q.logger.Info("render job queued",
		logging.String(logging.FieldJobID, queued.ID),
		logging.String(logging.FieldProjectID, projectID),
		logging.Int64(logging.FieldVersion, version),
		logging.String("kind", string(kind)),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	q.emit(ctx, notifications.EventJobQueued, queued, nil)
	return queued.ID, nil
}

// SubmitEdit appends ops to the edit log and enqueues a proxy render of the
// new version. A non-zero version with an error means the append committed
// but the proxy could not be queued.
func (q *Queue) SubmitEdit(ctx context.Context, projectID string, ops []edl.Op, expectedBaseVersion int64) (int64, string, error) {
	version, err := q.store.Append(ctx, projectID, ops, expectedBaseVersion)
	if err != nil {
		result := services.Kind(err)
		q.metrics.Append(result)
		return 0, "", err
	}
	q.metrics.Append("ok")
	jobID, err := q.Enqueue(ctx, projectID, version, render.KindProxy)
	if err != nil {
		logging.WarnWithContext(q.logger, "proxy render not queued after append", "proxy_enqueue_failed",
			logging.String(logging.FieldProjectID, projectID),
			logging.Int64(logging.FieldVersion, version),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "request a proxy render for the version manually"),
			logging.String(logging.FieldImpact, "preview stays at the previous version"),
		)
		return version, "", err
	}
	return version, jobID, nil
}

// Cancel stops a queued or running job.
func (q *Queue) Cancel(ctx context.Context, jobID string) (Job, error) {
	q.mu.Lock()
	e, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return Job{}, services.Wrap(services.ErrNotFound, "render-queue", "cancel", "job "+jobID, nil)
	}
	if e.job.State.Terminal() {
		snap := e.job.snapshot()
		q.mu.Unlock()
		return snap, services.Wrap(services.ErrInvalidState, "render-queue", "cancel", fmt.Sprintf("job is already %s", e.job.State), nil)
	}
	if !q.cancelLocked(e, errCancelled) {
		q.mu.Unlock()
		return Job{}, services.Wrap(services.ErrInvalidState, "render-queue", "cancel", "job is committing its artifact", nil)
	}
	snap := e.job.snapshot()
	q.mu.Unlock()

	q.metrics.JobFinished(string(snap.Kind), string(StateCancelled))
	q.emit(ctx, notifications.EventJobCancelled, snap, nil)
	return snap, nil
}

// Get returns a job snapshot.
func (q *Queue) Get(jobID string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[jobID]
	if !ok {
		return Job{}, services.Wrap(services.ErrNotFound, "render-queue", "get", "job "+jobID, nil)
	}
	return e.job.snapshot(), nil
}

// List returns matching jobs oldest first.
func (q *Queue) List(filter Filter) []Job {
	q.mu.Lock()
	q.pruneLocked()
	jobs := make([]Job, 0, len(q.jobs))
	for _, e := range q.jobs {
		if filter.matches(&e.job) {
			jobs = append(jobs, e.job.snapshot())
		}
	}
	q.mu.Unlock()
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Depth reports queued and running job counts.
func (q *Queue) Depth() (queued, running int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// Recover queues a proxy render for every project whose proxy is behind its
// current version. It returns the number of jobs queued.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	projects, err := q.store.ProjectsNeedingProxy(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, project := range projects {
		if _, err := q.Enqueue(ctx, project.ID, project.CurrentVersion, render.KindProxy); err != nil {
			if errors.Is(err, services.ErrInvalidState) {
				continue
			}
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		q.logger.Info("recovered stale proxies",
			logging.Int("jobs", queued),
			logging.String(logging.FieldEventType, "proxy_recovery"),
		)
	}
	return queued, nil
}

func (q *Queue) coalesceLocked(projectID string, version int64, kind render.Kind) *entry {
	var best *entry
	for _, e := range q.activeLocked(projectID, kind) {
		switch kind {
		case render.KindProxy:
			if e.job.Version >= version && (best == nil || e.job.Version > best.job.Version) {
				best = e
			}
		case render.KindExport:
			if e.job.Version == version {
				return e
			}
		}
	}
	return best
}

func (q *Queue) committingBelowLocked(projectID string, version int64) bool {
	for _, e := range q.activeLocked(projectID, render.KindProxy) {
		if e.committing && e.job.Version < version {
			return true
		}
	}
	return false
}

func (q *Queue) activeLocked(projectID string, kind render.Kind) []*entry {
	var active []*entry
	for _, e := range q.jobs {
		if e.job.ProjectID == projectID && e.job.Kind == kind && !e.job.State.Terminal() {
			active = append(active, e)
		}
	}
	return active
}

// cancelLocked moves e to cancelled. A running job has its context
// cancelled; its worker discards the output. Jobs already committing their
// artifact cannot be cancelled.
func (q *Queue) cancelLocked(e *entry, cause error) bool {
	if e.job.State.Terminal() || e.committing {
		return false
	}
	now := q.now()
	if e.cancel != nil {
		e.cancel(cause)
	} else {
		q.removePendingLocked(e)
	}
	e.job.State = StateCancelled
	e.job.LastError = cause.Error()
	e.job.FinishedAt = &now
	q.updateDepthLocked()
	return true
}

func (q *Queue) removePendingLocked(target *entry) {
	for i, e := range q.pending {
		if e == target {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

func (q *Queue) pruneLocked() {
	if q.retention <= 0 {
		return
	}
	cutoff := q.now().Add(-q.retention)
	for id, e := range q.jobs {
		if e.job.State.Terminal() && e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
		}
	}
}

func (q *Queue) depthLocked() (queued, running int) {
	for _, e := range q.jobs {
		switch e.job.State {
		case StateQueued:
			queued++
		case StateRunning:
			running++
		}
	}
	return queued, running
}

func (q *Queue) updateDepthLocked() {
	queued, running := q.depthLocked()
	q.metrics.SetQueueDepth(queued, running)
}

func (q *Queue) emit(ctx context.Context, event notifications.Event, job Job, extra notifications.Payload) {
	payload := notifications.Payload{
		"jobId":     job.ID,
		"projectId": job.ProjectID,
		"version":   job.Version,
		"kind":      string(job.Kind),
		"state":     string(job.State),
		"attempts":  job.Attempts,
	}
	if job.ArtifactKey != "" {
		payload["artifactKey"] = job.ArtifactKey
	}
	if job.LastError != "" {
		payload["error"] = job.LastError
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := q.events.Publish(ctx, event, payload); err != nil {
		q.logger.Warn("notification dropped",
			logging.String("event", string(event)),
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_dropped"),
			logging.String(logging.FieldErrorHint, "check that notification endpoints respond promptly"),
		)
	}
}
