package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"cutline/internal/api"
	"cutline/internal/catalog"
	"cutline/internal/config"
	"cutline/internal/gc"
	"cutline/internal/logging"
	"cutline/internal/metrics"
	"cutline/internal/notifications"
	"cutline/internal/preflight"
	"cutline/internal/render"
	"cutline/internal/renderqueue"
	"cutline/internal/storage"
)

// Components are the collaborators the daemon drives. Notifier receives
// every lifecycle event; Hub, when set, backs the event stream endpoint and
// should be one of Notifier's sinks.
type Components struct {
	Store    *catalog.Store
	Backends *storage.Set
	Renderer render.Renderer
	Notifier notifications.Service
	Hub      *notifications.Hub
	Metrics  *metrics.Metrics
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *catalog.Store
	backends  *storage.Set
	notifier  notifications.Service
	hub       *notifications.Hub
	metrics   *metrics.Metrics
	queue     *renderqueue.Queue
	gc        *gc.Service
	scheduler *gc.Scheduler
	intervals gc.Intervals
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	stopped bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, components Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || components.Store == nil || components.Backends == nil || components.Renderer == nil {
		return nil, errors.New("daemon requires config, store, storage backends, and renderer")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if components.Metrics == nil {
		components.Metrics = metrics.New()
	}
	if components.Notifier == nil {
		if components.Hub != nil {
			components.Notifier = components.Hub
		} else {
			components.Notifier = notifications.Noop()
		}
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     components.Store,
		backends:  components.Backends,
		notifier:  components.Notifier,
		hub:       components.Hub,
		metrics:   components.Metrics,
		intervals: gc.IntervalsFromConfig(cfg.GC),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	d.queue = renderqueue.New(cfg, renderqueue.Deps{
		Store:    components.Store,
		Renderer: components.Renderer,
		Proxies:  components.Backends.Proxies,
		Exports:  components.Backends.Exports,
		Notifier: components.Notifier,
		Metrics:  components.Metrics,
		Logger:   logger,
	})
	d.gc = gc.New(cfg, gc.Deps{
		Store:    components.Store,
		Exports:  components.Backends.Exports,
		Archive:  components.Backends.Archive,
		Codec:    components.Backends.ArchiveCodec,
		Notifier: components.Notifier,
		Metrics:  components.Metrics,
		Logger:   logger,
	})
	d.scheduler = gc.NewScheduler(d.gc, d.intervals, logger)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers stale proxies and launches the
// render workers, the GC scheduler and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.stopped {
		return errors.New("daemon already stopped")
	}

	if err := d.store.Ping(ctx); err != nil {
		return fmt.Errorf("catalog unavailable: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cutline daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		d.queue.Stop()
		d.scheduler.Stop()
		_ = d.lock.Unlock()
		d.stopped = true
		return err
	}

	if err := d.queue.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start render queue: %w", err))
	}
	if d.cfg.Render.RecoverOnStart {
		if _, err := d.queue.Recover(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "proxy recovery failed", "proxy_recovery_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "request proxy renders for stale projects manually"),
			)
		}
	}
	if err := d.scheduler.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start gc scheduler: %w", err))
	}
	if err := d.api.start(runCtx); err != nil {
		return fail(err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("cutline daemon started",
		logging.String("lock", d.lockPath),
		logging.String("catalog", d.store.Path()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. Running
// render jobs are cancelled; the proxy of a cancelled edit is recovered on
// the next start.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.queue.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
		)
	}
	d.stopped = true
	d.running.Store(false)
	d.logger.Info("cutline daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the address the API server listens on, or "" when the API is
// disabled or not started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler()
}

// Queue returns the render queue.
func (d *Daemon) Queue() *renderqueue.Queue {
	return d.queue
}

// GC returns the GC service.
func (d *Daemon) GC() *gc.Service {
	return d.gc
}

// TestNotification publishes a test event through every configured sink.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.Publish(ctx, notifications.EventTest, notifications.Payload{"message": "Notification system test"})
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	queued, running := d.queue.Depth()
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		CatalogPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Workers:      d.cfg.Render.Workers,
		Queue:        api.QueueDepth{Queued: queued, Running: running},
		Storage: api.StorageStatus{
			Exports:      describe(d.backends.Exports),
			Proxies:      describe(d.backends.Proxies),
			Archive:      describe(d.backends.Archive),
			ArchiveCodec: string(d.backends.ArchiveCodec),
		},
		GC: api.GCSchedule{Enabled: d.intervals.Enabled()},
	}
	if d.intervals.Mark > 0 {
		status.GC.MarkInterval = d.intervals.Mark.String()
	}
	if d.intervals.Archive > 0 {
		status.GC.ArchiveInterval = d.intervals.Archive.String()
	}
	if d.intervals.Delete > 0 {
		status.GC.DeleteInterval = d.intervals.Delete.String()
	}
	for _, dep := range preflight.CheckBinaries(preflight.Requirements(d.cfg)) {
		status.Dependencies = append(status.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return status
}

func describe(backend storage.Backend) string {
	if backend == nil {
		return ""
	}
	return backend.String()
}
