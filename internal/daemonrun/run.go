// Package daemonrun assembles and runs the cutline daemon process.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"cutline/internal/catalog"
	"cutline/internal/config"
	"cutline/internal/daemon"
	"cutline/internal/logging"
	"cutline/internal/metrics"
	"cutline/internal/notifications"
	"cutline/internal/preflight"
	"cutline/internal/render"
	"cutline/internal/services/drapto"
	"cutline/internal/storage"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides [logging].level when set.
	LogLevel string
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "cutlined.pid")
}

// Run starts the cutline daemon and blocks until SIGINT, SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg, true)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, cleanup, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon bootstrap failed", "daemon_bootstrap_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, catalog and storage access"),
		)
		return err
	}
	defer cleanup()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file and api bind address"),
			logging.String(logging.FieldImpact, "no renders or gc stages will run"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("cutline daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// Build opens the catalog and storage in cfg and wires them into a daemon.
// cleanup closes the daemon and everything Build opened.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, func(), error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	backends, err := storage.OpenSet(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	logPreflight(ctx, logger, cfg, backends)

	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}

	hub := notifications.NewHub()
	d, err := daemon.New(cfg, daemon.Components{
		Store:    store,
		Backends: backends,
		Renderer: NewRenderer(cfg, logger),
		Notifier: notifications.NewService(cfg, hub),
		Hub:      hub,
		Metrics:  metrics.New(),
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, func() { _ = d.Close() }, nil
}

// NewRenderer builds the configured render pipeline. Finishing wraps the
// export render with a drapto encode pass.
func NewRenderer(cfg *config.Config, logger *slog.Logger) render.Renderer {
	var renderer render.Renderer = render.NewCLI(cfg.Render.Binary)
	if cfg.Render.DraptoFinish {
		renderer = render.NewFinisher(renderer, drapto.NewLibrary(), logger)
	}
	return renderer
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, backends *storage.Set) {
	results := preflight.RunAll(ctx, cfg, backends)
	failed := preflight.Failed(results)
	for _, r := range failed {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the path, credentials or binary named in detail"),
			logging.String(logging.FieldImpact, "renders or gc stages depending on it will fail"),
		)
	}
	logger.Info("preflight complete",
		logging.Int("checks", len(results)),
		logging.Int("failed", len(failed)),
		logging.String(logging.FieldEventType, "preflight_complete"),
	)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
