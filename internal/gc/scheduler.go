package gc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cutline/internal/config"
	"cutline/internal/logging"
)

// Intervals sets how often each stage runs. Zero disables a stage.
type Intervals struct {
	Mark    time.Duration
	Archive time.Duration
	Delete  time.Duration
}

// IntervalsFromConfig converts the [gc] schedule settings.
func IntervalsFromConfig(cfg config.GC) Intervals {
	return Intervals{
		Mark:    time.Duration(cfg.MarkIntervalMinutes) * time.Minute,
		Archive: time.Duration(cfg.ArchiveIntervalHours) * time.Hour,
		Delete:  time.Duration(cfg.DeleteIntervalHours) * time.Hour,
	}
}

// Enabled reports whether any stage is scheduled.
func (i Intervals) Enabled() bool {
	return i.Mark > 0 || i.Archive > 0 || i.Delete > 0
}

// Scheduler triggers each GC stage on its own timer. Stages never trigger
// one another; an export marked on one tick is archived on a later archive
// tick at the earliest.
type Scheduler struct {
	svc       *Service
	intervals Intervals
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	last    map[Stage]Report
}

// NewScheduler constructs a Scheduler for svc.
func NewScheduler(svc *Service, intervals Intervals, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		svc:       svc,
		intervals: intervals,
		logger:    logging.NewComponentLogger(logger, "gc-scheduler"),
		last:      make(map[Stage]Report),
	}
}

// Start launches one loop per enabled stage.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("gc scheduler already running")
	}
	if !s.intervals.Enabled() {
		s.logger.Info("gc schedule disabled", logging.String(logging.FieldEventType, "gc_schedule_disabled"))
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.spawn(loopCtx, StageMark, s.intervals.Mark, s.svc.MarkCandidates)
	s.spawn(loopCtx, StageArchive, s.intervals.Archive, s.svc.Archive)
	s.spawn(loopCtx, StageDelete, s.intervals.Delete, func(ctx context.Context) (Report, error) {
		return s.svc.DeleteArchived(ctx, s.svc.Policy().MinDaysInArchive)
	})

	s.logger.Info("gc schedule started",
		logging.Duration("mark_interval", s.intervals.Mark),
		logging.Duration("archive_interval", s.intervals.Archive),
		logging.Duration("delete_interval", s.intervals.Delete),
		logging.String(logging.FieldEventType, "gc_schedule_started"),
	)
	return nil
}

// Stop cancels the loops and waits for in-flight stages to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// LastReport returns the most recent scheduled report for stage.
func (s *Scheduler) LastReport(stage Stage) (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.last[stage]
	return report, ok
}

func (s *Scheduler) spawn(ctx context.Context, stage Stage, every time.Duration, run func(context.Context) (Report, error)) {
	if every <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := run(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logging.WarnWithContext(s.logger, "scheduled gc stage failed", "gc_schedule_failed",
						logging.String("stage", string(stage)),
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check catalog and storage availability"),
						logging.String(logging.FieldImpact, "stage retries on the next tick"),
					)
					continue
				}
				s.mu.Lock()
				s.last[stage] = report
				s.mu.Unlock()
			}
		}
	}()
}
