package gc

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cutline/internal/catalog"
	"cutline/internal/config"
	"cutline/internal/logging"
	"cutline/internal/metrics"
	"cutline/internal/notifications"
	"cutline/internal/services"
	"cutline/internal/storage"
)

const day = 24 * time.Hour

// Deps are the collaborators a Service drives.
type Deps struct {
	Store    *catalog.Store
	Exports  storage.Backend
	Archive  storage.Backend
	Codec    storage.Codec
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for ages and cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service runs the GC pipeline stages against the export catalog.
type Service struct {
	store       *catalog.Store
	exports     storage.Backend
	archive     storage.Backend
	codec       storage.Codec
	notifier    notifications.Service
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	parallelism int

	policy config.GC
}

// New constructs a Service.
func New(cfg *config.Config, deps Deps, opts ...Option) *Service {
	s := &Service{
		store:       deps.Store,
		exports:     deps.Exports,
		archive:     deps.Archive,
		codec:       deps.Codec,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      logging.NewComponentLogger(deps.Logger, "gc"),
		now:         time.Now,
		parallelism: cfg.GC.Parallelism,
		policy:      cfg.GC,
	}
	if s.parallelism <= 0 {
		s.parallelism = 1
	}
	if s.codec == "" {
		s.codec = storage.CodecNone
	}
	if s.notifier == nil {
		s.notifier = notifications.Noop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the configured retention policy.
func (s *Service) Policy() config.GC {
	return s.policy
}

// CalcCandidates lists ready exports that may be marked. Per project the
// newest keepLatest ready exports, pinned exports and the export the project
// points at are excluded; of the rest only those created more than ttlDays
// ago are returned. Nothing is modified.
func (s *Service) CalcCandidates(ctx context.Context, ttlDays, keepLatest int) ([]Candidate, error) {
	if ttlDays < 0 || keepLatest < 0 {
		return nil, services.Wrap(services.ErrValidation, "gc", "candidates",
			fmt.Sprintf("ttl_days (%d) and keep_latest (%d) must not be negative", ttlDays, keepLatest), nil)
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(ttlDays) * day)

	var candidates []Candidate
	for _, project := range projects {
		exports, err := s.store.ListExports(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		ready := make([]*catalog.ExportVersion, 0, len(exports))
		for _, export := range exports {
			if export.Status == catalog.ExportReady {
				ready = append(ready, export)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].Version > ready[j].Version })

		for i, export := range ready {
			if i < keepLatest || export.Pinned {
				continue
			}
			if project.LatestExportKey != "" && export.StorageKey == project.LatestExportKey {
				continue
			}
			if !export.CreatedAt.Before(cutoff) {
				continue
			}
			candidates = append(candidates, Candidate{
				ProjectID: project.ID,
				ExportID:  export.ID,
				Version:   export.Version,
				AgeDays:   int(now.Sub(export.CreatedAt) / day),
				Size:      export.Size,
			})
		}
	}
	return candidates, nil
}

// Mark moves each ready export in ids to marked. Already marked exports
// succeed unchanged.
func (s *Service) Mark(ctx context.Context, ids []string) Report {
	return s.transition(ctx, StageMark, ids, s.store.Mark)
}

// Unmark returns each marked export in ids to ready.
func (s *Service) Unmark(ctx context.Context, ids []string) Report {
	return s.transition(ctx, StageUnmark, ids, s.store.Unmark)
}

// MarkCandidates computes candidates with the configured policy and marks
// them.
func (s *Service) MarkCandidates(ctx context.Context) (Report, error) {
	candidates, err := s.CalcCandidates(ctx, s.policy.TTLDays, s.policy.KeepLatest)
	if err != nil {
		return Report{Stage: StageMark}, err
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ExportID)
	}
	return s.Mark(ctx, ids), nil
}

func (s *Service) transition(ctx context.Context, stage Stage, ids []string, fn func(context.Context, string) (bool, error)) Report {
	done := s.metrics.GCStage(string(stage))
	defer done()

	report := Report{Stage: stage, StartedAt: s.now()}
	report.Items = make([]ItemResult, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		changed, err := fn(ctx, id)
		item := ItemResult{ID: id, Success: err == nil, Changed: changed}
		if err != nil {
			item.Error = err.Error()
		}
		s.metrics.GCItem(string(stage), item.Success)
		report.Items = append(report.Items, item)
	}
	report.tally()
	report.FinishedAt = s.now()
	s.logReport(report)
	return report
}

// Archive moves every marked export into archive storage. The archive copy
// is written under a fresh key, the row is switched to archived with a
// compare-and-set, and only then is the export artifact deleted. A caller
// that loses the compare-and-set removes its own copy.
func (s *Service) Archive(ctx context.Context) (Report, error) {
	done := s.metrics.GCStage(string(StageArchive))
	defer done()

	report := Report{Stage: StageArchive, StartedAt: s.now()}
	marked, err := s.store.ListExportsByStatus(ctx, catalog.ExportMarked)
	if err != nil {
		return report, err
	}
	items := make([]ItemResult, len(marked))
	sizes := make([]int64, len(marked))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, export := range marked {
		g.Go(func() error {
			n, err := s.archiveOne(ctx, export)
			items[i] = itemFor(export.ID, err)
			sizes[i] = n
			s.metrics.GCItem(string(StageArchive), err == nil)
			return nil
		})
	}
	_ = g.Wait()

	report.Items = items
	for i, item := range items {
		if item.Success {
			report.Bytes += sizes[i]
		}
	}
	report.tally()
	report.FinishedAt = s.now()
	s.logReport(report)
	s.publish(ctx, notifications.EventGCArchived, report, "archived")
	return report, nil
}

func (s *Service) archiveOne(ctx context.Context, export *catalog.ExportVersion) (int64, error) {
	if export.StorageKey == "" {
		return 0, services.Wrap(services.ErrInvalidState, "gc", "archive", "export "+export.ID+" has no storage key", nil)
	}
	archiveKey := path.Join(export.ProjectID, export.ID, uuid.NewString()+path.Ext(export.StorageKey)+s.codec.Extension())
	cleanupCtx := context.WithoutCancel(ctx)

	n, err := storage.Transfer(ctx, s.exports, export.StorageKey, s.archive, archiveKey, s.codec)
	if err != nil {
		s.remove(cleanupCtx, s.archive, archiveKey, export.ID)
		return 0, err
	}
	won, err := s.store.CompleteArchive(ctx, export.ID, archiveKey)
	if err != nil {
		s.remove(cleanupCtx, s.archive, archiveKey, export.ID)
		return 0, err
	}
	if !won {
		s.remove(cleanupCtx, s.archive, archiveKey, export.ID)
		return 0, s.lostTransition(ctx, "archive", export.ID)
	}
	s.remove(cleanupCtx, s.exports, export.StorageKey, export.ID)
	return n, nil
}

// DeleteArchived removes archive objects of exports archived at least
// minDays ago and turns their rows into tombstones. Tombstones still
// holding an archive key from an earlier failed removal are retried.
func (s *Service) DeleteArchived(ctx context.Context, minDays int) (Report, error) {
	done := s.metrics.GCStage(string(StageDelete))
	defer done()

	report := Report{Stage: StageDelete, StartedAt: s.now()}
	if minDays < 0 {
		return report, services.Wrap(services.ErrValidation, "gc", "delete",
			fmt.Sprintf("min_days_in_archive (%d) must not be negative", minDays), nil)
	}
	cutoff := report.StartedAt.Add(-time.Duration(minDays) * day)
	archived, err := s.store.ArchivedBefore(ctx, cutoff)
	if err != nil {
		return report, err
	}
	pending, err := s.store.PendingPurges(ctx)
	if err != nil {
		return report, err
	}
	archived = append(archived, pending...)
	items := make([]ItemResult, len(archived))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, export := range archived {
		g.Go(func() error {
			err := s.deleteOne(ctx, export)
			items[i] = itemFor(export.ID, err)
			s.metrics.GCItem(string(StageDelete), err == nil)
			return nil
		})
	}
	_ = g.Wait()

	report.Items = items
	for i, item := range items {
		if item.Success {
			report.Bytes += archived[i].Size
		}
	}
	report.tally()
	report.FinishedAt = s.now()
	s.logReport(report)
	s.publish(ctx, notifications.EventGCDeleted, report, "deleted")
	return report, nil
}

// deleteOne claims the row as a tombstone before touching the archive
// object, so a pin that lands first keeps both the row and its blob. A
// tombstone whose blob removal failed keeps its archive key and is retried
// by the next run.
func (s *Service) deleteOne(ctx context.Context, export *catalog.ExportVersion) error {
	if export.Status == catalog.ExportArchived {
		won, err := s.store.ClaimDelete(ctx, export.ID)
		if err != nil {
			return err
		}
		if !won {
			return s.lostTransition(ctx, "delete", export.ID)
		}
	}
	if export.ArchiveKey != "" {
		if err := s.archive.Delete(ctx, export.ArchiveKey); err != nil {
			logging.WarnWithContext(s.logger, "archive object removal failed", "gc_purge_failed",
				logging.String(logging.FieldExportID, export.ID),
				logging.String("archive_key", export.ArchiveKey),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the next delete run retries the removal"),
				logging.String(logging.FieldImpact, "archive storage is not reclaimed yet"),
			)
			return err
		}
	}
	return s.store.ClearArchiveKey(ctx, export.ID)
}

func (s *Service) lostTransition(ctx context.Context, op, id string) error {
	current, err := s.store.GetExport(ctx, id)
	if err != nil {
		return err
	}
	pinned := ""
	if current.Pinned {
		pinned = " and pinned"
	}
	return services.Wrap(services.ErrInvalidState, "gc", op, fmt.Sprintf("export %s is now %s%s", id, current.Status, pinned), nil)
}

func (s *Service) remove(ctx context.Context, backend storage.Backend, key, exportID string) {
	if err := backend.Delete(ctx, key); err != nil {
		logging.WarnWithContext(s.logger, "gc object cleanup failed", "gc_cleanup_failed",
			logging.String(logging.FieldExportID, exportID),
			logging.String("backend", backend.String()),
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the object manually"),
			logging.String(logging.FieldImpact, "storage is not reclaimed for this object"),
		)
	}
}

func (s *Service) logReport(report Report) {
	attrs := []logging.Attr{
		logging.String("stage", string(report.Stage)),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int64("bytes", report.Bytes),
		logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if report.Failed == 0 {
		attrs = append(attrs, logging.String(logging.FieldEventType, "gc_stage_complete"))
		s.logger.Info("gc stage complete", logging.Args(attrs...)...)
		return
	}
	for _, item := range report.Failures() {
		s.logger.Debug("gc item failed",
			logging.String("stage", string(report.Stage)),
			logging.String(logging.FieldExportID, item.ID),
			logging.String("error", item.Error),
		)
	}
	logging.WarnWithContext(s.logger, "gc stage completed with failures", "gc_stage_partial",
		append(attrs,
			logging.String(logging.FieldErrorHint, "inspect the per-item report and rerun the stage"),
			logging.String(logging.FieldImpact, "failed items keep their current status"),
		)...,
	)
}

func (s *Service) publish(ctx context.Context, event notifications.Event, report Report, countKey string) {
	if len(report.Items) == 0 {
		return
	}
	payload := notifications.Payload{
		countKey: report.Succeeded,
		"failed": report.Failed,
		"bytes":  report.Bytes,
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		s.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notification endpoint configuration"),
		)
	}
}

func itemFor(id string, err error) ItemResult {
	if err != nil {
		return ItemResult{ID: id, Error: err.Error()}
	}
	return ItemResult{ID: id, Success: true, Changed: true}
}
