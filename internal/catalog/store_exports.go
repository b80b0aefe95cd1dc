package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cutline/internal/services"
)

// CreateExport records a ready artifact for an existing project version.
func (s *Store) CreateExport(ctx context.Context, in NewExport) (*ExportVersion, error) {
	var created *ExportVersion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.insertExportTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, passthrough("create export", err)
	}
	return created, nil
}

func (s *Store) insertExportTx(ctx context.Context, tx *sql.Tx, in NewExport) (*ExportVersion, error) {
	if strings.TrimSpace(in.StorageKey) == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create export", "storage key is required", nil)
	}
	if in.Size < 0 {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create export", "size must be >= 0", nil)
	}
	current, err := currentVersionTx(ctx, tx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if in.Version < 1 || in.Version > current {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create export",
			fmt.Sprintf("version %d outside 1..%d", in.Version, current), nil)
	}

	created := &ExportVersion{
		ID:         uuid.NewString(),
		ProjectID:  in.ProjectID,
		Version:    in.Version,
		StorageKey: in.StorageKey,
		JobID:      in.JobID,
		Size:       in.Size,
		Resolution: in.Resolution,
		Format:     in.Format,
		Status:     ExportReady,
		CreatedAt:  s.now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO export_versions (id, project_id, version, storage_key, job_id, size_bytes, resolution, format, pinned, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		created.ID, created.ProjectID, created.Version, created.StorageKey, nullableString(created.JobID),
		created.Size, created.Resolution, created.Format, string(ExportReady), formatTime(created.CreatedAt),
	)
	if isConstraintViolation(err) {
		return nil, services.Wrap(services.ErrInvalidState, "catalog", "create export",
			fmt.Sprintf("project %s already has a live export for version %d", in.ProjectID, in.Version), nil)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetExport fetches an export by id.
func (s *Store) GetExport(ctx context.Context, id string) (*ExportVersion, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+exportColumns+" FROM export_versions WHERE id = ?", id)
	export, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get export", fmt.Sprintf("export %s", id), nil)
	}
	if err != nil {
		return nil, storageErr("get export", err)
	}
	return export, nil
}

// ListExports returns the project's exports, highest version first.
func (s *Store) ListExports(ctx context.Context, projectID string) ([]*ExportVersion, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.queryExports(ctx,
		"SELECT "+exportColumns+" FROM export_versions WHERE project_id = ? ORDER BY version DESC, created_at DESC",
		projectID)
}

// ListExportsByStatus returns exports across all projects in the given
// statuses, ordered by project then version descending.
func (s *Store) ListExportsByStatus(ctx context.Context, statuses ...ExportStatus) ([]*ExportVersion, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	query := "SELECT " + exportColumns + " FROM export_versions WHERE status IN (" + makePlaceholders(len(statuses)) +
		") ORDER BY project_id, version DESC"
	return s.queryExports(ctx, query, args...)
}

// FindLatestExport returns the highest-version export that is ready or
// marked, or nil when the project has none.
func (s *Store) FindLatestExport(ctx context.Context, projectID string) (*ExportVersion, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+exportColumns+` FROM export_versions
		WHERE project_id = ? AND status IN ('ready', 'marked')
		ORDER BY version DESC LIMIT 1`,
		projectID)
	export, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find latest export", err)
	}
	return export, nil
}

// HasLiveExport reports whether a non-deleted export exists for the version.
func (s *Store) HasLiveExport(ctx context.Context, projectID string, version int64) (bool, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM export_versions WHERE project_id = ? AND version = ? AND status != 'deleted'",
		projectID, version,
	).Scan(&count); err != nil {
		return false, storageErr("check export", err)
	}
	return count > 0, nil
}

func (s *Store) queryExports(ctx context.Context, query string, args ...any) ([]*ExportVersion, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list exports", err)
	}
	defer rows.Close()

	var exports []*ExportVersion
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, storageErr("scan export", err)
		}
		exports = append(exports, export)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list exports", err)
	}
	return exports, nil
}

// Pin protects an export from garbage collection. Pinning a marked export
// returns it to ready. Pinning is idempotent; deleted tombstones cannot be
// pinned.
func (s *Store) Pin(ctx context.Context, id string) (*ExportVersion, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE export_versions
		SET pinned = 1, status = CASE WHEN status = 'marked' THEN 'ready' ELSE status END
		WHERE id = ? AND status != 'deleted'`,
		id)
	if err != nil {
		return nil, storageErr("pin", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.GetExport(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, services.Wrap(services.ErrInvalidState, "catalog", "pin",
			fmt.Sprintf("export %s is %s", id, existing.Status), nil)
	}
	return s.GetExport(ctx, id)
}

// Unpin clears the pinned flag. It is idempotent.
func (s *Store) Unpin(ctx context.Context, id string) (*ExportVersion, error) {
	if _, err := s.GetExport(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.execWithRetry(ctx, "UPDATE export_versions SET pinned = 0 WHERE id = ?", id); err != nil {
		return nil, storageErr("unpin", err)
	}
	return s.GetExport(ctx, id)
}

// Mark moves a ready, unpinned, non-latest export to marked. Marking an
// already marked export reports changed=false without error.
func (s *Store) Mark(ctx context.Context, id string) (changed bool, err error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE export_versions SET status = 'marked'
		WHERE id = ? AND status = 'ready' AND pinned = 0
		AND storage_key IS NOT (SELECT latest_export_key FROM projects WHERE projects.id = export_versions.project_id)`,
		id)
	if err != nil {
		return false, storageErr("mark", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	existing, err := s.GetExport(ctx, id)
	if err != nil {
		return false, err
	}
	switch {
	case existing.Status == ExportMarked:
		return false, nil
	case existing.Status != ExportReady:
		return false, services.Wrap(services.ErrInvalidState, "catalog", "mark", fmt.Sprintf("export %s is %s", id, existing.Status), nil)
	case existing.Pinned:
		return false, services.Wrap(services.ErrInvalidState, "catalog", "mark", fmt.Sprintf("export %s is pinned", id), nil)
	default:
		return false, services.Wrap(services.ErrInvalidState, "catalog", "mark", fmt.Sprintf("export %s is the project's latest export", id), nil)
	}
}

// Unmark returns a marked export to ready. Unmarking a ready export reports
// changed=false without error.
func (s *Store) Unmark(ctx context.Context, id string) (changed bool, err error) {
	res, err := s.execWithRetry(ctx,
		"UPDATE export_versions SET status = 'ready' WHERE id = ? AND status = 'marked'", id)
	if err != nil {
		return false, storageErr("unmark", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	existing, err := s.GetExport(ctx, id)
	if err != nil {
		return false, err
	}
	if existing.Status == ExportReady {
		return false, nil
	}
	return false, services.Wrap(services.ErrInvalidState, "catalog", "unmark", fmt.Sprintf("export %s is %s", id, existing.Status), nil)
}

// CompleteArchive moves a marked, unpinned export to archived. It reports
// false when another caller already won the transition or the row changed.
func (s *Store) CompleteArchive(ctx context.Context, id, archiveKey string) (bool, error) {
	if strings.TrimSpace(archiveKey) == "" {
		return false, services.Wrap(services.ErrValidation, "catalog", "archive", "archive key is required", nil)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE export_versions SET status = 'archived', archive_key = ?, archived_at = ?
		WHERE id = ? AND status = 'marked' AND pinned = 0`,
		archiveKey, s.timestamp(), id)
	if err != nil {
		return false, storageErr("archive", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ClaimDelete turns an archived, unpinned export into a deleted tombstone.
// The archive key is kept on the tombstone until ClearArchiveKey confirms
// the archive object is gone, so a claimed row can no longer be pinned and
// an interrupted purge is found again by PendingPurges.
func (s *Store) ClaimDelete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE export_versions SET status = 'deleted', storage_key = NULL, deleted_at = ?
		WHERE id = ? AND status = 'archived' AND pinned = 0`,
		s.timestamp(), id)
	if err != nil {
		return false, storageErr("delete", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ClearArchiveKey drops the archive pointer of a tombstone once its archive
// object has been removed.
func (s *Store) ClearArchiveKey(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx,
		"UPDATE export_versions SET archive_key = NULL WHERE id = ? AND status = 'deleted'", id); err != nil {
		return storageErr("clear archive key", err)
	}
	return nil
}

// PendingPurges lists tombstones whose archive object may still exist.
func (s *Store) PendingPurges(ctx context.Context) ([]*ExportVersion, error) {
	deleted, err := s.ListExportsByStatus(ctx, ExportDeleted)
	if err != nil {
		return nil, err
	}
	out := deleted[:0]
	for _, export := range deleted {
		if export.ArchiveKey != "" {
			out = append(out, export)
		}
	}
	return out, nil
}

// ArchivedBefore lists unpinned archived exports whose archivedAt is at or
// before cutoff.
func (s *Store) ArchivedBefore(ctx context.Context, cutoff time.Time) ([]*ExportVersion, error) {
	archived, err := s.ListExportsByStatus(ctx, ExportArchived)
	if err != nil {
		return nil, err
	}
	out := archived[:0]
	for _, export := range archived {
		if export.Pinned || export.ArchivedAt == nil {
			continue
		}
		if !export.ArchivedAt.After(cutoff) {
			out = append(out, export)
		}
	}
	return out, nil
}
