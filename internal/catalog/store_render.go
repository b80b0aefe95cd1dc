package catalog

import (
	"context"
	"database/sql"
	"strings"

	"cutline/internal/services"
)

// CompleteProxy points the project's proxy at key if version is newer than
// the currently recorded proxy version. Callers hold LockProject across the
// artifact promotion and this call. When Swapped is false the caller owns
// key and must discard it.
func (s *Store) CompleteProxy(ctx context.Context, projectID string, version int64, key string) (ProxyCompletion, error) {
	if strings.TrimSpace(key) == "" {
		return ProxyCompletion{}, services.Wrap(services.ErrValidation, "catalog", "complete proxy", "artifact key is required", nil)
	}
	var result ProxyCompletion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = ProxyCompletion{}
		var (
			previous       sql.NullString
			currentVersion int64
		)
		if err := tx.QueryRowContext(ctx,
			"SELECT latest_proxy_key, current_version FROM projects WHERE id = ?", projectID,
		).Scan(&previous, &currentVersion); err != nil {
			if err == sql.ErrNoRows {
				return services.Wrap(services.ErrNotFound, "catalog", "complete proxy", "project "+projectID, nil)
			}
			return err
		}
		if version < 1 || version > currentVersion {
			return services.Wrap(services.ErrValidation, "catalog", "complete proxy", "version outside the edit log", nil)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE projects SET latest_proxy_key = ?, latest_proxy_version = ?, updated_at = ?
			WHERE id = ? AND (latest_proxy_version IS NULL OR latest_proxy_version < ?)`,
			key, version, s.timestamp(), projectID, version)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			result.Swapped = true
			result.PreviousKey = previous.String
		}
		return nil
	})
	if err != nil {
		return ProxyCompletion{}, passthrough("complete proxy", err)
	}
	return result, nil
}

// CompleteExport records the export row and advances the export pointer in
// one transaction. The pointer only moves forward in version; an older
// version still gets its catalog row. Callers hold LockProject and, on error,
// discard the promoted artifact.
func (s *Store) CompleteExport(ctx context.Context, in NewExport) (ExportCompletion, error) {
	var result ExportCompletion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = ExportCompletion{}
		created, err := s.insertExportTx(ctx, tx, in)
		if err != nil {
			return err
		}
		result.Export = created

		var previous sql.NullString
		if err := tx.QueryRowContext(ctx,
			"SELECT latest_export_key FROM projects WHERE id = ?", in.ProjectID,
		).Scan(&previous); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE projects SET latest_export_key = ?, latest_export_version = ?, updated_at = ?
			WHERE id = ? AND (latest_export_version IS NULL OR latest_export_version <= ?)`,
			in.StorageKey, in.Version, s.timestamp(), in.ProjectID, in.Version)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			result.PointerUpdated = true
			result.PreviousKey = previous.String
		}
		return nil
	})
	if err != nil {
		return ExportCompletion{}, passthrough("complete export", err)
	}
	return result, nil
}
