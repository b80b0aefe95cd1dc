package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"cutline/internal/edl"
	"cutline/internal/services"
)

// Append records ops as the next version of the project. It fails with
// services.ErrVersionConflict when expectedBaseVersion is not the current
// version. The operation row and the counter bump commit together or not at
// all.
func (s *Store) Append(ctx context.Context, projectID string, ops []edl.Op, expectedBaseVersion int64) (int64, error) {
	if err := edl.Validate(ops); err != nil {
		return 0, err
	}
	payload, err := edl.Marshal(ops)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "catalog", "append", "encode instructions", err)
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	var newVersion int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentVersionTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if current != expectedBaseVersion {
			return services.Wrap(services.ErrVersionConflict, "catalog", "append",
				fmt.Sprintf("expected base %d, current version is %d", expectedBaseVersion, current), nil)
		}
		newVersion = current + 1
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edit_operations (id, project_id, version, ops_json, op_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), projectID, newVersion, string(payload), len(ops), now,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE projects SET current_version = ?, updated_at = ? WHERE id = ? AND current_version = ?`,
			newVersion, now, projectID, current,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return services.Wrap(services.ErrVersionConflict, "catalog", "append", "version moved during append", nil)
		}
		return nil
	})
	if err != nil {
		return 0, passthrough("append", err)
	}
	return newVersion, nil
}

// Read returns the concatenated instruction sequence for versions 1 through
// uptoVersion in order.
func (s *Store) Read(ctx context.Context, projectID string, uptoVersion int64) ([]edl.Op, error) {
	entries, err := s.entries(ctx, projectID, uptoVersion)
	if err != nil {
		return nil, err
	}
	var ops []edl.Op
	for _, entry := range entries {
		ops = append(ops, entry.Ops...)
	}
	return ops, nil
}

// History lists every edit log entry of the project in version order.
func (s *Store) History(ctx context.Context, projectID string) ([]*EditOperation, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.entries(ctx, projectID, project.CurrentVersion)
}

func (s *Store) entries(ctx context.Context, projectID string, uptoVersion int64) ([]*EditOperation, error) {
	ctx = ensureContext(ctx)
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if uptoVersion < 0 || uptoVersion > project.CurrentVersion {
		return nil, services.Wrap(services.ErrValidation, "catalog", "read",
			fmt.Sprintf("version %d outside 0..%d", uptoVersion, project.CurrentVersion), nil)
	}
	if uptoVersion == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, version, ops_json, op_count, created_at FROM edit_operations
		WHERE project_id = ? AND version <= ? ORDER BY version`,
		projectID, uptoVersion,
	)
	if err != nil {
		return nil, storageErr("read", err)
	}
	defer rows.Close()

	entries := make([]*EditOperation, 0, uptoVersion)
	for rows.Next() {
		entry, err := scanEditOperation(rows)
		if err != nil {
			return nil, storageErr("scan edit operation", err)
		}
		if entry.Version != int64(len(entries))+1 {
			return nil, storageErr("read", fmt.Errorf("edit log gap at version %d", len(entries)+1))
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read", err)
	}
	if int64(len(entries)) != uptoVersion {
		return nil, storageErr("read", fmt.Errorf("edit log has %d of %d versions", len(entries), uptoVersion))
	}
	return entries, nil
}
