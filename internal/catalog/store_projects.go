package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cutline/internal/services"
)

// CreateProject registers a project at version 0.
func (s *Store) CreateProject(ctx context.Context, sourceRef string) (*Project, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create project", "source reference is required", nil)
	}
	now := s.timestamp()
	id := uuid.NewString()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO projects (id, source_ref, current_version, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		id, sourceRef, now, now,
	); err != nil {
		return nil, storageErr("create project", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get project", fmt.Sprintf("project %s", id), nil)
	}
	if err != nil {
		return nil, storageErr("get project", err)
	}
	return project, nil
}

// ListProjects returns all projects ordered by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.queryProjects(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at, id")
}

// ProjectsNeedingProxy returns projects whose proxy pointer trails the
// current version.
func (s *Store) ProjectsNeedingProxy(ctx context.Context) ([]*Project, error) {
	return s.queryProjects(ctx, "SELECT "+projectColumns+` FROM projects
		WHERE current_version > 0 AND (latest_proxy_version IS NULL OR latest_proxy_version < current_version)
		ORDER BY created_at, id`)
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]*Project, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list projects", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, storageErr("scan project", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list projects", err)
	}
	return projects, nil
}

func currentVersionTx(ctx context.Context, tx *sql.Tx, projectID string) (int64, error) {
	var current int64
	err := tx.QueryRowContext(ctx, "SELECT current_version FROM projects WHERE id = ?", projectID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, services.Wrap(services.ErrNotFound, "catalog", "load project", fmt.Sprintf("project %s", projectID), nil)
	}
	return current, err
}
