package renderqueue

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"cutline/internal/catalog"
	"cutline/internal/logging"
	"cutline/internal/render"
	"cutline/internal/storage"
)

// promote uploads the rendered file, moves it to its final key and records
// it in the catalog while holding the project lock. Any failure after the
// upload removes the object again.
func (q *Queue) promote(ctx context.Context, e *entry, job Job, localPath string, logger *slog.Logger) (string, error) {
	backend := q.backendFor(job.Kind)
	ext := strings.ToLower(filepath.Ext(localPath))
	tmpKey := path.Join("tmp", job.ID, "artifact"+ext)
	finalKey := artifactKey(job, ext)
	cleanupCtx := context.WithoutCancel(ctx)

	size, err := storage.PutFile(ctx, backend, tmpKey, localPath)
	if err != nil {
		q.discard(cleanupCtx, backend, tmpKey, logger)
		return "", err
	}

	unlock := q.store.LockProject(job.ProjectID)
	defer unlock()

	if context.Cause(ctx) != nil || !q.beginCommit(e) {
		q.discard(cleanupCtx, backend, tmpKey, logger)
		if cause := context.Cause(ctx); cause != nil {
			return "", cause
		}
		return "", errCancelled
	}
	committed := false
	defer func() {
		if !committed {
			q.endCommit(e)
		}
	}()

	if err := backend.Move(cleanupCtx, tmpKey, finalKey); err != nil {
		q.discard(cleanupCtx, backend, tmpKey, logger)
		return "", err
	}

	switch job.Kind {
	case render.KindProxy:
		result, err := q.store.CompleteProxy(cleanupCtx, job.ProjectID, job.Version, finalKey)
		if err != nil {
			q.discard(cleanupCtx, backend, finalKey, logger)
			return "", err
		}
		if !result.Swapped {
			q.discard(cleanupCtx, backend, finalKey, logger)
			return "", errStale
		}
		if result.PreviousKey != "" && result.PreviousKey != finalKey {
			q.discard(cleanupCtx, backend, result.PreviousKey, logger)
		}
	case render.KindExport:
		result, err := q.store.CompleteExport(cleanupCtx, catalog.NewExport{
			ProjectID:  job.ProjectID,
			Version:    job.Version,
			StorageKey: finalKey,
			JobID:      job.ID,
			Size:       size,
			Resolution: job.Resolution,
			Format:     strings.TrimPrefix(ext, "."),
		})
		if err != nil {
			q.discard(cleanupCtx, backend, finalKey, logger)
			return "", err
		}
		logger.Info("export recorded",
			logging.String(logging.FieldExportID, result.Export.ID),
			logging.Bool("pointer_updated", result.PointerUpdated),
			logging.Int64("size_bytes", size),
			logging.String(logging.FieldEventType, "export_recorded"),
		)
	}
	committed = true
	return finalKey, nil
}

func (q *Queue) backendFor(kind render.Kind) storage.Backend {
	if kind == render.KindExport {
		return q.exports
	}
	return q.proxies
}

// artifactKey is unique per job so a promotion never overwrites the object
// a pointer currently references.
func artifactKey(job Job, ext string) string {
	return path.Join(job.ProjectID, fmt.Sprintf("v%d-%s%s", job.Version, job.ID, ext))
}

func (q *Queue) discard(ctx context.Context, backend storage.Backend, key string, logger *slog.Logger) {
	if err := backend.Delete(ctx, key); err != nil {
		logging.WarnWithContext(logger, "failed to remove render artifact", "artifact_cleanup_failed",
			logging.String("key", key),
			logging.String("backend", backend.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the orphaned object manually"),
			logging.String(logging.FieldImpact, "storage holds an unreferenced object"),
		)
	}
}
