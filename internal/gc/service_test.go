package gc_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/catalog"
	"cutline/internal/gc"
	"cutline/internal/logging"
	"cutline/internal/metrics"
	"cutline/internal/notifications"
	"cutline/internal/services"
	"cutline/internal/storage"
	"cutline/internal/testsupport"
)

type env struct {
	clock    *testsupport.Clock
	store    *catalog.Store
	exports  *testsupport.FaultyBackend
	archive  *testsupport.FaultyBackend
	exportsM *storage.Memory
	archiveM *storage.Memory
	notifier *testsupport.Notifier
	svc      *gc.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := testsupport.NewClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	cfg := testsupport.NewConfig(t)
	cfg.GC.Parallelism = 4
	e := &env{
		clock:    clock,
		store:    testsupport.MustOpenStore(t, cfg, catalog.WithClock(clock.Now)),
		exportsM: storage.NewMemory("exports"),
		archiveM: storage.NewMemory("archive"),
		notifier: &testsupport.Notifier{},
	}
	e.exports = testsupport.NewFaultyBackend(e.exportsM)
	e.archive = testsupport.NewFaultyBackend(e.archiveM)
	e.svc = gc.New(cfg, gc.Deps{
		Store:    e.store,
		Exports:  e.exports,
		Archive:  e.archive,
		Codec:    storage.CodecZstd,
		Notifier: e.notifier,
		Metrics:  metrics.New(),
		Logger:   logging.NewNop(),
	}, gc.WithClock(clock.Now))
	return e
}

func artifactBytes(version int64) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("frame-v%d;", version)), 512)
}

// export uploads an artifact and records it the way a finished render does.
func (e *env) export(t *testing.T, project *catalog.Project, version int64) *catalog.ExportVersion {
	t.Helper()
	ctx := context.Background()
	key := fmt.Sprintf("%s/v%d.mp4", project.ID, version)
	data := artifactBytes(version)
	require.NoError(t, e.exportsM.Put(ctx, key, bytes.NewReader(data), int64(len(data))))
	result, err := e.store.CompleteExport(ctx, catalog.NewExport{
		ProjectID:  project.ID,
		Version:    version,
		StorageKey: key,
		Size:       int64(len(data)),
		Resolution: "1920x1080",
		Format:     "mp4",
	})
	require.NoError(t, err)
	return result.Export
}

func (e *env) status(t *testing.T, id string) *catalog.ExportVersion {
	t.Helper()
	export, err := e.store.GetExport(context.Background(), id)
	require.NoError(t, err)
	return export
}

func candidateIDs(candidates []gc.Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ExportID)
	}
	return ids
}

func TestCalcCandidatesExcludesProtectedExports(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 4)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	v3 := e.export(t, project, 3)
	v4 := e.export(t, project, 4)
	_, err := e.store.Pin(ctx, v1.ID)
	require.NoError(t, err)

	young := testsupport.NewProject(t, e.store, 2)
	e.clock.Advance(59 * 24 * time.Hour)
	youngV1 := e.export(t, young, 1)
	e.export(t, young, 2)
	e.clock.Advance(24 * time.Hour)

	candidates, err := e.svc.CalcCandidates(ctx, 30, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, gc.Candidate{
		ProjectID: project.ID,
		ExportID:  v2.ID,
		Version:   2,
		AgeDays:   60,
		Size:      int64(len(artifactBytes(2))),
	}, candidates[0])

	candidates, err = e.svc.CalcCandidates(ctx, 30, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{v2.ID, v3.ID}, candidateIDs(candidates), "latest pointer and pinned rows stay protected")
	assert.NotContains(t, candidateIDs(candidates), v4.ID)

	candidates, err = e.svc.CalcCandidates(ctx, 0, 0)
	require.NoError(t, err)
	assert.Contains(t, candidateIDs(candidates), youngV1.ID, "ttl of zero admits any non-protected age")

	candidates, err = e.svc.CalcCandidates(ctx, 90, 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	for _, id := range []string{v1.ID, v2.ID, v3.ID, v4.ID} {
		assert.Equal(t, catalog.ExportReady, e.status(t, id).Status, "candidates are report only")
	}
}

func TestCalcCandidatesRejectsNegativePolicy(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.CalcCandidates(context.Background(), -1, 1)
	require.ErrorIs(t, err, services.ErrValidation)
	_, err = e.svc.CalcCandidates(context.Background(), 1, -1)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestLatestAndPinnedExportsAreNeverCandidates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 2)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	assert.Equal(t, catalog.ExportReady, v2.Status)
	assert.False(t, v2.Pinned)
	e.clock.Advance(time.Hour)

	candidates, err := e.svc.CalcCandidates(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{v1.ID}, candidateIDs(candidates))

	_, err = e.store.Pin(ctx, v1.ID)
	require.NoError(t, err)
	candidates, err = e.svc.CalcCandidates(ctx, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, candidates, "pinned export is protected even when it is not the latest")

	_, err = e.store.Unpin(ctx, v1.ID)
	require.NoError(t, err)
	candidates, err = e.svc.CalcCandidates(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{v1.ID}, candidateIDs(candidates))
}

func TestMarkIsIdempotentAndRefusesProtectedRows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 3)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	v3 := e.export(t, project, 3)
	_, err := e.store.Pin(ctx, v1.ID)
	require.NoError(t, err)

	report := e.svc.Mark(ctx, []string{v2.ID})
	require.Equal(t, 1, report.Succeeded)
	item, _ := report.Item(v2.ID)
	assert.True(t, item.Changed)
	assert.Equal(t, catalog.ExportMarked, e.status(t, v2.ID).Status)

	report = e.svc.Mark(ctx, []string{v2.ID, v2.ID})
	require.Len(t, report.Items, 1, "duplicate ids collapse")
	item, _ = report.Item(v2.ID)
	assert.True(t, item.Success)
	assert.False(t, item.Changed)
	assert.Equal(t, catalog.ExportMarked, e.status(t, v2.ID).Status)

	report = e.svc.Mark(ctx, []string{v1.ID, v3.ID, "missing"})
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 3, report.Failed)
	for _, failed := range report.Failures() {
		assert.NotEmpty(t, failed.Error)
	}
	assert.Equal(t, catalog.ExportReady, e.status(t, v1.ID).Status)
	assert.Equal(t, catalog.ExportReady, e.status(t, v3.ID).Status)
}

func TestUnmarkOnlyWhileMarked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 3)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	e.export(t, project, 3)

	e.svc.Mark(ctx, []string{v1.ID, v2.ID})
	report := e.svc.Unmark(ctx, []string{v1.ID})
	require.Equal(t, 1, report.Succeeded)
	assert.Equal(t, catalog.ExportReady, e.status(t, v1.ID).Status)

	_, err := e.svc.Archive(ctx)
	require.NoError(t, err)
	report = e.svc.Unmark(ctx, []string{v2.ID})
	require.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Items[0].Error, "archived")
	assert.Equal(t, catalog.ExportArchived, e.status(t, v2.ID).Status)
}

func TestArchiveMovesMarkedArtifacts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 3)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	v3 := e.export(t, project, 3)
	e.svc.Mark(ctx, []string{v1.ID})

	report, err := e.svc.Archive(ctx)
	require.NoError(t, err)
	require.Len(t, report.Items, 1, "only marked rows are processed")
	require.True(t, report.Items[0].Success, report.Items[0].Error)
	assert.Equal(t, int64(len(artifactBytes(1))), report.Bytes)

	archived := e.status(t, v1.ID)
	assert.Equal(t, catalog.ExportArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)
	assert.True(t, strings.HasSuffix(archived.ArchiveKey, ".mp4.zst"), archived.ArchiveKey)
	assert.False(t, e.exportsM.Has(v1.StorageKey), "export artifact removed after archive")
	assert.True(t, e.archiveM.Has(archived.ArchiveKey))

	r, err := e.archiveM.Open(ctx, archived.ArchiveKey)
	require.NoError(t, err)
	defer r.Close()
	dec, err := storage.CodecZstd.Decompress(r)
	require.NoError(t, err)
	defer dec.Close()
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, artifactBytes(1), got)

	assert.Equal(t, catalog.ExportReady, e.status(t, v2.ID).Status)
	assert.True(t, e.exportsM.Has(v2.StorageKey))
	assert.True(t, e.exportsM.Has(v3.StorageKey))

	events := e.notifier.Events(notifications.EventGCArchived)
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0].String("archived"))
	assert.Equal(t, "0", events[0].String("failed"))
}

func TestArchiveIsolatesItemFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 4)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	v3 := e.export(t, project, 3)
	e.export(t, project, 4)
	e.svc.Mark(ctx, []string{v1.ID, v2.ID, v3.ID})

	e.exports.FailOn("open", v2.StorageKey, services.Wrap(services.ErrStorage, "test", "open", "disk error", nil))
	report, err := e.svc.Archive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	failed, ok := report.Item(v2.ID)
	require.True(t, ok)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "disk error")

	assert.Equal(t, catalog.ExportMarked, e.status(t, v2.ID).Status, "failed rows keep their status")
	assert.True(t, e.exportsM.Has(v2.StorageKey))
	assert.Equal(t, catalog.ExportArchived, e.status(t, v1.ID).Status)
	assert.Equal(t, catalog.ExportArchived, e.status(t, v3.ID).Status)
	assert.Len(t, e.archiveM.Keys(), 2, "no partial archive objects remain")

	e.exports.Clear()
	report, err = e.svc.Archive(ctx)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Success)
	assert.Equal(t, catalog.ExportArchived, e.status(t, v2.ID).Status)
}

func TestArchiveFailedCompareAndSetDiscardsCopy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 2)
	v1 := e.export(t, project, 1)
	e.export(t, project, 2)
	e.svc.Mark(ctx, []string{v1.ID})

	// A pin lands while the artifact is being copied.
	var pinOnce sync.Once
	e.archive.OnCall = func(op, _ string) {
		if op == "put" {
			pinOnce.Do(func() {
				_, err := e.store.Pin(ctx, v1.ID)
				assert.NoError(t, err)
			})
		}
	}

	report, err := e.svc.Archive(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Items[0].Error, "pinned")

	current := e.status(t, v1.ID)
	assert.Equal(t, catalog.ExportReady, current.Status)
	assert.True(t, current.Pinned)
	assert.Empty(t, e.archiveM.Keys(), "losing copy is removed")
	assert.True(t, e.exportsM.Has(v1.StorageKey), "source stays when the archive loses")
}

func TestConcurrentArchiveRunsArchiveEachExportOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 6)
	var ids []string
	for v := int64(1); v <= 6; v++ {
		export := e.export(t, project, v)
		if v < 6 {
			ids = append(ids, export.ID)
		}
	}
	e.svc.Mark(ctx, ids)

	var wg sync.WaitGroup
	reports := make([]gc.Report, 2)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := e.svc.Archive(ctx)
			assert.NoError(t, err)
			reports[i] = report
		}()
	}
	wg.Wait()

	assert.Equal(t, len(ids), reports[0].Succeeded+reports[1].Succeeded)
	assert.Len(t, e.archiveM.Keys(), len(ids), "exactly one archive copy per export")
	for _, id := range ids {
		export := e.status(t, id)
		assert.Equal(t, catalog.ExportArchived, export.Status)
		assert.True(t, e.archiveM.Has(export.ArchiveKey))
	}
}

func TestDeleteArchivedHonoursRetention(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 3)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	e.export(t, project, 3)

	e.svc.Mark(ctx, []string{v1.ID})
	_, err := e.svc.Archive(ctx)
	require.NoError(t, err)
	e.clock.Advance(10 * 24 * time.Hour)
	e.svc.Mark(ctx, []string{v2.ID})
	_, err = e.svc.Archive(ctx)
	require.NoError(t, err)
	e.clock.Advance(24 * time.Hour)

	oldArchive := e.status(t, v1.ID).ArchiveKey
	report, err := e.svc.DeleteArchived(ctx, 7)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, v1.ID, report.Items[0].ID)
	assert.True(t, report.Items[0].Success)

	deleted := e.status(t, v1.ID)
	assert.Equal(t, catalog.ExportDeleted, deleted.Status)
	assert.Empty(t, deleted.StorageKey)
	assert.Empty(t, deleted.ArchiveKey)
	require.NotNil(t, deleted.DeletedAt)
	assert.False(t, e.archiveM.Has(oldArchive))

	assert.Equal(t, catalog.ExportArchived, e.status(t, v2.ID).Status, "archived one day ago")

	events := e.notifier.Events(notifications.EventGCDeleted)
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0].String("deleted"))

	_, err = e.svc.DeleteArchived(ctx, -1)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestDeleteArchivedIsolatesFailuresAndSkipsPinned(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 4)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	v3 := e.export(t, project, 3)
	e.export(t, project, 4)
	e.svc.Mark(ctx, []string{v1.ID, v2.ID, v3.ID})
	_, err := e.svc.Archive(ctx)
	require.NoError(t, err)

	_, err = e.store.Pin(ctx, v3.ID)
	require.NoError(t, err)
	failingKey := e.status(t, v2.ID).ArchiveKey
	e.archive.FailOn("delete", failingKey, errors.New("permission denied"))

	report, err := e.svc.DeleteArchived(ctx, 0)
	require.NoError(t, err)
	require.Len(t, report.Items, 2, "pinned archived exports are not deleted")
	assert.Equal(t, 1, report.Succeeded)
	failed, ok := report.Item(v2.ID)
	require.True(t, ok)
	assert.Contains(t, failed.Error, "permission denied")

	assert.Equal(t, catalog.ExportDeleted, e.status(t, v1.ID).Status)
	claimed := e.status(t, v2.ID)
	assert.Equal(t, catalog.ExportDeleted, claimed.Status)
	assert.Equal(t, failingKey, claimed.ArchiveKey, "tombstone keeps the key until the object is gone")
	assert.True(t, e.archiveM.Has(failingKey))
	assert.Equal(t, catalog.ExportArchived, e.status(t, v3.ID).Status)

	e.archive.Clear()
	report, err = e.svc.DeleteArchived(ctx, 0)
	require.NoError(t, err)
	require.Len(t, report.Items, 1, "only the unfinished purge is retried")
	assert.Equal(t, v2.ID, report.Items[0].ID)
	assert.True(t, report.Items[0].Success)
	assert.False(t, e.archiveM.Has(failingKey))
	assert.Empty(t, e.status(t, v2.ID).ArchiveKey)
	assert.Equal(t, catalog.ExportArchived, e.status(t, v3.ID).Status)
}

func TestPinDuringDeleteNeverLosesPinnedArtifact(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 3)
	v1 := e.export(t, project, 1)
	v2 := e.export(t, project, 2)
	e.export(t, project, 3)
	e.svc.Mark(ctx, []string{v1.ID, v2.ID})
	_, err := e.svc.Archive(ctx)
	require.NoError(t, err)

	v1Key := e.status(t, v1.ID).ArchiveKey
	v2Key := e.status(t, v2.ID).ArchiveKey
	_, err = e.store.Pin(ctx, v2.ID)
	require.NoError(t, err)

	var pinErr error
	var once sync.Once
	e.archive.OnCall = func(op, key string) {
		if op == "delete" && key == v1Key {
			once.Do(func() {
				_, pinErr = e.store.Pin(ctx, v1.ID)
			})
		}
	}

	report, err := e.svc.DeleteArchived(ctx, 0)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Success)

	require.ErrorIs(t, pinErr, services.ErrInvalidState, "a claimed tombstone cannot be pinned")
	deleted := e.status(t, v1.ID)
	assert.Equal(t, catalog.ExportDeleted, deleted.Status)
	assert.False(t, deleted.Pinned)
	assert.False(t, e.archiveM.Has(v1Key))

	pinned := e.status(t, v2.ID)
	assert.Equal(t, catalog.ExportArchived, pinned.Status)
	assert.True(t, pinned.Pinned)
	assert.True(t, e.archiveM.Has(v2Key), "pinned archive object is untouched")
}

func TestFortyDayOldExportIsReclaimed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	project := testsupport.NewProject(t, e.store, 2)
	old := e.export(t, project, 1)
	e.clock.Advance(39 * 24 * time.Hour)
	latest := e.export(t, project, 2)
	e.clock.Advance(24 * time.Hour)

	candidates, err := e.svc.CalcCandidates(ctx, 30, 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, old.ID, candidates[0].ExportID)
	assert.Equal(t, 40, candidates[0].AgeDays)

	marked := e.svc.Mark(ctx, candidateIDs(candidates))
	require.Equal(t, 1, marked.Succeeded)
	archived, err := e.svc.Archive(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, archived.Succeeded)
	deleted, err := e.svc.DeleteArchived(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, deleted.Succeeded)

	final := e.status(t, old.ID)
	assert.Equal(t, catalog.ExportDeleted, final.Status)
	assert.Empty(t, final.StorageKey)
	assert.False(t, e.exportsM.Has(old.StorageKey))
	assert.Empty(t, e.archiveM.Keys())

	assert.Equal(t, catalog.ExportReady, e.status(t, latest.ID).Status)
	assert.True(t, e.exportsM.Has(latest.StorageKey))
	found, err := e.store.FindLatestExport(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, found.ID)
}
