package api

import (
	"testing"
	"time"

	"cutline/internal/catalog"
	"cutline/internal/render"
	"cutline/internal/renderqueue"
)

func TestFromExportFormatsTimestamps(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 789000000, time.UTC)
	archived := created.Add(48 * time.Hour)
	export := FromExport(&catalog.ExportVersion{
		ID:         "e1",
		ProjectID:  "p1",
		Version:    3,
		ArchiveKey: "p1/e1/x.mp4.zst",
		Size:       42,
		Status:     catalog.ExportArchived,
		CreatedAt:  created,
		ArchivedAt: &archived,
	})
	if export.CreatedAt != "2026-02-03T04:05:06.789Z" {
		t.Fatalf("unexpected createdAt %q", export.CreatedAt)
	}
	if export.ArchivedAt != "2026-02-05T04:05:06.789Z" {
		t.Fatalf("unexpected archivedAt %q", export.ArchivedAt)
	}
	if export.DeletedAt != "" {
		t.Fatalf("deletedAt should be omitted, got %q", export.DeletedAt)
	}
	if export.Status != "archived" {
		t.Fatalf("unexpected status %q", export.Status)
	}
	parsed, ok := ParseTime(export.CreatedAt)
	if !ok || !parsed.Equal(created) {
		t.Fatalf("ParseTime round trip failed: %v %v", parsed, ok)
	}
}

func TestFromJobCarriesProgress(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := FromJob(renderqueue.Job{
		ID:        "j1",
		ProjectID: "p1",
		Version:   2,
		Kind:      render.KindProxy,
		State:     renderqueue.StateRunning,
		Attempts:  1,
		Progress:  37.5,
		Stage:     "compose",
		CreatedAt: started,
		StartedAt: &started,
	})
	if job.Kind != "proxy" || job.State != "running" {
		t.Fatalf("unexpected kind/state %q/%q", job.Kind, job.State)
	}
	if job.Progress.Percent != 37.5 || job.Progress.Stage != "compose" {
		t.Fatalf("unexpected progress %+v", job.Progress)
	}
	if job.StartedAt == "" || job.FinishedAt != "" {
		t.Fatalf("unexpected timestamps %q %q", job.StartedAt, job.FinishedAt)
	}
}

func TestFromProjectNil(t *testing.T) {
	if got := FromProject(nil); got.ID != "" {
		t.Fatalf("expected zero project, got %+v", got)
	}
	if got := FromProjects(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
