package api

import (
	"time"

	"cutline/internal/catalog"
	"cutline/internal/renderqueue"
)

// FromProject converts a catalog project.
func FromProject(p *catalog.Project) Project {
	if p == nil {
		return Project{}
	}
	return Project{
		ID:                  p.ID,
		SourceRef:           p.SourceRef,
		CurrentVersion:      p.CurrentVersion,
		LatestProxyKey:      p.LatestProxyKey,
		LatestProxyVersion:  p.LatestProxyVersion,
		LatestExportKey:     p.LatestExportKey,
		LatestExportVersion: p.LatestExportVersion,
		CreatedAt:           formatTime(p.CreatedAt),
		UpdatedAt:           formatTime(p.UpdatedAt),
	}
}

// FromProjects converts a list of projects.
func FromProjects(projects []*catalog.Project) []Project {
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, FromProject(p))
	}
	return out
}

// FromEdit converts an edit log entry.
func FromEdit(e *catalog.EditOperation) EditEntry {
	if e == nil {
		return EditEntry{}
	}
	return EditEntry{
		Version:   e.Version,
		Ops:       e.Ops,
		CreatedAt: formatTime(e.CreatedAt),
	}
}

// FromExport converts an export record.
func FromExport(e *catalog.ExportVersion) Export {
	if e == nil {
		return Export{}
	}
	return Export{
		ID:         e.ID,
		ProjectID:  e.ProjectID,
		Version:    e.Version,
		StorageKey: e.StorageKey,
		ArchiveKey: e.ArchiveKey,
		JobID:      e.JobID,
		Size:       e.Size,
		Resolution: e.Resolution,
		Format:     e.Format,
		Pinned:     e.Pinned,
		Status:     string(e.Status),
		CreatedAt:  formatTime(e.CreatedAt),
		ArchivedAt: formatTimePtr(e.ArchivedAt),
		DeletedAt:  formatTimePtr(e.DeletedAt),
	}
}

// FromExports converts a list of exports.
func FromExports(exports []*catalog.ExportVersion) []Export {
	out := make([]Export, 0, len(exports))
	for _, e := range exports {
		out = append(out, FromExport(e))
	}
	return out
}

// FromJob converts a render job snapshot.
func FromJob(j renderqueue.Job) Job {
	return Job{
		ID:          j.ID,
		ProjectID:   j.ProjectID,
		Version:     j.Version,
		Kind:        string(j.Kind),
		State:       string(j.State),
		Attempts:    j.Attempts,
		LastError:   j.LastError,
		Resolution:  j.Resolution,
		ArtifactKey: j.ArtifactKey,
		Progress:    JobProgress{Stage: j.Stage, Percent: j.Progress},
		CreatedAt:   formatTime(j.CreatedAt),
		StartedAt:   formatTimePtr(j.StartedAt),
		FinishedAt:  formatTimePtr(j.FinishedAt),
	}
}

// FromJobs converts a list of jobs.
func FromJobs(jobs []renderqueue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, FromJob(j))
	}
	return out
}

// ParseTime reads a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
