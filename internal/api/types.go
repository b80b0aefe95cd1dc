package api

import (
	"cutline/internal/edl"
	"cutline/internal/gc"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Project describes a project and its artifact pointers.
type Project struct {
	ID                  string `json:"id"`
	SourceRef           string `json:"sourceRef"`
	CurrentVersion      int64  `json:"currentVersion"`
	LatestProxyKey      string `json:"latestProxyKey,omitempty"`
	LatestProxyVersion  int64  `json:"latestProxyVersion,omitempty"`
	LatestExportKey     string `json:"latestExportKey,omitempty"`
	LatestExportVersion int64  `json:"latestExportVersion,omitempty"`
	CreatedAt           string `json:"createdAt,omitempty"`
	UpdatedAt           string `json:"updatedAt,omitempty"`
}

// EditEntry is one edit log record.
type EditEntry struct {
	Version   int64    `json:"version"`
	Ops       []edl.Op `json:"ops"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// Export describes an export artifact record.
type Export struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	Version    int64  `json:"version"`
	StorageKey string `json:"storageKey,omitempty"`
	ArchiveKey string `json:"archiveKey,omitempty"`
	JobID      string `json:"jobId,omitempty"`
	Size       int64  `json:"size"`
	Resolution string `json:"resolution,omitempty"`
	Format     string `json:"format,omitempty"`
	Pinned     bool   `json:"pinned"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt,omitempty"`
	ArchivedAt string `json:"archivedAt,omitempty"`
	DeletedAt  string `json:"deletedAt,omitempty"`
}

// JobProgress captures render progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage,omitempty"`
	Percent float64 `json:"percent"`
}

// Job describes a render job.
type Job struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"projectId"`
	Version     int64       `json:"version"`
	Kind        string      `json:"kind"`
	State       string      `json:"state"`
	Attempts    int         `json:"attempts"`
	LastError   string      `json:"lastError,omitempty"`
	Resolution  string      `json:"resolution,omitempty"`
	ArtifactKey string      `json:"artifactKey,omitempty"`
	Progress    JobProgress `json:"progress"`
	CreatedAt   string      `json:"createdAt,omitempty"`
	StartedAt   string      `json:"startedAt,omitempty"`
	FinishedAt  string      `json:"finishedAt,omitempty"`
}

// QueueDepth counts active render jobs.
type QueueDepth struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
}

// GCSchedule reports the configured stage intervals.
type GCSchedule struct {
	Enabled         bool   `json:"enabled"`
	MarkInterval    string `json:"markInterval,omitempty"`
	ArchiveInterval string `json:"archiveInterval,omitempty"`
	DeleteInterval  string `json:"deleteInterval,omitempty"`
}

// StorageStatus names the configured backends.
type StorageStatus struct {
	Exports      string `json:"exports"`
	Proxies      string `json:"proxies"`
	Archive      string `json:"archive"`
	ArchiveCodec string `json:"archiveCodec"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	CatalogPath  string             `json:"catalogPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workers      int                `json:"workers"`
	Queue        QueueDepth         `json:"queue"`
	Storage      StorageStatus      `json:"storage"`
	GC           GCSchedule         `json:"gc"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// CreateProjectRequest registers a source.
type CreateProjectRequest struct {
	SourceRef string `json:"sourceRef"`
}

// ProjectResponse wraps a single project.
type ProjectResponse struct {
	Project Project `json:"project"`
}

// ProjectListResponse wraps a collection of projects.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

// AppendRequest appends ops on top of BaseVersion.
type AppendRequest struct {
	BaseVersion int64    `json:"baseVersion"`
	Ops         []edl.Op `json:"ops"`
}

// AppendResponse reports the new version and the proxy job queued for it.
// ProxyError is set when the append committed but no proxy was queued.
type AppendResponse struct {
	Version    int64  `json:"version"`
	JobID      string `json:"jobId,omitempty"`
	ProxyError string `json:"proxyError,omitempty"`
}

// HistoryResponse lists the edit log.
type HistoryResponse struct {
	Entries []EditEntry `json:"entries"`
}

// RenderRequest asks for a render of Version.
type RenderRequest struct {
	Version int64  `json:"version"`
	Kind    string `json:"kind"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// ExportResponse wraps a single export.
type ExportResponse struct {
	Export Export `json:"export"`
}

// ExportListResponse wraps a collection of exports.
type ExportListResponse struct {
	Exports []Export `json:"exports"`
}

// CandidatesResponse lists GC candidates.
type CandidatesResponse struct {
	TTLDays    int            `json:"ttlDays"`
	KeepLatest int            `json:"keepLatest"`
	Candidates []gc.Candidate `json:"candidates"`
}

// IDsRequest names exports for mark and unmark.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// ReportResponse wraps a GC stage report.
type ReportResponse struct {
	Report gc.Report `json:"report"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
