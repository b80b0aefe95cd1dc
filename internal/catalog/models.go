package catalog

import (
	"time"

	"cutline/internal/edl"
)

// Project holds the per-project version counter and artifact pointers.
type Project struct {
	ID                  string
	SourceRef           string
	CurrentVersion      int64
	LatestProxyKey      string
	LatestProxyVersion  int64
	LatestExportKey     string
	LatestExportVersion int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EditOperation is one immutable edit log entry.
type EditOperation struct {
	ID        string
	ProjectID string
	Version   int64
	Ops       []edl.Op
	OpCount   int
	CreatedAt time.Time
}

// ExportStatus is the lifecycle of an export artifact.
type ExportStatus string

const (
	ExportReady    ExportStatus = "ready"
	ExportMarked   ExportStatus = "marked"
	ExportArchived ExportStatus = "archived"
	ExportDeleted  ExportStatus = "deleted"
)

// ExportVersion is a rendered full-resolution artifact. StorageKey addresses
// export storage while the row is ready or marked, ArchiveKey addresses
// archive storage once archived. Both are cleared on the deleted tombstone.
type ExportVersion struct {
	ID         string
	ProjectID  string
	Version    int64
	StorageKey string
	ArchiveKey string
	JobID      string
	Size       int64
	Resolution string
	Format     string
	Pinned     bool
	Status     ExportStatus
	CreatedAt  time.Time
	ArchivedAt *time.Time
	DeletedAt  *time.Time
}

// NewExport describes an artifact to record in the export catalog.
type NewExport struct {
	ProjectID  string
	Version    int64
	StorageKey string
	JobID      string
	Size       int64
	Resolution string
	Format     string
}

// ProxyCompletion reports the outcome of a proxy pointer swap.
type ProxyCompletion struct {
	Swapped     bool
	PreviousKey string
}

// ExportCompletion reports the outcome of recording a rendered export.
type ExportCompletion struct {
	Export         *ExportVersion
	PointerUpdated bool
	PreviousKey    string
}
