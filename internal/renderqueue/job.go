package renderqueue

import (
	"time"

	"cutline/internal/render"
)

// State is a render job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Job is a snapshot of a render job.
type Job struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	Version     int64       `json:"version"`
	Kind        render.Kind `json:"kind"`
	State       State       `json:"state"`
	Attempts    int         `json:"attempts"`
	LastError   string      `json:"last_error,omitempty"`
	Resolution  string      `json:"resolution,omitempty"`
	ArtifactKey string      `json:"artifact_key,omitempty"`
	Progress    float64     `json:"progress"`
	Stage       string      `json:"stage,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ProjectID string
	Kind      render.Kind
	States    []State
}

func (f Filter) matches(job *Job) bool {
	if f.ProjectID != "" && job.ProjectID != f.ProjectID {
		return false
	}
	if f.Kind != "" && job.Kind != f.Kind {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, state := range f.States {
		if job.State == state {
			return true
		}
	}
	return false
}

func (j *Job) snapshot() Job {
	copied := *j
	if j.StartedAt != nil {
		started := *j.StartedAt
		copied.StartedAt = &started
	}
	if j.FinishedAt != nil {
		finished := *j.FinishedAt
		copied.FinishedAt = &finished
	}
	return copied
}
