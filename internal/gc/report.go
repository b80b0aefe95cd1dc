package gc

import "time"

// Stage names a GC pipeline stage.
type Stage string

const (
	StageMark    Stage = "mark"
	StageUnmark  Stage = "unmark"
	StageArchive Stage = "archive"
	StageDelete  Stage = "delete"
)

// Candidate is an export eligible for marking.
type Candidate struct {
	ProjectID string `json:"projectId"`
	ExportID  string `json:"exportId"`
	Version   int64  `json:"version"`
	AgeDays   int    `json:"ageDays"`
	Size      int64  `json:"size"`
}

// ItemResult is the outcome for one export in a batch.
type ItemResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Changed bool   `json:"changed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report summarises a stage run.
type Report struct {
	Stage      Stage        `json:"stage"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Items      []ItemResult `json:"items"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Bytes      int64        `json:"bytes,omitempty"`
}

func (r *Report) tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, item := range r.Items {
		if item.Success {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// Failures returns the failed items.
func (r Report) Failures() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items {
		if !item.Success {
			failed = append(failed, item)
		}
	}
	return failed
}

// Item returns the result for id.
func (r Report) Item(id string) (ItemResult, bool) {
	for _, item := range r.Items {
		if item.ID == id {
			return item, true
		}
	}
	return ItemResult{}, false
}
