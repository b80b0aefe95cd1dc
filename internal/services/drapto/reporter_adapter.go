package drapto

import (
	"fmt"

	draptolib "github.com/five82/drapto"
)

// progressReporter adapts the Drapto Reporter interface to a ProgressUpdate
// callback. Only events that move a render job forward are forwarded.
type progressReporter struct {
	callback func(ProgressUpdate)
}

func newProgressReporter(callback func(ProgressUpdate)) *progressReporter {
	return &progressReporter{callback: callback}
}

func (r *progressReporter) Hardware(draptolib.HardwareSummary) {}

func (r *progressReporter) Initialization(s draptolib.InitializationSummary) {
	r.callback(ProgressUpdate{Stage: "initializing", Message: fmt.Sprintf("%s %s", s.Resolution, s.DynamicRange)})
}

func (r *progressReporter) StageProgress(s draptolib.StageProgress) {
	r.callback(ProgressUpdate{Percent: float64(s.Percent), Stage: s.Stage, Message: s.Message})
}

func (r *progressReporter) CropResult(s draptolib.CropSummary) {
	r.callback(ProgressUpdate{Stage: "crop", Message: s.Message})
}

func (r *progressReporter) EncodingConfig(draptolib.EncodingConfigSummary) {}

func (r *progressReporter) EncodingStarted(uint64) {
	r.callback(ProgressUpdate{Stage: "encoding"})
}

func (r *progressReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.callback(ProgressUpdate{Percent: float64(s.Percent), Stage: "encoding"})
}

func (r *progressReporter) ValidationComplete(s draptolib.ValidationSummary) {
	message := "validation passed"
	if !s.Passed {
		message = "validation failed"
	}
	r.callback(ProgressUpdate{Percent: 100, Stage: "validation", Message: message, Warning: !s.Passed})
}

func (r *progressReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.callback(ProgressUpdate{Percent: 100, Stage: "complete", Message: s.OutputFile})
}

func (r *progressReporter) Warning(message string) {
	r.callback(ProgressUpdate{Stage: "warning", Message: message, Warning: true})
}

func (r *progressReporter) Error(e draptolib.ReporterError) {
	r.callback(ProgressUpdate{Stage: "error", Message: e.Title + ": " + e.Message, Warning: true})
}

func (r *progressReporter) OperationComplete(message string) {
	r.callback(ProgressUpdate{Percent: 100, Stage: "complete", Message: message})
}

func (r *progressReporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *progressReporter) FileProgress(draptolib.FileProgressContext) {}

func (r *progressReporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*progressReporter)(nil)
