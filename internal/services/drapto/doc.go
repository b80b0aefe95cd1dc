// Package drapto integrates the Drapto Go library so finished exports can be
// re-encoded into a delivery file while reporting structured progress.
//
// It exposes a Client interface, a Library implementation that calls Drapto
// in-process, and a reporter adapter that folds Drapto's Reporter callbacks
// into ProgressUpdate values. Tests swap in fakes to avoid running the real
// encoder.
package drapto
