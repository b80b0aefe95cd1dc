// Package logging assembles structured slog loggers and formatting helpers used
// across cutline services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so render workers and GC stages
// automatically tag log lines with project IDs, job IDs, and correlation IDs.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
