// Package services defines shared utilities consumed by the render workers,
// the garbage collector, and the administrative API.
//
// Key responsibilities:
//   - Context helpers that stamp project IDs, render job IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (version conflict, not found, invalid state, storage, render)
//     with errors.Is regardless of how deeply they were wrapped.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability, retries) stays uniform across the subsystem.
package services
