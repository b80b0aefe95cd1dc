// Package daemon coordinates the long-running cutline process.
//
// It wires the catalog store, the render queue, the GC service and its
// scheduler, and the HTTP API into a single lifecycle with flock-based
// locking to prevent multiple instances against the same data directory.
//
// Keep orchestration logic here: rendering and reclamation semantics live in
// renderqueue and gc while the daemon focuses on startup, shutdown, status
// aggregation and the request surface.
package daemon
