// Package catalog persists projects, the append-only edit log, and the export
// version catalog in SQLite.
//
// Every project owns a monotonically increasing version counter. Append
// writes the instruction row and the counter bump in one transaction, guarded
// by an in-process per-project lock so versions stay gapless. Render
// completion helpers update the latest proxy/export pointers with a
// compare-and-swap on the recorded version so a slower, older render never
// regresses a pointer. Export status transitions (ready → marked → archived →
// deleted) are compare-and-set updates on the current status, which lets
// concurrent garbage collection passes run without a global lock.
//
// Callers should treat the Store as the single authoritative source for
// "which artifact is latest"; storage backends are never scanned to infer it.
package catalog
