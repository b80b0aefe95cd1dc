// Package gc reclaims export storage.
//
// The pipeline has three stages that are always invoked separately:
// mark moves reclaimable ready exports to marked, archive moves marked
// artifacts from export storage into archive storage, and delete removes
// archive objects once they have aged past the retention window, leaving a
// tombstone row behind. CalcCandidates is the report-only policy query that
// feeds mark; it never selects a pinned export, the project's latest export,
// or any of the newest keep_latest ready exports.
//
// Every status change is a compare-and-set in the catalog, so concurrent GC
// runs and pin requests are safe without a global lock. Delete claims the
// row as a tombstone before it removes the archive object, so an export
// pinned first is never touched. Each item is
// processed independently and failures are collected into a Report instead
// of aborting the batch.
package gc
