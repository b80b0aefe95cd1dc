// Package renderqueue turns (project, version, kind) requests into stored
// artifacts through a fixed pool of render workers.
//
// Jobs live in memory. Proxy requests supersede older proxy jobs for the
// same project: a queued older job is cancelled before it starts and a
// running one has its context cancelled so its output is never promoted.
// Export requests coalesce on (project, version). Each attempt runs outside
// any lock with its own timeout; failed attempts are retried with
// exponential backoff.
//
// Promotion uploads the rendered file under tmp/<jobID>/, then, holding the
// project lock, moves it to its final key and updates the catalog in one
// transaction. If the catalog update fails or loses its compare-and-swap the
// promoted artifact is deleted, so no pointer ever references a missing
// object. Lifecycle events go to a notifications.Service.
package renderqueue
