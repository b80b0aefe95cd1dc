// Package preflight provides readiness checks for the filesystem paths,
// storage backends and external binaries cutline depends on.
//
// These checks run in two contexts:
//   - cutlined calls RunAll at startup and logs each failure with a hint.
//     A failed check does not stop the daemon; the affected renders or GC
//     stages fail with their own errors.
//   - The status endpoint reports Dependencies so the CLI can show which
//     binaries are missing.
//
// Storage probes write, stat and delete a small object under a reserved
// prefix so credentials and bucket permissions are verified end to end.
package preflight
