package preflight

import (
	"context"

	"cutline/internal/config"
	"cutline/internal/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable preflight check. backends may be nil,
// in which case storage probes are skipped.
func RunAll(ctx context.Context, cfg *config.Config, backends *storage.Set) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDirectoryAccess("Render scratch directory", cfg.TempDir()))

	for _, local := range []struct {
		name    string
		backend config.Backend
	}{
		{"Export storage directory", cfg.Storage.Exports},
		{"Proxy storage directory", cfg.Storage.Proxies},
		{"Archive storage directory", cfg.Storage.Archive},
	} {
		if local.backend.Kind == config.BackendLocal {
			results = append(results, CheckDirectoryAccess(local.name, local.backend.Dir))
		}
	}

	if backends != nil {
		results = append(results, CheckBackend(ctx, "Export storage", backends.Exports))
		results = append(results, CheckBackend(ctx, "Proxy storage", backends.Proxies))
		results = append(results, CheckBackend(ctx, "Archive storage", backends.Archive))
	}

	for _, dep := range CheckBinaries(Requirements(cfg)) {
		if dep.Optional && !dep.Available {
			continue
		}
		results = append(results, Result{Name: dep.Name, Passed: dep.Available, Detail: dep.Detail})
	}
	return results
}

// Failed filters results down to failures.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
