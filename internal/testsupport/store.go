package testsupport

import (
	"context"
	"testing"

	"cutline/internal/catalog"
	"cutline/internal/config"
	"cutline/internal/edl"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...catalog.Option) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewProject creates a project and appends versions single-op edits to it.
func NewProject(t testing.TB, store *catalog.Store, versions int) *catalog.Project {
	t.Helper()

	ctx := context.Background()
	project, err := store.CreateProject(ctx, "source://"+t.Name())
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	for v := 0; v < versions; v++ {
		if _, err := store.Append(ctx, project.ID, []edl.Op{{Type: "trim", Params: map[string]any{"step": v}}}, int64(v)); err != nil {
			t.Fatalf("Append v%d: %v", v+1, err)
		}
	}
	project, err = store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	return project
}
