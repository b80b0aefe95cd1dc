package daemonrun

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"cutline/internal/logging"
	"cutline/internal/render"
	"cutline/internal/testsupport"
)

func TestBuildWiresLocalDeployment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	d, cleanup, err := Build(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer cleanup()

	status := d.Status(context.Background())
	if status.Running {
		t.Fatal("daemon should not run before Start")
	}
	if status.CatalogPath != cfg.CatalogPath() {
		t.Fatalf("catalog path %q, want %q", status.CatalogPath, cfg.CatalogPath())
	}
	if !strings.Contains(status.Storage.Exports, cfg.Storage.Exports.Dir) {
		t.Fatalf("exports backend %q does not mention %q", status.Storage.Exports, cfg.Storage.Exports.Dir)
	}
}

func TestNewRendererWrapsFinisher(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, ok := NewRenderer(cfg, logging.NewNop()).(*render.CLI); !ok {
		t.Fatal("expected plain CLI renderer")
	}
	cfg.Render.DraptoFinish = true
	if _, ok := NewRenderer(cfg, logging.NewNop()).(*render.Finisher); !ok {
		t.Fatal("expected finishing renderer")
	}
}

func TestWritePIDFile(t *testing.T) {
	path := t.TempDir() + "/cutlined.pid"
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file %q", data)
	}
}
