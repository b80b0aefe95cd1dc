package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"cutline/internal/api"
	"cutline/internal/config"
	"cutline/internal/daemon"
	"cutline/internal/logging"
	"cutline/internal/metrics"
	"cutline/internal/notifications"
	"cutline/internal/storage"
	"cutline/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	client     *api.Client
	configPath string
	addr       string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	hub := notifications.NewHub()
	d, err := daemon.New(cfg, daemon.Components{
		Store: store,
		Backends: &storage.Set{
			Exports:      storage.NewMemory("exports"),
			Proxies:      storage.NewMemory("proxies"),
			Archive:      storage.NewMemory("archive"),
			ArchiveCodec: storage.CodecZstd,
		},
		Renderer: testsupport.NewFakeRenderer(),
		Notifier: hub,
		Hub:      hub,
		Metrics:  metrics.New(),
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	client, err := api.NewClientForURL(d.Addr(), cfg.Paths.APIToken)
	if err != nil {
		t.Fatalf("NewClientForURL: %v", err)
	}
	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		client:     client,
		configPath: configPath,
		addr:       d.Addr(),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runCLI(t, append([]string{"--api", e.addr}, args...), e.configPath, nil)
	return stdout, err
}

func runCLI(t *testing.T, args []string, configPath string, stdin *strings.Reader) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
