package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"cutline/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CUTLINE_API_TOKEN", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "cutline")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.CatalogPath() != filepath.Join(wantData, "catalog.db") {
		t.Fatalf("unexpected catalog path: %q", cfg.CatalogPath())
	}
	if cfg.Storage.Exports.Kind != config.BackendLocal {
		t.Fatalf("expected local exports backend, got %q", cfg.Storage.Exports.Kind)
	}
	if cfg.Storage.Archive.Dir != filepath.Join(wantData, "archive") {
		t.Fatalf("unexpected archive dir: %q", cfg.Storage.Archive.Dir)
	}
	if cfg.Storage.ArchiveCodec != config.CodecZstd {
		t.Fatalf("unexpected archive codec: %q", cfg.Storage.ArchiveCodec)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7521" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.GC.TTLDays != 30 || cfg.GC.KeepLatest != 1 || cfg.GC.MinDaysInArchive != 14 {
		t.Fatalf("unexpected gc defaults: %+v", cfg.GC)
	}
	if cfg.JobTimeout() != 30*time.Minute {
		t.Fatalf("unexpected job timeout: %s", cfg.JobTimeout())
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomPathParsesOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CUTLINE_API_TOKEN", "from-env")

	custom := config.Default()
	custom.Paths.DataDir = "~/work/cutline"
	custom.Render.Workers = 4
	custom.Render.ExportFormat = "MKV"
	custom.Storage.Archive = config.Backend{Kind: "S3", Bucket: "cold", Prefix: "/exports/", Region: "eu-west-1"}
	custom.Storage.ArchiveCodec = "LZ4"
	custom.Logging.Format = "JSON"
	custom.Logging.Level = "DEBUG"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(tempHome, "custom.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "work", "cutline") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Render.Workers != 4 {
		t.Fatalf("unexpected workers: %d", cfg.Render.Workers)
	}
	if cfg.Render.ExportFormat != "mkv" {
		t.Fatalf("expected lowercase export format, got %q", cfg.Render.ExportFormat)
	}
	if cfg.Storage.Archive.Kind != config.BackendS3 || cfg.Storage.Archive.Prefix != "exports" {
		t.Fatalf("unexpected archive backend: %+v", cfg.Storage.Archive)
	}
	if cfg.Storage.ArchiveCodec != config.CodecLZ4 {
		t.Fatalf("unexpected codec: %q", cfg.Storage.ArchiveCodec)
	}
	if cfg.Paths.APIToken != "from-env" {
		t.Fatalf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown backend", func(c *config.Config) { c.Storage.Exports.Kind = "ftp" }, "storage.exports.kind"},
		{"s3 without bucket", func(c *config.Config) { c.Storage.Archive = config.Backend{Kind: config.BackendS3} }, "storage.archive.bucket"},
		{"minio without endpoint", func(c *config.Config) {
			c.Storage.Proxies = config.Backend{Kind: config.BackendMinIO, Bucket: "p"}
		}, "storage.proxies.endpoint"},
		{"bad codec", func(c *config.Config) { c.Storage.ArchiveCodec = "gzip" }, "archive_codec"},
		{"bad resolution", func(c *config.Config) { c.Render.ProxyResolution = "small" }, "render.proxy_resolution"},
		{"negative ttl", func(c *config.Config) { c.GC.TTLDays = -1 }, "gc.ttl_days"},
		{"bad webhook", func(c *config.Config) { c.Notifications.WebhookURL = "ftp://x" }, "notifications.webhook_url"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Exports.Dir = t.TempDir()
			cfg.Storage.Proxies.Dir = t.TempDir()
			cfg.Storage.Archive.Dir = t.TempDir()
			cfg.Paths.DataDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesLocalBackends(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.Exports.Dir = filepath.Join(base, "exports")
	cfg.Storage.Proxies.Dir = filepath.Join(base, "proxies")
	cfg.Storage.Archive = config.Backend{Kind: config.BackendS3, Bucket: "b"}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.TempDir(), cfg.Storage.Exports.Dir, cfg.Storage.Proxies.Dir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample to load, exists=%v err=%v", exists, err)
	}
}
