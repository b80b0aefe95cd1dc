package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Backend describes one blob storage location.
//
// Kind selects the implementation: "local" uses Dir, "s3" uses the AWS SDK
// with Bucket/Region/Prefix, "minio" uses any S3-compatible Endpoint.
type Backend struct {
	Kind      string `toml:"kind"`
	Dir       string `toml:"dir"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Storage groups the export, proxy, and archive backends.
type Storage struct {
	Exports Backend `toml:"exports"`
	Proxies Backend `toml:"proxies"`
	Archive Backend `toml:"archive"`
	// ArchiveCodec compresses artifacts on their way into archive storage:
	// "none", "zstd", or "lz4".
	ArchiveCodec string `toml:"archive_codec"`
}

// Render contains configuration for the render queue and worker pool.
type Render struct {
	Binary              string `toml:"binary"`
	Workers             int    `toml:"workers"`
	MaxAttempts         int    `toml:"max_attempts"`
	BackoffSeconds      int    `toml:"backoff_seconds"`
	MaxBackoffSeconds   int    `toml:"max_backoff_seconds"`
	JobTimeoutSeconds   int    `toml:"job_timeout_seconds"`
	JobRetentionMinutes int    `toml:"job_retention_minutes"`
	ProxyResolution     string `toml:"proxy_resolution"`
	ExportResolution    string `toml:"export_resolution"`
	ExportFormat        string `toml:"export_format"`
	DraptoFinish        bool   `toml:"drapto_finish"`
	RecoverOnStart      bool   `toml:"recover_on_start"`
}

// GC contains the garbage collection policy and optional schedule.
type GC struct {
	TTLDays              int `toml:"ttl_days"`
	KeepLatest           int `toml:"keep_latest"`
	MinDaysInArchive     int `toml:"min_days_in_archive"`
	Parallelism          int `toml:"parallelism"`
	MarkIntervalMinutes  int `toml:"mark_interval_minutes"`
	ArchiveIntervalHours int `toml:"archive_interval_hours"`
	DeleteIntervalHours  int `toml:"delete_interval_hours"`
}

// Notifications contains configuration for lifecycle event sinks.
type Notifications struct {
	NtfyTopic       string  `toml:"ntfy_topic"`
	WebhookURL      string  `toml:"webhook_url"`
	RequestTimeout  int     `toml:"request_timeout"`
	RatePerSecond   float64 `toml:"rate_per_second"`
	Burst           int     `toml:"burst"`
	Progress        bool    `toml:"progress"`
	ProgressSeconds int     `toml:"progress_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cutline.
//
// Configuration sections by subsystem:
//   - Paths: catalog/log directories and API bind address
//   - Storage: export, proxy, and archive blob backends
//   - Render: worker pool size, retries, timeouts, output profiles
//   - GC: retention policy and stage schedules
//   - Notifications: ntfy and webhook sinks
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Render        Render        `toml:"render"`
	GC            GC            `toml:"gc"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cutline/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err == nil && !info.IsDir() {
			return expanded, true, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, false, nil
	}

	defaultPath, err := expandPath("~/.config/cutline/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cutline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation,
// including the roots of any local storage backends.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.TempDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, backend := range []Backend{c.Storage.Exports, c.Storage.Proxies, c.Storage.Archive} {
		if backend.Kind != BackendLocal || strings.TrimSpace(backend.Dir) == "" {
			continue
		}
		if err := os.MkdirAll(backend.Dir, 0o755); err != nil {
			return fmt.Errorf("create storage directory %q: %w", backend.Dir, err)
		}
	}
	return nil
}

// CatalogPath returns the SQLite catalog location.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// TempDir returns the scratch directory renderers write into before promotion.
func (c *Config) TempDir() string {
	return filepath.Join(c.Paths.DataDir, "tmp")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "cutlined.lock")
}

// JobTimeout returns the per-attempt render timeout.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Render.JobTimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial and maximum render retry delays.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Render.BackoffSeconds) * time.Second,
		time.Duration(c.Render.MaxBackoffSeconds) * time.Second
}

// JobRetention returns how long terminal jobs stay visible.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Render.JobRetentionMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
