package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeRender()
	c.normalizeGC()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CUTLINE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	if err := normalizeBackend(&c.Storage.Exports, "storage.exports", defaultExportsDir); err != nil {
		return err
	}
	if err := normalizeBackend(&c.Storage.Proxies, "storage.proxies", defaultProxiesDir); err != nil {
		return err
	}
	if err := normalizeBackend(&c.Storage.Archive, "storage.archive", defaultArchiveDir); err != nil {
		return err
	}
	c.Storage.ArchiveCodec = strings.ToLower(strings.TrimSpace(c.Storage.ArchiveCodec))
	if c.Storage.ArchiveCodec == "" {
		c.Storage.ArchiveCodec = CodecNone
	}
	return nil
}

func normalizeBackend(b *Backend, section, defaultDir string) error {
	b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
	if b.Kind == "" {
		b.Kind = BackendLocal
	}
	b.Bucket = strings.TrimSpace(b.Bucket)
	b.Prefix = strings.Trim(strings.TrimSpace(b.Prefix), "/")
	b.Region = strings.TrimSpace(b.Region)
	b.Endpoint = strings.TrimSpace(b.Endpoint)
	if b.Kind == BackendLocal {
		if strings.TrimSpace(b.Dir) == "" {
			b.Dir = defaultDir
		}
		var err error
		if b.Dir, err = expandPath(b.Dir); err != nil {
			return fmt.Errorf("%s.dir: %w", section, err)
		}
		return nil
	}
	if b.AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			b.AccessKey = value
		}
	}
	if b.SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			b.SecretKey = value
		}
	}
	if b.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok {
			b.Region = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeRender() {
	c.Render.Binary = strings.TrimSpace(c.Render.Binary)
	if c.Render.Binary == "" {
		c.Render.Binary = defaultRenderBinary
	}
	if c.Render.Workers <= 0 {
		c.Render.Workers = defaultRenderWorkers
	}
	if c.Render.MaxAttempts <= 0 {
		c.Render.MaxAttempts = defaultRenderMaxAttempts
	}
	if c.Render.BackoffSeconds < 0 {
		c.Render.BackoffSeconds = 0
	}
	if c.Render.MaxBackoffSeconds <= 0 {
		c.Render.MaxBackoffSeconds = defaultRenderMaxBackoff
	}
	if c.Render.JobTimeoutSeconds <= 0 {
		c.Render.JobTimeoutSeconds = defaultRenderJobTimeout
	}
	if c.Render.JobRetentionMinutes <= 0 {
		c.Render.JobRetentionMinutes = defaultJobRetentionMinutes
	}
	c.Render.ProxyResolution = strings.TrimSpace(c.Render.ProxyResolution)
	if c.Render.ProxyResolution == "" {
		c.Render.ProxyResolution = defaultProxyResolution
	}
	c.Render.ExportResolution = strings.TrimSpace(c.Render.ExportResolution)
	if c.Render.ExportResolution == "" {
		c.Render.ExportResolution = defaultExportResolution
	}
	c.Render.ExportFormat = strings.ToLower(strings.TrimSpace(c.Render.ExportFormat))
	if c.Render.ExportFormat == "" {
		c.Render.ExportFormat = defaultExportFormat
	}
}

func (c *Config) normalizeGC() {
	if c.GC.Parallelism <= 0 {
		c.GC.Parallelism = defaultGCParallelism
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if c.Notifications.Burst <= 0 {
		c.Notifications.Burst = defaultNotifyBurst
	}
	if c.Notifications.ProgressSeconds <= 0 {
		c.Notifications.ProgressSeconds = defaultProgressSeconds
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
