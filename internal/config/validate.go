package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateGC(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if !strings.Contains(c.Paths.APIBind, ":") {
		return fmt.Errorf("paths.api_bind %q must be host:port", c.Paths.APIBind)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if err := validateBackend(c.Storage.Exports, "storage.exports"); err != nil {
		return err
	}
	if err := validateBackend(c.Storage.Proxies, "storage.proxies"); err != nil {
		return err
	}
	if err := validateBackend(c.Storage.Archive, "storage.archive"); err != nil {
		return err
	}
	switch c.Storage.ArchiveCodec {
	case CodecNone, CodecZstd, CodecLZ4:
	default:
		return fmt.Errorf("storage.archive_codec must be one of none, zstd, lz4 (got %q)", c.Storage.ArchiveCodec)
	}
	return nil
}

func validateBackend(b Backend, section string) error {
	switch b.Kind {
	case BackendLocal:
		if b.Dir == "" {
			return fmt.Errorf("%s.dir must be set for local storage", section)
		}
	case BackendS3:
		if b.Bucket == "" {
			return fmt.Errorf("%s.bucket must be set for s3 storage", section)
		}
	case BackendMinIO:
		if b.Bucket == "" {
			return fmt.Errorf("%s.bucket must be set for minio storage", section)
		}
		if b.Endpoint == "" {
			return fmt.Errorf("%s.endpoint must be set for minio storage", section)
		}
	default:
		return fmt.Errorf("%s.kind must be one of local, s3, minio (got %q)", section, b.Kind)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Workers > 64 {
		return errors.New("render.workers must be 64 or fewer")
	}
	if c.Render.MaxBackoffSeconds < c.Render.BackoffSeconds {
		return errors.New("render.max_backoff_seconds must be >= render.backoff_seconds")
	}
	if err := validateResolution(c.Render.ProxyResolution); err != nil {
		return fmt.Errorf("render.proxy_resolution: %w", err)
	}
	if err := validateResolution(c.Render.ExportResolution); err != nil {
		return fmt.Errorf("render.export_resolution: %w", err)
	}
	switch c.Render.ExportFormat {
	case "mp4", "mkv", "mov", "webm":
	default:
		return fmt.Errorf("render.export_format must be one of mp4, mkv, mov, webm (got %q)", c.Render.ExportFormat)
	}
	return nil
}

func validateResolution(value string) error {
	var w, h int
	if _, err := fmt.Sscanf(value, "%dx%d", &w, &h); err != nil {
		return fmt.Errorf("%q must look like WIDTHxHEIGHT", value)
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%q must have positive dimensions", value)
	}
	return nil
}

func (c *Config) validateGC() error {
	if c.GC.TTLDays < 0 {
		return errors.New("gc.ttl_days must be >= 0")
	}
	if c.GC.KeepLatest < 0 {
		return errors.New("gc.keep_latest must be >= 0")
	}
	if c.GC.MinDaysInArchive < 0 {
		return errors.New("gc.min_days_in_archive must be >= 0")
	}
	if c.GC.MarkIntervalMinutes < 0 || c.GC.ArchiveIntervalHours < 0 || c.GC.DeleteIntervalHours < 0 {
		return errors.New("gc schedule intervals must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic != "" {
		if err := validateHTTPURL(c.Notifications.NtfyTopic); err != nil {
			return fmt.Errorf("notifications.ntfy_topic: %w", err)
		}
	}
	if c.Notifications.WebhookURL != "" {
		if err := validateHTTPURL(c.Notifications.WebhookURL); err != nil {
			return fmt.Errorf("notifications.webhook_url: %w", err)
		}
	}
	if c.Notifications.RatePerSecond < 0 {
		return errors.New("notifications.rate_per_second must be >= 0")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q must be an http(s) URL", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q is missing a host", raw)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
