package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateBrowser(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSelection(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("storage.endpoint and storage.bucket are required. Edit %s (create with 'vidharvest config init')", defaultPath)
	}
	if strings.Contains(c.Storage.Bucket, "/") {
		return errors.New("storage.bucket must not contain '/'")
	}
	if c.Storage.PresignTTL <= 0 {
		return errors.New("storage.presign_ttl must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.Endpoint != "" {
		parsed, err := url.Parse(c.Feed.Endpoint)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("feed.endpoint must be an absolute URL, got %q", c.Feed.Endpoint)
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"feed.page_size":       c.Feed.PageSize,
		"feed.concurrency":     c.Feed.Concurrency,
		"feed.request_timeout": c.Feed.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Feed.Retries < 0 {
		return errors.New("feed.retries must be >= 0")
	}
	if c.Feed.RetryBackoffMS < 0 {
		return errors.New("feed.retry_backoff_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateBrowser() error {
	if err := ensurePositiveMap(map[string]int{
		"browser.navigate_timeout":   c.Browser.NavigateTimeout,
		"browser.trigger_timeout_ms": c.Browser.TriggerTimeoutMS,
		"browser.frame_timeout_ms":   c.Browser.FrameTimeoutMS,
		"browser.poll_interval_ms":   c.Browser.PollIntervalMS,
		"browser.source_deadline_ms": c.Browser.SourceDeadlineMS,
	}); err != nil {
		return err
	}
	if c.Browser.AdDwellMS < 0 {
		return errors.New("browser.ad_dwell_ms must be >= 0")
	}
	if c.Browser.PollIntervalMS > c.Browser.SourceDeadlineMS {
		return errors.New("browser.poll_interval_ms must not exceed browser.source_deadline_ms")
	}
	return nil
}

func (c *Config) validateDownload() error {
	return ensurePositiveMap(map[string]int{
		"download.chunk_size":        c.Download.ChunkSize,
		"download.timeout_seconds":   c.Download.TimeoutSeconds,
		"thumbnails.concurrency":     c.Thumbnails.Concurrency,
		"thumbnails.max_attempts":    c.Thumbnails.MaxAttempts,
		"thumbnails.timeout_seconds": c.Thumbnails.TimeoutSeconds,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.max_attempts":         c.Workflow.MaxAttempts,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.RetryDelay < 0 {
		return errors.New("workflow.retry_delay must be >= 0")
	}
	if c.Reconcile.IntervalMinutes < 0 {
		return errors.New("reconcile.interval_minutes must be >= 0")
	}
	return nil
}

func (c *Config) validateSelection() error {
	switch c.Selection.Supersession {
	case SupersessionStrict, SupersessionAllowEqual:
		return nil
	default:
		return fmt.Errorf("selection.supersession: unsupported value %q (want %q or %q)",
			c.Selection.Supersession, SupersessionStrict, SupersessionAllowEqual)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
