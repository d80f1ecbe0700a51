package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envAccessKey    = "VIDHARVEST_S3_ACCESS_KEY"
	envSecretKey    = "VIDHARVEST_S3_SECRET_KEY"
	envFeedPassword = "VIDHARVEST_FEED_PASSWORD"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeFeed()
	c.normalizeBrowser()
	c.normalizeDownload()
	c.normalizeSites()
	c.normalizeLogging()
	c.Selection.Supersession = strings.ToLower(strings.TrimSpace(c.Selection.Supersession))
	if c.Selection.Supersession == "" {
		c.Selection.Supersession = defaultSupersession
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.Reconcile.CursorName = strings.TrimSpace(c.Reconcile.CursorName)
	if c.Reconcile.CursorName == "" {
		c.Reconcile.CursorName = defaultReconcileCursor
	}
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
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Endpoint = strings.TrimPrefix(c.Storage.Endpoint, "https://")
	c.Storage.Endpoint = strings.TrimPrefix(c.Storage.Endpoint, "http://")
	c.Storage.Endpoint = strings.TrimRight(c.Storage.Endpoint, "/")
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Folder = strings.Trim(strings.TrimSpace(c.Storage.Folder), "/")
	c.Storage.ThumbnailsFolder = strings.Trim(strings.TrimSpace(c.Storage.ThumbnailsFolder), "/")
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv(envAccessKey); ok {
			c.Storage.AccessKey = value
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv(envSecretKey); ok {
			c.Storage.SecretKey = value
		}
	}
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if strings.TrimSpace(c.Storage.Region) == "" {
		c.Storage.Region = defaultStorageRegion
	}
}

func (c *Config) normalizeFeed() {
	c.Feed.Endpoint = strings.TrimSpace(c.Feed.Endpoint)
	if c.Feed.Password == "" {
		if value, ok := os.LookupEnv(envFeedPassword); ok {
			c.Feed.Password = strings.TrimSpace(value)
		}
	}
	c.Feed.HashField = strings.TrimSpace(c.Feed.HashField)
	if c.Feed.HashField == "" {
		c.Feed.HashField = defaultFeedHashField
	}
}

func (c *Config) normalizeBrowser() {
	c.Browser.ControlURL = strings.TrimSpace(c.Browser.ControlURL)
	fallback := func(value *string, def string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = def
		}
	}
	fallback(&c.Browser.TriggerSelector, defaultTriggerSelector)
	fallback(&c.Browser.OuterFrame, defaultOuterFrameSelector)
	fallback(&c.Browser.PlaySelector, defaultPlaySelector)
	fallback(&c.Browser.InnerFrame, defaultInnerFrameSelector)
	fallback(&c.Browser.MediaSelector, defaultMediaSelector)
	fallback(&c.Browser.PlaybackScript, defaultPlaybackScript)
}

func (c *Config) normalizeDownload() {
	c.Download.Origin = strings.ToLower(strings.TrimSpace(c.Download.Origin))
	if c.Download.Origin == "" {
		c.Download.Origin = defaultDownloadOrigin
	}
	c.Download.FFprobeBinary = strings.TrimSpace(c.Download.FFprobeBinary)
}

func (c *Config) normalizeSites() {
	enabled := make([]string, 0, len(c.Sites.Enabled))
	seen := make(map[string]struct{}, len(c.Sites.Enabled))
	for _, name := range c.Sites.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		enabled = append(enabled, name)
	}
	c.Sites.Enabled = enabled
	c.Sites.ProxyURL = strings.TrimSpace(c.Sites.ProxyURL)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
