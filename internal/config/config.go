package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Storage contains S3-compatible object storage settings.
type Storage struct {
	Endpoint         string `toml:"endpoint"`
	Region           string `toml:"region"`
	Bucket           string `toml:"bucket"`
	Folder           string `toml:"folder"`
	ThumbnailsFolder string `toml:"thumbnails_folder"`
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	UseSSL           bool   `toml:"use_ssl"`
	PresignTTL       int    `toml:"presign_ttl"`
}

// Feed contains settings for the downstream distribution feed.
type Feed struct {
	Endpoint       string `toml:"endpoint"`
	Password       string `toml:"password"`
	HashField      string `toml:"hash_field"`
	PageSize       int    `toml:"page_size"`
	Concurrency    int    `toml:"concurrency"`
	Retries        int    `toml:"retries"`
	RetryBackoffMS int    `toml:"retry_backoff_ms"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Browser contains the automation session and the extraction step bounds.
type Browser struct {
	ControlURL       string `toml:"control_url"`
	Headless         bool   `toml:"headless"`
	NavigateTimeout  int    `toml:"navigate_timeout"`
	TriggerSelector  string `toml:"trigger_selector"`
	OuterFrame       string `toml:"outer_frame_selector"`
	PlaySelector     string `toml:"play_selector"`
	InnerFrame       string `toml:"inner_frame_selector"`
	MediaSelector    string `toml:"media_selector"`
	PlaybackScript   string `toml:"playback_script"`
	TriggerTimeoutMS int    `toml:"trigger_timeout_ms"`
	FrameTimeoutMS   int    `toml:"frame_timeout_ms"`
	AdDwellMS        int    `toml:"ad_dwell_ms"`
	PollIntervalMS   int    `toml:"poll_interval_ms"`
	SourceDeadlineMS int    `toml:"source_deadline_ms"`
}

// Download contains media transfer settings.
type Download struct {
	Origin         string `toml:"origin"`
	ChunkSize      int    `toml:"chunk_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
}

// Thumbnails contains poster mirroring settings.
type Thumbnails struct {
	Concurrency    int `toml:"concurrency"`
	MaxAttempts    int `toml:"max_attempts"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Selection contains the authoritative-copy policy.
type Selection struct {
	Supersession string `toml:"supersession"`
}

// Workflow contains acquisition worker timing.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	MaxAttempts        int `toml:"max_attempts"`
	RetryDelay         int `toml:"retry_delay"`
}

// Reconcile contains garbage-collection scheduling.
type Reconcile struct {
	IntervalMinutes int    `toml:"interval_minutes"`
	CursorName      string `toml:"cursor_name"`
}

// Metrics contains the operator listener settings.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Sites contains crawling settings shared by site adapters.
type Sites struct {
	Enabled      []string `toml:"enabled"`
	ProxyURL     string   `toml:"proxy_url"`
	RefCacheSize int      `toml:"ref_cache_size"`
	RefCacheTTL  int      `toml:"ref_cache_ttl"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidharvest.
//
// Configuration sections by subsystem:
//   - Paths: catalog database and log directories
//   - Storage: S3-compatible bucket for media and posters
//   - Feed: distribution feed used by reconciliation
//   - Browser: automation session and extraction step timeouts
//   - Download: media transfer and probing
//   - Thumbnails: poster mirroring
//   - Selection: supersession policy for authoritative copies
//   - Workflow: acquisition workers, heartbeats and retries
//   - Reconcile: periodic garbage collection
//   - Metrics: operator listener
//   - Sites: adapters and reference lookup cache
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Storage    Storage    `toml:"storage"`
	Feed       Feed       `toml:"feed"`
	Browser    Browser    `toml:"browser"`
	Download   Download   `toml:"download"`
	Thumbnails Thumbnails `toml:"thumbnails"`
	Selection  Selection  `toml:"selection"`
	Workflow   Workflow   `toml:"workflow"`
	Reconcile  Reconcile  `toml:"reconcile"`
	Metrics    Metrics    `toml:"metrics"`
	Sites      Sites      `toml:"sites"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
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
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidharvest.toml")
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

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CatalogPath returns the SQLite catalog database location.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidharvest.lock")
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Download.FFprobeBinary); bin != "" {
		return bin
	}
	return defaultFFprobeBinary
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
