package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidharvest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Storage points at a fake bucket and browser waits are shortened so state
// machine tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.Endpoint = "s3.test.local"
	cfgVal.Storage.Bucket = "media"
	cfgVal.Storage.Folder = "videos"
	cfgVal.Storage.AccessKey = "test"
	cfgVal.Storage.SecretKey = "test"
	cfgVal.Feed.Password = "test"
	cfgVal.Feed.RetryBackoffMS = 1
	cfgVal.Browser.TriggerTimeoutMS = 50
	cfgVal.Browser.FrameTimeoutMS = 50
	cfgVal.Browser.AdDwellMS = 10
	cfgVal.Browser.PollIntervalMS = 10
	cfgVal.Browser.SourceDeadlineMS = 100
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSupersession sets the selection policy on the test config.
func WithSupersession(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Selection.Supersession = policy
	}
}

// WithFeedEndpoint points the feed client at a test server.
func WithFeedEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feed.Endpoint = endpoint
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffprobe is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
