package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidharvest/internal/config"
)

func writeConfig(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsEnvAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIDHARVEST_S3_ACCESS_KEY", "access")
	t.Setenv("VIDHARVEST_S3_SECRET_KEY", "secret")
	t.Setenv("VIDHARVEST_FEED_PASSWORD", "hunter2")

	path := writeConfig(t, tempHome, `
[storage]
endpoint = "https://s3.example.com/"
bucket = "media"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}

	wantData := filepath.Join(tempHome, ".local", "share", "vidharvest")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Storage.Endpoint != "s3.example.com" {
		t.Fatalf("expected scheme and slash stripped from endpoint, got %q", cfg.Storage.Endpoint)
	}
	if cfg.Storage.AccessKey != "access" || cfg.Storage.SecretKey != "secret" {
		t.Fatalf("expected storage keys from env, got %q/%q", cfg.Storage.AccessKey, cfg.Storage.SecretKey)
	}
	if cfg.Feed.Password != "hunter2" {
		t.Fatalf("expected feed password from env, got %q", cfg.Feed.Password)
	}
	if cfg.Feed.PageSize != 1000 || cfg.Feed.Concurrency != 10 {
		t.Fatalf("unexpected feed defaults: %+v", cfg.Feed)
	}
	if cfg.Feed.HashField != "custom2" {
		t.Fatalf("unexpected hash field: %q", cfg.Feed.HashField)
	}
	if cfg.Selection.Supersession != config.SupersessionStrict {
		t.Fatalf("expected strict supersession by default, got %q", cfg.Selection.Supersession)
	}
	if cfg.Thumbnails.Concurrency != 5 {
		t.Fatalf("unexpected thumbnail concurrency: %d", cfg.Thumbnails.Concurrency)
	}
	if cfg.CatalogPath() != filepath.Join(wantData, "catalog.db") {
		t.Fatalf("unexpected catalog path: %q", cfg.CatalogPath())
	}
}

func TestLoadMissingStorageFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, _, _, err := config.Load(""); err == nil || !strings.Contains(err.Error(), "storage.endpoint") {
		t.Fatalf("expected storage validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownSupersession(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Endpoint = "s3.example.com"
	cfg.Storage.Bucket = "media"
	cfg.Selection.Supersession = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown supersession policy")
	}
	cfg.Selection.Supersession = config.SupersessionAllowEqual
	if err := cfg.Validate(); err != nil {
		t.Fatalf("allow_equal should validate: %v", err)
	}
}

func TestValidateWorkflowHeartbeatOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Endpoint = "s3.example.com"
	cfg.Storage.Bucket = "media"
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected heartbeat timeout validation error")
	}
}

func TestValidateBrowserPollWithinDeadline(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Endpoint = "s3.example.com"
	cfg.Storage.Bucket = "media"
	cfg.Browser.PollIntervalMS = cfg.Browser.SourceDeadlineMS + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected poll interval validation error")
	}
}

func TestNormalizeSitesDedupes(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := writeConfig(t, dir, `
[storage]
endpoint = "s3.example.com"
bucket = "media"

[sites]
enabled = [" JavCT ", "javct", ""]
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sites.Enabled) != 1 || cfg.Sites.Enabled[0] != "javct" {
		t.Fatalf("unexpected enabled sites: %v", cfg.Sites.Enabled)
	}
}

func TestCreateSampleDecodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config does not decode: %v", err)
	}
	if decoded.Feed.PageSize != 1000 {
		t.Fatalf("unexpected sample page size: %d", decoded.Feed.PageSize)
	}
}
