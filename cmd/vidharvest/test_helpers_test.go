package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidharvest/internal/app"
	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/objectstore"
	"vidharvest/internal/sites"
	"vidharvest/internal/testsupport"
)

type fakeSite struct {
	listings   []sites.RawListing
	details    map[string]*sites.DetailRecord
	categories []string
}

func (f *fakeSite) SiteName() string { return "javct" }

func (f *fakeSite) ListRawEntries(context.Context, sites.PageRange) ([]sites.RawListing, error) {
	return f.listings, nil
}

func (f *fakeSite) FetchDetail(_ context.Context, listing sites.RawListing) (*sites.DetailRecord, error) {
	return f.details[listing.PageLink], nil
}

func (f *fakeSite) Categories(context.Context) ([]string, error) { return f.categories, nil }

func (f *fakeSite) Tags(context.Context) ([]string, error) { return nil, nil }

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	gateway    *objectstore.Memory
	opts       []app.Option
}

func setupCLITestEnv(t *testing.T, configure ...func(*config.Config)) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	for _, fn := range configure {
		fn(cfg)
	}
	configPath := filepath.Join(homeDir, ".config", "vidharvest", "config.toml")
	writeTestConfig(t, configPath, cfg)

	gateway := objectstore.NewMemory()
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		gateway:    gateway,
		opts:       []app.Option{app.WithLogger(logging.NewNop()), app.WithGateway(gateway)},
	}
}

func (e *cliTestEnv) withOptions(opts ...app.Option) {
	e.opts = append(e.opts, opts...)
}

func (e *cliTestEnv) store(t *testing.T) *catalog.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, e.cfg)
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(env.opts...)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// downloadedEntry moves a parsed entry through a claim to downloaded and
// attaches one saved copy.
func downloadedEntry(t *testing.T, store *catalog.Store, code string, seed int) *catalog.Entry {
	t.Helper()
	ctx := context.Background()
	entry := testsupport.MustParsedEntry(t, store, "javct", code)
	claimed, err := store.ClaimNext(ctx, 3, 0)
	if err != nil || claimed == nil || claimed.ID != entry.ID {
		t.Fatalf("ClaimNext: %v %v", claimed, err)
	}
	if _, err := store.SetStatus(ctx, entry.ID, catalog.StatusDownloaded, ""); err != nil {
		t.Fatalf("SetStatus downloaded: %v", err)
	}
	testsupport.MustSource(t, store, entry.ID, "browser", catalog.Tier1080p, testsupport.Hash(seed), catalog.SourceSaved)
	return entry
}
