package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidharvest/internal/app"
	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/download"
	"vidharvest/internal/extractor"
	"vidharvest/internal/media/ffprobe"
	"vidharvest/internal/sites"
	"vidharvest/internal/testsupport"
)

func newFakeSite() *fakeSite {
	runtime := 120
	return &fakeSite{
		listings: []sites.RawListing{
			{CodeHint: "ABC-123", PageLink: "https://javct.test/v/abc-123", Title: "First"},
			{CodeHint: "XYZ-777", PageLink: "https://javct.test/v/xyz-777", Title: "Second"},
		},
		details: map[string]*sites.DetailRecord{
			"https://javct.test/v/abc-123": {Code: "ABC-123", Title: "First", RuntimeMinutes: &runtime, Categories: []string{"Drama"}},
			"https://javct.test/v/xyz-777": {Code: "XYZ-777", Title: "Second"},
		},
		categories: []string{"Drama", "Comedy"},
	}
}

func TestCrawlEnrichAndRefs(t *testing.T) {
	env := setupCLITestEnv(t)
	registry, err := sites.NewRegistry(newFakeSite())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	env.withOptions(app.WithSites(registry))

	out, _, err := runCLI(t, env, "refs", "sync")
	if err != nil {
		t.Fatalf("refs sync: %v", err)
	}
	requireContains(t, out, "New category references: 2")

	out, _, err = runCLI(t, env, "crawl", "--start", "1", "--end", "2")
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	requireContains(t, out, "2 listings, 2 new entries")

	out, _, err = runCLI(t, env, "crawl")
	if err != nil {
		t.Fatalf("second crawl: %v", err)
	}
	requireContains(t, out, "0 new entries")

	out, _, err = runCLI(t, env, "enrich", "--limit", "10")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	requireContains(t, out, "Parsed: 2")

	out, _, err = runCLI(t, env, "queue", "list", "--status", "parsed")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "ABC-123")
	requireContains(t, out, "XYZ-777")

	out, _, err = runCLI(t, env, "refs", "list", "--kind", "category")
	if err != nil {
		t.Fatalf("refs list: %v", err)
	}
	requireContains(t, out, "Comedy")

	out, _, err = runCLI(t, env, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "parsed")
}

func TestCrawlRejectsUnknownSiteAndRange(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "crawl", "--site", "nowhere"); err == nil || !strings.Contains(err.Error(), "nowhere") {
		t.Fatalf("expected unknown site error, got %v", err)
	}
	if _, _, err := runCLI(t, env, "crawl", "--start", "3", "--end", "2"); err == nil {
		t.Fatal("expected invalid range error")
	}
	if _, _, err := runCLI(t, env, "queue", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status error")
	}
}

type scriptedSession struct{ src string }

func (s scriptedSession) Navigate(context.Context, string) error { return nil }

func (s scriptedSession) ClickVisible(context.Context, string) (bool, error) { return true, nil }

func (s scriptedSession) EnterFrame(context.Context, string) (bool, error) { return true, nil }

func (s scriptedSession) Eval(context.Context, string) error { return nil }

func (s scriptedSession) MediaSource(context.Context, string) (string, error) { return s.src, nil }

func (s scriptedSession) ResetFrame(context.Context) error { return nil }

type fixedProber struct{}

func (fixedProber) Inspect(context.Context, string) (ffprobe.Result, error) {
	return fixedProber{}.InspectReader(context.Background(), nil)
}

func (fixedProber) InspectReader(context.Context, []byte) (ffprobe.Result, error) {
	return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video", Height: 1080}}}, nil
}

func TestAcquireRunsOnce(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testsupport.Payload(2048, 3))
	}))
	t.Cleanup(media.Close)

	env := setupCLITestEnv(t)
	env.withOptions(
		app.WithSessionOpener(func(context.Context, config.Browser) (extractor.Session, func() error, error) {
			return scriptedSession{src: media.URL + "/v.mp4"}, func() error { return nil }, nil
		}),
		app.WithDownloadOptions(download.WithProber(fixedProber{}), download.WithTempDir(t.TempDir())),
	)
	store := env.store(t)
	entry := testsupport.MustParsedEntry(t, store, "javct", "ABC-123")

	out, _, err := runCLI(t, env, "acquire")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	requireContains(t, out, "Processed 1 entries (downloaded 1, failed 0)")

	out, _, err = runCLI(t, env, "sources", "list", fmt.Sprint(entry.ID))
	if err != nil {
		t.Fatalf("sources list: %v", err)
	}
	requireContains(t, out, "1080p")
	requireContains(t, out, "yes")
	if env.gateway.Len() != 1 {
		t.Fatalf("expected one stored object, got %d", env.gateway.Len())
	}
}

func TestExportWritesSelectedCopies(t *testing.T) {
	env := setupCLITestEnv(t)
	store := env.store(t)
	downloadedEntry(t, store, "ABC-123", 1)

	out, stderr, err := runCLI(t, env, "export", "--header")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "code;title")
	requireContains(t, out, "ABC-123")
	requireContains(t, out, testsupport.Hash(1))
	requireContains(t, stderr, "Exported 1 rows")

	target := filepath.Join(t.TempDir(), "rows.csv")
	if _, _, err := runCLI(t, env, "export", "--output", target, "--after-id", "0"); err != nil {
		t.Fatalf("export --output: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	requireContains(t, string(data), "ABC-123;")
}

func TestConfirmImportThenReconcileDeletesCopy(t *testing.T) {
	hash := testsupport.Hash(9)
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("skip") == "0" {
			fmt.Fprintf(w, `[{"id": 1, "custom2": %q}, {"id": 2, "custom2": %q}]`, hash, testsupport.Hash(404))
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(feedServer.Close)

	env := setupCLITestEnv(t, func(cfg *config.Config) { cfg.Feed.Endpoint = feedServer.URL })
	store := env.store(t)
	downloadedEntry(t, store, "ABC-123", 9)

	out, _, err := runCLI(t, env, "sources", "confirm-import", strings.ToUpper(hash), testsupport.Hash(77))
	if err != nil {
		t.Fatalf("confirm-import: %v", err)
	}
	requireContains(t, out, hash+": 1 copies imported")
	requireContains(t, out, "No saved copies for: "+testsupport.Hash(77))

	if _, _, err := runCLI(t, env, "sources", "confirm-import", "nothex"); err == nil {
		t.Fatal("expected malformed hash error")
	}

	out, _, err = runCLI(t, env, "reconcile")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	requireContains(t, out, "Deleted: 1")
	requireContains(t, out, "Skipped (not_in_db): 1")

	src, err := store.FindSourceByHash(context.Background(), hash)
	if err != nil || src == nil {
		t.Fatalf("FindSourceByHash: %v %v", src, err)
	}
	if src.Status != catalog.SourceDeleted {
		t.Fatalf("expected deleted copy, got %s", src.Status)
	}

	out, _, err = runCLI(t, env, "reconcile", "--sweep")
	if err != nil {
		t.Fatalf("reconcile --sweep: %v", err)
	}
	requireContains(t, out, "Skipped (already_deleted): 1")
}

func TestQueueRetryAndHealth(t *testing.T) {
	env := setupCLITestEnv(t)
	store := env.store(t)
	ctx := context.Background()
	entry := testsupport.MustParsedEntry(t, store, "javct", "ABC-123")
	if _, err := store.ClaimNext(ctx, 3, 0); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := store.SetStatus(ctx, entry.ID, catalog.StatusFailed, "boom"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	out, _, err := runCLI(t, env, "queue", "retry", fmt.Sprint(entry.ID))
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Queued 1 failed entries for retry")

	out, _, err = runCLI(t, env, "queue", "health")
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total entries: 1")
	requireContains(t, out, "Failed: 1")
	requireContains(t, out, "[OK]")

	env.gateway.SetDown(true)
	out, _, err = runCLI(t, env, "queue", "health")
	if err != nil {
		t.Fatalf("queue health with storage down: %v", err)
	}
	requireContains(t, out, "[ERROR]")
}

func TestRunStopsOnFailedPreflight(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.Download.FFprobeBinary = "vidharvest-missing-ffprobe"
	})
	out, _, err := runCLI(t, env, "run")
	if err == nil || !strings.Contains(err.Error(), "preflight failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	requireContains(t, out, "[ERROR]")
}
