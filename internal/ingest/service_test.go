package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vidharvest/internal/catalog"
	"vidharvest/internal/ingest"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/sites"
	"vidharvest/internal/testsupport"
)

type fakeAdapter struct {
	details    map[string]*sites.DetailRecord
	failures   map[string]error
	categories []string
	tags       []string
}

func (f *fakeAdapter) SiteName() string { return "javct" }

func (f *fakeAdapter) ListRawEntries(context.Context, sites.PageRange) ([]sites.RawListing, error) {
	return nil, nil
}

func (f *fakeAdapter) FetchDetail(_ context.Context, listing sites.RawListing) (*sites.DetailRecord, error) {
	if err := f.failures[listing.PageLink]; err != nil {
		return nil, err
	}
	return f.details[listing.PageLink], nil
}

func (f *fakeAdapter) Categories(context.Context) ([]string, error) { return f.categories, nil }

func (f *fakeAdapter) Tags(context.Context) ([]string, error) { return f.tags, nil }

func newService(t *testing.T) (*ingest.Service, *catalog.Store, *metrics.Collectors) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	collectors := metrics.New()
	return ingest.NewService(store, cfg.Sites, collectors, logging.NewNop()), store, collectors
}

func mustEntry(t *testing.T, store *catalog.Store, link string) *catalog.Entry {
	t.Helper()
	entry, err := store.GetByPageLink(context.Background(), link)
	if err != nil || entry == nil {
		t.Fatalf("GetByPageLink(%s): %v %v", link, entry, err)
	}
	return entry
}

func TestIngestDedupesByPageLink(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	inserted, err := svc.Ingest(ctx, "javct", []sites.RawListing{
		{CodeHint: "TEST-1", PageLink: "/1"},
		{CodeHint: "TEST-2", PageLink: "/2"},
		{CodeHint: "TEST-1b", PageLink: "/1"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", inserted)
	}

	again, err := svc.Ingest(ctx, "javct", []sites.RawListing{
		{CodeHint: "TEST-1", PageLink: "/1/"},
		{CodeHint: "TEST-3", PageLink: "/3"},
	})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if again != 1 {
		t.Fatalf("expected only /3 inserted, got %d", again)
	}

	entries, err := store.List(ctx, catalog.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	links := map[string]bool{}
	for _, entry := range entries {
		links[entry.PageLink] = true
		if entry.Status != catalog.StatusAdded {
			t.Fatalf("expected added status, got %s", entry.Status)
		}
	}
	if len(entries) != 3 || !links["/1"] || !links["/2"] || !links["/3"] {
		t.Fatalf("unexpected catalog links: %v", links)
	}
	if mustEntry(t, store, "/1").CodeHint != "TEST-1" {
		t.Fatal("expected first listing in the batch to win")
	}
}

func TestEnrichMergesAndLinksKnownReferences(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	if _, err := store.UpsertRefs(ctx, catalog.RefCategory, "javct", []string{"Drama"}); err != nil {
		t.Fatalf("UpsertRefs: %v", err)
	}
	if _, err := svc.Ingest(ctx, "javct", []sites.RawListing{{CodeHint: "abc-1", PageLink: "https://javct.test/v/abc-1"}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	entry := mustEntry(t, store, "https://javct.test/v/abc-1")
	if entry.CodeHint != "ABC-1" {
		t.Fatalf("expected upper-cased code hint, got %q", entry.CodeHint)
	}

	runtime := 95
	result, err := svc.Enrich(ctx, entry.ID, sites.DetailRecord{
		Code:           " abc-1 ",
		Title:          "A Title",
		ReleaseDate:    "2024-01-02",
		RuntimeMinutes: &runtime,
		Uncensored:     true,
		Categories:     []string{"Drama", "Unknown Category"},
		People:         []string{"Nobody"},
	})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.Outcome != ingest.OutcomeParsed || result.Linked != 1 || len(result.Unmatched) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	got := result.Entry
	if got.Status != catalog.StatusParsed || got.Code != "ABC-1" || got.Title != "A Title" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.RuntimeMinutes == nil || *got.RuntimeMinutes != 95 || !got.Uncensored || got.ReleaseDate != "2024-01-02" {
		t.Fatalf("descriptive fields not merged: %+v", got)
	}

	refs, err := store.ReferencesFor(ctx, []int64{entry.ID})
	if err != nil {
		t.Fatalf("ReferencesFor: %v", err)
	}
	if names := catalog.RefNames(refs[entry.ID], catalog.RefCategory); len(names) != 1 || names[0] != "Drama" {
		t.Fatalf("unexpected linked categories: %v", names)
	}
	if _, err := store.FindRef(ctx, catalog.RefCategory, "javct", "Unknown Category"); err != nil {
		t.Fatalf("FindRef: %v", err)
	}
	if ref, _ := store.FindRef(ctx, catalog.RefCategory, "javct", "Unknown Category"); ref != nil {
		t.Fatal("unmatched references must not be created")
	}
}

func TestEnrichDiscardsNewerDuplicate(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	keeper := testsupport.MustParsedEntry(t, store, "javct", "DUP-1")

	if _, err := svc.Ingest(ctx, "javct", []sites.RawListing{{CodeHint: "DUP-1", PageLink: "https://mirror.test/dup-1"}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	placeholder := mustEntry(t, store, "https://mirror.test/dup-1")

	result, err := svc.Enrich(ctx, placeholder.ID, sites.DetailRecord{Code: "dup-1", Title: "Copy"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.Outcome != ingest.OutcomeDiscardedDuplicate || result.KeeperID != keeper.ID {
		t.Fatalf("unexpected result: %+v", result)
	}
	discarded, err := store.GetByID(ctx, placeholder.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if discarded.Status != catalog.StatusDeleted {
		t.Fatalf("expected placeholder deleted, got %s", discarded.Status)
	}
	owner, err := store.FindByCode(ctx, "DUP-1")
	if err != nil || owner == nil || owner.ID != keeper.ID {
		t.Fatalf("expected keeper to own the code, got %+v %v", owner, err)
	}

	reinserted, err := svc.Ingest(ctx, "javct", []sites.RawListing{{PageLink: "https://mirror.test/dup-1"}})
	if err != nil || reinserted != 0 {
		t.Fatalf("discarded link must stay claimed: %d %v", reinserted, err)
	}
}

func TestEnrichIgnoresEntriesPastParsed(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	entry := testsupport.MustParsedEntry(t, store, "javct", "BUSY-1")
	if _, err := store.SetStatus(ctx, entry.ID, catalog.StatusDownloading, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	result, err := svc.Enrich(ctx, entry.ID, sites.DetailRecord{Code: "BUSY-1", Title: "New"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.Outcome != ingest.OutcomeIneligible {
		t.Fatalf("expected ineligible, got %s", result.Outcome)
	}
}

func TestEnrichPending(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Ingest(ctx, "javct", []sites.RawListing{
		{CodeHint: "OK-1", PageLink: "https://javct.test/v/ok-1"},
		{CodeHint: "GONE-1", PageLink: "https://javct.test/v/gone-1"},
		{CodeHint: "ERR-1", PageLink: "https://javct.test/v/err-1"},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	adapter := &fakeAdapter{
		details: map[string]*sites.DetailRecord{
			"https://javct.test/v/ok-1": {Code: "OK-1", Title: "Fine"},
		},
		failures: map[string]error{
			"https://javct.test/v/err-1": errors.New("HTTP 503"),
		},
	}

	summary, err := svc.EnrichPending(ctx, adapter, 10)
	if err != nil {
		t.Fatalf("EnrichPending: %v", err)
	}
	if summary.Processed != 3 || summary.Parsed != 1 || summary.Missing != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := mustEntry(t, store, "https://javct.test/v/gone-1").Status; got != catalog.StatusDeleted {
		t.Fatalf("expected missing page retired, got %s", got)
	}
	if got := mustEntry(t, store, "https://javct.test/v/err-1").Status; got != catalog.StatusAdded {
		t.Fatalf("expected failed fetch to stay added, got %s", got)
	}
}

func TestSyncReferencesMakesNamesResolvable(t *testing.T) {
	svc, store, collectors := newService(t)
	ctx := context.Background()
	adapter := &fakeAdapter{categories: []string{"Drama", "Comedy"}, tags: []string{"Short"}}

	if _, err := svc.Ingest(ctx, "javct", []sites.RawListing{
		{PageLink: "https://javct.test/v/a-1"},
		{PageLink: "https://javct.test/v/a-2"},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	first := mustEntry(t, store, "https://javct.test/v/a-1")
	result, err := svc.Enrich(ctx, first.ID, sites.DetailRecord{Code: "A-1", Categories: []string{"Drama"}})
	if err != nil {
		t.Fatalf("Enrich before sync: %v", err)
	}
	if result.Linked != 0 || len(result.Unmatched) != 1 {
		t.Fatalf("expected unmatched before sync: %+v", result)
	}

	added, err := svc.SyncReferences(ctx, adapter)
	if err != nil {
		t.Fatalf("SyncReferences: %v", err)
	}
	if added[catalog.RefCategory] != 2 || added[catalog.RefTag] != 1 {
		t.Fatalf("unexpected sync counts: %v", added)
	}

	second := mustEntry(t, store, "https://javct.test/v/a-2")
	result, err = svc.Enrich(ctx, second.ID, sites.DetailRecord{Code: "A-2", Categories: []string{"Drama"}, Tags: []string{"Short"}})
	if err != nil {
		t.Fatalf("Enrich after sync: %v", err)
	}
	if result.Linked != 2 || len(result.Unmatched) != 0 {
		t.Fatalf("expected references linked after sync: %+v", result)
	}

	third, err := svc.Enrich(ctx, first.ID, sites.DetailRecord{Code: "A-1", Categories: []string{"Drama"}})
	if err != nil {
		t.Fatalf("re-Enrich: %v", err)
	}
	if third.Linked != 1 {
		t.Fatalf("expected cached reference to link, got %+v", third)
	}
	if hits := testutil.ToFloat64(collectors.RefCacheHits); hits < 1 {
		t.Fatalf("expected a reference cache hit, got %v", hits)
	}
}
