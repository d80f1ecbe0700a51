package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"vidharvest/internal/catalog"
	"vidharvest/internal/export"
	"vidharvest/internal/logging"
	"vidharvest/internal/selector"
	"vidharvest/internal/testsupport"
)

func downloadedEntry(t *testing.T, store *catalog.Store, code string) *catalog.Entry {
	t.Helper()
	ctx := context.Background()
	entry := testsupport.MustParsedEntry(t, store, "javct", code)
	for _, status := range []catalog.Status{catalog.StatusDownloading, catalog.StatusDownloaded} {
		if _, err := store.SetStatus(ctx, entry.ID, status, ""); err != nil {
			t.Fatalf("SetStatus %s: %v", status, err)
		}
	}
	return entry
}

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestWriteSelectsBestCopyAndSkipsCurrent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fresh := downloadedEntry(t, store, "EXP-1")
	testsupport.MustSource(t, store, fresh.ID, "browser", catalog.Tier720p, testsupport.Hash(1), catalog.SourceSaved)
	best := testsupport.MustSource(t, store, fresh.ID, "mirror", catalog.Tier1080p, testsupport.Hash(2), catalog.SourceSaved)

	current := downloadedEntry(t, store, "EXP-2")
	imported := testsupport.MustSource(t, store, current.ID, "browser", catalog.Tier1080p, testsupport.Hash(3), catalog.SourceImported)
	testsupport.MustSource(t, store, current.ID, "mirror", catalog.Tier1080p, testsupport.Hash(4), catalog.SourceSaved)

	lowres := downloadedEntry(t, store, "EXP-3")
	testsupport.MustSource(t, store, lowres.ID, "browser", catalog.Tier480p, testsupport.Hash(5), catalog.SourceSaved)

	if _, err := store.UpsertRefs(ctx, catalog.RefCategory, "javct", []string{"Drama", "Comedy"}); err != nil {
		t.Fatalf("UpsertRefs: %v", err)
	}
	if _, err := store.UpsertRefs(ctx, catalog.RefPerson, "javct", []string{"Jane"}); err != nil {
		t.Fatalf("UpsertRefs: %v", err)
	}
	var ids []int64
	for _, ref := range []struct {
		kind catalog.RefKind
		name string
	}{{catalog.RefCategory, "Drama"}, {catalog.RefCategory, "Comedy"}, {catalog.RefPerson, "Jane"}} {
		found, err := store.FindRef(ctx, ref.kind, "javct", ref.name)
		if err != nil || found == nil {
			t.Fatalf("FindRef %s: %v %v", ref.name, found, err)
		}
		ids = append(ids, found.ID)
	}
	if err := store.LinkRefs(ctx, fresh.ID, ids); err != nil {
		t.Fatalf("LinkRefs: %v", err)
	}

	var buf bytes.Buffer
	summary, err := export.Write(ctx, store, &buf, export.Options{Policy: selector.PolicyStrict}, logging.NewNop())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if summary.Rows != 1 || summary.Current != 1 || summary.NoEligible != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.LastID != lowres.ID {
		t.Fatalf("expected last id %d, got %d", lowres.ID, summary.LastID)
	}

	rows := readRows(t, buf.Bytes())
	if len(rows) != 1 || len(rows[0]) != len(export.Columns) {
		t.Fatalf("unexpected rows: %v", rows)
	}
	got := rows[0]
	if got[0] != "EXP-1" || got[3] != best.ContentHash || got[7] != best.ObjectPath {
		t.Fatalf("expected 1080p copy exported, got %v", got)
	}
	if got[4] != "Jane" {
		t.Fatalf("unexpected models column: %q", got[4])
	}
	if got[5] != "Comedy,Drama" && got[5] != "Drama,Comedy" {
		t.Fatalf("unexpected categories column: %q", got[5])
	}

	buf.Reset()
	summary, err = export.Write(ctx, store, &buf, export.Options{
		Policy:          selector.PolicyStrict,
		IncludeImported: true,
		WriteHeader:     true,
	}, nil)
	if err != nil {
		t.Fatalf("Write with imported: %v", err)
	}
	rows = readRows(t, buf.Bytes())
	if summary.Rows != 2 || len(rows) != 3 || rows[0][0] != "code" {
		t.Fatalf("expected header plus two rows, got %v", rows)
	}
	if rows[2][3] != imported.ContentHash {
		t.Fatalf("strict policy must keep the imported copy, got %v", rows[2])
	}
}

func TestWriteAllowEqualSupersedes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entry := downloadedEntry(t, store, "EQ-1")
	testsupport.MustSource(t, store, entry.ID, "browser", catalog.Tier1080p, testsupport.Hash(10), catalog.SourceImported)
	pending := testsupport.MustSource(t, store, entry.ID, "mirror", catalog.Tier1080p, testsupport.Hash(11), catalog.SourceSaved)

	var buf bytes.Buffer
	summary, err := export.Write(ctx, store, &buf, export.Options{Policy: selector.PolicyAllowEqual}, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	rows := readRows(t, buf.Bytes())
	if summary.Rows != 1 || rows[0][3] != pending.ContentHash {
		t.Fatalf("expected equal pending copy exported, got %v", rows)
	}
}

func TestWriteAfterIDAndLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var entries []*catalog.Entry
	for idx, code := range []string{"PG-1", "PG-2", "PG-3"} {
		entry := downloadedEntry(t, store, code)
		testsupport.MustSource(t, store, entry.ID, "browser", catalog.Tier720p, testsupport.Hash(20+idx), catalog.SourceSaved)
		entries = append(entries, entry)
	}

	var buf bytes.Buffer
	summary, err := export.Write(ctx, store, &buf, export.Options{AfterID: entries[0].ID, Limit: 1, BatchSize: 1}, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	rows := readRows(t, buf.Bytes())
	if len(rows) != 1 || rows[0][0] != "PG-2" {
		t.Fatalf("expected only PG-2, got %v", rows)
	}
	if summary.LastID != entries[1].ID {
		t.Fatalf("expected resume point at PG-2, got %d", summary.LastID)
	}
}
