package testsupport

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustParsedEntry inserts an entry for code and enriches it to parsed.
func MustParsedEntry(t testing.TB, store *catalog.Store, site, code string) *catalog.Entry {
	t.Helper()

	ctx := context.Background()
	link := fmt.Sprintf("https://%s.test/v/%s", site, strings.ToLower(code))
	if _, err := store.InsertStubs(ctx, site, []catalog.Stub{{CodeHint: code, PageLink: link, Title: code}}); err != nil {
		t.Fatalf("InsertStubs: %v", err)
	}
	entry, err := store.GetByPageLink(ctx, link)
	if err != nil || entry == nil {
		t.Fatalf("GetByPageLink(%s): %v %v", link, entry, err)
	}
	entry.Code = code
	if err := store.Update(ctx, entry); err != nil {
		t.Fatalf("Update: %v", err)
	}
	entry, err = store.SetStatus(ctx, entry.ID, catalog.StatusParsed, "")
	if err != nil {
		t.Fatalf("SetStatus parsed: %v", err)
	}
	return entry
}

// MustSource appends a copy with the given hash and status to an entry.
// Imported copies are confirmed through ConfirmImport.
func MustSource(t testing.TB, store *catalog.Store, entryID int64, origin string, tier catalog.ResolutionTier, hash string, status catalog.SourceStatus) catalog.SourceCopy {
	t.Helper()

	ctx := context.Background()
	src, _, err := store.AppendSource(ctx, catalog.SourceCopy{
		EntryID:     entryID,
		Origin:      origin,
		Tier:        tier,
		ObjectPath:  "https://s3.test.local/media/videos/" + hash + ".mp4",
		FileName:    hash + ".mp4",
		ByteSize:    1024,
		ContentHash: hash,
	})
	if err != nil {
		t.Fatalf("AppendSource: %v", err)
	}
	if status == catalog.SourceImported {
		if _, err := store.ConfirmImport(ctx, hash); err != nil {
			t.Fatalf("ConfirmImport: %v", err)
		}
		src.Status = catalog.SourceImported
	}
	return *src
}

// Hash returns a deterministic 32 character hex digest for test fixtures.
func Hash(seed int) string {
	return fmt.Sprintf("%032x", seed)
}
