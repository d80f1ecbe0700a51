package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/services"
	"vidharvest/internal/sites"
)

const stageName = "ingest"

// Outcome classifies an enrichment.
type Outcome string

const (
	// OutcomeParsed means the entry was merged and is now parsed.
	OutcomeParsed Outcome = "parsed"
	// OutcomeDiscardedDuplicate means the entry's code was already owned by
	// another enriched entry and this placeholder was retired.
	OutcomeDiscardedDuplicate Outcome = "discarded_duplicate"
	// OutcomeIneligible means the entry was past the enrichable states.
	OutcomeIneligible Outcome = "ineligible"
	// OutcomeMissing means the source page no longer exists.
	OutcomeMissing Outcome = "missing"
)

// UnmatchedRef is a referenced name with no catalog record for the site.
type UnmatchedRef struct {
	Kind catalog.RefKind
	Name string
}

// EnrichResult reports what Enrich did.
type EnrichResult struct {
	Outcome   Outcome
	Entry     *catalog.Entry
	KeeperID  int64
	Linked    int
	Unmatched []UnmatchedRef
}

// Service implements catalog ingestion.
type Service struct {
	store    *catalog.Store
	resolver *refResolver
	metrics  *metrics.Collectors
	logger   *slog.Logger
	upper    cases.Caser
}

// NewService wires the ingestion service.
func NewService(store *catalog.Store, cfg config.Sites, collectors *metrics.Collectors, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: newRefResolver(store, cfg.RefCacheSize, time.Duration(cfg.RefCacheTTL)*time.Second, collectors),
		metrics:  collectors,
		logger:   logging.NewComponentLogger(logger, "ingest"),
		upper:    cases.Upper(language.Und),
	}
}

// NormalizeCode trims and upper-cases a product code.
func (s *Service) NormalizeCode(code string) string {
	return s.upper.String(strings.TrimSpace(code))
}

// Ingest inserts unseen listings for site as added entries and returns how
// many were created.
func (s *Service) Ingest(ctx context.Context, site string, listings []sites.RawListing) (int, error) {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return 0, services.Wrap(services.ErrValidation, stageName, "ingest", "Site is required", nil)
	}

	seen := make(map[string]struct{}, len(listings))
	stubs := make([]catalog.Stub, 0, len(listings))
	links := make([]string, 0, len(listings))
	for _, listing := range listings {
		link := sites.NormalizeLink(listing.PageLink)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
		stubs = append(stubs, catalog.Stub{
			CodeHint:     s.NormalizeCode(listing.CodeHint),
			PageLink:     link,
			Title:        strings.TrimSpace(listing.Title),
			ThumbnailURL: strings.TrimSpace(listing.ThumbnailURL),
		})
	}
	if len(stubs) == 0 {
		return 0, nil
	}

	existing, err := s.store.ExistingPageLinks(ctx, links)
	if err != nil {
		return 0, services.Wrap(services.ErrConnectivity, stageName, "ingest", "Failed to read existing links", err)
	}
	fresh := stubs[:0]
	for _, stub := range stubs {
		if _, ok := existing[stub.PageLink]; !ok {
			fresh = append(fresh, stub)
		}
	}

	inserted, err := s.store.InsertStubs(ctx, site, fresh)
	if err != nil {
		return 0, services.Wrap(services.ErrConnectivity, stageName, "ingest", "Failed to insert stubs", err)
	}
	s.metrics.Ingested(site, inserted)
	s.logger.Info("listings ingested",
		logging.String(logging.FieldSite, site),
		logging.Int("received", len(listings)),
		logging.Int("distinct", len(stubs)),
		logging.Int("inserted", inserted),
	)
	return inserted, nil
}

// Enrich merges record into the entry and moves it to parsed.
func (s *Service) Enrich(ctx context.Context, entryID int64, record sites.DetailRecord) (EnrichResult, error) {
	entry, err := s.store.GetByID(ctx, entryID)
	if err != nil {
		return EnrichResult{}, services.Wrap(services.ErrConnectivity, stageName, "enrich", "Failed to load entry", err)
	}
	if entry == nil {
		return EnrichResult{}, services.Wrap(services.ErrNotFound, stageName, "enrich", fmt.Sprintf("Entry %d not found", entryID), nil)
	}
	logger := s.logger.With(
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldSite, entry.Site),
	)
	if entry.Status != catalog.StatusAdded && entry.Status != catalog.StatusParsed {
		s.metrics.Enriched(string(OutcomeIneligible))
		return EnrichResult{Outcome: OutcomeIneligible, Entry: entry}, nil
	}

	code := s.NormalizeCode(record.Code)
	if code == "" {
		code = entry.CodeHint
	}
	if code == "" {
		return EnrichResult{}, services.Wrap(services.ErrValidation, stageName, "enrich", "Detail record has no code", nil)
	}
	logger = logger.With(logging.String(logging.FieldCode, code))

	if result, discarded, err := s.discardIfOwned(ctx, entry, code, logger); err != nil || discarded {
		return result, err
	}

	merge(entry, code, record)
	if err := s.store.Update(ctx, entry); err != nil {
		if errors.Is(err, catalog.ErrDuplicateCode) {
			// Another worker enriched the same code in between.
			if result, discarded, derr := s.discardIfOwned(ctx, entry, code, logger); derr != nil || discarded {
				return result, derr
			}
		}
		return EnrichResult{}, services.Wrap(services.ErrTransient, stageName, "enrich", "Failed to save entry", err)
	}

	linked, unmatched, err := s.attachRefs(ctx, entry, record)
	if err != nil {
		return EnrichResult{}, services.Wrap(services.ErrTransient, stageName, "enrich", "Failed to attach references", err)
	}
	for _, missing := range unmatched {
		logger.Info("reference not attached",
			logging.String("kind", string(missing.Kind)),
			logging.String("name", missing.Name),
			logging.String(logging.FieldEventType, "ref_unmatched"),
		)
	}

	updated, err := s.store.SetStatus(ctx, entry.ID, catalog.StatusParsed, "")
	if err != nil {
		return EnrichResult{}, services.Wrap(services.ErrTransient, stageName, "enrich", "Failed to mark entry parsed", err)
	}
	s.metrics.Enriched(string(OutcomeParsed))
	logger.Debug("entry enriched", logging.Int("refs_linked", linked), logging.Int("refs_unmatched", len(unmatched)))
	return EnrichResult{Outcome: OutcomeParsed, Entry: updated, Linked: linked, Unmatched: unmatched}, nil
}

// discardIfOwned retires entry when code already belongs to a different
// enriched entry.
func (s *Service) discardIfOwned(ctx context.Context, entry *catalog.Entry, code string, logger *slog.Logger) (EnrichResult, bool, error) {
	owner, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return EnrichResult{}, false, services.Wrap(services.ErrConnectivity, stageName, "enrich", "Failed to look up code", err)
	}
	if owner == nil || owner.ID == entry.ID {
		return EnrichResult{}, false, nil
	}
	if err := s.store.DiscardDuplicate(ctx, entry.ID, owner.ID); err != nil {
		return EnrichResult{}, false, services.Wrap(services.ErrDuplicateIdentity, stageName, "enrich", "Failed to discard duplicate placeholder", err)
	}
	s.metrics.Enriched(string(OutcomeDiscardedDuplicate))
	logger.Info("duplicate placeholder discarded",
		logging.Int64("keeper_id", owner.ID),
		logging.String(logging.FieldEventType, "duplicate_discarded"),
	)
	discarded, err := s.store.GetByID(ctx, entry.ID)
	if err != nil {
		discarded = entry
	}
	return EnrichResult{Outcome: OutcomeDiscardedDuplicate, Entry: discarded, KeeperID: owner.ID}, true, nil
}

func merge(entry *catalog.Entry, code string, record sites.DetailRecord) {
	entry.Code = code
	if title := strings.TrimSpace(record.Title); title != "" {
		entry.Title = title
	}
	if thumb := strings.TrimSpace(record.ThumbnailURL); thumb != "" {
		entry.ThumbnailURL = thumb
	}
	if release := strings.TrimSpace(record.ReleaseDate); release != "" {
		entry.ReleaseDate = release
	}
	if record.RuntimeMinutes != nil && *record.RuntimeMinutes > 0 {
		minutes := *record.RuntimeMinutes
		entry.RuntimeMinutes = &minutes
	}
	if record.Uncensored {
		entry.Uncensored = true
	}
}

func (s *Service) attachRefs(ctx context.Context, entry *catalog.Entry, record sites.DetailRecord) (int, []UnmatchedRef, error) {
	groups := []struct {
		kind  catalog.RefKind
		names []string
	}{
		{catalog.RefCategory, record.Categories},
		{catalog.RefTag, record.Tags},
		{catalog.RefPerson, record.People},
		{catalog.RefStudio, []string{record.Studio}},
	}
	var (
		ids       []int64
		unmatched []UnmatchedRef
	)
	for _, group := range groups {
		for _, name := range group.names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			id, err := s.resolver.Resolve(ctx, group.kind, entry.Site, name)
			if err != nil {
				return 0, nil, err
			}
			if id == 0 {
				unmatched = append(unmatched, UnmatchedRef{Kind: group.kind, Name: name})
				continue
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, unmatched, nil
	}
	if err := s.store.LinkRefs(ctx, entry.ID, ids); err != nil {
		return 0, nil, err
	}
	return len(ids), unmatched, nil
}
