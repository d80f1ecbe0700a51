package ingest

import (
	"context"
	"fmt"

	"vidharvest/internal/catalog"
	"vidharvest/internal/logging"
	"vidharvest/internal/services"
	"vidharvest/internal/sites"
)

// EnrichSummary tallies one EnrichPending pass.
type EnrichSummary struct {
	Processed  int
	Parsed     int
	Duplicates int
	Missing    int
	Failed     int
	Unmatched  int
}

// EnrichPending fetches and merges detail pages for up to limit added
// entries of the adapter's site. Per-entry failures are logged and counted;
// only connectivity failures stop the pass.
func (s *Service) EnrichPending(ctx context.Context, adapter sites.Adapter, limit int) (EnrichSummary, error) {
	var summary EnrichSummary
	site := adapter.SiteName()
	entries, err := s.store.List(ctx, catalog.ListFilter{
		Site:     site,
		Statuses: []catalog.Status{catalog.StatusAdded},
		Limit:    limit,
	})
	if err != nil {
		return summary, services.Wrap(services.ErrConnectivity, stageName, "enrich pending", "Failed to list added entries", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++
		logger := s.logger.With(
			logging.Int64(logging.FieldEntryID, entry.ID),
			logging.String(logging.FieldSite, site),
		)

		record, err := adapter.FetchDetail(ctx, sites.RawListing{
			CodeHint:     entry.CodeHint,
			PageLink:     entry.PageLink,
			Title:        entry.Title,
			ThumbnailURL: entry.ThumbnailURL,
		})
		if err != nil {
			summary.Failed++
			logging.WarnWithContext(logger, "detail fetch failed", "detail_fetch_failed",
				logging.Error(err),
				logging.String("page_link", entry.PageLink),
				logging.String(logging.FieldErrorHint, "the entry stays added and is retried on the next pass"),
			)
			continue
		}
		if record == nil {
			summary.Missing++
			s.metrics.Enriched(string(OutcomeMissing))
			if _, err := s.store.SetStatus(ctx, entry.ID, catalog.StatusDeleted, "source page not found"); err != nil {
				logger.Warn("failed to retire missing entry", logging.Error(err))
			} else {
				logger.Info("source page missing; entry retired", logging.String("page_link", entry.PageLink))
			}
			continue
		}

		result, err := s.Enrich(ctx, entry.ID, *record)
		if err != nil {
			if services.IsFatal(err) {
				return summary, err
			}
			summary.Failed++
			logging.WarnWithContext(logger, "enrichment failed", "enrich_failed", logging.Error(err))
			continue
		}
		summary.Unmatched += len(result.Unmatched)
		switch result.Outcome {
		case OutcomeParsed:
			summary.Parsed++
		case OutcomeDiscardedDuplicate:
			summary.Duplicates++
		}
	}
	s.logger.Info("enrichment pass complete",
		logging.String(logging.FieldSite, site),
		logging.Int("processed", summary.Processed),
		logging.Int("parsed", summary.Parsed),
		logging.Int("duplicates", summary.Duplicates),
		logging.Int("missing", summary.Missing),
		logging.Int("failed", summary.Failed),
	)
	return summary, nil
}

// SyncReferences stores the site's published category and tag names. It
// returns how many were new per kind.
func (s *Service) SyncReferences(ctx context.Context, adapter sites.Adapter) (map[catalog.RefKind]int, error) {
	source, ok := adapter.(sites.ReferenceSource)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, stageName, "sync refs",
			fmt.Sprintf("Site %s publishes no reference index", adapter.SiteName()), nil)
	}
	site := adapter.SiteName()
	added := make(map[catalog.RefKind]int, 2)

	fetchers := []struct {
		kind  catalog.RefKind
		fetch func(context.Context) ([]string, error)
	}{
		{catalog.RefCategory, source.Categories},
		{catalog.RefTag, source.Tags},
	}
	for _, f := range fetchers {
		names, err := f.fetch(ctx)
		if err != nil {
			return added, services.Wrap(services.ErrTransient, stageName, "sync refs",
				fmt.Sprintf("Failed to fetch %s index", f.kind), err)
		}
		count, err := s.store.UpsertRefs(ctx, f.kind, site, names)
		if err != nil {
			return added, services.Wrap(services.ErrConnectivity, stageName, "sync refs", "Failed to store references", err)
		}
		added[f.kind] = count
		s.logger.Info("references synced",
			logging.String(logging.FieldSite, site),
			logging.String("kind", string(f.kind)),
			logging.Int("published", len(names)),
			logging.Int("new", count),
		)
	}
	s.resolver.Purge()
	return added, nil
}
