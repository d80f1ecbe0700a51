// Package export writes the catalog rows the distribution platform imports:
// one semicolon-delimited line per entry, naming the copy the selector chose.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"strings"

	"vidharvest/internal/catalog"
	"vidharvest/internal/logging"
	"vidharvest/internal/selector"
	"vidharvest/internal/services"
)

const (
	stageName        = "export"
	defaultBatchSize = 500
	listSeparator    = ","
)

// Columns is the header order. The platform's importer reads rows without a
// header; WriteHeader is for operators.
var Columns = []string{
	"code", "title", "release_date", "file_hash", "models",
	"categories", "tags", "s3_path", "poster_url",
}

// Options filters an export.
type Options struct {
	// AfterID skips entries with id <= AfterID.
	AfterID int64
	// Limit caps the number of rows written; zero means no cap.
	Limit int
	// IncludeImported also writes entries whose selected copy is already
	// imported downstream.
	IncludeImported bool
	WriteHeader     bool
	Policy          selector.Policy
	BatchSize       int
}

// Summary reports one export.
type Summary struct {
	Rows       int
	NoEligible int
	Current    int
	// LastID is the highest entry id examined, for the next AfterID.
	LastID int64
}

// Write streams rows for downloaded and imported entries to w.
func Write(ctx context.Context, store *catalog.Store, w io.Writer, opts Options, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, stageName)
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	summary := Summary{LastID: opts.AfterID}

	out := csv.NewWriter(w)
	out.Comma = ';'
	if opts.WriteHeader {
		if err := out.Write(Columns); err != nil {
			return summary, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		entries, err := store.List(ctx, catalog.ListFilter{
			Statuses: []catalog.Status{catalog.StatusDownloaded, catalog.StatusImported},
			AfterID:  summary.LastID,
			Limit:    batch,
		})
		if err != nil {
			return summary, services.Wrap(services.ErrConnectivity, stageName, "list", "Failed to list entries", err)
		}
		if len(entries) == 0 {
			break
		}
		if err := store.LoadSources(ctx, entries...); err != nil {
			return summary, services.Wrap(services.ErrConnectivity, stageName, "sources", "Failed to load sources", err)
		}
		ids := make([]int64, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		refs, err := store.ReferencesFor(ctx, ids)
		if err != nil {
			return summary, services.Wrap(services.ErrConnectivity, stageName, "refs", "Failed to load references", err)
		}

		for _, entry := range entries {
			if opts.Limit > 0 && summary.Rows >= opts.Limit {
				out.Flush()
				return summary, out.Error()
			}
			summary.LastID = entry.ID
			best := selector.Select(entry.Sources, opts.Policy)
			if best == nil {
				summary.NoEligible++
				continue
			}
			if best.Status == catalog.SourceImported && !opts.IncludeImported {
				summary.Current++
				continue
			}
			if err := out.Write(row(entry, best, refs[entry.ID])); err != nil {
				return summary, err
			}
			summary.Rows++
		}
		out.Flush()
		if err := out.Error(); err != nil {
			return summary, err
		}
		if len(entries) < batch {
			break
		}
	}
	out.Flush()
	logger.Info("export complete",
		logging.Int("rows", summary.Rows),
		logging.Int("no_eligible", summary.NoEligible),
		logging.Int("already_imported", summary.Current),
		logging.Int64("last_id", summary.LastID),
	)
	return summary, out.Error()
}

func row(entry *catalog.Entry, best *catalog.SourceCopy, refs []catalog.Ref) []string {
	return []string{
		entry.DisplayCode(),
		entry.Title,
		entry.ReleaseDate,
		best.ContentHash,
		strings.Join(catalog.RefNames(refs, catalog.RefPerson), listSeparator),
		strings.Join(catalog.RefNames(refs, catalog.RefCategory), listSeparator),
		strings.Join(catalog.RefNames(refs, catalog.RefTag), listSeparator),
		best.ObjectPath,
		entry.ThumbnailObject,
	}
}
