package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/feed"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/objectstore"
	"vidharvest/internal/services"
)

const stageName = "reconcile"

// SkipReason explains why a feed row did not lead to a deletion.
type SkipReason string

const (
	SkipInvalid        SkipReason = "invalid"
	SkipNotInDB        SkipReason = "not_in_db"
	SkipNotImported    SkipReason = "not_imported"
	SkipAlreadyDeleted SkipReason = "already_deleted"
)

// Mode names the kind of run.
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeSweep       Mode = "sweep"
)

// Inconsistency is a copy whose object survived a successful delete.
type Inconsistency struct {
	SourceID int64
	EntryID  int64
	Hash     string
	Key      string
}

// DeleteFailure is a copy whose object could not be removed or verified.
type DeleteFailure struct {
	SourceID int64
	Hash     string
	Err      error
}

// Summary reports one run.
type Summary struct {
	RunID           string
	Mode            Mode
	FeedRows        int
	Deleted         int // copies retired
	Skipped         map[SkipReason]int
	Inconsistencies []Inconsistency
	DeleteFailures  []DeleteFailure
	Cursor          *catalog.Cursor
	Duration        time.Duration
}

// SkippedTotal sums skips across reasons.
func (s Summary) SkippedTotal() int {
	total := 0
	for _, count := range s.Skipped {
		total += count
	}
	return total
}

// SkipReasons returns the recorded reasons in stable order.
func (s Summary) SkipReasons() []SkipReason {
	reasons := make([]SkipReason, 0, len(s.Skipped))
	for reason := range s.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}

// FeedSource provides feed rows.
type FeedSource interface {
	FetchPage(ctx context.Context, skip, limit int) ([]feed.Row, error)
	FetchAll(ctx context.Context) ([]feed.Row, error)
	PageSize() int
}

// Engine runs reconciliation passes.
type Engine struct {
	store      *catalog.Store
	gateway    objectstore.Gateway
	feed       FeedSource
	cursorName string
	metrics    *metrics.Collectors
	logger     *slog.Logger
}

// NewEngine wires an engine.
func NewEngine(store *catalog.Store, gateway objectstore.Gateway, source FeedSource, cfg config.Reconcile, collectors *metrics.Collectors, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	cursorName := cfg.CursorName
	if cursorName == "" {
		cursorName = "feed"
	}
	return &Engine{
		store:      store,
		gateway:    gateway,
		feed:       source,
		cursorName: cursorName,
		metrics:    collectors,
		logger:     logging.NewComponentLogger(logger, stageName),
	}
}

// RunIncremental processes the page at the persisted cursor and advances the
// cursor by the number of rows read. A failed page leaves the cursor alone.
func (e *Engine) RunIncremental(ctx context.Context) (Summary, error) {
	ctx, summary, started := e.begin(ctx, ModeIncremental)
	cursor, err := e.store.LoadCursor(ctx, e.cursorName, e.feed.PageSize())
	if err != nil {
		return summary, services.Wrap(services.ErrConnectivity, stageName, "load cursor", "Failed to load feed cursor", err)
	}
	rows, err := e.feed.FetchPage(ctx, cursor.Skip, cursor.Limit)
	if err != nil {
		return summary, err
	}
	if err := e.process(ctx, rows, &summary); err != nil {
		return summary, err
	}
	cursor.Skip += len(rows)
	if err := e.store.SaveCursor(ctx, cursor); err != nil {
		return summary, services.Wrap(services.ErrConnectivity, stageName, "save cursor", "Failed to persist feed cursor", err)
	}
	summary.Cursor = &cursor
	e.finish(ctx, &summary, started)
	return summary, nil
}

// Sweep processes the entire feed. The cursor is not touched.
func (e *Engine) Sweep(ctx context.Context) (Summary, error) {
	ctx, summary, started := e.begin(ctx, ModeSweep)
	rows, err := e.feed.FetchAll(ctx)
	if err != nil {
		return summary, err
	}
	if err := e.process(ctx, rows, &summary); err != nil {
		return summary, err
	}
	e.finish(ctx, &summary, started)
	return summary, nil
}

// ResetCursor rewinds the incremental cursor to the start of the feed.
func (e *Engine) ResetCursor(ctx context.Context) error {
	return e.store.SaveCursor(ctx, catalog.Cursor{Name: e.cursorName, Skip: 0, Limit: e.feed.PageSize()})
}

func (e *Engine) begin(ctx context.Context, mode Mode) (context.Context, Summary, time.Time) {
	runID := uuid.NewString()
	ctx = services.WithRequestID(ctx, runID)
	ctx = services.WithStage(ctx, stageName)
	return ctx, Summary{
		RunID:   runID,
		Mode:    mode,
		Skipped: make(map[SkipReason]int),
	}, time.Now()
}

func (e *Engine) finish(ctx context.Context, summary *Summary, started time.Time) {
	summary.Duration = time.Since(started)
	skipped := make(map[string]int, len(summary.Skipped))
	for reason, count := range summary.Skipped {
		skipped[string(reason)] = count
	}
	e.metrics.ReconcileRun(summary.Deleted, len(summary.Inconsistencies), len(summary.DeleteFailures), summary.FeedRows, skipped)

	attrs := []logging.Attr{
		logging.String("mode", string(summary.Mode)),
		logging.Int("feed_rows", summary.FeedRows),
		logging.Int("deleted", summary.Deleted),
		logging.Int("skipped", summary.SkippedTotal()),
		logging.Int("inconsistencies", len(summary.Inconsistencies)),
		logging.Int("delete_failures", len(summary.DeleteFailures)),
		logging.Duration("duration", summary.Duration),
		logging.String(logging.FieldEventType, "reconcile_complete"),
	}
	if reasons := summary.SkipReasons(); len(reasons) > 0 {
		byReason := make([]logging.Attr, 0, len(reasons))
		for _, reason := range reasons {
			byReason = append(byReason, logging.Int(string(reason), summary.Skipped[reason]))
		}
		attrs = append(attrs, logging.Group("skipped_by_reason", byReason...))
	}
	if summary.Cursor != nil {
		attrs = append(attrs, logging.Int("cursor_skip", summary.Cursor.Skip))
	}
	logging.WithContext(ctx, e.logger).Info("reconciliation complete", logging.Args(attrs...)...)
}

func (e *Engine) process(ctx context.Context, rows []feed.Row, summary *Summary) error {
	logger := logging.WithContext(ctx, e.logger)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.FeedRows++
		if err := e.reconcileRow(ctx, logger, row, summary); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) reconcileRow(ctx context.Context, logger *slog.Logger, row feed.Row, summary *Summary) error {
	if !row.Valid {
		summary.Skipped[SkipInvalid]++
		logger.Debug("feed row skipped",
			logging.Int64("feed_id", row.ID),
			logging.String("hash", row.Hash),
			logging.String("reason", string(SkipInvalid)),
		)
		return nil
	}
	src, err := e.store.FindSourceByHash(ctx, row.Hash)
	if err != nil {
		return services.Wrap(services.ErrConnectivity, stageName, "lookup", "Failed to look up source by hash", err)
	}
	switch {
	case src == nil:
		summary.Skipped[SkipNotInDB]++
		return nil
	case src.Status == catalog.SourceDeleted:
		summary.Skipped[SkipAlreadyDeleted]++
		return nil
	case src.Status != catalog.SourceImported:
		summary.Skipped[SkipNotImported]++
		return nil
	}

	logger = logger.With(
		logging.Int64(logging.FieldEntryID, src.EntryID),
		logging.Int64("source_id", src.ID),
		logging.Int64("feed_id", row.ID),
		logging.String("hash", row.Hash),
	)
	bucket, key, err := objectstore.ParseObjectURL(src.ObjectPath)
	if err != nil {
		e.recordFailure(logger, summary, src, services.Wrap(services.ErrStorageInconsistency, stageName, "parse", "Stored object path is not a retrieval URL", err))
		return nil
	}
	logger = logger.With(logging.String("object_key", key))

	if err := e.gateway.Delete(ctx, bucket, key); err != nil {
		if errors.Is(err, objectstore.ErrUnreachable) {
			return services.Wrap(services.ErrConnectivity, stageName, "delete", "Object store unreachable", err)
		}
		e.recordFailure(logger, summary, src, err)
		return nil
	}
	exists, err := e.gateway.Head(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrUnreachable) {
			return services.Wrap(services.ErrConnectivity, stageName, "verify", "Object store unreachable", err)
		}
		e.recordFailure(logger, summary, src, fmt.Errorf("verify deletion: %w", err))
		return nil
	}
	if exists {
		summary.Inconsistencies = append(summary.Inconsistencies, Inconsistency{
			SourceID: src.ID,
			EntryID:  src.EntryID,
			Hash:     row.Hash,
			Key:      key,
		})
		logging.WarnWithContext(logger, "object still present after delete", "storage_inconsistency",
			logging.Alert("storage_inconsistency"),
			logging.String(logging.FieldErrorHint, "check bucket versioning or retention; the copy stays imported"),
		)
		return nil
	}

	retired, err := e.store.MarkSourceDeleted(ctx, src.ID)
	if err != nil {
		return services.Wrap(services.ErrConnectivity, stageName, "mark deleted", "Failed to record deletion", err)
	}
	if retired == 0 {
		summary.Skipped[SkipAlreadyDeleted]++
		return nil
	}
	summary.Deleted += retired
	logger.Info("source copy collected",
		logging.Int("copies", retired),
		logging.String(logging.FieldEventType, "source_deleted"),
	)
	return nil
}

func (e *Engine) recordFailure(logger *slog.Logger, summary *Summary, src *catalog.SourceCopy, err error) {
	summary.DeleteFailures = append(summary.DeleteFailures, DeleteFailure{SourceID: src.ID, Hash: src.ContentHash, Err: err})
	logging.WarnWithContext(logger, "object delete failed", "delete_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the copy stays imported and is retried on the next pass"),
	)
}
