package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReclaimedMessage is recorded on entries whose worker stopped heartbeating.
const ReclaimedMessage = "Reclaimed after heartbeat timeout"

// ClaimNext atomically moves the next acquirable entry to downloading and
// returns it. Parsed entries come first, then failed entries that still have
// attempts left and have rested for retryAfter. It returns nil when nothing
// is ready.
func (s *Store) ClaimNext(ctx context.Context, maxAttempts int, retryAfter time.Duration) (*Entry, error) {
	now := s.now().UTC()
	timestamp := now.Format(timeLayout)
	retryCutoff := now.Add(-retryAfter).Format(timeLayout)

	var entry *Entry
	err := retryOnBusy(ensureContext(ctx), func() error {
		row := s.db.QueryRowContext(ensureContext(ctx),
			`UPDATE entries
             SET status = ?, attempts = attempts + 1, last_heartbeat = ?, error_message = NULL,
                 version = version + 1, updated_at = ?
             WHERE id = (
                 SELECT id FROM entries
                 WHERE status = ?
                    OR (status = ? AND attempts < ? AND updated_at <= ?)
                 ORDER BY CASE status WHEN ? THEN 0 ELSE 1 END, id
                 LIMIT 1
             )
             RETURNING `+entryColumns,
			StatusDownloading, timestamp, timestamp,
			StatusParsed,
			StatusFailed, maxAttempts, retryCutoff,
			StatusParsed,
		)
		claimed, err := scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			entry = nil
			return nil
		}
		if err != nil {
			return err
		}
		entry = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next entry: %w", err)
	}
	return entry, nil
}

// UpdateHeartbeat refreshes the heartbeat of an in-flight entry.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	timestamp := s.timestamp()
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE entries SET last_heartbeat = ? WHERE id = ? AND status = ?`,
		timestamp, id, StatusDownloading,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale fails downloading entries whose heartbeat is older than cutoff
// so the scheduler can claim them again.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE entries
         SET status = ?, error_message = ?, last_heartbeat = NULL, version = version + 1, updated_at = ?
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		StatusFailed, ReclaimedMessage, s.timestamp(),
		StatusDownloading, cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed resets the attempt budget of failed entries so the scheduler
// picks them up again. With no ids every failed entry is reset.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE entries SET attempts = 0, updated_at = ?, version = version + 1 WHERE status = ?`
	// updated_at moves to the epoch so the retry delay does not hold the entry back.
	rested := time.Unix(0, 0).UTC().Format(timeLayout)
	args := []any{rested, StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		args = append(args, int64Args(ids)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed entries: %w", err)
	}
	return res.RowsAffected()
}

// ExhaustAttempts spends the remaining attempt budget of a failed entry so
// ClaimNext skips it until RetryFailed resets the budget.
func (s *Store) ExhaustAttempts(ctx context.Context, id int64, maxAttempts int) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE entries SET attempts = MAX(attempts, ?), version = version + 1 WHERE id = ? AND status = ?`,
		maxAttempts, id, StatusFailed,
	); err != nil {
		return fmt.Errorf("exhaust attempts: %w", err)
	}
	return nil
}
