package catalog

import (
	"context"
	"fmt"
)

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates entry state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusAdded, StatusParsed:
			health.Pending += count
		case StatusDownloading:
			health.Downloading += count
		case StatusDownloaded:
			health.Downloaded += count
		case StatusFailed:
			health.Failed += count
		case StatusImported:
			health.Imported += count
		case StatusDeleted:
			health.Deleted += count
		}
	}
	return health, nil
}

// SourceStats returns a count of copies grouped by acquisition status.
func (s *Store) SourceStats(ctx context.Context) (map[SourceStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT acquisition_status, COUNT(1) FROM source_copies GROUP BY acquisition_status`)
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[SourceStatus]int)
	for rows.Next() {
		var status SourceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
