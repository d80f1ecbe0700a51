package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ValidContentHash reports whether value is a 32 character lowercase hex digest.
func ValidContentHash(value string) bool {
	if len(value) != 32 {
		return false
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// AppendSource records a newly acquired copy as saved and current for its
// origin. Older copies from the same origin stay in place but stop being
// current. Re-recording the same bytes from the same origin returns the
// existing copy and false.
func (s *Store) AppendSource(ctx context.Context, src SourceCopy) (*SourceCopy, bool, error) {
	src.ContentHash = strings.ToLower(strings.TrimSpace(src.ContentHash))
	if !ValidContentHash(src.ContentHash) {
		return nil, false, fmt.Errorf("append source: malformed content hash %q", src.ContentHash)
	}
	if src.Origin == "" {
		return nil, false, errors.New("append source: origin is required")
	}
	if src.Tier == "" {
		src.Tier = TierUnknown
	}

	var (
		result  *SourceCopy
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, created = nil, false
		row := tx.QueryRowContext(ctx,
			`SELECT `+sourceColumns+` FROM source_copies
             WHERE entry_id = ? AND origin = ? AND content_hash = ? AND acquisition_status <> ?
             ORDER BY id DESC LIMIT 1`,
			src.EntryID, src.Origin, src.ContentHash, SourceDeleted)
		existing, err := scanSource(row)
		switch {
		case err == nil:
			result = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		timestamp := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE source_copies SET is_current = 0, updated_at = ?
             WHERE entry_id = ? AND origin = ? AND is_current = 1`,
			timestamp, src.EntryID, src.Origin,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO source_copies (
                entry_id, origin, resolution_tier, object_path, file_name, byte_size,
                content_hash, acquisition_status, is_current, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			src.EntryID, src.Origin, src.Tier, src.ObjectPath, src.FileName, src.ByteSize,
			src.ContentHash, SourceSaved, timestamp, timestamp,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		inserted, err := scanSource(tx.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM source_copies WHERE id = ?`, id))
		if err != nil {
			return err
		}
		result, created = inserted, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("append source: %w", err)
	}
	return result, created, nil
}

// SourcesFor returns every copy of an entry in acquisition order.
func (s *Store) SourcesFor(ctx context.Context, entryID int64) ([]SourceCopy, error) {
	grouped, err := s.sourcesByEntry(ctx, []int64{entryID})
	if err != nil {
		return nil, err
	}
	return grouped[entryID], nil
}

// LoadSources batch-fetches the copies of the given entries into Entry.Sources.
func (s *Store) LoadSources(ctx context.Context, entries ...*Entry) error {
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if entry != nil {
			ids = append(ids, entry.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	grouped, err := s.sourcesByEntry(ctx, ids)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry != nil {
			entry.Sources = grouped[entry.ID]
		}
	}
	return nil
}

func (s *Store) sourcesByEntry(ctx context.Context, ids []int64) (map[int64][]SourceCopy, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+sourceColumns+` FROM source_copies WHERE entry_id IN (`+makePlaceholders(len(ids))+`) ORDER BY entry_id, id`,
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()
	grouped := make(map[int64][]SourceCopy, len(ids))
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		grouped[src.EntryID] = append(grouped[src.EntryID], *src)
	}
	return grouped, rows.Err()
}

// FindSourceByHash returns the copy holding the given bytes, preferring an
// imported copy over a saved one and either over a deleted one.
func (s *Store) FindSourceByHash(ctx context.Context, hash string) (*SourceCopy, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+sourceColumns+` FROM source_copies WHERE content_hash = ?
         ORDER BY CASE acquisition_status WHEN ? THEN 0 WHEN ? THEN 1 ELSE 2 END, id
         LIMIT 1`,
		strings.ToLower(hash), SourceImported, SourceSaved)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source by hash: %w", err)
	}
	return src, nil
}

// ConfirmImport marks every saved copy with the given hash as imported and
// advances their downloaded entries to imported. It returns the number of
// copies that changed.
func (s *Store) ConfirmImport(ctx context.Context, hash string) (int, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !ValidContentHash(hash) {
		return 0, fmt.Errorf("confirm import: malformed content hash %q", hash)
	}
	changed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		timestamp := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE source_copies SET acquisition_status = ?, updated_at = ?
             WHERE content_hash = ? AND acquisition_status = ?`,
			SourceImported, timestamp, hash, SourceSaved)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = int(affected)
		_, err = tx.ExecContext(ctx,
			`UPDATE entries SET status = ?, version = version + 1, updated_at = ?
             WHERE status = ? AND id IN (SELECT entry_id FROM source_copies WHERE content_hash = ? AND acquisition_status = ?)`,
			StatusImported, timestamp, StatusDownloaded, hash, SourceImported)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("confirm import: %w", err)
	}
	return changed, nil
}

// MarkSourceDeleted moves an imported copy to deleted together with every
// other imported copy stored under the same object, since they share its bytes.
// Entries left without a live copy move from imported to deleted. It returns
// the number of copies retired, zero when the copy was already deleted.
func (s *Store) MarkSourceDeleted(ctx context.Context, sourceID int64) (int, error) {
	retired := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		retired = 0
		src, err := scanSource(tx.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM source_copies WHERE id = ?`, sourceID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("source %d not found", sourceID)
			}
			return err
		}
		ok, err := TransitionSource(src.Status, SourceDeleted)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		timestamp := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE source_copies SET acquisition_status = ?, is_current = 0, updated_at = ?
             WHERE acquisition_status = ? AND (id = ? OR (object_path = ? AND object_path <> ''))`,
			SourceDeleted, timestamp, SourceImported, sourceID, src.ObjectPath,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET status = ?, version = version + 1, updated_at = ?
             WHERE status = ?
               AND id IN (SELECT entry_id FROM source_copies WHERE id = ? OR (object_path = ? AND object_path <> ''))
               AND NOT EXISTS (SELECT 1 FROM source_copies sc WHERE sc.entry_id = entries.id AND sc.acquisition_status <> ?)`,
			StatusDeleted, timestamp, StatusImported, sourceID, src.ObjectPath, SourceDeleted,
		); err != nil {
			return err
		}
		retired = int(affected)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark source deleted: %w", err)
	}
	return retired, nil
}
