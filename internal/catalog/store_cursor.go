package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LoadCursor returns the named cursor, or a fresh one at skip 0 with the
// given limit when none has been saved.
func (s *Store) LoadCursor(ctx context.Context, name string, defaultLimit int) (Cursor, error) {
	cursor := Cursor{Name: name, Limit: defaultLimit}
	var updatedRaw string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT skip, page_limit, updated_at FROM feed_cursors WHERE name = ?`, name,
	).Scan(&cursor.Skip, &cursor.Limit, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{Name: name, Limit: defaultLimit}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		cursor.UpdatedAt = updated
	}
	if cursor.Limit <= 0 {
		cursor.Limit = defaultLimit
	}
	return cursor, nil
}

// SaveCursor persists the cursor position.
func (s *Store) SaveCursor(ctx context.Context, cursor Cursor) error {
	if cursor.Name == "" {
		return errors.New("save cursor: name is required")
	}
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO feed_cursors (name, skip, page_limit, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET skip = excluded.skip, page_limit = excluded.page_limit, updated_at = excluded.updated_at`,
		cursor.Name, cursor.Skip, cursor.Limit, s.timestamp(),
	); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
