package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertRefs stores reference names for a site, ignoring ones already known.
// It returns how many were new.
func (s *Store) UpsertRefs(ctx context.Context, kind RefKind, site string, names []string) (int, error) {
	site = strings.ToLower(strings.TrimSpace(site))
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO refs (kind, site, name, created_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		timestamp := s.timestamp()
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			res, err := stmt.ExecContext(ctx, kind, site, name, timestamp)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert refs: %w", err)
	}
	return inserted, nil
}

// FindRef looks up a reference by exact kind, site and name.
func (s *Store) FindRef(ctx context.Context, kind RefKind, site, name string) (*Ref, error) {
	var ref Ref
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, kind, site, name FROM refs WHERE kind = ? AND site = ? AND name = ?`,
		kind, strings.ToLower(site), name,
	).Scan(&ref.ID, &ref.Kind, &ref.Site, &ref.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ref: %w", err)
	}
	return &ref, nil
}

// ListRefs returns every reference of a kind for a site ordered by name.
func (s *Store) ListRefs(ctx context.Context, kind RefKind, site string) ([]Ref, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, kind, site, name FROM refs WHERE kind = ? AND site = ? ORDER BY name`,
		kind, strings.ToLower(site))
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer rows.Close()
	var refs []Ref
	for rows.Next() {
		var ref Ref
		if err := rows.Scan(&ref.ID, &ref.Kind, &ref.Site, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// LinkRefs replaces the references attached to an entry.
func (s *Store) LinkRefs(ctx context.Context, entryID int64, refIDs []int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entry_refs WHERE entry_id = ?`, entryID); err != nil {
			return err
		}
		for _, refID := range refIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO entry_refs (entry_id, ref_id) VALUES (?, ?)`, entryID, refID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("link refs: %w", err)
	}
	return nil
}

// ReferencesFor batch-fetches the references attached to the given entries.
func (s *Store) ReferencesFor(ctx context.Context, entryIDs []int64) (map[int64][]Ref, error) {
	result := make(map[int64][]Ref, len(entryIDs))
	if len(entryIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT er.entry_id, r.id, r.kind, r.site, r.name
         FROM entry_refs er JOIN refs r ON r.id = er.ref_id
         WHERE er.entry_id IN (`+makePlaceholders(len(entryIDs))+`)
         ORDER BY er.entry_id, r.kind, r.name`,
		int64Args(entryIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entryID int64
			ref     Ref
		)
		if err := rows.Scan(&entryID, &ref.ID, &ref.Kind, &ref.Site, &ref.Name); err != nil {
			return nil, err
		}
		result[entryID] = append(result[entryID], ref)
	}
	return result, rows.Err()
}

// RefNames returns the names of refs of one kind, preserving order.
func RefNames(refs []Ref, kind RefKind) []string {
	var names []string
	for _, ref := range refs {
		if ref.Kind == kind {
			names = append(names, ref.Name)
		}
	}
	return names
}
