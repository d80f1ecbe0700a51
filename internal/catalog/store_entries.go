package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// InsertStubs inserts listings whose page link is not yet catalogued as added
// entries and returns how many rows were created. Links already present, in the
// catalog or earlier in the same batch, are ignored.
func (s *Store) InsertStubs(ctx context.Context, site string, stubs []Stub) (int, error) {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return 0, errors.New("insert stubs: site is required")
	}
	if len(stubs) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO entries (
            site, code_hint, page_link, title, thumbnail_url, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		timestamp := s.timestamp()
		for _, stub := range stubs {
			if strings.TrimSpace(stub.PageLink) == "" {
				continue
			}
			res, err := stmt.ExecContext(ctx,
				site,
				nullableString(stub.CodeHint),
				stub.PageLink,
				nullableString(stub.Title),
				nullableString(stub.ThumbnailURL),
				StatusAdded,
				timestamp,
				timestamp,
			)
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
		return 0, fmt.Errorf("insert stubs: %w", err)
	}
	return inserted, nil
}

// ExistingPageLinks returns the subset of links already present in the catalog.
func (s *Store) ExistingPageLinks(ctx context.Context, links []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(links))
	if len(links) == 0 {
		return existing, nil
	}
	args := make([]any, len(links))
	for i, link := range links {
		args[i] = link
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT page_link FROM entries WHERE page_link IN (`+makePlaceholders(len(links))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query page links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		existing[link] = struct{}{}
	}
	return existing, rows.Err()
}

// GetByID fetches an entry by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// GetByPageLink fetches an entry by its origin page link.
func (s *Store) GetByPageLink(ctx context.Context, link string) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+entryColumns+` FROM entries WHERE page_link = ?`, link)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry by link: %w", err)
	}
	return entry, nil
}

// FindByCode returns the live entry that owns code, if any.
func (s *Store) FindByCode(ctx context.Context, code string) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+entryColumns+` FROM entries WHERE code = ? AND status <> ? ORDER BY id LIMIT 1`,
		code, StatusDeleted)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by code: %w", err)
	}
	return entry, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Site     string
	Statuses []Status
	AfterID  int64
	Limit    int
}

// List returns entries ordered by id.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Site != "" {
		clauses = append(clauses, "site = ?")
		args = append(args, strings.ToLower(filter.Site))
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, statusArgs(filter.Statuses)...)
	}
	if filter.AfterID > 0 {
		clauses = append(clauses, "id > ?")
		args = append(args, filter.AfterID)
	}
	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return scanEntries(rows)
}

// Update persists descriptive fields of an entry. The write only applies when
// the stored version still matches entry.Version; on success the version is
// advanced. Status changes go through SetStatus.
func (s *Store) Update(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	timestamp := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE entries
         SET code = ?, code_hint = ?, title = ?, rewritten_title = ?, thumbnail_url = ?,
             thumbnail_object = ?, release_date = ?, runtime_minutes = ?, uncensored = ?,
             error_message = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND version = ?`,
		nullableString(entry.Code),
		nullableString(entry.CodeHint),
		nullableString(entry.Title),
		nullableString(entry.RewrittenTitle),
		nullableString(entry.ThumbnailURL),
		nullableString(entry.ThumbnailObject),
		nullableString(entry.ReleaseDate),
		nullableInt(entry.RuntimeMinutes),
		boolToInt(entry.Uncensored),
		nullableString(entry.ErrorMessage),
		timestamp,
		entry.ID,
		entry.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update entry %d: %w", entry.ID, ErrDuplicateCode)
		}
		return fmt.Errorf("update entry: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("update entry %d: %w", entry.ID, ErrConcurrentUpdate)
	}
	entry.Version++
	if updated, err := parseTimeString(timestamp); err == nil {
		entry.UpdatedAt = updated
	}
	return nil
}

// SetStatus moves an entry to a new status after validating the transition.
// Re-applying the current status is a no-op. The returned entry reflects the
// stored state.
func (s *Store) SetStatus(ctx context.Context, id int64, to Status, message string) (*Entry, error) {
	entry, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("set status: entry %d not found", id)
	}
	changed, err := Transition(entry.Status, to)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	if !changed {
		return entry, nil
	}

	timestamp := s.timestamp()
	attemptDelta := 0
	var heartbeat any
	if to == StatusDownloading {
		attemptDelta = 1
		heartbeat = timestamp
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE entries
         SET status = ?, error_message = ?, attempts = attempts + ?, last_heartbeat = ?,
             version = version + 1, updated_at = ?
         WHERE id = ? AND status = ? AND version = ?`,
		to, nullableString(message), attemptDelta, heartbeat, timestamp,
		id, entry.Status, entry.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("set status on entry %d: %w", id, ErrDuplicateCode)
		}
		return nil, fmt.Errorf("set status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("set status on entry %d: %w", id, ErrConcurrentUpdate)
	}
	return s.GetByID(ctx, id)
}

// DiscardDuplicate retires a placeholder entry in favour of keeperID. The row
// is kept in status deleted so its page link stays claimed and re-crawls do not
// resurrect it.
func (s *Store) DiscardDuplicate(ctx context.Context, id, keeperID int64) error {
	entry, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if _, err := Transition(entry.Status, StatusDeleted); err != nil {
		return fmt.Errorf("discard entry %d: %w", id, err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE entries SET status = ?, error_message = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND version = ?`,
		StatusDeleted,
		fmt.Sprintf("duplicate of entry %d", keeperID),
		s.timestamp(),
		id,
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("discard entry: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("discard entry %d: %w", id, ErrConcurrentUpdate)
	}
	return nil
}

// ListMissingThumbnails returns entries with a poster URL that has not been mirrored yet.
func (s *Store) ListMissingThumbnails(ctx context.Context, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
        WHERE thumbnail_url IS NOT NULL AND thumbnail_object IS NULL AND status <> ?
        ORDER BY id`
	args := []any{StatusDeleted}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missing thumbnails: %w", err)
	}
	return scanEntries(rows)
}

// SetThumbnailObject records the mirrored poster location without touching other fields.
func (s *Store) SetThumbnailObject(ctx context.Context, id int64, objectURL string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE entries SET thumbnail_object = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		nullableString(objectURL), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("set thumbnail object: %w", err)
	}
	return nil
}
