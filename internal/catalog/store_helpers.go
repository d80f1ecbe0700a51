package catalog

import (
	"database/sql"
	"errors"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = "id, site, code, code_hint, page_link, title, rewritten_title, thumbnail_url, thumbnail_object, release_date, runtime_minutes, uncensored, status, error_message, attempts, last_heartbeat, version, created_at, updated_at"

const sourceColumns = "id, entry_id, origin, resolution_tier, object_path, file_name, byte_size, content_hash, acquisition_status, is_current, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (*Entry, error) {
	var (
		id               int64
		site             string
		code             sql.NullString
		codeHint         sql.NullString
		pageLink         string
		title            sql.NullString
		rewrittenTitle   sql.NullString
		thumbnailURL     sql.NullString
		thumbnailObject  sql.NullString
		releaseDate      sql.NullString
		runtimeMinutes   sql.NullInt64
		uncensored       int64
		statusStr        string
		errorMessage     sql.NullString
		attempts         int64
		lastHeartbeatRaw sql.NullString
		version          int64
		createdRaw       string
		updatedRaw       string
	)

	if err := scanner.Scan(
		&id,
		&site,
		&code,
		&codeHint,
		&pageLink,
		&title,
		&rewrittenTitle,
		&thumbnailURL,
		&thumbnailObject,
		&releaseDate,
		&runtimeMinutes,
		&uncensored,
		&statusStr,
		&errorMessage,
		&attempts,
		&lastHeartbeatRaw,
		&version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:              id,
		Site:            site,
		Code:            code.String,
		CodeHint:        codeHint.String,
		PageLink:        pageLink,
		Title:           title.String,
		RewrittenTitle:  rewrittenTitle.String,
		ThumbnailURL:    thumbnailURL.String,
		ThumbnailObject: thumbnailObject.String,
		ReleaseDate:     releaseDate.String,
		Uncensored:      uncensored != 0,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		Attempts:        int(attempts),
		Version:         version,
	}
	if runtimeMinutes.Valid {
		minutes := int(runtimeMinutes.Int64)
		entry.RuntimeMinutes = &minutes
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			entry.LastHeartbeat = &heartbeat
		}
	}
	return entry, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanSource(scanner rowScanner) (*SourceCopy, error) {
	var (
		src        SourceCopy
		tier       string
		status     string
		current    int64
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&src.ID,
		&src.EntryID,
		&src.Origin,
		&tier,
		&src.ObjectPath,
		&src.FileName,
		&src.ByteSize,
		&src.ContentHash,
		&status,
		&current,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	src.Tier = ParseResolutionTier(tier)
	src.Status = SourceStatus(status)
	src.Current = current != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		src.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		src.UpdatedAt = updated
	}
	return &src, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(timeLayout)
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
