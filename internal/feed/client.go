// Package feed reads the downstream distribution feed: the list of videos the
// distribution platform has already re-published, each carrying the content
// hash of the copy it imported.
//
// The platform authenticates with a password query parameter and pages with
// skip/limit. Requests retry a fixed number of times with a fixed delay;
// FetchAll walks the whole feed in rounds of concurrent page requests.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/services"
)

const stageName = "feed"

// Row is one feed record. Valid is false when the hash is not a 32-character
// hex digest.
type Row struct {
	ID    int64
	Hash  string
	Valid bool
}

// StatusError reports a non-200 feed response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed responded %d", e.StatusCode)
}

// Client fetches feed pages.
type Client struct {
	endpoint    string
	password    string
	hashField   string
	pageSize    int
	concurrency int
	retries     int
	retryDelay  time.Duration
	http        *http.Client
	logger      *slog.Logger
}

// New builds a client for cfg. A nil httpClient gets one bounded by
// cfg.RequestTimeout.
func New(cfg config.Feed, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "feed.endpoint is not configured", nil)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "feed.endpoint is not a valid URL", err)
	}
	if httpClient == nil {
		timeout := time.Duration(cfg.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	hashField := strings.TrimSpace(cfg.HashField)
	if hashField == "" {
		hashField = "custom2"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		endpoint:    endpoint,
		password:    cfg.Password,
		hashField:   hashField,
		pageSize:    pageSize,
		concurrency: concurrency,
		retries:     max(cfg.Retries, 0),
		retryDelay:  time.Duration(max(cfg.RetryBackoffMS, 0)) * time.Millisecond,
		http:        httpClient,
		logger:      logging.NewComponentLogger(logger, stageName),
	}, nil
}

// PageSize returns the configured page length.
func (c *Client) PageSize() int {
	return c.pageSize
}

// FetchPage returns up to limit rows starting at skip. Transport failures and
// 5xx or 429 responses are retried; other statuses fail immediately.
func (c *Client) FetchPage(ctx context.Context, skip, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = c.pageSize
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.retries)),
		ctx,
	)
	var rows []Row
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		fetched, err := c.fetch(ctx, skip, limit)
		if err != nil {
			if attempt <= c.retries && retryable(err) {
				c.logger.Debug("feed page retry",
					logging.Int("skip", skip),
					logging.Int("attempt", attempt),
					logging.Error(err),
				)
			}
			return err
		}
		rows = fetched
		return nil
	}, policy)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrTransient, stageName, "fetch page",
			fmt.Sprintf("Feed page at skip %d failed after %d attempt(s)", skip, attempt), err)
	}
	return rows, nil
}

// FetchAll reads the whole feed. Each round issues Concurrency page requests
// for consecutive windows; the walk ends after a round in which every request
// came back empty. A failed page does not cancel its siblings but fails the
// walk once the round completes.
func (c *Client) FetchAll(ctx context.Context) ([]Row, error) {
	var all []Row
	skip := 0
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages := make([][]Row, c.concurrency)
		var group errgroup.Group
		group.SetLimit(c.concurrency)
		for idx := range pages {
			offset := skip + idx*c.pageSize
			group.Go(func() error {
				rows, err := c.FetchPage(ctx, offset, c.pageSize)
				if err != nil {
					return err
				}
				pages[idx] = rows
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
		skip += c.concurrency * c.pageSize

		empty := true
		for _, rows := range pages {
			if len(rows) > 0 {
				empty = false
			}
			all = append(all, rows...)
		}
		c.logger.Debug("feed round complete",
			logging.Int("round", round),
			logging.Int("rows", len(all)),
		)
		if empty {
			return all, nil
		}
	}
}

func (c *Client) fetch(ctx context.Context, skip, limit int) ([]Row, error) {
	target, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	query := target.Query()
	query.Set("password", c.password)
	query.Set("skip", strconv.Itoa(skip))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("feed_format", "json")
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if !retryable(statusErr) {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}
	var raw []map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode feed page: %w", err))
	}
	rows := make([]Row, 0, len(raw))
	for _, record := range raw {
		rows = append(rows, c.parseRow(record))
	}
	return rows, nil
}

func (c *Client) parseRow(record map[string]json.RawMessage) Row {
	var row Row
	if value, ok := record["id"]; ok {
		row.ID = parseID(value)
	}
	if value, ok := record[c.hashField]; ok {
		var hash string
		if err := json.Unmarshal(value, &hash); err == nil {
			row.Hash = strings.ToLower(strings.TrimSpace(hash))
		}
	}
	row.Valid = catalog.ValidContentHash(row.Hash)
	return row
}

func parseID(value json.RawMessage) int64 {
	var number json.Number
	if err := json.Unmarshal(value, &number); err == nil {
		if id, err := number.Int64(); err == nil {
			return id
		}
	}
	var text string
	if err := json.Unmarshal(value, &text); err == nil {
		if id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return id
		}
	}
	return 0
}

func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var permanent *backoff.PermanentError
	return !errors.As(err, &permanent)
}
