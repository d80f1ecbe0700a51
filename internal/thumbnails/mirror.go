// Package thumbnails copies catalog posters from the source sites into object
// storage so exports never hot-link the sites themselves.
package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/objectstore"
	"vidharvest/internal/services"
	"vidharvest/internal/textutil"
)

const (
	stageName          = "thumbnails"
	maxPosterBytes     = 16 << 20
	defaultConcurrency = 5
	defaultAttempts    = 3
)

// Summary reports one mirroring pass.
type Summary struct {
	Candidates int
	Mirrored   int
	Failed     int
}

// TransferError is a non-2xx poster response.
type TransferError struct {
	URL        string
	StatusCode int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("poster %s responded %d", e.URL, e.StatusCode)
}

// Option customizes a Mirror.
type Option func(*Mirror)

// WithRetryInterval sets the first backoff delay between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Mirror) {
		if d > 0 {
			m.retryInterval = d
		}
	}
}

// Mirror downloads posters and stores them as JPEG objects.
type Mirror struct {
	store         *catalog.Store
	gateway       objectstore.Gateway
	client        *http.Client
	endpoint      string
	bucket        string
	folder        string
	concurrency   int
	maxAttempts   int
	retryInterval time.Duration
	metrics       *metrics.Collectors
	logger        *slog.Logger
}

// NewMirror wires a mirror. A nil client gets one bounded by
// thumbnails.timeout_seconds.
func NewMirror(cfg *config.Config, store *catalog.Store, gateway objectstore.Gateway, client *http.Client, collectors *metrics.Collectors, logger *slog.Logger, opts ...Option) *Mirror {
	if logger == nil {
		logger = logging.NewNop()
	}
	if client == nil {
		timeout := time.Duration(cfg.Thumbnails.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	m := &Mirror{
		store:         store,
		gateway:       gateway,
		client:        client,
		endpoint:      cfg.Storage.Endpoint,
		bucket:        cfg.Storage.Bucket,
		folder:        cfg.Storage.ThumbnailsFolder,
		concurrency:   cfg.Thumbnails.Concurrency,
		maxAttempts:   cfg.Thumbnails.MaxAttempts,
		retryInterval: 500 * time.Millisecond,
		metrics:       collectors,
		logger:        logging.NewComponentLogger(logger, stageName),
	}
	if m.concurrency <= 0 {
		m.concurrency = defaultConcurrency
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultAttempts
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run mirrors up to limit posters (all when limit <= 0). A failed poster never
// cancels the others; only an unreachable object store fails the pass.
func (m *Mirror) Run(ctx context.Context, limit int) (Summary, error) {
	var summary Summary
	entries, err := m.store.ListMissingThumbnails(ctx, limit)
	if err != nil {
		return summary, services.Wrap(services.ErrConnectivity, stageName, "list", "Failed to list entries without posters", err)
	}
	summary.Candidates = len(entries)
	if len(entries) == 0 {
		m.logger.Info("no posters to mirror")
		return summary, nil
	}
	m.logger.Info("mirroring posters", logging.Int("count", len(entries)), logging.Int("concurrency", m.concurrency))

	var (
		mu    sync.Mutex
		fatal error
		group errgroup.Group
	)
	group.SetLimit(m.concurrency)
	for _, entry := range entries {
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := m.mirror(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				summary.Mirrored++
				m.metrics.ThumbnailTransferred("mirrored")
				return nil
			}
			summary.Failed++
			m.metrics.ThumbnailTransferred("failed")
			if services.IsFatal(err) && fatal == nil {
				fatal = err
			}
			logging.WarnWithContext(m.logger, "poster mirroring failed", "thumbnail_failed",
				logging.Int64(logging.FieldEntryID, entry.ID),
				logging.String("thumbnail_url", entry.ThumbnailURL),
				logging.Error(err),
			)
			return nil
		})
	}
	_ = group.Wait()
	m.logger.Info("poster mirroring complete",
		logging.Int("mirrored", summary.Mirrored),
		logging.Int("failed", summary.Failed),
	)
	if fatal != nil {
		return summary, fatal
	}
	return summary, ctx.Err()
}

func (m *Mirror) mirror(ctx context.Context, entry *catalog.Entry) error {
	body, err := m.fetch(ctx, entry.ThumbnailURL)
	if err != nil {
		return services.Wrap(services.ErrTransfer, stageName, "fetch", "Poster download failed", err)
	}
	key := objectstore.ThumbnailKey(m.folder, posterName(entry))
	if err := m.gateway.Put(ctx, m.bucket, key, body, objectstore.ContentTypeJPEG); err != nil {
		if errors.Is(err, objectstore.ErrUnreachable) {
			return services.Wrap(services.ErrConnectivity, stageName, "store", "Object store unreachable", err)
		}
		return services.Wrap(services.ErrTransfer, stageName, "store", "Poster upload failed", err)
	}
	if err := m.store.SetThumbnailObject(ctx, entry.ID, objectstore.ObjectURL(m.endpoint, m.bucket, key)); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "record", "Failed to record poster location", err)
	}
	m.logger.Debug("poster mirrored", logging.Int64(logging.FieldEntryID, entry.ID), logging.String("object_key", key))
	return nil
}

// fetch retries timeouts, 429 and 5xx responses with exponential backoff.
func (m *Mirror) fetch(ctx context.Context, url string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.retryInterval
	policy.MaxElapsedTime = 0
	var body []byte
	err := backoff.Retry(func() error {
		data, err := m.get(ctx, url)
		if err != nil {
			if transient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = data
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(m.maxAttempts-1)), ctx))
	return body, err
}

func (m *Mirror) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransferError{URL: url, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("poster %s: empty body", url)
	}
	return data, nil
}

func transient(err error) bool {
	var transferErr *TransferError
	if errors.As(err, &transferErr) {
		return transferErr.StatusCode == http.StatusTooManyRequests || transferErr.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// posterName is the entry code reduced to a safe key segment.
func posterName(entry *catalog.Entry) string {
	code := textutil.SanitizeKeySegment(entry.DisplayCode())
	if code == "" {
		return fmt.Sprintf("entry-%d", entry.ID)
	}
	return code
}
