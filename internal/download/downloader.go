package download

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/media/ffprobe"
	"vidharvest/internal/objectstore"
	"vidharvest/internal/services"
)

const (
	stageName        = "acquire"
	defaultChunkSize = 1 << 20
)

// SourceRecorder persists acquired copies.
type SourceRecorder interface {
	AppendSource(ctx context.Context, src catalog.SourceCopy) (*catalog.SourceCopy, bool, error)
}

// Prober reads container metadata.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
	InspectReader(ctx context.Context, data []byte) (ffprobe.Result, error)
}

// Result describes one successful acquisition.
type Result struct {
	Source         *catalog.SourceCopy
	Created        bool
	Tier           catalog.ResolutionTier
	RuntimeMinutes *int
	ByteSize       int64
	ContentHash    string
	ObjectURL      string
	// ProbeErr is set when resolution or runtime could not be determined.
	ProbeErr error
}

// Downloader fetches, probes, stores and records media.
type Downloader struct {
	client    *http.Client
	recorder  SourceRecorder
	gateway   objectstore.Gateway
	prober    Prober
	storage   config.Storage
	origin    string
	chunkSize int
	tempDir   string
	logger    *slog.Logger
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithProber replaces the ffprobe-backed prober.
func WithProber(prober Prober) Option {
	return func(d *Downloader) {
		if prober != nil {
			d.prober = prober
		}
	}
}

// WithTempDir sets where fallback probe files are materialized.
func WithTempDir(dir string) Option {
	return func(d *Downloader) {
		d.tempDir = dir
	}
}

// New builds a downloader from configuration.
func New(cfg *config.Config, recorder SourceRecorder, gateway objectstore.Gateway, logger *slog.Logger, opts ...Option) *Downloader {
	timeout := time.Duration(cfg.Download.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	d := &Downloader{
		client:    &http.Client{Timeout: timeout},
		recorder:  recorder,
		gateway:   gateway,
		prober:    ffprobe.NewProber(cfg.FFprobeBinary()),
		storage:   cfg.Storage,
		origin:    strings.TrimSpace(cfg.Download.Origin),
		chunkSize: cfg.Download.ChunkSize,
		logger:    logging.NewComponentLogger(logger, "downloader"),
	}
	if d.chunkSize <= 0 {
		d.chunkSize = defaultChunkSize
	}
	if d.origin == "" {
		d.origin = "browser"
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Acquire downloads mediaURL for entry and records the resulting copy.
func (d *Downloader) Acquire(ctx context.Context, entry *catalog.Entry, mediaURL string) (Result, error) {
	if entry == nil {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "acquire", "Entry is required", nil)
	}
	mediaURL = strings.TrimSpace(mediaURL)
	if mediaURL == "" {
		return Result{}, services.Wrap(services.ErrExtraction, stageName, "acquire", "No media URL was extracted", nil)
	}
	code := entry.DisplayCode()
	if code == "" {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "acquire", "Entry has no code to name the object", nil)
	}
	logger := logging.WithContext(ctx, d.logger).With(
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldCode, code),
	)

	payload, hash, err := d.fetch(ctx, mediaURL)
	if err != nil {
		return Result{}, err
	}
	result := Result{ByteSize: int64(len(payload)), ContentHash: hash}
	logger.Info("media transferred",
		logging.Int64("bytes", result.ByteSize),
		logging.String("content_hash", hash),
	)

	tier, runtime, probeErr := d.probe(ctx, payload)
	result.Tier = tier
	if runtime >= 0 {
		minutes := runtime
		result.RuntimeMinutes = &minutes
	}
	if probeErr != nil {
		result.ProbeErr = services.Wrap(services.ErrProbe, stageName, "probe", "Container metadata undetectable", probeErr)
		logging.WarnWithContext(logger, "media probe incomplete", "probe_incomplete",
			logging.Error(probeErr),
			logging.String("resolution_tier", string(tier)),
			logging.String(logging.FieldErrorHint, "verify the ffprobe binary and the container format"),
		)
	}

	key := objectstore.MediaKey(d.storage.Folder, code, hash)
	if err := d.gateway.Put(ctx, d.storage.Bucket, key, payload, objectstore.ContentTypeMP4); err != nil {
		marker := services.ErrTransfer
		if errors.Is(err, objectstore.ErrUnreachable) {
			marker = services.ErrConnectivity
		}
		return Result{}, services.Wrap(marker, stageName, "upload", "Failed to store media object", err)
	}
	result.ObjectURL = objectstore.ObjectURL(d.storage.Endpoint, d.storage.Bucket, key)

	source, created, err := d.recorder.AppendSource(ctx, catalog.SourceCopy{
		EntryID:     entry.ID,
		Origin:      d.origin,
		Tier:        tier,
		ObjectPath:  result.ObjectURL,
		FileName:    objectstore.MediaFileName(code, hash),
		ByteSize:    result.ByteSize,
		ContentHash: hash,
	})
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, stageName, "record source", "Failed to record source copy", err)
	}
	result.Source = source
	result.Created = created
	if !created {
		logger.Info("source copy already recorded", logging.Int64("source_id", source.ID))
	}
	return result, nil
}

func (d *Downloader) fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", services.Wrap(services.ErrExtraction, stageName, "download", "Media URL is malformed", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransfer, stageName, "download", "Request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", services.Wrap(services.ErrTransfer, stageName, "download", fmt.Sprintf("Unexpected HTTP status %d", resp.StatusCode), nil)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	hasher := md5.New()
	if _, err := io.CopyBuffer(io.MultiWriter(&buf, hasher), resp.Body, make([]byte, d.chunkSize)); err != nil {
		return nil, "", services.Wrap(services.ErrTransfer, stageName, "download", "Body read interrupted", err)
	}
	if buf.Len() == 0 {
		return nil, "", services.Wrap(services.ErrTransfer, stageName, "download", "Empty response body", nil)
	}
	return buf.Bytes(), hex.EncodeToString(hasher.Sum(nil)), nil
}

// probe returns the tier and runtime in minutes (-1 when undetected).
func (d *Downloader) probe(ctx context.Context, payload []byte) (catalog.ResolutionTier, int, error) {
	height, durationMS := 0, int64(0)
	var errs []error

	primary, err := d.prober.InspectReader(ctx, payload)
	if err != nil {
		errs = append(errs, err)
	} else {
		height, durationMS = primary.Height(), primary.DurationMS()
	}

	if height <= 0 || durationMS <= 0 {
		fallback, err := d.probeTempFile(ctx, payload)
		if err != nil {
			errs = append(errs, err)
		} else {
			if height <= 0 {
				height = fallback.Height()
			}
			if durationMS <= 0 {
				durationMS = fallback.DurationMS()
			}
		}
	}

	tier := catalog.TierForHeight(height)
	minutes, ok := catalog.RuntimeMinutes(durationMS)
	if !ok {
		minutes = -1
	}
	if tier == catalog.TierUnknown || !ok {
		if len(errs) == 0 {
			errs = append(errs, fmt.Errorf("height=%d duration_ms=%d", height, durationMS))
		}
		return tier, minutes, errors.Join(errs...)
	}
	return tier, minutes, nil
}

func (d *Downloader) probeTempFile(ctx context.Context, payload []byte) (ffprobe.Result, error) {
	file, err := os.CreateTemp(d.tempDir, "vidharvest-probe-*.mp4")
	if err != nil {
		return ffprobe.Result{}, fmt.Errorf("create probe file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return ffprobe.Result{}, fmt.Errorf("write probe file: %w", err)
	}
	if err := file.Close(); err != nil {
		return ffprobe.Result{}, fmt.Errorf("close probe file: %w", err)
	}
	return d.prober.Inspect(ctx, path)
}
