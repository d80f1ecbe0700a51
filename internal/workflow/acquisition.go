package workflow

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"vidharvest/internal/catalog"
	"vidharvest/internal/download"
	"vidharvest/internal/extractor"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/services"
	"vidharvest/internal/stage"
)

// Extractor resolves the media URL behind a page.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (extractor.Outcome, error)
}

// Acquirer downloads, stores and records a media URL for an entry.
type Acquirer interface {
	Acquire(ctx context.Context, entry *catalog.Entry, mediaURL string) (download.Result, error)
}

// EntryUpdater persists descriptive fields learned during acquisition.
type EntryUpdater interface {
	GetByID(ctx context.Context, id int64) (*catalog.Entry, error)
	Update(ctx context.Context, entry *catalog.Entry) error
}

// HealthProbe reports whether a dependency of the stage is usable.
type HealthProbe func(ctx context.Context) stage.Health

// AcquisitionStage extracts the media URL of a page, downloads it and
// records the resulting source copy.
type AcquisitionStage struct {
	extractor  Extractor
	acquirer   Acquirer
	entries    EntryUpdater
	collectors *metrics.Collectors
	probes     []HealthProbe
	closer     func() error
	logger     *slog.Logger
}

// AcquisitionOption customizes an AcquisitionStage.
type AcquisitionOption func(*AcquisitionStage)

// WithHealthProbes adds dependency checks reported by HealthCheck.
func WithHealthProbes(probes ...HealthProbe) AcquisitionOption {
	return func(s *AcquisitionStage) {
		s.probes = append(s.probes, probes...)
	}
}

// WithCloser registers a release function, typically the browser session.
func WithCloser(closer func() error) AcquisitionOption {
	return func(s *AcquisitionStage) {
		s.closer = closer
	}
}

// NewAcquisitionStage wires the acquisition stage.
func NewAcquisitionStage(ext Extractor, acq Acquirer, entries EntryUpdater, collectors *metrics.Collectors, logger *slog.Logger, opts ...AcquisitionOption) *AcquisitionStage {
	s := &AcquisitionStage{
		extractor:  ext,
		acquirer:   acq,
		entries:    entries,
		collectors: collectors,
	}
	s.SetLogger(logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger replaces the stage logger for the next entry.
func (s *AcquisitionStage) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s.logger = logging.NewComponentLogger(logger, "acquisition")
}

// Prepare rejects entries that cannot be acquired at all.
func (s *AcquisitionStage) Prepare(ctx context.Context, entry *catalog.Entry) error {
	if entry == nil {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "Entry is required", nil)
	}
	link := strings.TrimSpace(entry.PageLink)
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "Entry page link is not an absolute http(s) URL", err)
	}
	if entry.DisplayCode() == "" {
		return services.Wrap(services.ErrValidation, stageName, "prepare", "Entry has no code", nil)
	}
	s.logger.Debug("acquisition prepared", logging.Int("attempt", entry.Attempts))
	return nil
}

// Execute runs extraction and download for entry.
func (s *AcquisitionStage) Execute(ctx context.Context, entry *catalog.Entry) error {
	outcome, err := s.extractor.Extract(ctx, entry.PageLink)
	s.collectors.ExtractionEnded(string(outcome.State))
	if err != nil {
		s.collectors.Acquired("extraction_failed", 0)
		return services.Wrap(services.ErrExtraction, stageName, "extract", "Media URL could not be extracted (last state "+string(outcome.State)+")", err)
	}
	s.logger.Info("media url extracted",
		logging.String("state", string(outcome.State)),
		logging.Int("steps", len(outcome.Trace)),
	)

	result, err := s.acquirer.Acquire(ctx, entry, outcome.URL)
	if err != nil {
		s.collectors.Acquired(acquireOutcome(err), 0)
		return err
	}
	if result.Created {
		s.collectors.Acquired("stored", result.ByteSize)
	} else {
		s.collectors.Acquired("duplicate", 0)
	}

	if result.RuntimeMinutes != nil {
		if err := s.persistRuntime(ctx, entry.ID, *result.RuntimeMinutes); err != nil {
			logging.WarnWithContext(s.logger, "runtime not recorded", "runtime_persist_failed",
				logging.Error(err),
				logging.Int("runtime_minutes", *result.RuntimeMinutes),
			)
		}
	}

	attrs := []logging.Attr{
		logging.String("content_hash", result.ContentHash),
		logging.String("resolution_tier", string(result.Tier)),
		logging.Int64("bytes", result.ByteSize),
		logging.String("object", result.ObjectURL),
		logging.Bool("new_copy", result.Created),
	}
	if result.ProbeErr != nil {
		attrs = append(attrs, logging.String("probe_error", result.ProbeErr.Error()))
	}
	s.logger.Info("source acquired", logging.Args(attrs...)...)
	return nil
}

// HealthCheck reports readiness of the stage and its dependencies.
func (s *AcquisitionStage) HealthCheck(ctx context.Context) stage.Health {
	switch {
	case s.extractor == nil:
		return stage.Unhealthy(stageName, "extractor unavailable")
	case s.acquirer == nil:
		return stage.Unhealthy(stageName, "downloader unavailable")
	}
	parts := make([]stage.Health, 0, len(s.probes))
	for _, probe := range s.probes {
		parts = append(parts, probe(ctx))
	}
	return stage.Combine(stageName, parts...)
}

// Close releases the browser session, if any.
func (s *AcquisitionStage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *AcquisitionStage) persistRuntime(ctx context.Context, id int64, minutes int) error {
	if s.entries == nil {
		return nil
	}
	current, err := s.entries.GetByID(ctx, id)
	if err != nil || current == nil {
		return err
	}
	if current.RuntimeMinutes != nil && *current.RuntimeMinutes == minutes {
		return nil
	}
	current.RuntimeMinutes = &minutes
	return s.entries.Update(ctx, current)
}

func acquireOutcome(err error) string {
	switch {
	case errors.Is(err, services.ErrConnectivity):
		return "connectivity"
	case errors.Is(err, services.ErrExtraction):
		return "extraction_failed"
	case errors.Is(err, services.ErrTransfer):
		return "transfer_failed"
	default:
		return "failed"
	}
}
