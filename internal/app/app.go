// Package app assembles the long-lived collaborators a vidharvest process
// needs: configuration, logger, catalog store, object storage gateway, site
// registry and metrics. Commands open one App at startup and derive the
// pipeline components from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/download"
	"vidharvest/internal/extractor"
	"vidharvest/internal/extractor/rodsession"
	"vidharvest/internal/feed"
	"vidharvest/internal/httpx"
	"vidharvest/internal/ingest"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/objectstore"
	"vidharvest/internal/reconcile"
	"vidharvest/internal/services"
	"vidharvest/internal/sites"
	"vidharvest/internal/sites/javct"
	"vidharvest/internal/stage"
	"vidharvest/internal/thumbnails"
	"vidharvest/internal/workflow"
)

const siteTimeout = 30 * time.Second

// SessionOpener starts a browser session for one acquisition worker.
type SessionOpener func(ctx context.Context, cfg config.Browser) (extractor.Session, func() error, error)

// App is the process context.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *catalog.Store
	Gateway objectstore.Gateway
	Metrics *metrics.Collectors
	Sites   sites.Registry
	Ingest  *ingest.Service

	siteClient *http.Client
	feedClient *http.Client
	openSess   SessionOpener
	dlOpts     []download.Option
	closers    []func() error
}

// Option customizes Open.
type Option func(*App)

// WithLogger replaces the config-derived logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.Logger = logger }
}

// WithGateway replaces the S3 gateway.
func WithGateway(gateway objectstore.Gateway) Option {
	return func(a *App) { a.Gateway = gateway }
}

// WithSites replaces the built-in adapter registry.
func WithSites(registry sites.Registry) Option {
	return func(a *App) { a.Sites = registry }
}

// WithSiteClient replaces the HTTP client used for site and poster requests.
func WithSiteClient(client *http.Client) Option {
	return func(a *App) { a.siteClient = client }
}

// WithFeedClient replaces the HTTP client used for the distribution feed.
func WithFeedClient(client *http.Client) Option {
	return func(a *App) { a.feedClient = client }
}

// WithSessionOpener replaces the go-rod session used by acquisition workers.
func WithSessionOpener(open SessionOpener) Option {
	return func(a *App) { a.openSess = open }
}

// WithDownloadOptions forwards options to every downloader the app builds.
func WithDownloadOptions(opts ...download.Option) Option {
	return func(a *App) { a.dlOpts = append(a.dlOpts, opts...) }
}

// Open builds an App from cfg. Close must be called when done.
func Open(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "app", "open", "config is required", nil)
	}
	a := &App{Config: cfg, openSess: openRodSession}
	for _, opt := range opts {
		opt(a)
	}

	if a.Logger == nil {
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		a.Logger = logger
	}
	a.Metrics = metrics.New()

	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if a.Gateway == nil {
		gateway, err := objectstore.NewS3(cfg.Storage)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Gateway = gateway
	}

	if a.siteClient == nil {
		client, err := httpx.NewClient(httpx.Options{ProxyURL: cfg.Sites.ProxyURL, Timeout: siteTimeout})
		if err != nil {
			_ = a.Close()
			return nil, services.Wrap(services.ErrConfiguration, "app", "site client", "invalid proxy", err)
		}
		a.siteClient = client
	}

	if len(a.Sites.Names()) == 0 {
		registry, err := builtinSites(a.siteClient, cfg.Sites.Enabled)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Sites = registry
	}

	a.Ingest = ingest.NewService(store, cfg.Sites, a.Metrics, a.Logger)
	return a, nil
}

func builtinSites(client *http.Client, enabled []string) (sites.Registry, error) {
	registry, err := sites.NewRegistry(javct.New(javct.DefaultBaseURL, client))
	if err != nil {
		return sites.Registry{}, err
	}
	return registry.Restrict(enabled)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Adapter looks up an enabled site adapter.
func (a *App) Adapter(name string) (sites.Adapter, error) {
	adapter, ok := a.Sites.Get(name)
	if !ok {
		return nil, services.Wrap(
			services.ErrValidation, "app", "site",
			fmt.Sprintf("unknown or disabled site %q (available: %s)", name, strings.Join(a.Sites.Names(), ", ")),
			nil,
		)
	}
	return adapter, nil
}

// FeedClient builds the distribution feed client.
func (a *App) FeedClient() (*feed.Client, error) {
	return feed.New(a.Config.Feed, a.feedClient, a.Logger)
}

// Reconciler builds the reconciliation engine backed by the feed.
func (a *App) Reconciler() (*reconcile.Engine, error) {
	client, err := a.FeedClient()
	if err != nil {
		return nil, err
	}
	return reconcile.NewEngine(a.Store, a.Gateway, client, a.Config.Reconcile, a.Metrics, a.Logger), nil
}

// Mirror builds the poster mirror. Posters are fetched through the site client.
func (a *App) Mirror(opts ...thumbnails.Option) *thumbnails.Mirror {
	return thumbnails.NewMirror(a.Config, a.Store, a.Gateway, a.siteClient, a.Metrics, a.Logger, opts...)
}

// Downloader builds a media downloader.
func (a *App) Downloader() *download.Downloader {
	return download.New(a.Config, a.Store, a.Gateway, a.Logger, a.dlOpts...)
}

// HandlerFactory returns the per-worker acquisition stage builder. Each worker
// owns one browser session which closes with the handler.
func (a *App) HandlerFactory() workflow.HandlerFactory {
	return func(ctx context.Context, worker int) (stage.Handler, error) {
		session, closeSession, err := a.openSess(ctx, a.Config.Browser)
		if err != nil {
			return nil, fmt.Errorf("worker %d browser session: %w", worker, err)
		}
		ext := extractor.New(session, extractor.SettingsFromConfig(a.Config.Browser), a.Logger)
		return workflow.NewAcquisitionStage(
			ext,
			a.Downloader(),
			a.Store,
			a.Metrics,
			a.Logger,
			workflow.WithCloser(closeSession),
			workflow.WithHealthProbes(a.storageProbe),
		), nil
	}
}

// Workflow builds the acquisition manager.
func (a *App) Workflow() *workflow.Manager {
	return workflow.NewManager(a.Config, a.Store, a.HandlerFactory(), a.Metrics, a.Logger)
}

func (a *App) storageProbe(ctx context.Context) stage.Health {
	if err := a.Gateway.Ping(ctx, a.Config.Storage.Bucket); err != nil {
		return stage.Unhealthy("object storage", err.Error())
	}
	return stage.Healthy("object storage")
}

func openRodSession(ctx context.Context, cfg config.Browser) (extractor.Session, func() error, error) {
	session, err := rodsession.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return session, session.Close, nil
}
