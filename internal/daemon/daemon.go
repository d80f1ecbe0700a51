package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/reconcile"
	"vidharvest/internal/services"
	"vidharvest/internal/workflow"
)

// Reconciler runs one incremental garbage-collection pass.
type Reconciler interface {
	RunIncremental(ctx context.Context) (reconcile.Summary, error)
}

// Daemon coordinates background processing and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *catalog.Store
	workflow   *workflow.Manager
	reconciler Reconciler
	collectors *metrics.Collectors

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu            sync.RWMutex
	metricsAddr   string
	lastReconcile *reconcile.Summary
	reconcileErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Workflow      workflow.StatusSummary
	CatalogPath   string
	LockFilePath  string
	MetricsAddr   string
	LastReconcile *reconcile.Summary
	ReconcileErr  string
}

// New constructs a daemon. A nil reconciler disables periodic reconciliation.
func New(cfg *config.Config, store *catalog.Store, wf *workflow.Manager, reconciler Reconciler, collectors *metrics.Collectors, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		workflow:   wf,
		reconciler: reconciler,
		collectors: collectors,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, then launches the workflow, the periodic
// reconciler and the metrics listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidharvest daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.startMetrics(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	if d.reconciler != nil && d.cfg.Reconcile.IntervalMinutes > 0 {
		d.wg.Add(1)
		go d.reconcileLoop(runCtx, time.Duration(d.cfg.Reconcile.IntervalMinutes)*time.Minute)
	}

	d.running.Store(true)
	d.logger.Info("vidharvest daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.cfg.Workflow.Workers),
		logging.Int("reconcile_interval_minutes", d.cfg.Reconcile.IntervalMinutes),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("vidharvest daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.RLock()
	status := Status{
		Running:      d.running.Load(),
		CatalogPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		MetricsAddr:  d.metricsAddr,
	}
	if d.lastReconcile != nil {
		summary := *d.lastReconcile
		status.LastReconcile = &summary
	}
	if d.reconcileErr != nil {
		status.ReconcileErr = d.reconcileErr.Error()
	}
	d.mu.RUnlock()
	status.Workflow = d.workflow.Status(ctx)
	return status
}

// Health reports whether the catalog answers; it backs the /healthz route.
func (d *Daemon) Health(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	return d.store.Ping(ctx)
}

func (d *Daemon) startMetrics(ctx context.Context) error {
	if d.cfg.Metrics.Bind == "" {
		return nil
	}
	server, err := metrics.Listen(d.cfg.Metrics.Bind, metrics.Router(d.collectors, d.Health), d.logger)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.metricsAddr = server.Addr()
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := server.Serve(ctx); err != nil {
			logging.ErrorWithContext(d.logger, "metrics listener failed", "metrics_listener_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics and health endpoints unavailable"),
			)
		}
	}()
	return nil
}

func (d *Daemon) reconcileLoop(ctx context.Context, interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.runReconcile(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Daemon) runReconcile(ctx context.Context) {
	summary, err := d.reconciler.RunIncremental(ctx)
	d.mu.Lock()
	d.lastReconcile = &summary
	d.reconcileErr = err
	d.mu.Unlock()
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	attrs := []logging.Attr{
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the next interval retries from the saved cursor"),
	}
	if services.IsFatal(err) {
		attrs = append(attrs, logging.Alert("reconcile_connectivity"))
	}
	logging.ErrorWithContext(d.logger, "reconciliation run failed", "reconcile_failed", attrs...)
}
