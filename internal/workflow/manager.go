package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/stage"
)

const stageName = "acquire"

// HandlerFactory builds the stage handler a worker uses for its whole
// lifetime. Handlers that implement io.Closer are closed when the worker
// exits.
type HandlerFactory func(ctx context.Context, worker int) (stage.Handler, error)

// Manager coordinates acquisition workers over the catalog.
type Manager struct {
	cfg          *config.Config
	store        *catalog.Store
	factory      HandlerFactory
	collectors   *metrics.Collectors
	logger       *slog.Logger
	pollInterval time.Duration
	retryDelay   time.Duration
	maxAttempts  int

	heartbeat *HeartbeatMonitor

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastEntry *catalog.Entry
	handlers  map[int]stage.Handler
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *catalog.Store, factory HandlerFactory, collectors *metrics.Collectors, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	return &Manager{
		cfg:          cfg,
		store:        store,
		factory:      factory,
		collectors:   collectors,
		logger:       logger,
		pollInterval: seconds(cfg.Workflow.QueuePollInterval),
		retryDelay:   seconds(cfg.Workflow.RetryDelay),
		maxAttempts:  cfg.Workflow.MaxAttempts,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			seconds(cfg.Workflow.HeartbeatInterval),
			seconds(cfg.Workflow.HeartbeatTimeout),
		),
		handlers: make(map[int]stage.Handler),
	}
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}
