package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"vidharvest/internal/logging"
	"vidharvest/internal/stage"
)

// Start launches the configured number of workers. Each worker builds its
// handler before entering the loop; a factory failure stops every worker
// started so far and is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.factory == nil {
		m.mu.Unlock()
		return errors.New("workflow stage factory not configured")
	}
	workers := m.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	for worker := range workers {
		handler, err := m.factory(runCtx, worker)
		if err != nil {
			m.Stop()
			return fmt.Errorf("start worker %d: %w", worker, err)
		}
		m.mu.Lock()
		m.handlers[worker] = handler
		m.mu.Unlock()

		m.wg.Add(1)
		go m.runWorker(runCtx, worker, handler)
	}
	m.logger.Info("workflow started", logging.Int("workers", workers))
	return nil
}

// Stop cancels the workers and waits for in-flight entries to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.handlers = make(map[int]stage.Handler)
	m.mu.Unlock()
}

// RunOnce claims and processes entries on the calling goroutine until none
// are ready or limit entries were handled. A limit of zero means no limit.
// It returns the number of entries processed.
func (m *Manager) RunOnce(ctx context.Context, handler stage.Handler, limit int) (int, error) {
	logger := m.workerLogger(0)
	if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}
	processed := 0
	for limit <= 0 || processed < limit {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		entry, err := m.store.ClaimNext(ctx, m.maxAttempts, m.retryDelay)
		if err != nil {
			m.setLastError(err)
			return processed, err
		}
		if entry == nil {
			break
		}
		processed++
		if err := m.processEntry(ctx, logger, handler, entry); err != nil && isFatal(err) {
			return processed, err
		}
	}
	return processed, nil
}

func (m *Manager) runWorker(ctx context.Context, worker int, handler stage.Handler) {
	defer m.wg.Done()
	logger := m.workerLogger(worker)
	defer closeHandler(handler, logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if worker == 0 {
			if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale entries failed; stuck entries may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check catalog database access"),
				)
			}
		}

		entry, err := m.store.ClaimNext(ctx, m.maxAttempts, m.retryDelay)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if entry == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processEntry(ctx, logger, handler, entry); err != nil && isFatal(err) {
			m.waitOrShutdown(ctx, seconds(m.cfg.Workflow.ErrorRetryInterval))
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next entry",
		logging.Error(err),
		logging.String(logging.FieldEventType, "claim_failed"),
		logging.String(logging.FieldErrorHint, "check catalog database access"),
	)
	m.waitOrShutdown(ctx, seconds(m.cfg.Workflow.ErrorRetryInterval))
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func closeHandler(handler stage.Handler, logger *slog.Logger) {
	closer, ok := handler.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("stage handler close failed", logging.Error(err))
	}
}
