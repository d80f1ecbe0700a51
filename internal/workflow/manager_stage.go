package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidharvest/internal/catalog"
	"vidharvest/internal/logging"
	"vidharvest/internal/services"
	"vidharvest/internal/stage"
)

// processEntry runs the stage for a claimed entry. The stage runs on a
// context detached from ctx so shutdown lets the current entry finish.
func (m *Manager) processEntry(ctx context.Context, workerLogger *slog.Logger, handler stage.Handler, entry *catalog.Entry) error {
	requestID := uuid.NewString()
	stageCtx := withStageContext(context.WithoutCancel(ctx), entry, requestID)
	stageLogger := logging.WithContext(stageCtx, workerLogger).With(
		logging.String(logging.FieldSite, entry.Site),
		logging.String(logging.FieldCode, entry.DisplayCode()),
	)
	if aware, ok := handler.(loggerAware); ok {
		aware.SetLogger(stageLogger)
	}
	m.setLastEntry(entry)
	return m.executeStage(stageCtx, stageLogger, handler, entry)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, handler stage.Handler, entry *catalog.Entry) error {
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("attempt", entry.Attempts),
		logging.String("page_link", entry.PageLink),
	)

	if handler == nil {
		err := errors.New("stage handler unavailable")
		m.handleStageFailure(ctx, stageLogger, entry, err)
		return err
	}

	if err := handler.Prepare(ctx, entry); err != nil {
		m.handleStageFailure(ctx, stageLogger, entry, err)
		return err
	}

	if err := m.executeWithHeartbeat(ctx, handler, entry); err != nil {
		m.handleStageFailure(ctx, stageLogger, entry, err)
		return err
	}

	updated, err := m.store.SetStatus(ctx, entry.ID, catalog.StatusDownloaded, "")
	if errors.Is(err, catalog.ErrInvalidTransition) || errors.Is(err, catalog.ErrConcurrentUpdate) {
		logging.WarnWithContext(stageLogger, "stage result superseded", "stage_result_superseded",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the entry was reclaimed while the stage ran; check heartbeat_timeout"),
			logging.String(logging.FieldImpact, "entry not marked downloaded by this worker"),
		)
		m.setLastError(err)
		return services.Wrap(services.ErrTransient, stageName, "persist", "Entry changed while the stage ran", err)
	}
	if err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result",
			logging.Error(wrapped),
			logging.String(logging.FieldEventType, "stage_persist_failed"),
		)
		m.setLastError(wrapped)
		return services.Wrap(services.ErrConnectivity, stageName, "persist", "Catalog rejected the stage result", err)
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(updated.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastEntry(updated)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, entry *catalog.Entry) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, entry.ID)

	execErr := handler.Execute(ctx, entry)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func isFatal(err error) bool {
	return services.IsFatal(err)
}
