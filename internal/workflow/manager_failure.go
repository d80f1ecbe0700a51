package workflow

import (
	"context"
	"errors"
	"log/slog"

	"vidharvest/internal/catalog"
	"vidharvest/internal/logging"
	"vidharvest/internal/services"
	"vidharvest/internal/stage"
)

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, entry *catalog.Entry, stageErr error) {
	message := stage.FailureMessage(stageName, stageErr)
	retryable := services.Retryable(stageErr)

	attrs := []logging.Attr{
		logging.String("resolved_status", string(catalog.StatusFailed)),
		logging.String("error_message", message),
		logging.Int("attempt", entry.Attempts),
		logging.Bool("retryable", retryable && entry.Attempts < m.maxAttempts),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
	}
	if services.IsFatal(stageErr) {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "check object store and catalog connectivity"))
	}
	logger.Error("stage failed", logging.Args(attrs...)...)
	m.setLastError(stageErr)

	updated, err := m.store.SetStatus(ctx, entry.ID, services.FailureStatus(stageErr), message)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not record stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
		return
	}
	if !retryable {
		if err := m.store.ExhaustAttempts(ctx, entry.ID, m.maxAttempts); err != nil {
			logger.Warn("failed to retire entry", logging.Error(err))
		}
	}
	m.setLastEntry(updated)
}
