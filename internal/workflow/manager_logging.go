package workflow

import (
	"context"
	"log/slog"

	"vidharvest/internal/catalog"
	"vidharvest/internal/logging"
	"vidharvest/internal/services"
)

type loggerAware interface {
	SetLogger(*slog.Logger)
}

func (m *Manager) workerLogger(worker int) *slog.Logger {
	return m.logger.With(logging.Int("worker", worker))
}

func withStageContext(ctx context.Context, entry *catalog.Entry, requestID string) context.Context {
	if entry != nil {
		ctx = services.WithEntryID(ctx, entry.ID)
	}
	ctx = services.WithStage(ctx, stageName)
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
