package workflow

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"vidharvest/internal/catalog"
	"vidharvest/internal/logging"
	"vidharvest/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastEntry   *catalog.Entry
	Stats       map[catalog.Status]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information. Stage health is keyed by
// worker number.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastEntry := m.lastEntry
	handlers := make(map[int]stage.Handler, len(m.handlers))
	maps.Copy(handlers, m.handlers)
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read catalog stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(handlers))
	for _, worker := range slices.Sorted(maps.Keys(handlers)) {
		if handler := handlers[worker]; handler != nil {
			health["worker-"+strconv.Itoa(worker)] = handler.HealthCheck(ctx)
		}
	}

	summary := StatusSummary{Running: running, Stats: stats, StageHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastEntry != nil {
		copy := *lastEntry
		summary.LastEntry = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastEntry(entry *catalog.Entry) {
	m.mu.Lock()
	if entry != nil {
		copy := *entry
		m.lastEntry = &copy
	} else {
		m.lastEntry = nil
	}
	m.mu.Unlock()
}
