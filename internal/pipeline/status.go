package pipeline

import (
	"context"
	"time"

	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/stage"
)

// StatusSummary represents lightweight pipeline diagnostics.
type StatusSummary struct {
	Running      bool
	WindowOpen   bool
	LastError    string
	LastEntry    *ledger.Entry
	LedgerStats  map[ledger.Status]int
	PrintedToday int
	PrintedTotal int
	StageHealth  map[string]stage.Health
}

// Status returns the latest pipeline information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastEntry := m.lastEntry
	stages := make([]pipelineStage, len(m.stages))
	copy(stages, m.stages)
	window := m.window
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read ledger stats", logging.Error(err))
	}
	printedToday, printedTotal := m.printedCounts(ctx)

	health := make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		if stg.handler == nil {
			continue
		}
		health[stg.name] = stg.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:      running,
		WindowOpen:   window.Contains(time.Now()),
		LedgerStats:  stats,
		PrintedToday: printedToday,
		PrintedTotal: printedTotal,
		StageHealth:  health,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastEntry != nil {
		copied := *lastEntry
		summary.LastEntry = &copied
	}
	return summary
}

// printedCounts derives the spool counters from ledger timestamps: jobs
// accepted since local midnight, and jobs accepted ever.
func (m *Manager) printedCounts(ctx context.Context) (today, total int) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var err error
	if today, err = m.store.CountPrintedSince(ctx, midnight); err != nil {
		m.logger.Warn("failed to count prints today", logging.Error(err))
	}
	if total, err = m.store.CountPrintedSince(ctx, time.Time{}); err != nil {
		m.logger.Warn("failed to count total prints", logging.Error(err))
	}
	return today, total
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastEntry(entry *ledger.Entry) {
	m.mu.Lock()
	if entry != nil {
		copied := *entry
		m.lastEntry = &copied
	} else {
		m.lastEntry = nil
	}
	m.mu.Unlock()
}
