package pipeline

import (
	"context"
	"errors"
	"time"

	"autoprint/internal/ledger"
	"autoprint/internal/logging"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	if len(m.statusOrder) == 0 {
		m.mu.Unlock()
		return errors.New("pipeline stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
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
}

// Running reports whether background processing is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	logger := m.logger

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleEntries(ctx, logger); err != nil {
			logger.Warn("reclaim stale processing failed; stuck entries may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check ledger database access"),
			)
		}

		m.noteDeferrals(ctx, time.Now())

		entry, err := m.nextEntry(ctx)
		if err != nil {
			m.handleNextEntryError(ctx, err)
			continue
		}
		if entry == nil {
			m.waitForEntryOrShutdown(ctx)
			continue
		}

		if err := m.processEntry(ctx, entry); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// nextEntry polls the ledger for the oldest workable entry. Outside the
// configured print window only archive work is eligible; pending entries
// wait for the window to open.
func (m *Manager) nextEntry(ctx context.Context) (*ledger.Entry, error) {
	statuses := m.pollStatuses(time.Now())
	if len(statuses) == 0 {
		return nil, nil
	}
	return m.store.NextForStatuses(ctx, statuses...)
}

func (m *Manager) pollStatuses(now time.Time) []ledger.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.window.Contains(now) {
		statuses := make([]ledger.Status, len(m.statusOrder))
		copy(statuses, m.statusOrder)
		if m.cfg.Pipeline.RepollFailed {
			statuses = append(statuses, ledger.StatusFailed)
		}
		return statuses
	}

	var statuses []ledger.Status
	for _, status := range m.statusOrder {
		if status == ledger.StatusPending {
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// noteDeferrals logs each pending entry held back by a closed print window,
// once per entry, and forgets the marks when the window reopens so the next
// closure logs again.
func (m *Manager) noteDeferrals(ctx context.Context, now time.Time) {
	if !m.window.Enabled() {
		return
	}
	if m.window.Contains(now) {
		m.mu.Lock()
		if len(m.deferralLogged) > 0 {
			m.deferralLogged = make(map[int64]struct{})
		}
		m.mu.Unlock()
		return
	}

	pending, err := m.store.List(ctx, ledger.StatusPending)
	if err != nil {
		return
	}
	opening := m.window.NextOpening(now)
	for _, entry := range pending {
		m.mu.Lock()
		_, seen := m.deferralLogged[entry.ID]
		if !seen {
			m.deferralLogged[entry.ID] = struct{}{}
		}
		m.mu.Unlock()
		if seen {
			continue
		}
		m.logger.Info("print deferred until the window opens",
			logging.Int64(logging.FieldEntryID, entry.ID),
			logging.String("path", entry.SourcePath),
			logging.String("resumes_at", opening.Format(time.RFC3339)))
	}
}

func (m *Manager) handleNextEntryError(ctx context.Context, err error) {
	m.setLastError(err)
	m.logger.Error("failed to fetch next ledger entry",
		logging.Error(err),
		logging.String(logging.FieldEventType, "ledger_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check ledger database access"),
	)
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(m.cfg.Pipeline.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForEntryOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}
