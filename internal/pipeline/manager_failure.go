package pipeline

import (
	"context"
	"errors"
	"strings"

	"autoprint/internal/ledger"
	"autoprint/internal/logging"
)

// handleStageFailure marks the entry failed and sends exactly one alert.
// Retries happen inside the stage; by the time an error reaches this point
// the attempt budget is spent, so repeating the alert per retry would spam.
func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, entry *ledger.Entry, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)

	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = stg.name + " failed"
	}
	entry.SetFailed(message)

	logger.Error("stage failed",
		logging.String("error_message", message),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
	)

	if err := m.store.Update(ctx, entry); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastEntry(entry)
	m.notifyStageFailure(ctx, stg, entry, stageErr)
}

func (m *Manager) notifyStageFailure(ctx context.Context, stg pipelineStage, entry *ledger.Entry, stageErr error) {
	if m.notifier == nil {
		return
	}
	var err error
	if stg.startStatus == ledger.StatusPending {
		err = m.notifier.NotifyPrintFailed(ctx, entry.FileName(), entry.Attempts, stageErr)
	} else {
		err = m.notifier.NotifyError(ctx, stageErr, "archiving "+entry.FileName())
	}
	if err != nil {
		m.logger.Warn("failure notification failed", logging.Error(err))
	}
}
