package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/services"
	"autoprint/internal/stage"
)

func (m *Manager) processEntry(ctx context.Context, entry *ledger.Entry) error {
	if entry.Status == ledger.StatusFailed {
		// Only reachable when repoll_failed is on: put the entry back into
		// the pipeline at the right place and pick it up next poll.
		if _, err := m.store.RetryFailed(ctx, entry.ID); err != nil {
			m.setLastError(err)
			m.logger.Error("failed to requeue failed entry", logging.Error(err))
		}
		return nil
	}

	m.mu.RLock()
	stg, ok := m.stageByStart[entry.Status]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("no stage configured for status", logging.String("status", string(entry.Status)))
		m.waitForEntryOrShutdown(ctx)
		return nil
	}

	requestID := uuid.NewString()
	stageCtx := services.WithEntryID(ctx, entry.ID)
	stageCtx = services.WithStage(stageCtx, stg.name)
	stageCtx = services.WithRequestID(stageCtx, requestID)
	stageLogger := logging.WithContext(stageCtx, m.logger)

	if err := m.transitionToProcessing(stageCtx, stg, entry); err != nil {
		stageLogger.Error("failed to transition entry to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(stageCtx, stageLogger, stg, entry)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, entry *ledger.Entry) error {
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("source_file", entry.SourcePath),
	)

	handler := stg.handler
	if handler == nil {
		stageLogger.Warn("missing stage handler", logging.String("stage", stg.name))
		entry.SetFailed(fmt.Sprintf("stage %s missing handler", stg.name))
		if err := m.store.Update(ctx, entry); err != nil {
			stageLogger.Error("failed to persist missing handler failure", logging.Error(err))
		}
		m.setLastError(errors.New("stage handler unavailable"))
		return errors.New("stage handler unavailable")
	}

	if err := handler.Prepare(ctx, entry); err != nil {
		m.handleStageFailure(ctx, stg, entry, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, entry); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, handler, entry)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg, entry, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if entry.Status == stg.processingStatus || entry.Status == "" {
		entry.Status = stg.doneStatus
	}
	entry.LastHeartbeat = nil
	if err := m.store.Update(ctx, entry); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(entry.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastEntry(entry)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, entry *ledger.Entry) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, entry.ID)

	execErr := handler.Execute(ctx, entry)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) transitionToProcessing(ctx context.Context, stg pipelineStage, entry *ledger.Entry) error {
	now := time.Now().UTC()
	entry.Status = stg.processingStatus
	entry.ErrorMessage = ""
	entry.LastHeartbeat = &now
	if err := m.store.Update(ctx, entry); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastEntry(entry)
	return nil
}
