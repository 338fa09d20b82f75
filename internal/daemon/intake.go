package daemon

import (
	"context"
	"errors"

	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/watcher"
)

// runIntake consumes watcher verdicts and records new work in the ledger.
// The ledger's identity constraint is the dedup point: a file the daemon has
// already seen, in this run or any earlier one, is recognized here and never
// enqueued twice.
func (d *Daemon) runIntake(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watch.Events():
			if !ok {
				return
			}
			switch event.Type {
			case watcher.EventStable:
				d.intakeStable(ctx, event)
			case watcher.EventTimeout:
				if err := d.notifier.NotifyError(ctx,
					errors.New("file never finished syncing"),
					event.Path); err != nil {
					d.logger.Warn("timeout notification failed", logging.Error(err))
				}
			}
		}
	}
}

func (d *Daemon) intakeStable(ctx context.Context, event watcher.Event) {
	existing, err := d.store.FindByIdentity(ctx, event.Path, event.Size, event.ModifiedAt)
	if err != nil {
		d.logger.Error("ledger lookup failed",
			logging.String("path", event.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ledger database access"))
		return
	}

	if existing != nil {
		if existing.Status == ledger.StatusFailed && d.cfg.Pipeline.RepollFailed {
			if _, err := d.store.RetryFailed(ctx, existing.ID); err != nil {
				d.logger.Error("requeue failed entry", logging.Error(err))
			}
			return
		}
		// Known file: already pending, printed, or archived. Nothing to do.
		d.logger.Debug("file already recorded",
			logging.String("path", event.Path),
			logging.Int64(logging.FieldEntryID, existing.ID),
			logging.String("status", string(existing.Status)))
		return
	}

	entry, err := d.store.NewEntry(ctx, event.Path, event.Size, event.ModifiedAt)
	if err != nil {
		d.logger.Error("record new file",
			logging.String("path", event.Path),
			logging.Error(err))
		return
	}

	d.logger.Info("file queued for printing",
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String("path", entry.SourcePath),
		logging.Int64("size", entry.FileSize))

	if err := d.notifier.NotifyFileDetected(ctx, entry.FileName()); err != nil {
		d.logger.Warn("detect notification failed", logging.Error(err))
	}
}
