package printing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"autoprint/internal/config"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/notifications"
	"autoprint/internal/services"
	"autoprint/internal/stage"
)

// Printer is the pipeline stage that submits documents to the spooler.
// Submission is the point of no return: once the spooler accepts a job the
// entry carries a printed mark that nothing later may revert.
type Printer struct {
	store    *ledger.Store
	cfg      *config.Config
	logger   *slog.Logger
	client   *Client
	notifier notifications.Service

	mu         sync.Mutex
	lastSubmit time.Time
}

// NewPrinter constructs the print stage handler using default dependencies.
func NewPrinter(cfg *config.Config, store *ledger.Store, logger *slog.Logger) *Printer {
	return NewPrinterWithDependencies(cfg, store, logger, NewClient(cfg.Printer.LPBinary, cfg.Printer.LPStatBinary), notifications.NewService(cfg))
}

// NewPrinterWithDependencies allows injecting collaborators (used in tests).
func NewPrinterWithDependencies(cfg *config.Config, store *ledger.Store, logger *slog.Logger, client *Client, notifier notifications.Service) *Printer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "printing"))
	} else {
		stageLogger = logging.NewNop()
	}
	return &Printer{store: store, cfg: cfg, logger: stageLogger, client: client, notifier: notifier}
}

func (p *Printer) Prepare(ctx context.Context, entry *ledger.Entry) error {
	logger := logging.WithContext(ctx, p.logger)

	info, err := os.Stat(entry.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrValidation, "printing", "validate source",
				fmt.Sprintf("file %q disappeared before printing", entry.SourcePath), err)
		}
		return services.Wrap(services.ErrTransient, "printing", "stat source", "", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "printing", "validate source",
			fmt.Sprintf("file %q is empty", entry.SourcePath), nil)
	}
	if info.Size() != entry.FileSize || !info.ModTime().UTC().Equal(entry.ModifiedAt) {
		// The file changed after it was recorded. The watcher will judge
		// the new content as a fresh identity; this entry must not print
		// the bytes it never saw.
		return services.Wrap(services.ErrValidation, "printing", "validate source",
			fmt.Sprintf("file %q changed since it was recorded", entry.SourcePath), nil)
	}

	logger.Info("preparing print submission",
		logging.String("path", entry.SourcePath),
		logging.Int64("size", entry.FileSize))
	return nil
}

// Execute submits the entry's file, retrying with doubling backoff up to the
// configured attempt budget. It returns nil once the spooler accepts the job.
func (p *Printer) Execute(ctx context.Context, entry *ledger.Entry) error {
	logger := logging.WithContext(ctx, p.logger)

	if entry.HasPrinted() {
		// Belt and suspenders: a printed entry reaching this stage again
		// must not produce a second copy.
		logger.Warn("entry already printed, skipping submission",
			logging.String("path", entry.SourcePath))
		return nil
	}

	maxAttempts := p.cfg.Pipeline.MaxPrintAttempts
	backoff := time.Duration(p.cfg.Pipeline.RetryBackoffSeconds) * time.Second

	var lastErr error
	for entry.Attempts < maxAttempts {
		if entry.Attempts > 0 {
			wait := backoff << (entry.Attempts - 1)
			logger.Info("waiting before retry",
				logging.Int("attempt", entry.Attempts+1),
				logging.Duration("backoff", wait))
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}

		if err := p.waitJobGap(ctx); err != nil {
			return err
		}

		entry.Attempts++
		if err := p.store.Update(ctx, entry); err != nil {
			logger.Warn("persist attempt count", logging.Error(err))
		}

		jobID, err := p.client.Submit(ctx, p.cfg.Printer.Name, entry.SourcePath)
		if err == nil {
			now := time.Now().UTC()
			entry.PrintedAt = &now
			entry.Printer = p.cfg.Printer.Name
			entry.JobID = jobID
			p.markSubmitted()
			logger.Info("spooler accepted job",
				logging.String("path", entry.SourcePath),
				logging.String("job_id", jobID),
				logging.Int("attempts", entry.Attempts))
			if p.notifier != nil {
				if err := p.notifier.NotifyPrintCompleted(ctx, entry.FileName(), p.cfg.Printer.Name, jobID); err != nil {
					logger.Warn("print notification failed", logging.Error(err))
				}
			}
			return nil
		}

		lastErr = err
		logger.Warn("submission attempt failed",
			logging.Int("attempt", entry.Attempts),
			logging.Int("max_attempts", maxAttempts),
			logging.Error(err))

		if !services.IsRetryable(err) {
			return err
		}
	}

	return services.Wrap(services.ErrExternalTool, "printing", "submit",
		fmt.Sprintf("gave up after %d attempts", entry.Attempts), lastErr)
}

func (p *Printer) HealthCheck(ctx context.Context) stage.Health {
	const name = "printing"
	available, err := p.client.PrinterAvailable(ctx, p.cfg.Printer.Name)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	if !available {
		label := p.cfg.Printer.Name
		if label == "" {
			label = "(default)"
		}
		return stage.Unhealthy(name, fmt.Sprintf("printer %s not found", label))
	}
	return stage.Healthy(name)
}

// waitJobGap enforces the configured pause between consecutive submissions
// so a burst of files does not flood the spooler.
func (p *Printer) waitJobGap(ctx context.Context) error {
	gap := time.Duration(p.cfg.Printer.JobGapSeconds) * time.Second
	if gap <= 0 {
		return nil
	}
	p.mu.Lock()
	elapsed := time.Since(p.lastSubmit)
	p.mu.Unlock()
	if elapsed >= gap {
		return nil
	}
	return sleepCtx(ctx, gap-elapsed)
}

func (p *Printer) markSubmitted() {
	p.mu.Lock()
	p.lastSubmit = time.Now()
	p.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
