package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"autoprint/internal/config"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/notifications"
	"autoprint/internal/pipeline"
	"autoprint/internal/preflight"
	"autoprint/internal/printing"
	"autoprint/internal/services"
	"autoprint/internal/watcher"
)

// Daemon coordinates the watcher, the pipeline, and single-instance
// enforcement.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *ledger.Store
	pipeline *pipeline.Manager
	watch    *watcher.Watcher
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Pipeline     pipeline.StatusSummary
	LedgerDBPath string
	LockFilePath string
	PID          int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger, mgr *pipeline.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, logger, and pipeline manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "autoprintd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		pipeline: mgr,
		watch:    watcher.New(cfg, logger),
		notifier: notifications.NewService(cfg),
		logPath:  filepath.Join(cfg.Paths.LogDir, "autoprint.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the watcher and pipeline.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another autoprint daemon instance is already running")
	}

	// A config that cannot possibly print must not begin watching: files
	// would pile up as pending while every dispatch fails.
	if err := d.runStartupChecks(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	// Entries stuck mid-stage from a previous run go back to their stage
	// start before anything new is processed.
	if reset, err := d.store.ResetStuckProcessing(ctx); err != nil {
		d.logger.Warn("reset stuck processing failed", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("reset interrupted entries", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.pipeline.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.cancel = cancel
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.watch.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("watcher stopped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the watched folder exists and is readable"))
		}
	}()
	go func() {
		defer d.wg.Done()
		d.runIntake(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("autoprint daemon started", logging.String("lock", d.lockPath))
	return nil
}

// runStartupChecks verifies the watched folder and print destination and
// returns a configuration error aggregating every failure.
func (d *Daemon) runStartupChecks(ctx context.Context) error {
	var failures []string
	for _, result := range preflight.RunStartupChecks(ctx, d.cfg) {
		if result.Passed {
			d.logger.Debug("startup check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		d.logger.Error("startup check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration and run autoprint start again"))
		failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	if len(failures) > 0 {
		return services.Wrap(services.ErrConfiguration, "daemon", "startup checks", strings.Join(failures, "; "), nil)
	}
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipeline.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("autoprint daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ListLedger returns ledger entries filtered by optional statuses.
func (d *Daemon) ListLedger(ctx context.Context, statuses []ledger.Status) ([]*ledger.Entry, error) {
	if d.store == nil {
		return nil, errors.New("ledger store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// GetEntry returns a single ledger entry by id.
func (d *Daemon) GetEntry(ctx context.Context, id int64) (*ledger.Entry, error) {
	if d.store == nil {
		return nil, errors.New("ledger store unavailable")
	}
	return d.store.GetByID(ctx, id)
}

// RemoveEntries deletes specific ledger entries by id.
func (d *Daemon) RemoveEntries(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// ClearLedger removes all ledger entries.
func (d *Daemon) ClearLedger(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearArchived removes only archived ledger entries.
func (d *Daemon) ClearArchived(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	return d.store.ClearArchived(ctx)
}

// ClearFailed removes only failed ledger entries.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight entries back to their stage start.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed puts failed entries (optionally a subset) back into the pipeline.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// LedgerHealth returns aggregate ledger diagnostics.
func (d *Daemon) LedgerHealth(ctx context.Context) (ledger.HealthSummary, error) {
	if d.store == nil {
		return ledger.HealthSummary{}, errors.New("ledger store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (ledger.DatabaseHealth, error) {
	if d.store == nil {
		return ledger.DatabaseHealth{}, errors.New("ledger store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// ListPrinters queries the print system for installed destinations.
func (d *Daemon) ListPrinters(ctx context.Context) ([]string, error) {
	client := printing.NewClient(d.cfg.Printer.LPBinary, d.cfg.Printer.LPStatBinary)
	return client.ListPrinters(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.pipeline.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		Pipeline:     summary,
		LedgerDBPath: d.cfg.LedgerPath(),
		LockFilePath: d.lockPath,
		PID:          os.Getpid(),
	}
}
