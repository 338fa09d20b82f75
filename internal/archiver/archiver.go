package archiver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autoprint/internal/config"
	"autoprint/internal/fileutil"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/services"
	"autoprint/internal/stage"
)

// Archiver is the pipeline stage that moves printed files out of the watched
// folder. When archiving is disabled entries are marked archived in place so
// the lifecycle still completes and the file still never prints twice.
type Archiver struct {
	store  *ledger.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewArchiver constructs the archive stage handler.
func NewArchiver(cfg *config.Config, store *ledger.Store, logger *slog.Logger) *Archiver {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "archiver"))
	} else {
		stageLogger = logging.NewNop()
	}
	return &Archiver{store: store, cfg: cfg, logger: stageLogger}
}

func (a *Archiver) Prepare(ctx context.Context, entry *ledger.Entry) error {
	if !entry.HasPrinted() {
		return services.Wrap(services.ErrValidation, "archiving", "validate entry",
			fmt.Sprintf("entry %d has no printed mark", entry.ID), nil)
	}
	return nil
}

// moveAttempts bounds the in-stage retries for one pipeline pass. Sync
// clients hold freshly printed files for a few seconds; a short retry
// budget rides that out without parking the entry.
const moveAttempts = 6

func (a *Archiver) Execute(ctx context.Context, entry *ledger.Entry) error {
	logger := logging.WithContext(ctx, a.logger)
	now := time.Now().UTC()

	if !a.cfg.Archive.Enabled {
		entry.ArchivedAt = &now
		logger.Info("archiving disabled, marking in place",
			logging.String("path", entry.SourcePath))
		return nil
	}

	delay := time.Duration(a.cfg.Pipeline.RetryBackoffSeconds) * time.Second
	var lastErr error
	for attempt := 1; attempt <= moveAttempts; attempt++ {
		if attempt > 1 {
			logger.Debug("retrying archive move",
				logging.Int("attempt", attempt),
				logging.Error(lastErr))
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}
		lastErr = a.tryArchive(logger, entry, now)
		if lastErr == nil {
			return nil
		}
	}

	// The sync client may hold the file long past this budget. The print
	// already happened, so the entry keeps its printed status and the
	// next pipeline pass tries the move again.
	entry.Status = ledger.StatusPrinted
	logger.Warn("archive move kept failing, leaving file in place",
		logging.Int("attempts", moveAttempts),
		logging.Error(lastErr),
		logging.String(logging.FieldImpact, "file stays in the watched folder until a later pass archives it"))
	return nil
}

// tryArchive performs one archive attempt, mutating the entry on success.
func (a *Archiver) tryArchive(logger *slog.Logger, entry *ledger.Entry, now time.Time) error {
	if _, err := os.Stat(entry.SourcePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Someone moved or deleted the file after printing. The print
			// already happened, so record the entry as archived and move on.
			entry.ArchivedAt = &now
			logger.Warn("printed file missing at archive time",
				logging.String("path", entry.SourcePath),
				logging.String(logging.FieldImpact, "file was not moved to the archive folder"))
			return nil
		}
		return services.Wrap(services.ErrTransient, "archiving", "stat source", "", err)
	}

	if err := os.MkdirAll(a.cfg.Paths.ArchiveDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "archiving", "create archive directory", "", err)
	}

	target := a.resolveTarget(entry)
	if err := fileutil.MoveFile(entry.SourcePath, target); err != nil {
		return services.Wrap(services.ErrTransient, "archiving", "move file",
			fmt.Sprintf("move %q to %q", entry.SourcePath, target), err)
	}

	entry.ArchivedPath = target
	entry.ArchivedAt = &now
	logger.Info("file archived",
		logging.String("from", entry.SourcePath),
		logging.String("to", target))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Archiver) HealthCheck(ctx context.Context) stage.Health {
	const name = "archiving"
	if !a.cfg.Archive.Enabled {
		return stage.Healthy(name)
	}
	if err := os.MkdirAll(a.cfg.Paths.ArchiveDir, 0o755); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("archive directory unavailable: %v", err))
	}
	return stage.Healthy(name)
}

// resolveTarget picks a destination path inside the archive folder,
// disambiguating name collisions with the entry's mtime and, if that is
// taken too, a counter.
func (a *Archiver) resolveTarget(entry *ledger.Entry) string {
	base := filepath.Base(entry.SourcePath)
	target := filepath.Join(a.cfg.Paths.ArchiveDir, base)
	if !exists(target) {
		return target
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := entry.ModifiedAt.Format("20060102-150405")
	target = filepath.Join(a.cfg.Paths.ArchiveDir, fmt.Sprintf("%s_%s%s", stem, stamp, ext))
	if !exists(target) {
		return target
	}

	for i := 1; ; i++ {
		candidate := filepath.Join(a.cfg.Paths.ArchiveDir, fmt.Sprintf("%s_%s-%d%s", stem, stamp, i, ext))
		if !exists(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
