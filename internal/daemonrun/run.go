// Package daemonrun composes the daemon process runtime: logging, ledger,
// pipeline stages, IPC server, preflight, and signal handling.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"autoprint/internal/archiver"
	"autoprint/internal/config"
	"autoprint/internal/daemon"
	"autoprint/internal/ipc"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/notifications"
	"autoprint/internal/pipeline"
	"autoprint/internal/preflight"
	"autoprint/internal/printing"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the autoprint daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "autoprint.log")
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	for _, result := range preflight.RunAll(signalCtx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported condition; the daemon will keep retrying"))
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "autoprint.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger store", logging.Error(err))
		return err
	}
	defer store.Close()
	if store.Recovered {
		logger.Warn("ledger database was corrupt and has been recreated",
			logging.String("backup", store.RecoveredFrom),
			logging.String(logging.FieldErrorHint, "previously printed files may print again; inspect the backup if that matters"))
	}

	notifier := notifications.NewService(cfg)
	mgr, err := pipeline.NewManagerWithNotifier(cfg, store, logger, notifier)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	client := printing.NewClient(cfg.Printer.LPBinary, cfg.Printer.LPStatBinary)
	mgr.ConfigureStages(pipeline.StageSet{
		Printer:  printing.NewPrinterWithDependencies(cfg, store, logger, client, notifier),
		Archiver: archiver.NewArchiver(cfg, store, logger),
	})

	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	syncAutostart(cfg, logger)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	// A refused start keeps the process alive: the IPC surface stays up so
	// `autoprint start` can retry once the configuration is fixed.
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start refused",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the configuration and run autoprint start"))
	}

	<-signalCtx.Done()
	logger.Info("autoprint daemon shutting down")
	return nil
}

// syncAutostart reconciles the XDG autostart entry with the configured
// setting. Failures are logged but never fatal.
func syncAutostart(cfg *config.Config, logger *slog.Logger) {
	var err error
	if cfg.Autostart.Enabled {
		err = daemon.EnableAutostart("")
	} else {
		err = daemon.DisableAutostart()
	}
	if err != nil {
		logger.Warn("autostart registration failed", logging.Error(err))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
