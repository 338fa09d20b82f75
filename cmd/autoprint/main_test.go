package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoprint/internal/archiver"
	"autoprint/internal/config"
	"autoprint/internal/daemon"
	"autoprint/internal/ipc"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/pipeline"
	"autoprint/internal/printing"
	"autoprint/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *ledger.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	mgr, err := pipeline.NewManager(cfg, store, logger)
	if err != nil {
		t.Fatalf("pipeline.NewManager: %v", err)
	}
	mgr.ConfigureStages(pipeline.StageSet{
		Printer:  printing.NewPrinter(cfg, store, logger),
		Archiver: archiver.NewArchiver(cfg, store, logger),
	})

	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	time.Sleep(50 * time.Millisecond)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
watched_dir = %q
archive_dir = %q
data_dir = %q
log_dir = %q

[printer]
name = %q
`,
		cfg.Paths.WatchedDir,
		cfg.Paths.ArchiveDir,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Printer.Name,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func TestCLILedgerCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	out, _, err := runCLI(t, []string{"ledger", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	requireContains(t, out, "Ledger is empty")

	now := time.Now().UTC()
	testsupport.NewEntry(t, env.store, "/watch/invoice.pdf", 100, now)
	failed := testsupport.NewEntry(t, env.store, "/watch/report.pdf", 200, now)
	failed.SetFailed("printer unavailable")
	if err := env.store.Update(ctx, failed); err != nil {
		t.Fatalf("update failed entry: %v", err)
	}

	out, _, err = runCLI(t, []string{"ledger", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	requireContains(t, out, "invoice.pdf")
	requireContains(t, out, "report.pdf")

	out, _, err = runCLI(t, []string{"ledger", "list", "--status", "failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger list --status failed: %v", err)
	}
	if strings.Contains(out, "invoice.pdf") {
		t.Fatalf("status filter leaked pending entry:\n%s", out)
	}
	requireContains(t, out, "report.pdf")

	out, _, err = runCLI(t, []string{"ledger", "show", fmt.Sprint(failed.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger show: %v", err)
	}
	requireContains(t, out, "report.pdf")
	requireContains(t, out, "printer unavailable")

	out, _, err = runCLI(t, []string{"ledger", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger retry: %v", err)
	}
	requireContains(t, out, "Requeued 1 entries")

	updated, err := env.store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID after retry: %v", err)
	}
	if updated.Status != ledger.StatusPending {
		t.Fatalf("expected retried entry pending, got %s", updated.Status)
	}

	updated.SetFailed("still broken")
	if err := env.store.Update(ctx, updated); err != nil {
		t.Fatalf("refail entry: %v", err)
	}

	out, _, err = runCLI(t, []string{"ledger", "clear-failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger clear-failed: %v", err)
	}
	requireContains(t, out, "Removed 1 failed entries")

	out, _, err = runCLI(t, []string{"ledger", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger clear: %v", err)
	}
	requireContains(t, out, "Removed 1 entries")

	out, _, err = runCLI(t, []string{"ledger", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ledger health: %v", err)
	}
	requireContains(t, out, "Total")
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Printed today")
	requireContains(t, out, "Printed total")
}

func TestCLIPrintersCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"printers"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("printers: %v", err)
	}
	requireContains(t, out, "Test_Printer")
	requireContains(t, out, "*")
}

func TestCLITestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}
