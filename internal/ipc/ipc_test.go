package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoprint/internal/archiver"
	"autoprint/internal/daemon"
	"autoprint/internal/ipc"
	"autoprint/internal/ledger"
	"autoprint/internal/logging"
	"autoprint/internal/pipeline"
	"autoprint/internal/printing"
	"autoprint/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
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
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	now := time.Now().UTC()
	entryA := testsupport.NewEntry(t, store, "/watch/a.pdf", 10, now)
	entryB := testsupport.NewEntry(t, store, "/watch/b.pdf", 20, now)
	entryB.SetFailed("printer on fire")
	if err := store.Update(ctx, entryB); err != nil {
		t.Fatalf("Update entryB: %v", err)
	}

	list, err := client.LedgerList(nil)
	if err != nil {
		t.Fatalf("LedgerList failed: %v", err)
	}
	if len(list.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list.Entries))
	}

	failedOnly, err := client.LedgerList([]string{string(ledger.StatusFailed)})
	if err != nil {
		t.Fatalf("LedgerList(failed) failed: %v", err)
	}
	if len(failedOnly.Entries) != 1 || failedOnly.Entries[0].ID != entryB.ID {
		t.Fatalf("expected only the failed entry, got %+v", failedOnly.Entries)
	}

	describe, err := client.LedgerDescribe(entryA.ID)
	if err != nil {
		t.Fatalf("LedgerDescribe failed: %v", err)
	}
	if describe.Entry.SourcePath != "/watch/a.pdf" {
		t.Fatalf("unexpected entry described: %+v", describe.Entry)
	}
	if _, err := client.LedgerDescribe(9999); err == nil {
		t.Fatal("expected error for unknown entry id")
	}

	retry, err := client.LedgerRetry(nil)
	if err != nil {
		t.Fatalf("LedgerRetry failed: %v", err)
	}
	if retry.Updated != 1 {
		t.Fatalf("expected 1 retried entry, got %d", retry.Updated)
	}

	health, err := client.LedgerHealth()
	if err != nil {
		t.Fatalf("LedgerHealth failed: %v", err)
	}
	if health.Total != 2 || health.Pending != 2 {
		t.Fatalf("unexpected health counts: %+v", health)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !dbHealth.IntegrityCheck || !dbHealth.TableExists {
		t.Fatalf("expected healthy database, got %+v", dbHealth)
	}

	printers, err := client.Printers()
	if err != nil {
		t.Fatalf("Printers failed: %v", err)
	}
	if len(printers.Printers) != 1 || printers.Printers[0] != "Test_Printer" {
		t.Fatalf("unexpected printers: %v", printers.Printers)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("notification should not send without a topic")
	}

	removed, err := client.LedgerRemove([]int64{entryB.ID})
	if err != nil {
		t.Fatalf("LedgerRemove failed: %v", err)
	}
	if removed.Removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed.Removed)
	}

	cleared, err := client.LedgerClear()
	if err != nil {
		t.Fatalf("LedgerClear failed: %v", err)
	}
	if cleared.Removed != 1 {
		t.Fatalf("expected 1 cleared, got %d", cleared.Removed)
	}

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.PID <= 0 {
		t.Fatalf("expected positive PID, got %d", status.PID)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
}

func TestDialMissingSocket(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "absent.sock")); err == nil {
		t.Fatal("expected dial error for missing socket")
	}
}
