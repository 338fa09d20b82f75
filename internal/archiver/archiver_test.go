package archiver_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autoprint/internal/archiver"
	"autoprint/internal/ledger"
	"autoprint/internal/services"
	"autoprint/internal/testsupport"
)

func printedEntry(t *testing.T, store *ledger.Store, path string) *ledger.Entry {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	entry := testsupport.NewEntry(t, store, path, info.Size(), info.ModTime().UTC())
	now := time.Now().UTC()
	entry.Status = ledger.StatusPrinted
	entry.PrintedAt = &now
	if err := store.Update(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	return entry
}

func TestExecuteMovesFileToArchive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	path := filepath.Join(cfg.Paths.WatchedDir, "report.pdf")
	testsupport.WritePDF(t, path, 64)
	entry := printedEntry(t, store, path)

	a := archiver.NewArchiver(cfg, store, nil)
	ctx := context.Background()
	if err := a.Prepare(ctx, entry); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := a.Execute(ctx, entry); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := filepath.Join(cfg.Paths.ArchiveDir, "report.pdf")
	if entry.ArchivedPath != want {
		t.Fatalf("archived path = %q, want %q", entry.ArchivedPath, want)
	}
	if entry.ArchivedAt == nil {
		t.Fatal("ArchivedAt should be set")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("source should be gone after archive")
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
}

func TestExecuteDisambiguatesCollisions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	// A same-named file already sits in the archive.
	testsupport.WritePDF(t, filepath.Join(cfg.Paths.ArchiveDir, "report.pdf"), 1)

	path := filepath.Join(cfg.Paths.WatchedDir, "report.pdf")
	testsupport.WritePDF(t, path, 64)
	entry := printedEntry(t, store, path)

	a := archiver.NewArchiver(cfg, store, nil)
	if err := a.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if entry.ArchivedPath == filepath.Join(cfg.Paths.ArchiveDir, "report.pdf") {
		t.Fatal("collision should produce a disambiguated name")
	}
	stamp := entry.ModifiedAt.Format("20060102-150405")
	want := filepath.Join(cfg.Paths.ArchiveDir, "report_"+stamp+".pdf")
	if entry.ArchivedPath != want {
		t.Fatalf("archived path = %q, want %q", entry.ArchivedPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("disambiguated file missing: %v", err)
	}
}

func TestExecuteDisabledMarksWithoutMoving(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithArchiveDisabled())
	store := testsupport.MustOpenStore(t, cfg)

	path := filepath.Join(cfg.Paths.WatchedDir, "stay.pdf")
	testsupport.WritePDF(t, path, 64)
	entry := printedEntry(t, store, path)

	a := archiver.NewArchiver(cfg, store, nil)
	if err := a.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if entry.ArchivedAt == nil {
		t.Fatal("disabled archive must still mark the entry archived")
	}
	if entry.ArchivedPath != "" {
		t.Fatalf("archived path = %q, want empty when disabled", entry.ArchivedPath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should stay in place when archiving is disabled: %v", err)
	}
}

func TestExecuteMissingSourceStillCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	path := filepath.Join(cfg.Paths.WatchedDir, "vanished.pdf")
	testsupport.WritePDF(t, path, 64)
	entry := printedEntry(t, store, path)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	a := archiver.NewArchiver(cfg, store, nil)
	if err := a.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute should tolerate a vanished printed file: %v", err)
	}
	if entry.ArchivedAt == nil {
		t.Fatal("entry should still complete its lifecycle")
	}
}

func TestExecuteRetriesThenLeavesEntryPrinted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RetryBackoffSeconds = 0
	store := testsupport.MustOpenStore(t, cfg)

	// A regular file where the archive folder should be makes every
	// attempt to create it fail.
	blocker := filepath.Join(testsupport.BaseDir(cfg), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Paths.ArchiveDir = filepath.Join(blocker, "archive")

	path := filepath.Join(cfg.Paths.WatchedDir, "held.pdf")
	testsupport.WritePDF(t, path, 64)
	entry := printedEntry(t, store, path)
	entry.Status = ledger.StatusArchiving

	a := archiver.NewArchiver(cfg, store, nil)
	if err := a.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute should absorb a move that keeps failing: %v", err)
	}

	if entry.Status != ledger.StatusPrinted {
		t.Fatalf("entry status = %s, want printed", entry.Status)
	}
	if entry.ArchivedAt != nil {
		t.Fatal("entry must not carry an archived mark")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should stay in the watched folder: %v", err)
	}

	// Once the obstruction clears, the next pass archives normally.
	if err := os.Remove(blocker); err != nil {
		t.Fatal(err)
	}
	if err := a.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute after clearing obstruction: %v", err)
	}
	if entry.ArchivedAt == nil {
		t.Fatal("entry should archive once the folder is creatable")
	}
}

func TestPrepareRejectsUnprintedEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	path := filepath.Join(cfg.Paths.WatchedDir, "early.pdf")
	testsupport.WritePDF(t, path, 64)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	entry := testsupport.NewEntry(t, store, path, info.Size(), info.ModTime().UTC())

	a := archiver.NewArchiver(cfg, store, nil)
	err = a.Prepare(context.Background(), entry)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
