package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autoprint/internal/testsupport"
	"autoprint/internal/watcher"
)

func waitForEvent(t *testing.T, events <-chan watcher.Event, timeout time.Duration) watcher.Event {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("event channel closed early")
		}
		return event
	case <-time.After(timeout):
		t.Fatal("timed out waiting for watcher event")
	}
	return watcher.Event{}
}

func TestStableFileIsReported(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := watcher.New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	path := filepath.Join(cfg.Paths.WatchedDir, "invoice.pdf")
	testsupport.WritePDF(t, path, 512)

	event := waitForEvent(t, w.Events(), 5*time.Second)
	if event.Type != watcher.EventStable {
		t.Fatalf("event type = %s, want stable", event.Type)
	}
	if event.Path != path {
		t.Fatalf("event path = %q, want %q", event.Path, path)
	}
	if event.Size == 0 {
		t.Fatal("event size should be nonzero")
	}

	cancel()
	<-done
}

func TestRunRejectsMissingWatchedDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.WatchedDir = filepath.Join(testsupport.BaseDir(cfg), "typo")
	w := watcher.New(cfg, nil)

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run must refuse a watched folder that does not exist")
	}
}

func TestRunRejectsFileAsWatchedDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	file := filepath.Join(testsupport.BaseDir(cfg), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Paths.WatchedDir = file
	w := watcher.New(cfg, nil)

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run must refuse a watched folder that is a regular file")
	}
}

func TestRescanPicksUpPreexistingFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	// File written before the watcher starts, as after a daemon restart.
	path := filepath.Join(cfg.Paths.WatchedDir, "missed.pdf")
	testsupport.WritePDF(t, path, 64)

	w := watcher.New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	event := waitForEvent(t, w.Events(), 5*time.Second)
	if event.Type != watcher.EventStable || event.Path != path {
		t.Fatalf("event = %+v, want stable %q", event, path)
	}

	cancel()
	<-done
}

func TestZeroByteFileNeverStable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.StableTimeoutSeconds = 1

	path := filepath.Join(cfg.Paths.WatchedDir, "placeholder.pdf")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	w := watcher.New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	event := waitForEvent(t, w.Events(), 5*time.Second)
	if event.Type != watcher.EventTimeout {
		t.Fatalf("zero-byte file produced %s, want timeout", event.Type)
	}

	cancel()
	<-done
}

func TestGrowingFileWaitsUntilSettled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.StableSamples = 3

	w := watcher.New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	path := filepath.Join(cfg.Paths.WatchedDir, "growing.pdf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("%PDF-1.4\n"); err != nil {
		t.Fatal(err)
	}

	// Keep appending for a while to simulate an in-progress sync.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		if _, err := f.WriteString("chunk\n"); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	event := waitForEvent(t, w.Events(), 5*time.Second)
	if event.Type != watcher.EventStable {
		t.Fatalf("event type = %s, want stable after growth stops", event.Type)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if event.Size != info.Size() {
		t.Fatalf("event size = %d, want final size %d", event.Size, info.Size())
	}

	cancel()
	<-done
}

func TestNonPDFIgnored(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := watcher.New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchedDir, "notes.txt"), 128)

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected event for non-PDF: %+v", event)
	case <-time.After(500 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestIsPDF(t *testing.T) {
	cases := map[string]bool{
		"a.pdf":      true,
		"A.PDF":      true,
		"scan.Pdf":   true,
		"a.pdf.part": false,
		"a.txt":      false,
		"pdf":        false,
	}
	for path, want := range cases {
		if got := watcher.IsPDF(path); got != want {
			t.Errorf("IsPDF(%q) = %v, want %v", path, got, want)
		}
	}
}
