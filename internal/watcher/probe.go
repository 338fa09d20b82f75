package watcher

import (
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
)

// probeReadable confirms a settled file can actually be opened and read.
// A shared lock is attempted first so a sync client still holding an
// exclusive lock on the file is detected without blocking the poll loop.
func probeReadable(path string) error {
	lock := flock.New(path)
	locked, err := lock.TryRLock()
	if err != nil {
		return fmt.Errorf("probe lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("file %q is locked by another process", path)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 4)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	return nil
}
