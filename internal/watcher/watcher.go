package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"autoprint/internal/config"
	"autoprint/internal/logging"
)

// EventType distinguishes watcher outcomes.
type EventType string

const (
	// EventStable marks a file whose size and mtime held still long enough
	// and that could be opened for reading.
	EventStable EventType = "stable"
	// EventTimeout marks a file that never settled within the stability
	// window. It is dropped from tracking; a later write brings it back.
	EventTimeout EventType = "timeout"
)

// Event describes a file the watcher has finished judging.
type Event struct {
	Type       EventType
	Path       string
	Size       int64
	ModifiedAt time.Time
}

// candidate tracks one file between discovery and a stability verdict.
type candidate struct {
	size        int64
	modifiedAt  time.Time
	stableCount int
	firstSeen   time.Time
}

// Watcher discovers PDFs arriving in the watched folder and reports them
// once they are fully written. Cloud sync clients write files incrementally,
// so a file only counts as ready after its size and mtime survive several
// consecutive polls and the file opens for reading.
type Watcher struct {
	cfg    *config.Config
	logger *slog.Logger

	mu         sync.Mutex
	candidates map[string]*candidate

	events chan Event
}

// New constructs a Watcher for the configured folder.
func New(cfg *config.Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		cfg:        cfg,
		logger:     logger.With(logging.String(logging.FieldComponent, "watcher")),
		candidates: make(map[string]*candidate),
		events:     make(chan Event, 64),
	}
}

// Events returns the channel on which stability verdicts are delivered.
// The channel closes when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches the folder until the context is canceled. It owns the events
// channel and closes it on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	// Creating a missing watched folder would silently accept a typo'd
	// path; the folder belongs to the sync client, not to this daemon.
	info, err := os.Stat(w.cfg.Paths.WatchedDir)
	if err != nil {
		return fmt.Errorf("watched folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watched folder %q is not a directory", w.cfg.Paths.WatchedDir)
	}

	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer notify.Close()

	if err := notify.Add(w.cfg.Paths.WatchedDir); err != nil {
		return err
	}

	if w.cfg.Watch.RescanOnStart {
		if err := w.rescan(); err != nil {
			w.logger.Warn("startup rescan failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "files that arrived while the daemon was down may be missed"))
		}
	}

	ticker := time.NewTicker(time.Duration(w.cfg.Watch.PollIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	w.logger.Info("watching folder", logging.String("path", w.cfg.Paths.WatchedDir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-notify.Events:
			if !ok {
				return errors.New("watch event stream closed")
			}
			w.handleNotify(event)
		case err, ok := <-notify.Errors:
			if !ok {
				return errors.New("watch error stream closed")
			}
			w.logger.Warn("watch error", logging.Error(err))
		case now := <-ticker.C:
			w.poll(now)
		}
	}
}

func (w *Watcher) handleNotify(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		if event.Op.Has(fsnotify.Remove) {
			w.forget(event.Name)
		}
		return
	}
	if !IsPDF(event.Name) {
		return
	}
	w.track(event.Name)
}

// rescan walks the watched folder so files that arrived while the daemon was
// down still get judged. The ledger decides later whether they already printed.
func (w *Watcher) rescan() error {
	entries, err := os.ReadDir(w.cfg.Paths.WatchedDir)
	if err != nil {
		return err
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsPDF(entry.Name()) {
			continue
		}
		w.track(filepath.Join(w.cfg.Paths.WatchedDir, entry.Name()))
		count++
	}
	if count > 0 {
		w.logger.Info("startup rescan queued existing files", logging.Int("count", count))
	}
	return nil
}

func (w *Watcher) track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.candidates[path]; exists {
		return
	}
	w.candidates[path] = &candidate{firstSeen: time.Now()}
	w.logger.Info("file detected", logging.String("path", path))
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.candidates, path)
}

// poll samples every candidate. Each file progresses independently so one
// slow sync never delays the rest.
func (w *Watcher) poll(now time.Time) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.candidates))
	for path := range w.candidates {
		paths = append(paths, path)
	}
	w.mu.Unlock()

	timeout := time.Duration(w.cfg.Watch.StableTimeoutSeconds) * time.Second

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Gone before it settled; sync clients rename temp files.
				w.forget(path)
				continue
			}
			w.logger.Warn("stat candidate", logging.String("path", path), logging.Error(err))
			continue
		}

		w.mu.Lock()
		cand, tracked := w.candidates[path]
		if !tracked {
			w.mu.Unlock()
			continue
		}

		if now.Sub(cand.firstSeen) > timeout {
			delete(w.candidates, path)
			w.mu.Unlock()
			w.logger.Warn("file never stabilized",
				logging.String("path", path),
				logging.Duration("waited", now.Sub(cand.firstSeen)),
				logging.String(logging.FieldImpact, "file will not print until it is written again"))
			w.emit(Event{Type: EventTimeout, Path: path, Size: info.Size(), ModifiedAt: info.ModTime()})
			continue
		}

		if info.Size() != cand.size || !info.ModTime().Equal(cand.modifiedAt) {
			cand.size = info.Size()
			cand.modifiedAt = info.ModTime()
			cand.stableCount = 0
			w.mu.Unlock()
			continue
		}

		// Zero-byte files are placeholders some sync clients create first;
		// they never count as stable.
		if info.Size() == 0 {
			w.mu.Unlock()
			continue
		}

		cand.stableCount++
		ready := cand.stableCount >= w.cfg.Watch.StableSamples
		if ready {
			delete(w.candidates, path)
		}
		w.mu.Unlock()

		if !ready {
			continue
		}

		if err := probeReadable(path); err != nil {
			// Still locked by the sync client. Re-track and keep waiting.
			w.logger.Debug("file not yet readable", logging.String("path", path), logging.Error(err))
			w.mu.Lock()
			cand.stableCount = 0
			w.candidates[path] = cand
			w.mu.Unlock()
			continue
		}

		w.logger.Info("file stable",
			logging.String("path", path),
			logging.Int64("size", info.Size()))
		w.emit(Event{Type: EventStable, Path: path, Size: info.Size(), ModifiedAt: info.ModTime()})
	}
}

func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	default:
		// Intake has stalled; drop rather than block discovery. The entry
		// is re-judged on the next write or daemon restart.
		w.logger.Warn("event buffer full, dropping",
			logging.String("path", event.Path),
			logging.String("type", string(event.Type)))
	}
}

// IsPDF reports whether the path names a PDF by extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
