package specfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of filesystem events a single editor
// save produces into one reload.
const debounceDelay = 300 * time.Millisecond

// Watcher reloads the spec file when it changes on disk and hands each new
// snapshot to the onChange callback.
type Watcher struct {
	path     string
	logger   *slog.Logger
	onChange func(*File) error

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for the spec file at path. onChange runs
// after every debounced change with the freshly parsed file.
func NewWatcher(path string, logger *slog.Logger, onChange func(*File) error) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		logger:   logger,
		onChange: onChange,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched
// rather than the file itself because editors replace files on save, which
// would drop a watch on the file's inode.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info("watching spec file", "path", w.path)

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

// reload parses the file and invokes the callback. A malformed file is
// logged and skipped so a half-saved edit cannot wipe the running set.
func (w *Watcher) reload() {
	f, err := Load(w.path)
	if err != nil {
		w.logger.Error("spec file reload skipped", "path", w.path, "error", err)
		return
	}
	if err := w.onChange(f); err != nil {
		w.logger.Error("applying spec file change", "path", w.path, "error", err)
	}
}
