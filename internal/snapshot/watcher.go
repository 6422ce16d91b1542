package snapshot

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cranebuild/crane/internal/ctxlog"
)

// Watcher observes the workspace and emits batches of changed
// workspace-relative paths. Events are debounced: an editor save burst or
// a branch switch arrives as one batch rather than a storm of single-path
// invalidations.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	events   chan []string
	debounce time.Duration
	ignore   []string
}

// NewWatcher starts watching the workspace at root. Directories named in
// ignore (state dirs, VCS metadata) are skipped entirely. The watcher
// stops when ctx is cancelled.
func NewWatcher(ctx context.Context, root string, debounce time.Duration, ignore ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		fsw:      fsw,
		events:   make(chan []string, 16),
		debounce: debounce,
		ignore:   ignore,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.run(ctx)
	return w, nil
}

// Events delivers debounced batches of changed workspace-relative paths.
// The channel closes when the watcher stops.
func (w *Watcher) Events() <-chan []string {
	return w.events
}

func (w *Watcher) run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	defer w.fsw.Close()
	defer close(w.events)

	pending := make(map[string]struct{})
	var flush <-chan time.Time

	emit := func() {
		if len(pending) == 0 {
			flush = nil
			return
		}
		batch := make([]string, 0, len(pending))
		for p := range pending {
			batch = append(batch, p)
		}
		pending = make(map[string]struct{})
		flush = nil
		logger.Debug("Watcher emitting change batch.", "paths", len(batch))
		select {
		case w.events <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush:
			emit()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil || w.ignored(rel) {
				continue
			}
			// New directories must be watched before anything inside
			// them changes.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "path", rel, "error", err)
					}
				}
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			if flush == nil {
				flush = time.After(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error.", "error", err)
		}
	}
}

// addRecursive watches dir and every non-ignored directory beneath it.
// fsnotify watches are per-directory, not recursive.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return err
		}
		if rel != "." && w.ignored(rel) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, ig := range w.ignore {
		if rel == ig || strings.HasPrefix(rel, ig+"/") {
			return true
		}
	}
	return false
}
