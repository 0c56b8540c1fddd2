// Package watch notifies on rotation of trust material and identity files.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of filesystem events a single rotation
// produces (write + rename + chmod, or a whole-directory symlink swap).
const debounceWindow = 250 * time.Millisecond

// Watcher observes a set of credential files and invokes a callback after
// any of them changes. The parent directories are watched rather than the
// files themselves so atomic replace-by-rename rotations are not missed.
type Watcher struct {
	paths    map[string]struct{} // cleaned absolute-ish file paths
	dirs     []string
	onChange func()
	logger   *slog.Logger
}

// New creates a watcher over the given file paths. onChange fires at most
// once per debounce window, from the watcher goroutine.
func New(onChange func(), logger *slog.Logger, paths ...string) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one path to watch is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	files := make(map[string]struct{}, len(paths))
	dirSet := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		clean := filepath.Clean(p)
		files[clean] = struct{}{}
		dirSet[filepath.Dir(clean)] = struct{}{}
	}
	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}

	return &Watcher{
		paths:    files,
		dirs:     dirs,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// Start begins watching until the context finishes. It returns after the
// underlying watcher is registered; events are delivered asynchronously.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watching %q: %w", dir, err)
		}
	}

	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer func() { _ = fsw.Close() }()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("credential file changed", "path", event.Name, "op", event.Op.String())
			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
				debounceC = debounce.C
			} else {
				if !debounce.Stop() {
					<-debounce.C
				}
				debounce.Reset(debounceWindow)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			w.onChange()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	_, watched := w.paths[filepath.Clean(event.Name)]
	return watched
}
