// Package watcher wraps fsnotify with the debounced, filtered recursive
// watch devrig's cluster-deploy rebuild trigger and config hot-reload
// detector both need: a burst of edits collapses into a single
// notification 500ms after the last event, and paths under common
// noise directories (.git, build output, dependency caches) never
// trigger a notification at all.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

var ignoredDirs = map[string]struct{}{
	".git":         {},
	"target":       {},
	"node_modules": {},
	".devrig":      {},
	".claude":      {},
	"__pycache__":  {},
}

var ignoredExtensions = map[string]struct{}{
	"swp": {},
	"swo": {},
	"tmp": {},
	"pyc": {},
	"pyo": {},
}

// shouldIgnore reports whether a changed path should be dropped before
// it ever reaches a watcher's debounce timer: any path component that
// names an ignored directory, or any file whose extension names an
// ignored extension.
func shouldIgnore(path string) bool {
	dir, file := filepath.Split(path)
	for _, seg := range strings.Split(filepath.Clean(dir), string(filepath.Separator)) {
		if _, ok := ignoredDirs[seg]; ok {
			return true
		}
	}
	if ext := strings.TrimPrefix(filepath.Ext(file), "."); ext != "" {
		if _, ok := ignoredExtensions[ext]; ok {
			return true
		}
	}
	return false
}

// Watcher recursively watches a directory tree, debounces the fsnotify
// events it receives, and calls back once per quiet period with the
// set of paths that changed during it.
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher
}

// New creates a Watcher rooted at root, adding root and every
// non-ignored subdirectory beneath it to the underlying fsnotify
// watch list. fsnotify has no native recursive mode, so every
// directory must be registered individually up front, and Run adds
// newly created directories as they appear.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, fsw: fsw}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldIgnore(path+string(filepath.Separator)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run blocks, invoking onChange once per debounce window after one or
// more relevant file events, until ctx is cancelled. Close is called
// internally on return.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	defer w.fsw.Close()

	var timer *time.Timer
	pending := map[string]struct{}{}

	resetTimer := func() <-chan time.Time {
		if timer == nil {
			timer = time.NewTimer(debounceInterval)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounceInterval)
		}
		return timer.C
	}

	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						slog.Debug("watcher: failed to add new directory", "path", event.Name, "error", err)
					}
				}
			}
			if shouldIgnore(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			timerC = resetTimer()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		case <-timerC:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = map[string]struct{}{}
			onChange(paths)
		}
	}
}
