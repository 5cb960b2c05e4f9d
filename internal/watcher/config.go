package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfigFile watches the directory containing path (non-recursive)
// and calls onChange, debounced by debounceInterval, whenever path
// itself (by filename, not inode) is created, written, or renamed into
// place. It blocks until ctx is cancelled. This is independent of the
// recursive rebuild Watcher: config edits surface a diff for the user
// to apply (devrig config diff), they are never auto-applied.
func WatchConfigFile(ctx context.Context, path string, onChange func()) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
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
			timerC = timer.C
		case <-timerC:
			onChange()
		case _, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
		}
	}
}
