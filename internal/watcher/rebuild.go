package watcher

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// RebuildFunc rebuilds one cluster deploy or build-only image. It
// should return promptly if ctx is cancelled, since a newer file
// change supersedes any rebuild already in flight.
type RebuildFunc func(ctx context.Context) error

// WatchAndRebuild watches contextDir for changes and runs rebuild
// after each debounced batch of relevant events, cancelling any
// rebuild still running when a newer batch arrives. It blocks until
// ctx is cancelled or the watch can't be established; a missing
// contextDir is logged and treated as a no-op rather than an error,
// since a deploy's context directory may not exist until a template
// variable resolves at runtime.
func WatchAndRebuild(ctx context.Context, name, contextDir string, rebuild RebuildFunc) error {
	if _, err := os.Stat(contextDir); err != nil {
		slog.Warn("watch directory does not exist, skipping watcher", "deploy", name, "path", contextDir)
		return nil
	}

	w, err := New(contextDir)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var cancelPrev context.CancelFunc

	err = w.Run(ctx, func(paths []string) {
		slog.Debug("file change detected, rebuilding", "deploy", name, "files", len(paths))

		mu.Lock()
		if cancelPrev != nil {
			cancelPrev()
		}
		childCtx, cancel := context.WithCancel(ctx)
		cancelPrev = cancel
		mu.Unlock()

		go func() {
			if err := rebuild(childCtx); err != nil {
				if childCtx.Err() != nil {
					slog.Debug("rebuild cancelled by newer change", "deploy", name)
					return
				}
				slog.Error("rebuild failed", "deploy", name, "error", err)
				return
			}
			slog.Debug("rebuild completed", "deploy", name)
		}()
	})

	mu.Lock()
	if cancelPrev != nil {
		cancelPrev()
	}
	mu.Unlock()

	return err
}
