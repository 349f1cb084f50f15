package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the event bursts editors and atomic saves
// produce (write+chmod, or create+rename) into a single reload, after the
// file has been quiet for the full interval.
const reloadDebounce = 200 * time.Millisecond

// Watch monitors path for changes and calls onChange with the newly loaded
// Config each time the file settles after being written. It runs until ctx
// is cancelled.
//
// If a reload fails (e.g., invalid YAML), the error is logged and the
// previous config remains active — Watch does not call onChange.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	// The timer is armed on the first relevant event and pushed back by
	// each subsequent one; the reload runs only when it fires.
	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed — keeping previous config",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded", "path", path, "services", len(cfg.Services))
			onChange(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
