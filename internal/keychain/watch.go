package keychain

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Change reports that a keychain file was modified.
type Change struct {
	Path string
}

// Watch calls onChange after the file backing kc, or its journal, is
// modified. Bursts of writes are debounced into one call. It blocks until
// ctx is cancelled.
func Watch(ctx context.Context, kc *Keychain, onChange func(Change)) error {
	path, err := kc.Path()
	if err != nil {
		return err
	}
	return watchPath(ctx, path, onChange)
}

func watchPath(ctx context.Context, path string, onChange func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	logger := slog.With("component", "keychain-watch", "path", path)
	logger.Debug("watching keychain for changes")

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("keychain file changed", "file", event.Name, "op", event.Op)

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				onChange(Change{Path: path})
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("file watcher error", "error", err)
		}
	}
}
