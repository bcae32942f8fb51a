package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/logging"
)

// Watch reloads the configuration at path whenever its file changes,
// invoking onReload with the freshly decoded and validated Config. A
// reload that fails to parse or validate is logged and skipped, leaving
// the previous in-memory Config (and therefore the running server)
// untouched — hot reload is best-effort, never a reason to crash a
// running server.
//
// Built on fsnotify.NewWatcher, watching the file's containing directory
// to survive editors that replace-then-rename rather than write in place.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.Config("creating config watcher", err)
	}
	defer watcher.Close()

	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		return apperr.Config("watching config directory "+dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logging.Default.Warn("config: reload failed, keeping previous config", "err", err)
				continue
			}
			logging.Default.Info("config: reloaded", "path", path)
			onReload(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Default.Warn("config: watcher error", "err", err)
		}
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
