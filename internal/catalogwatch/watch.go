// Package catalogwatch hot-reloads the on-disk catalog file into a
// catalog.Store's built-in index whenever it changes (§6 "CLI surface
// (collaborator, out of core)" — the CLI points the daemon at a catalog
// file; this package is what keeps that file live).
package catalogwatch

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/coventry-labs/rsrpc/internal/catalog"
	"github.com/coventry-labs/rsrpc/internal/logger"
)

// Watch loads path once and then watches its parent directory, reloading
// store's built-in catalog on every write/create matching path. It blocks
// until ctx is canceled.
func Watch(ctx context.Context, path string, store *catalog.Store) error {
	if apps, err := catalog.LoadFile(path); err == nil {
		store.ReplaceBuiltin(apps)
	} else {
		logger.Warn("catalogwatch: initial load failed", "path", path, "error", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	clean := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != clean {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			apps, err := catalog.LoadFile(path)
			if err != nil {
				logger.Warn("catalogwatch: reload failed", "path", path, "error", err)
				continue
			}
			store.ReplaceBuiltin(apps)
			logger.Info("catalogwatch: reloaded catalog", "path", path, "entries", len(apps))

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalogwatch: watcher error", "error", err)
		}
	}
}
