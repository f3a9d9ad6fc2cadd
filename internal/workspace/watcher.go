package workspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/strata/internal/checksum"
	"github.com/starford/strata/internal/storage"
)

// EventCallback is called for file changes that did not originate from
// the app's own saves. kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the workspace root and processes
// file change events until ctx is cancelled. Events whose checksum
// matches a pending WriteGuard mark are the app's own saves and are
// dropped. cb (if non-nil) runs for everything else.
//
// New directories created at runtime are automatically added to the
// watch list. Rename events trigger a reconciliation pass that reports
// files whose watcher events were missed.
func Watch(ctx context.Context, store storage.Provider, guard *WriteGuard, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// seen holds the last checksum reported per path, so duplicate
	// write events for one save collapse into a single callback.
	seen := make(map[string]string)

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	emit := func(kind, rel string, data []byte) {
		sum := checksum.Sum(data)
		if guard.Consume(rel, sum) {
			logger.Debug("watcher: own write", slog.String("path", rel))
			seen[rel] = sum
			return
		}
		if seen[rel] == sum {
			return
		}
		seen[rel] = sum
		logger.Debug("watcher: external change", slog.String("path", rel), slog.String("op", kind))
		if cb != nil {
			cb(kind, rel)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcileAfterRename(store, seen, guard, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					scanNewDir(store, root, absPath, emit)
					continue
				}
			}

			// Only process .md files from here on.
			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(rel)
				if readErr != nil {
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				emit(kind, rel, data)

			case ev.Op&fsnotify.Remove != 0:
				delete(seen, rel)
				guard.Forget(rel)
				if cb != nil {
					cb("deleted", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only; the new
				// path arrives as a separate Create event when it stays
				// within a watched dir. Report the old path gone now and
				// schedule a catch-up pass.
				delete(seen, rel)
				guard.Forget(rel)
				if cb != nil {
					cb("deleted", rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcileAfterRename compares the on-disk document set against the
// checksums already reported and emits events for the difference.
func reconcileAfterRename(store storage.Provider, seen map[string]string, guard *WriteGuard, logger *slog.Logger, cb EventCallback) {
	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range seen {
		if _, ok := disk[p]; !ok {
			delete(seen, p)
			guard.Forget(p)
			if cb != nil {
				cb("deleted", p)
			}
		}
	}

	for p, cs := range disk {
		if seen[p] == cs {
			continue
		}
		if guard.Consume(p, cs) {
			seen[p] = cs
			continue
		}
		kind := "updated"
		if _, ok := seen[p]; !ok {
			kind = "created"
		}
		seen[p] = cs
		if cb != nil {
			cb(kind, p)
		}
	}
}

// scanNewDir reports any .md files already present in a newly created
// directory.
func scanNewDir(store storage.Provider, root, dirPath string, emit func(kind, rel string, data []byte)) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		data, readErr := store.Read(rel)
		if readErr != nil {
			return nil
		}
		emit("created", rel, data)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
