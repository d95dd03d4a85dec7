package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is how long the watcher waits for class changes to settle
// before rebuilding.
const DebounceInterval = 200 * time.Millisecond

// RebuildCallback is called after every watcher-driven rebuild.
type RebuildCallback func(res *Result, err error)

// dirProvider is implemented by inputs backed by a local directory tree.
type dirProvider interface {
	Dir(module string) (string, error)
}

// Watch starts an fsnotify watcher on the scanned module directories and
// reruns the pipeline whenever class files change, until ctx is cancelled.
// Bursts of events are coalesced into one rebuild.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, p *Pipeline, logger *slog.Logger, cb RebuildCallback) error {
	dp, ok := p.in.(dirProvider)
	if !ok {
		return fmt.Errorf("pipeline: watch: input %T is not a directory tree", p.in)
	}
	mods, _, err := p.modules()
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, m := range mods {
		dir, err := dp.Dir(m)
		if err != nil {
			return err
		}
		if _, err := addDirsRecursive(w, dir); err != nil {
			return fmt.Errorf("pipeline: watch %s: %w", m, err)
		}
	}

	logger.Info("watcher: started", slog.Int("modules", len(mods)))

	var rebuildTimer *time.Timer
	var rebuildCh <-chan time.Time

	scheduleRebuild := func() {
		if rebuildTimer == nil {
			rebuildTimer = time.NewTimer(DebounceInterval)
			rebuildCh = rebuildTimer.C
		} else {
			rebuildTimer.Reset(DebounceInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rebuildCh:
			res, err := p.Run(ctx)
			if err != nil {
				logger.Warn("watcher: rebuild failed", slog.String("error", err.Error()))
			} else {
				logger.Debug("watcher: rebuilt", slog.String("path", res.Path), slog.Int("instances", res.Index.Len()))
			}
			if cb != nil {
				cb(res, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New directories may already hold class files. Directories
			// without any, such as META-INF created by an in-place artifact
			// write, are watched but do not trigger a rebuild.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					hasClasses, addErr := addDirsRecursive(w, ev.Name)
					if addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					if hasClasses || addErr != nil {
						scheduleRebuild()
					}
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".class") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: class changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				scheduleRebuild()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher and
// reports whether any class file was found beneath root.
func addDirsRecursive(w *fsnotify.Watcher, root string) (bool, error) {
	hasClasses := false
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if strings.HasSuffix(path, ".class") {
			hasClasses = true
		}
		return nil
	})
	return hasClasses, err
}
