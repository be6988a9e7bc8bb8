// Package watch monitors a workspace for build-definition changes and
// re-runs analysis when they settle.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// batchWindow is how long the watcher waits after the last event before
// firing, so editor save bursts collapse into one run.
const batchWindow = 2 * time.Second

// skippedDirs are never watched.
var skippedDirs = map[string]struct{}{
	".git":           {},
	"bazel-out":      {},
	"bazel-bin":      {},
	"bazel-testlogs": {},
	"node_modules":   {},
	".triggerscope":  {},
}

// Func is invoked with the batch of changed paths once events settle.
type Func func(ctx context.Context, changed []string) error

// Watcher re-runs analysis when build definitions under a workspace change.
type Watcher struct {
	Workspace string
	Log       *log.Logger
}

// New creates a Watcher rooted at workspace.
func New(workspace string, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{Workspace: workspace, Log: logger}
}

// Run blocks watching the workspace until the context is cancelled, calling
// fn with each settled batch of changed build files.
func (w *Watcher) Run(ctx context.Context, fn Func) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	err = filepath.Walk(w.Workspace, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, skip := skippedDirs[info.Name()]; skip {
				return filepath.SkipDir
			}
			// Bazel's convenience symlinks also match bazel-<workspace>.
			if filepath.Dir(path) == w.Workspace && len(info.Name()) > 6 && info.Name()[:6] == "bazel-" {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	changed := make(map[string]struct{})
	batch := time.NewTimer(batchWindow)
	batch.Stop()

	w.Log.Info("watching for build file changes", "workspace", w.Workspace)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !isBuildFile(event.Name) {
				// New packages appear as directory creates.
				if event.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = fsw.Add(event.Name)
					}
				}
				continue
			}
			rel, err := filepath.Rel(w.Workspace, event.Name)
			if err != nil {
				continue
			}
			changed[rel] = struct{}{}
			batch.Reset(batchWindow)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("watch error", "err", err)

		case <-batch.C:
			if len(changed) == 0 {
				continue
			}
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			changed = make(map[string]struct{})

			w.Log.Info("build files changed", "count", len(paths))
			if err := fn(ctx, paths); err != nil {
				w.Log.Error("rerun failed", "err", err)
			}
		}
	}
}

// isBuildFile reports whether a path is a build definition the dependency
// graph depends on.
func isBuildFile(path string) bool {
	switch filepath.Base(path) {
	case "BUILD", "BUILD.bazel", "WORKSPACE", "WORKSPACE.bazel", "MODULE.bazel":
		return true
	}
	return filepath.Ext(path) == ".bzl"
}
