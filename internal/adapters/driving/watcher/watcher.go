// Package watcher keeps the memory index in step with sidecar files on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driving"
	"github.com/custodia-labs/docmind/internal/logger"
)

// Sidecars is the part of the sidecar store the watcher needs.
type Sidecars interface {
	Root() string
	IsSidecar(path string) bool
	RecordID(sidecarPath string) (string, error)
	Read(sidecarPath string) (*domain.DocumentRecord, error)
	List(ctx context.Context) ([]domain.DocumentRecord, error)
}

// Action is what the watcher did with one filesystem event.
type Action int

const (
	ActionIgnored Action = iota
	ActionIngested
	ActionRemoved
	ActionWatched
	ActionFailed
)

func (a Action) String() string {
	switch a {
	case ActionIngested:
		return "ingested"
	case ActionRemoved:
		return "removed"
	case ActionWatched:
		return "watched"
	case ActionFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Watcher applies sidecar changes under the library root to a memory index.
// Events are handled one at a time in arrival order.
type Watcher struct {
	sidecars Sidecars
	index    driving.MemoryIndex
	fs       *fsnotify.Watcher

	// OnEvent, when set, is called after every handled event.
	OnEvent func(event fsnotify.Event, action Action)
}

// New creates a watcher and registers every directory under the root.
func New(sidecars Sidecars, index driving.MemoryIndex) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{sidecars: sidecars, index: index, fs: fw}
	if err := w.addTree(sidecars.Root()); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Run handles events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	logger.Info("Watching %s", w.sidecars.Root())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			action := w.handleEvent(ctx, event)
			if w.OnEvent != nil {
				w.OnEvent(event, action)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// handleEvent maps one fsnotify event onto the index.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) Action {
	if isHidden(filepath.Base(event.Name)) {
		return ActionIgnored
	}

	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			// Gone again before we got to it; a Remove event follows.
			return ActionIgnored
		}
		if info.IsDir() {
			if !event.Has(fsnotify.Create) {
				return ActionIgnored
			}
			return w.watchNewDir(ctx, event.Name)
		}
		if !w.sidecars.IsSidecar(event.Name) {
			return ActionIgnored
		}
		return w.ingest(ctx, event.Name)

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if w.sidecars.IsSidecar(event.Name) {
			return w.remove(ctx, event.Name)
		}
		return w.removeTree(ctx, event.Name)
	}

	return ActionIgnored
}

func (w *Watcher) ingest(ctx context.Context, path string) Action {
	rec, err := w.sidecars.Read(path)
	if err != nil {
		// Partially written files fail validation; the next Write retries.
		logger.Warn("Skipping %s: %v", path, err)
		return ActionFailed
	}
	if err := w.index.Ingest(ctx, *rec); err != nil {
		logger.Warn("Ingest of %s failed: %v", rec.ID, err)
		return ActionFailed
	}
	logger.Debug("Ingested %s", rec.ID)
	return ActionIngested
}

func (w *Watcher) remove(ctx context.Context, path string) Action {
	id, err := w.sidecars.RecordID(path)
	if err != nil {
		return ActionIgnored
	}
	if err := w.index.Remove(ctx, id); err != nil {
		logger.Warn("Remove of %s failed: %v", id, err)
		return ActionFailed
	}
	logger.Debug("Removed %s", id)
	return ActionRemoved
}

// removeTree drops every record below a directory that went away. Paths
// that were never a directory match nothing.
func (w *Watcher) removeTree(ctx context.Context, path string) Action {
	rel, err := filepath.Rel(w.sidecars.Root(), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ActionIgnored
	}
	prefix := filepath.ToSlash(rel) + "/"

	records, err := w.sidecars.List(ctx)
	if err != nil {
		logger.Warn("Listing records under %s: %v", rel, err)
		return ActionFailed
	}
	action := ActionIgnored
	for i := range records {
		if !strings.HasPrefix(records[i].ID, prefix) {
			continue
		}
		if err := w.index.Remove(ctx, records[i].ID); err != nil {
			logger.Warn("Remove of %s failed: %v", records[i].ID, err)
			action = ActionFailed
			continue
		}
		if action == ActionIgnored {
			action = ActionRemoved
		}
	}
	return action
}

// watchNewDir registers a new directory and ingests sidecars that landed
// in it before its watch existed.
func (w *Watcher) watchNewDir(ctx context.Context, dir string) Action {
	if err := w.addTree(dir); err != nil {
		logger.Warn("Watching %s: %v", dir, err)
		return ActionFailed
	}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.sidecars.IsSidecar(p) {
			w.ingest(ctx, p)
		}
		return nil
	})
	if err != nil {
		logger.Warn("Scanning %s: %v", dir, err)
	}
	return ActionWatched
}

// addTree watches root and every non-hidden directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
