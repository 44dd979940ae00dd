package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"Syncd/internal/index"
	"Syncd/internal/model"
	"Syncd/internal/pathutil"
)

const (
	debounceWindow = 500 * time.Millisecond
	settleDelay    = 100 * time.Millisecond
)

// RunLive is the Live Reconciler: a single-threaded cooperative loop over
// a recursive filesystem-event stream for the watch root. It blocks until
// ctx is cancelled or the watcher's channels close.
//
// Deliberately no goroutines are spawned per event — the debounce map,
// the settling sleep, and the dispatch all happen inline on this one
// loop, which is what makes the per-path ordering guarantee hold.
func (d *Deps) RunLive(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reconcile: new watcher: %w", err)
	}
	defer w.Close()

	if err := addRecursive(w, d.RootCanonical); err != nil {
		return fmt.Errorf("reconcile: watch %s: %w", d.RootCanonical, err)
	}

	lastEvent := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if err := d.handleEvent(ctx, w, ev, lastEvent); err != nil {
				d.Log.WithError(err).WithField("path", ev.Name).Warn("live reconcile event failed")
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				d.Log.WithError(err).Warn("fsnotify error")
			}
		}
	}
}

// handleEvent implements spec step 4.7.1-2 for a single fsnotify event:
// eligibility filter, per-path debounce, settling sleep, then dispatch.
func (d *Deps) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, lastEvent map[string]time.Time) error {
	info, statErr := os.Lstat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if ev.Op&fsnotify.Create != 0 && isDir {
		return addRecursive(w, ev.Name)
	}

	if !pathutil.IsEligible(ev.Name, isDir) {
		return nil
	}

	now := time.Now()
	if last, ok := lastEvent[ev.Name]; ok && now.Sub(last) <= debounceWindow {
		return nil
	}
	lastEvent[ev.Name] = now

	time.Sleep(settleDelay)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		return d.handleUpsert(ctx, ev.Name)
	case ev.Op&fsnotify.Remove != 0:
		return d.handleRemove(ctx, ev.Name)
	default:
		return nil
	}
}

// handleUpsert covers a Create or Modify dispatch: update the index (in
// place on a hit, inserted on a miss) then upload that single record.
func (d *Deps) handleUpsert(ctx context.Context, absPath string) error {
	rec, err := d.recordFor(absPath)
	if err != nil {
		return err
	}
	if rec.ContentHash == "" {
		d.Log.WithField("path", absPath).Warn("skipping unreadable file")
		return nil
	}

	_, err = d.Index.Get(d.RootSupplied, rec.Path)
	switch {
	case errors.Is(err, index.ErrNotFound):
		if err := d.Index.Insert(d.RootSupplied, rec); err != nil {
			return fmt.Errorf("reconcile: insert %s: %w", rec.Path, err)
		}
	case err != nil:
		return fmt.Errorf("reconcile: index get %s: %w", rec.Path, err)
	default:
		if err := d.Index.Update(d.RootSupplied, rec); err != nil {
			return fmt.Errorf("reconcile: update %s: %w", rec.Path, err)
		}
	}

	result, files, err := d.uploadBatch(ctx, []model.FileRecord{rec})
	if err != nil {
		return fmt.Errorf("reconcile: upload %s: %w", rec.Path, err)
	}
	if reason, failed := result.Failed[files[0].Filename]; failed {
		d.Log.WithField("file", rec.Path).Warn("server rejected upload: " + reason)
	}
	return nil
}

// handleRemove covers a Remove dispatch: strip the index row
// unconditionally (removal is idempotent) then issue the remote delete.
func (d *Deps) handleRemove(ctx context.Context, absPath string) error {
	scopePath, err := d.scopePathFor(absPath)
	if err != nil {
		return err
	}
	if err := d.Index.Remove(d.RootSupplied, scopePath); err != nil {
		return fmt.Errorf("reconcile: remove %s: %w", scopePath, err)
	}
	if err := d.Remote.Delete(ctx, scopePath); err != nil {
		return fmt.Errorf("reconcile: remote delete %s: %w", scopePath, err)
	}
	return nil
}

// addRecursive adds root and every non-symlinked subdirectory to w, so
// newly created subtrees come under watch the moment their parent
// directory's Create event is handled.
func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
