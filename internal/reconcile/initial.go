package reconcile

import (
	"context"
	"errors"
	"fmt"

	"Syncd/internal/index"
	"Syncd/internal/model"
)

// RunInitial performs the Initial Reconciler's one-shot pass: walk the
// tree, diff against the Local Index, apply the three-way short-circuit,
// and drive one batched upload plus per-path deletes for whatever the
// walk didn't confirm.
func (d *Deps) RunInitial(ctx context.Context) error {
	paths, err := walkTree(d.RootCanonical)
	if err != nil {
		return fmt.Errorf("reconcile: initial walk: %w", err)
	}

	seen := make(map[string]struct{}, len(paths))
	var uploads []model.FileRecord

	for _, abs := range paths {
		rec, err := d.recordFor(abs)
		if err != nil {
			d.Log.WithError(err).WithField("path", abs).Warn("skipping unreadable file")
			continue
		}
		if rec.ContentHash == "" {
			d.Log.WithField("path", abs).Warn("skipping unreadable file")
			continue
		}
		seen[rec.Path] = struct{}{}

		existing, err := d.Index.Get(d.RootSupplied, rec.Path)
		switch {
		case errors.Is(err, index.ErrNotFound):
			if err := d.Index.Insert(d.RootSupplied, rec); err != nil {
				return fmt.Errorf("reconcile: insert %s: %w", rec.Path, err)
			}
			uploads = append(uploads, rec)
		case err != nil:
			return fmt.Errorf("reconcile: index get %s: %w", rec.Path, err)
		case sameRecord(existing, rec):
			// No-op: either hash or last-modified matches, per the
			// short-circuit — timestamps lie more than content does.
		default:
			if err := d.Index.Update(d.RootSupplied, rec); err != nil {
				return fmt.Errorf("reconcile: update %s: %w", rec.Path, err)
			}
			uploads = append(uploads, rec)
		}
	}

	rows, err := d.Index.List(d.RootSupplied)
	if err != nil {
		return fmt.Errorf("reconcile: list %s: %w", d.RootSupplied, err)
	}
	var deletions []string
	for _, row := range rows {
		if _, ok := seen[row.Path]; !ok {
			if err := d.Index.Remove(d.RootSupplied, row.Path); err != nil {
				return fmt.Errorf("reconcile: remove %s: %w", row.Path, err)
			}
			deletions = append(deletions, row.Path)
		}
	}

	if len(uploads) > 0 {
		result, _, err := d.uploadBatch(ctx, uploads)
		if err != nil {
			return fmt.Errorf("reconcile: initial upload: %w", err)
		}
		for name, reason := range result.Failed {
			d.Log.WithField("file", name).Warn("server rejected upload: " + reason)
		}
	}
	for _, scopePath := range deletions {
		if err := d.Remote.Delete(ctx, scopePath); err != nil {
			d.Log.WithError(err).WithField("path", scopePath).Warn("remote delete failed")
		}
	}

	d.Log.WithField("uploaded", len(uploads)).WithField("deleted", len(deletions)).Info("initial reconciliation complete")
	return nil
}
