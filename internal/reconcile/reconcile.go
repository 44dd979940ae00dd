// Package reconcile is the client's reconciliation core: the Initial
// Reconciler (C6), which diffs a tree walk against the Local Index once at
// start-up, and the Live Reconciler (C7), which turns a debounced
// filesystem-event stream into the same upload/delete intent stream.
//
// Both share the same path-to-record pipeline (C1 + C2 + the Local Index)
// and the same batching rules for talking to the Remote Client (C5); that
// shared plumbing lives here, the two entry points in initial.go and
// live.go.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"Syncd/internal/hashutil"
	"Syncd/internal/index"
	"Syncd/internal/model"
	"Syncd/internal/pathutil"
	"Syncd/internal/remoteclient"
)

// Deps are the collaborators both reconcilers drive. RootSupplied is the
// watch root exactly as the user typed it (the Local Index's scope key);
// RootCanonical is its OS-resolved form (what the watcher reports events
// against).
type Deps struct {
	Index         *index.Index
	Remote        *remoteclient.Client
	Log           *logrus.Entry
	RootSupplied  string
	RootCanonical string
}

// recordFor computes the FileRecord the index and server care about for
// the file at absPath: its scope path, content hash, and modification
// time. It never errors for an unreadable file — the caller treats a
// NoHash result as "skip", per the Content Hasher's contract.
func (d *Deps) recordFor(absPath string) (model.FileRecord, error) {
	scopePath, err := pathutil.ToScopePath(d.RootSupplied, d.RootCanonical, absPath)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("reconcile: scope path for %s: %w", absPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("reconcile: stat %s: %w", absPath, err)
	}
	hash := hashutil.FileHash(absPath)
	return model.FileRecord{
		Path:         pathutil.Normalize(scopePath),
		ContentHash:  hash,
		LastModified: info.ModTime().UTC(),
	}, nil
}

// scopePathFor computes just the scope path, for events (like Remove)
// where the file no longer exists to stat.
func (d *Deps) scopePathFor(absPath string) (string, error) {
	scopePath, err := pathutil.ToScopePath(d.RootSupplied, d.RootCanonical, absPath)
	if err != nil {
		return "", err
	}
	return pathutil.Normalize(scopePath), nil
}

// uploadBatch turns index records into a batched Upload call, minting a
// unique <F> token per file — the sanitized filename token the server's
// multipart contract keys the three field names on. It returns the files
// it sent alongside the result so callers can map a result.Failed entry
// (keyed by Filename, not by scope path) back to the record it belongs to.
func (d *Deps) uploadBatch(ctx context.Context, records []model.FileRecord) (remoteclient.UploadResult, []remoteclient.UploadFile, error) {
	if len(records) == 0 {
		return remoteclient.UploadResult{}, nil, nil
	}

	used := make(map[string]int)
	files := make([]remoteclient.UploadFile, 0, len(records))
	for _, rec := range records {
		files = append(files, remoteclient.UploadFile{
			Filename:     sanitizeToken(rec.Path, used),
			ScopePath:    rec.Path,
			LastModified: rec.LastModified,
			LocalPath:    d.localPath(rec.Path),
		})
	}
	result, err := d.Remote.Upload(ctx, files)
	return result, files, err
}

// localPath recovers the on-disk location of a scope path: the inverse of
// ToScopePath, valid only while the file still exists under RootSupplied.
func (d *Deps) localPath(scopePath string) string {
	rel := strings.TrimPrefix(scopePath, filepath.ToSlash(filepath.Clean(d.RootSupplied))+"/")
	return filepath.Join(d.RootCanonical, rel)
}

// sanitizeToken derives a filesystem-separator-free token from a scope
// path's basename, disambiguating collisions (two files with the same
// basename in different directories) with a numeric suffix so every file
// in a batch gets a distinct <F>.
func sanitizeToken(scopePath string, used map[string]int) string {
	base := filepath.Base(scopePath)
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, base)

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	token := base
	for n := 1; used[token] > 0; n++ {
		token = stem + "-" + strconv.Itoa(n) + ext
	}
	used[token]++
	return token
}

// sameRecord reports whether old and next are a "no-op" match: identical
// content hash, or identical last-modified timestamp (timestamps lie more
// than content does, but either one being unchanged means no upload is
// needed).
func sameRecord(old, next model.FileRecord) bool {
	return old.ContentHash == next.ContentHash || old.LastModified.Equal(next.LastModified)
}
