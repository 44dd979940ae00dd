// Package blobstore is where uploaded bytes land: a disk-backed,
// per-user-namespaced store that is the system of record for file
// content, with an optional content-addressed S3/R2 mirror layered on
// top for off-box durability.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes files under root/uploads/<username>/<relative...>,
// namespacing every user's tree so two accounts can never collide on path.
type DiskStore struct {
	root string
}

// ErrTraversal is returned when a client-declared path escapes its
// intended base directory.
var ErrTraversal = fmt.Errorf("blobstore: path traversal rejected")

// NewDiskStore opens (creating if necessary) a disk store rooted at root.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %s: %w", root, err)
	}
	return &DiskStore{root: root}, nil
}

// Resolve validates and computes the on-disk path for a user-scoped upload
// target: username plus the client-declared path_<F> (may be empty,
// meaning "store directly under the user's namespace") plus the sanitized
// filename. It rejects absolute paths and any ".." component, per the
// server's path-sanitization contract.
func (s *DiskStore) Resolve(username, clientPath, filename string) (diskPath, storedPath string, err error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return "", "", fmt.Errorf("blobstore: invalid filename %q", filename)
	}

	userDir := "uploads/" + username
	rel := filename
	if clientPath != "" {
		if filepath.IsAbs(clientPath) {
			return "", "", ErrTraversal
		}
		for _, seg := range strings.Split(filepath.ToSlash(clientPath), "/") {
			if seg == ".." {
				return "", "", ErrTraversal
			}
		}
		rel = filepath.ToSlash(filepath.Join(clientPath, filename))
	}

	stored := filepath.ToSlash(filepath.Join(userDir, rel))
	disk := filepath.Join(s.root, filepath.FromSlash(stored))
	return disk, stored, nil
}

// Create ensures the parent directory for diskPath exists and opens it
// for writing.
func (s *DiskStore) Create(diskPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(diskPath), 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: ensure dir for %s: %w", diskPath, err)
	}
	return os.Create(diskPath)
}

// IsDir reports whether clientPath names a directory under username's
// namespace. A path that doesn't exist on disk is reported as false, not
// an error — callers use this only to pick the directory-vs-file delete
// branch, and a missing file is a file-branch concern (the index decides
// whether it was ever known), not a stat-time one.
func (s *DiskStore) IsDir(username, clientPath string) (bool, error) {
	if filepath.IsAbs(clientPath) || containsParentDir(clientPath) {
		return false, ErrTraversal
	}
	target := filepath.Join(s.root, "uploads", username, filepath.FromSlash(clientPath))
	info, err := os.Stat(target)
	if err != nil {
		return false, nil
	}
	return info.IsDir(), nil
}

// StoredPath computes the index key a client-declared delete path maps
// to, the same uploads/<username>/<relative> layout Resolve writes under.
func (s *DiskStore) StoredPath(username, clientPath string) string {
	return filepath.ToSlash(filepath.Join("uploads", username, clientPath))
}

// Delete removes a single file or, if the target is a directory, the
// entire subtree. Directory deletes never touch index rows — the caller
// is responsible for gating file deletes on index presence first.
func (s *DiskStore) Delete(username, clientPath string) (wasDir bool, err error) {
	if filepath.IsAbs(clientPath) || containsParentDir(clientPath) {
		return false, ErrTraversal
	}
	target := filepath.Join(s.root, "uploads", username, filepath.FromSlash(clientPath))

	info, err := os.Stat(target)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return true, os.RemoveAll(target)
	}
	return false, os.Remove(target)
}

func containsParentDir(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
