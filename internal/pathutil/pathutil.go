// Package pathutil normalizes and validates filesystem paths for the
// reconciliation core: it decides which filesystem entries are eligible
// for tracking, and converts between the OS-canonical form of the watch
// root (required to strip-prefix watcher events) and the user-supplied
// form (required as the stable Local Index scope key).
package pathutil

import (
	"path/filepath"
	"strings"
)

// tempSuffixes are the recognized editor/backup markers. A file ending in
// any of these is never eligible for tracking.
var tempSuffixes = []string{"~", ".tmp", ".swp"}

// IsEligible reports whether a filesystem entry should be tracked.
// Directories are never eligible. isDir comes from the caller's stat/walk
// result so this package never has to touch the filesystem itself.
func IsEligible(fsPath string, isDir bool) bool {
	if isDir {
		return false
	}
	for _, suf := range tempSuffixes {
		if strings.HasSuffix(fsPath, suf) {
			return false
		}
	}
	return true
}

// Normalize replaces backslashes with forward slashes and strips every
// leading "./". It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = strings.ReplaceAll(s, `\`, "/")
	for strings.HasPrefix(s, "./") {
		s = strings.TrimPrefix(s, "./")
	}
	return s
}

// ToScopePath computes the Local Index scope key for an absolute
// filesystem path.
//
// The canonical watch root is required to correctly strip-prefix events
// reported by the OS watcher (which always reports canonical paths). The
// supplied watch root is required because it is what's persisted as the
// index's root_dir key, so that relocating or renaming-in-place the
// watched directory across process restarts does not orphan index rows
// keyed on a path the user never typed. Both forms are kept and converted
// explicitly at this single boundary.
func ToScopePath(watchRootSupplied, watchRootCanonical, absoluteFSPath string) (string, error) {
	rel, err := filepath.Rel(watchRootCanonical, absoluteFSPath)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(watchRootSupplied, rel)
	return Normalize(filepath.ToSlash(joined)), nil
}
