package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"Syncd/internal/pathutil"
)

// walkTree returns every eligible file under root, as absolute paths, in
// deterministic sorted order. Symlinks are skipped to avoid cycles.
func walkTree(root string) ([]string, error) {
	var out []string

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("reconcile: walk %s: %w", p, walkErr)
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !pathutil.IsEligible(p, false) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(out)
	return out, nil
}
