package synth

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Prune deletes alert files in dir whose key is not in keys. Only regular
// *.json files directly inside dir are considered, and any file whose name
// matches one of the keep patterns (doublestar syntax) is never removed.
// It returns the removed file names in sorted order.
func Prune(dir string, keys map[string]struct{}, keep []string) ([]string, error) {
	for _, pattern := range keep {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("synth: invalid keep pattern %q", pattern)
		}
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("synth: list %s: %w", dir, err)
	}

	var removed []string
	for _, de := range entries {
		name := de.Name()
		if !de.Type().IsRegular() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		if _, ok := keys[strings.TrimSuffix(name, fileExt)]; ok {
			continue
		}
		if kept(name, keep) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("synth: remove orphan %s: %w", name, err)
		}
		removed = append(removed, name)
	}

	sort.Strings(removed)
	if len(removed) > 0 {
		slog.Info("synth: orphaned alert files removed", "dir", dir, "count", len(removed))
	}
	return removed, nil
}

func kept(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
