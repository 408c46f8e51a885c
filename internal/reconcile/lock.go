package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrLocked is returned by AcquireLock when another run holds the lock.
var ErrLocked = errors.New("working copy is locked by another run")

// Lock is an exclusive run lock backed by a file created with O_EXCL.
type Lock struct {
	path string
}

// AcquireLock creates the lock file at path. A lock file older than
// staleAfter is assumed to be left over from a crashed run and is taken over.
func AcquireLock(path string, staleAfter time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("reconcile: create lock dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("reconcile: write lock %s: %w", path, errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("reconcile: create lock %s: %w", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			if errors.Is(statErr, os.ErrNotExist) && attempt == 0 {
				continue // released between create and stat
			}
			return nil, fmt.Errorf("reconcile: stat lock %s: %w", path, statErr)
		}
		age := time.Since(info.ModTime())
		if age <= staleAfter || attempt > 0 {
			return nil, fmt.Errorf("reconcile: %w (%s, held by %s for %s)",
				ErrLocked, path, holder(path), age.Round(time.Second))
		}

		slog.Warn("reconcile: taking over stale lock",
			"path", path, "holder", holder(path), "age", age.Round(time.Second))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reconcile: remove stale lock %s: %w", path, err)
		}
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reconcile: release lock %s: %w", l.path, err)
	}
	return nil
}

// holder returns "pid N" from the lock file content, or "unknown".
func holder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	pid, _, _ := strings.Cut(string(data), "\n")
	if pid = strings.TrimSpace(pid); pid == "" {
		return "unknown"
	}
	return "pid " + pid
}
