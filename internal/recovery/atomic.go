package recovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// AtomicWrite writes data to path via temp-file-then-rename, exported for
// sibling packages (e.g. emergency) that persist their own small JSON state
// files outside the Store's active/completed/batch/checkpoints layout.
func AtomicWrite(path string, data []byte) error {
	return atomicWrite(path, data)
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by rename, so a crash mid-write never leaves a truncated file and
// readers never observe a partial write.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	tmp = nil
	return nil
}

// withLock acquires a cross-process advisory lock at path+".lock" for the
// duration of fn, so a concurrent writer in another process never races an
// active→completed move.
func withLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", path, err)
	}
	defer lock.Unlock()
	return fn()
}
