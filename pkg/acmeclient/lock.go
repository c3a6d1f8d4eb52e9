package acmeclient

import (
	"fmt"
	"os"
	"path/filepath"
)

// lockFile is the name of the advisory lock spec.md §9 resolves to add:
// a resource directory may only be driven by one ACME client at a time.
const lockFile = ".certmgr.lock"

// ResourceLock is an O_EXCL advisory lock over a resource directory. The
// pack carries no third-party flock wrapper, so this is one of the rare
// stdlib-only pieces of the manager (see DESIGN.md).
type ResourceLock struct {
	path string
}

// AcquireLock creates the lock file exclusively, failing if another
// process already holds it.
func AcquireLock(resourceDir string) (*ResourceLock, error) {
	path := filepath.Join(resourceDir, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("acmeclient: resource directory %s is locked by another process (remove %s if this is stale)", resourceDir, path)
		}
		return nil, fmt.Errorf("acmeclient: acquire lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return &ResourceLock{path: path}, nil
}

// Release removes the lock file. Safe to call once after a successful
// AcquireLock.
func (l *ResourceLock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("acmeclient: release lock: %w", err)
	}
	return nil
}
