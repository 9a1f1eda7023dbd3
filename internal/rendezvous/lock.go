// Package rendezvous implements the singleton lock, PID file, and on-disk
// RuntimeState descriptor that let other processes discover a running
// Agent Brain instance for a project.
package rendezvous

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock wraps an advisory, exclusive, non-blocking OS file lock used to
// enforce that at most one process owns a project's instance at a time,
// using the same gofrs/flock primitive other file-locking code in this
// codebase uses to serialize embedding-model downloads.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewLock creates a Lock for the given lock-file path.
func NewLock(path string) *Lock {
	return &Lock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the exclusive lock without blocking. It
// returns (true, nil) if this process now holds the lock, (false, nil) if
// another process holds it.
func (l *Lock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call multiple times or when unlocked.
func (l *Lock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.locked = false
	return nil
}

// IsLocked reports whether this process currently holds the lock.
func (l *Lock) IsLocked() bool {
	return l.locked
}

// Path returns the underlying lock-file path.
func (l *Lock) Path() string {
	return l.path
}
