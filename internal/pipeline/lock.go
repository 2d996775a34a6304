package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	cerrors "github.com/chromadex/chromadex/internal/errors"
)

// lockFileName is created in the root being indexed so two runs never
// interleave writes to the same collection.
const lockFileName = ".chromadex.lock"

// RunLock provides cross-process locking for indexing runs using
// gofrs/flock. Works on all platforms (Unix, Linux, macOS, Windows).
type RunLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRunLock creates a lock for runs over the given root directory.
func NewRunLock(rootDir string) *RunLock {
	lockPath := filepath.Join(rootDir, lockFileName)
	return &RunLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Acquire takes the lock without blocking. A held lock means another
// indexing run is in progress, which is a hard error rather than a
// queue.
func (l *RunLock) Acquire() error {
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return cerrors.New(cerrors.ErrCodeRunLocked,
			fmt.Sprintf("another indexing run holds %s", l.path), nil).
			WithSuggestion("wait for the other run to finish, or remove the lock file if it is stale")
	}
	l.locked = true
	return nil
}

// Release releases the lock. Safe to call multiple times or on an
// unheld lock.
func (l *RunLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.path
}

// Held reports whether this process holds the lock.
func (l *RunLock) Held() bool {
	return l.locked
}
