package flock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/projecteru2/remote/lock"
)

const retryDelay = 50 * time.Millisecond

// compile-time interface check.
var _ lock.Locker = (*Lock)(nil)

// Lock provides cross-process mutual exclusion using flock(2) via gofrs/flock.
// The lock file sits next to the file it guards and is never deleted.
type Lock struct {
	fl      *flock.Flock
	timeout time.Duration
}

// New creates a Lock for path. A positive timeout bounds how long Lock waits
// on top of the caller's context.
func New(path string, timeout time.Duration) *Lock {
	return &Lock{fl: flock.New(path), timeout: timeout}
}

// Lock acquires an exclusive flock. Blocks until the lock is available,
// the timeout elapses or the context is cancelled.
func (l *Lock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o700); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	locked, err := l.fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("acquire flock %s: %w", l.fl.Path(), err)
	}
	if !locked {
		return fmt.Errorf("acquire flock %s: held by another invocation", l.fl.Path())
	}
	return nil
}

// Unlock releases the flock.
func (l *Lock) Unlock(_ context.Context) error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release flock %s: %w", l.fl.Path(), err)
	}
	return nil
}
