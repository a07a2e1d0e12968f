package lock

import "context"

// Locker provides mutual exclusion with context support. Implementations are
// expected to exclude other processes, not only other goroutines.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// WithLock acquires l, runs fn and releases l on every return path,
// including a panic in fn. An unlock failure is reported only when fn
// itself succeeded.
func WithLock(ctx context.Context, l Locker, fn func() error) (err error) {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		// release even if the caller's ctx was cancelled while fn ran
		if uerr := l.Unlock(context.WithoutCancel(ctx)); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn()
}
