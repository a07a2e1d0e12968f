package storage

import (
	"context"
	"errors"
)

// ErrCorrupt is returned when a persisted index exists but cannot be decoded.
// The file is left untouched so the user can inspect or repair it.
var ErrCorrupt = errors.New("corrupt index file")

// Initer is implemented by index types that need their zero value normalised
// (nil maps allocated) after loading or when the file does not exist yet.
type Initer interface {
	Init()
}

// Store persists a single index document of type T.
type Store[T any] interface {
	// With loads the index under the store lock and passes it to fn.
	// Changes made by fn are discarded.
	With(ctx context.Context, fn func(*T) error) error
	// Update performs a read-modify-write under the store lock. If fn
	// returns nil the index is atomically written back; otherwise the
	// durable state is left as it was.
	Update(ctx context.Context, fn func(*T) error) error
}
