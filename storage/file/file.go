package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/projecteru2/remote/lock"
	"github.com/projecteru2/remote/storage"
	"github.com/projecteru2/remote/utils"
)

const filePerm = 0o600

// compile-time interface check.
var _ storage.Store[struct{}] = (*Store[struct{}])(nil)

// Store is a storage.Store backed by a single file. Cross-process exclusion
// comes from locker; mu serialises goroutines sharing one Store, since a
// flock held by this process is re-entrant for the same handle.
type Store[T any] struct {
	path   string
	codec  Codec
	locker lock.Locker
	mu     sync.Mutex
}

// New creates a Store for path. The codec is chosen from the extension.
func New[T any](path string, locker lock.Locker) *Store[T] {
	return &Store[T]{path: path, codec: CodecFor(path), locker: locker}
}

// Path returns the backing file path.
func (s *Store[T]) Path() string { return s.path }

// With implements storage.Store.
func (s *Store[T]) With(ctx context.Context, fn func(*T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lock.WithLock(ctx, s.locker, func() error {
		idx, err := s.load()
		if err != nil {
			return err
		}
		return fn(idx)
	})
}

// Update implements storage.Store.
func (s *Store[T]) Update(ctx context.Context, fn func(*T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lock.WithLock(ctx, s.locker, func() error {
		idx, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(idx); err != nil {
			return err
		}
		data, err := s.codec.Marshal(idx)
		if err != nil {
			return fmt.Errorf("encode %s: %w", s.path, err)
		}
		return utils.AtomicWriteFile(s.path, data, filePerm)
	})
}

// load reads the index. A missing or blank file is an empty index; anything
// that fails to decode is storage.ErrCorrupt.
func (s *Store[T]) load() (*T, error) {
	idx := new(T)
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	case len(bytes.TrimSpace(data)) > 0:
		if err := s.codec.Unmarshal(data, idx); err != nil {
			return nil, fmt.Errorf("%w %s (%s): %v", storage.ErrCorrupt, s.path, s.codec.Name(), err)
		}
	}
	if i, ok := any(idx).(storage.Initer); ok {
		i.Init()
	}
	return idx, nil
}
