package registry

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/remote/config"
	"github.com/projecteru2/remote/lock/flock"
	"github.com/projecteru2/remote/storage"
	storefile "github.com/projecteru2/remote/storage/file"
	"github.com/projecteru2/remote/types"
	"github.com/projecteru2/remote/utils"
)

// Registry is the persisted catalogue of configured instances and the
// active alias. Every call loads the file under the registry lock; every
// mutation is written back atomically before returning.
type Registry struct {
	store storage.Store[Index]
	now   func() time.Time
}

// New opens the registry described by conf.
func New(conf *config.Config) *Registry {
	locker := flock.New(conf.RegistryLock(), conf.LockTimeout)
	return NewWithStore(storefile.New[Index](conf.RegistryPath, locker))
}

// NewWithStore builds a Registry on an arbitrary store.
func NewWithStore(store storage.Store[Index]) *Registry {
	return &Registry{store: store, now: time.Now}
}

// ValidateAlias rejects empty aliases and ones with whitespace or path separators.
func ValidateAlias(alias string) error {
	if alias == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAlias)
	}
	if strings.ContainsAny(alias, `/\`) || strings.IndexFunc(alias, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	return nil
}

// Create registers inst under inst.Alias.
func (r *Registry) Create(ctx context.Context, inst types.Instance) error {
	if err := ValidateAlias(inst.Alias); err != nil {
		return err
	}
	now := r.now()
	return r.store.Update(ctx, func(idx *Index) error {
		if idx.Instances[inst.Alias] != nil {
			return fmt.Errorf("%q: %w", inst.Alias, ErrDuplicateAlias)
		}
		if err := idx.checkInstanceID(inst.Alias, inst.InstanceID); err != nil {
			return err
		}
		rec := inst
		if rec.Status == "" {
			rec.Status = types.StatusUnknown
		}
		rec.Revision = 1
		rec.Transition = nil
		rec.CreatedAt = now
		rec.UpdatedAt = now
		idx.Instances[inst.Alias] = &rec
		log.WithFunc("registry.Create").Debugf(ctx, "registered %s (%s %s)", rec.Alias, rec.Provider, rec.InstanceID)
		return nil
	})
}

// Remove deletes alias from the registry, clearing the active alias if it
// pointed there. The cloud resource is not touched.
func (r *Registry) Remove(ctx context.Context, alias string) error {
	return r.store.Update(ctx, func(idx *Index) error {
		if idx.Instances[alias] == nil {
			return fmt.Errorf("%q: %w", alias, ErrNotFound)
		}
		delete(idx.Instances, alias)
		if idx.Active == alias {
			idx.Active = ""
		}
		return nil
	})
}

// SetActive makes alias the target of lifecycle commands.
func (r *Registry) SetActive(ctx context.Context, alias string) error {
	return r.store.Update(ctx, func(idx *Index) error {
		if idx.Instances[alias] == nil {
			return fmt.Errorf("%q: %w", alias, ErrNotFound)
		}
		idx.Active = alias
		return nil
	})
}

// GetActive returns a detached copy of the active instance.
// With no active alias the error matches both ErrNoActiveInstance and ErrNotFound.
func (r *Registry) GetActive(ctx context.Context) (types.Instance, error) {
	var inst types.Instance
	return inst, r.store.With(ctx, func(idx *Index) error {
		if idx.Active == "" {
			return fmt.Errorf("%w: %w", ErrNoActiveInstance, ErrNotFound)
		}
		var err error
		inst, err = utils.LookupCopy(idx.Instances, idx.Active, ErrNotFound)
		if err != nil {
			return fmt.Errorf("active instance: %w", err)
		}
		return nil
	})
}

// Get returns a detached copy of alias.
func (r *Registry) Get(ctx context.Context, alias string) (types.Instance, error) {
	var inst types.Instance
	return inst, r.store.With(ctx, func(idx *Index) error {
		var err error
		inst, err = utils.LookupCopy(idx.Instances, alias, ErrNotFound)
		return err
	})
}

// Update applies mutate to alias and persists the result with a bumped
// revision. Nothing is written when mutate returns an error. The returned
// value is the record as persisted.
func (r *Registry) Update(ctx context.Context, alias string, mutate func(*types.Instance) error) (types.Instance, error) {
	var out types.Instance
	now := r.now()
	return out, r.store.Update(ctx, func(idx *Index) error {
		cur := idx.Instances[alias]
		if cur == nil {
			return fmt.Errorf("%q: %w", alias, ErrNotFound)
		}
		next := *cur
		if err := mutate(&next); err != nil {
			return err
		}
		// identity is not a mutable field
		next.Alias = alias
		if err := idx.checkInstanceID(alias, next.InstanceID); err != nil {
			return err
		}
		next.Revision = cur.Revision + 1
		next.UpdatedAt = now
		idx.Instances[alias] = &next
		out = next
		return nil
	})
}

// List takes a consistent snapshot of the registry.
func (r *Registry) List(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	return snap, r.store.With(ctx, func(idx *Index) error {
		snap.active = idx.Active
		snap.instances = make(map[string]types.Instance, len(idx.Instances))
		for alias, inst := range idx.Instances {
			if inst != nil {
				snap.instances[alias] = *inst
			}
		}
		return nil
	})
}

// Snapshot is a point-in-time, detached view of the registry.
type Snapshot struct {
	active    string
	instances map[string]types.Instance
}

// Active returns the active alias, or "" when none is selected.
func (s *Snapshot) Active() string { return s.active }

// Len returns the number of instances.
func (s *Snapshot) Len() int { return len(s.instances) }

// All yields (alias, instance) in alias order. The sequence may be ranged
// over any number of times.
func (s *Snapshot) All() iter.Seq2[string, types.Instance] {
	return func(yield func(string, types.Instance) bool) {
		for _, alias := range utils.SortedKeys(s.instances) {
			if !yield(alias, s.instances[alias]) {
				return
			}
		}
	}
}
