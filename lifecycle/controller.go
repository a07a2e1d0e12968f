package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/projecteru2/remote/config"
	"github.com/projecteru2/remote/provider"
	"github.com/projecteru2/remote/registry"
	"github.com/projecteru2/remote/types"
	"github.com/projecteru2/remote/utils"
)

// claimAttempts bounds how often a lost compare-and-swap is re-evaluated
// before giving up with ErrConcurrentModification.
const claimAttempts = 3

// Progress is reported after every confirmation poll.
type Progress struct {
	Alias   string
	Op      string
	Status  types.Status
	Attempt int
}

// Result describes the outcome of a lifecycle operation.
type Result struct {
	Instance types.Instance
	Previous types.Status
	// Changed is false when the instance was already at the target and no
	// state-changing provider call was made.
	Changed bool
}

// Controller drives instances through their lifecycle. It never keeps its
// own copy of a record: it reads detached snapshots from the registry,
// talks to the provider without holding the registry lock, and writes
// results back through registry.Update.
type Controller struct {
	reg       *registry.Registry
	providers provider.Resolver
	poll      utils.PollConfig
	ttl       time.Duration
	owner     string
	now       func() time.Time
	progress  func(Progress)
}

// Option customises a Controller.
type Option func(*Controller)

// WithProgress installs a callback invoked during confirmation polling.
func WithProgress(fn func(Progress)) Option {
	return func(c *Controller) { c.progress = fn }
}

// WithOwner overrides the random per-process owner id used in claims.
func WithOwner(owner string) Option {
	return func(c *Controller) { c.owner = owner }
}

// New builds a Controller over reg using providers for cloud calls.
func New(reg *registry.Registry, providers provider.Resolver, conf *config.Config, opts ...Option) *Controller {
	c := &Controller{
		reg:       reg,
		providers: providers,
		poll:      conf.Poll,
		ttl:       conf.TransitionTTL,
		owner:     uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Owner returns the id this controller stamps on its claims.
func (c *Controller) Owner() string { return c.owner }

func (c *Controller) activeAlias(ctx context.Context) (string, error) {
	inst, err := c.reg.GetActive(ctx)
	if err != nil {
		return "", err
	}
	return inst.Alias, nil
}

func (c *Controller) resolve(inst types.Instance) (provider.Provider, error) {
	p, err := c.providers.Resolve(inst.Provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inst.Alias, err)
	}
	return p, nil
}

// busy reports whether another live invocation holds a claim on inst.
func (c *Controller) busy(inst types.Instance) bool {
	t := inst.Transition
	return t != nil && t.Owner != c.owner && !t.Expired(c.now(), c.ttl)
}

func (c *Controller) report(alias, op string, s types.Status, attempt int) {
	if c.progress != nil {
		c.progress(Progress{Alias: alias, Op: op, Status: s, Attempt: attempt})
	}
}
