package lifecycle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/remote/types"
	"github.com/projecteru2/remote/utils"
)

// statusConcurrency bounds parallel Describe calls in StatusAll.
const statusConcurrency = 8

// StatusResult is one row of StatusAll.
type StatusResult struct {
	Alias    string
	Instance types.Instance
	Err      error
}

// Status refreshes the active instance from the provider and records the
// observation. An instance that was never provisioned reports unknown
// without calling the provider.
func (c *Controller) Status(ctx context.Context) (types.Instance, error) {
	alias, err := c.activeAlias(ctx)
	if err != nil {
		return types.Instance{}, err
	}
	return c.status(ctx, alias)
}

func (c *Controller) status(ctx context.Context, alias string) (types.Instance, error) {
	snap, err := c.reg.Get(ctx, alias)
	if err != nil {
		return types.Instance{}, err
	}
	if !snap.Provisioned() {
		return snap, nil
	}
	p, err := c.resolve(snap)
	if err != nil {
		return snap, err
	}
	obs, err := p.Describe(ctx, snap)
	if err != nil {
		return snap, fmt.Errorf("status %s: %w", alias, err)
	}
	return c.observe(ctx, alias, snap.InstanceID, obs)
}

// StatusAll refreshes every registered instance in parallel. A failure on
// one instance is reported in its row and does not abort the others.
func (c *Controller) StatusAll(ctx context.Context) ([]StatusResult, error) {
	snap, err := c.reg.List(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]StatusResult, 0, snap.Len())
	for alias, inst := range snap.All() {
		results = append(results, StatusResult{Alias: alias, Instance: inst})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for i := range results {
		g.Go(func() error {
			inst, err := c.status(gctx, results[i].Alias)
			if err == nil || inst.Alias != "" {
				results[i].Instance = inst
			}
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

// Connection refreshes the active instance and returns its SSH endpoint.
func (c *Controller) Connection(ctx context.Context) (types.Endpoint, error) {
	inst, err := c.Status(ctx)
	if err != nil {
		return types.Endpoint{}, err
	}
	if inst.Status != types.StatusRunning {
		return types.Endpoint{}, fmt.Errorf("%s is %s: %w", inst.Alias, inst.Status, ErrNotRunning)
	}
	if inst.PublicDNS == "" {
		return types.Endpoint{}, fmt.Errorf("%s: %w", inst.Alias, ErrNoAddress)
	}
	key, err := utils.ExpandHome(inst.KeyPath)
	if err != nil {
		return types.Endpoint{}, err
	}
	return types.Endpoint{Alias: inst.Alias, User: inst.User, Host: inst.PublicDNS, KeyPath: key}, nil
}
