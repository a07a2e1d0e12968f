package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/remote/provider"
	"github.com/projecteru2/remote/types"
	"github.com/projecteru2/remote/utils"
)

type action int

const (
	actDone action = iota // already at target, nothing to call
	actWait               // another invocation is driving it; only confirm
	actCall               // claim and call the provider
)

// opSpec describes one state-changing operation for run.
type opSpec struct {
	name string
	// target is the status confirmation polls for. Empty skips polling.
	target types.Status
	// passing lists statuses tolerated while polling besides target.
	passing []types.Status
	decide  func(inst types.Instance, obs *types.ObservedStatus) (action, error)
	call    func(ctx context.Context, p provider.Provider, inst types.Instance) error
	// apply runs on the persisted record after a successful call and confirmation.
	apply func(inst *types.Instance)
}

// run executes op against alias:
//  1. snapshot the record (lock held only for the read)
//  2. describe without the lock
//  3. claim under the lock, compare-and-swap on Revision
//  4. call the provider and confirm without the lock
//  5. persist the outcome, provided the claim is still ours
func (c *Controller) run(ctx context.Context, alias string, op opSpec) (Result, error) {
	logger := log.WithFunc("lifecycle." + op.name)
	for attempt := range claimAttempts {
		snap, err := c.reg.Get(ctx, alias)
		if err != nil {
			return Result{}, err
		}
		if !snap.Provisioned() {
			return Result{Instance: snap}, fmt.Errorf("%s %s: not provisioned: %w", op.name, alias, ErrInvalidTransition)
		}
		p, err := c.resolve(snap)
		if err != nil {
			return Result{Instance: snap}, err
		}
		obs, err := p.Describe(ctx, snap)
		if err != nil {
			return Result{Instance: snap}, fmt.Errorf("%s %s: describe: %w", op.name, alias, err)
		}

		act, decideErr := op.decide(snap, obs)
		if decideErr == nil && c.busy(snap) {
			switch {
			case snap.Transition.Op != op.name || op.target == "":
				decideErr = fmt.Errorf("%s already in progress by another invocation: %w", snap.Transition.Op, ErrConcurrentModification)
			case act == actCall:
				act = actWait
			}
		}

		claimed, err := c.claim(ctx, snap, obs, op.name, act == actCall && decideErr == nil)
		if errors.Is(err, errRevisionChanged) {
			logger.Debugf(ctx, "%s changed while evaluating (attempt %d), re-reading", alias, attempt+1)
			continue
		}
		if err != nil {
			return Result{Instance: snap}, fmt.Errorf("%s %s: %w", op.name, alias, err)
		}
		res := Result{Instance: claimed, Previous: obs.Status}
		if decideErr != nil {
			return res, fmt.Errorf("%s %s: %w", op.name, alias, decideErr)
		}

		switch act {
		case actDone:
			logger.Infof(ctx, "%s (%s) already %s", alias, snap.InstanceID, obs.Status)
			return res, nil
		case actWait:
			logger.Infof(ctx, "%s (%s) is %s by another invocation, waiting", alias, snap.InstanceID, obs.Status)
			return c.await(ctx, p, claimed, op, obs.Status)
		default:
			return c.execute(ctx, p, claimed, op, obs.Status)
		}
	}
	return Result{}, fmt.Errorf("%s %s: lost claim %d times: %w", op.name, alias, claimAttempts, ErrConcurrentModification)
}

// claim records obs and, when take is set, stamps a transition owned by
// this controller. It fails with errRevisionChanged if the record moved
// since snap was read.
func (c *Controller) claim(ctx context.Context, snap types.Instance, obs *types.ObservedStatus, op string, take bool) (types.Instance, error) {
	now := c.now()
	return c.reg.Update(ctx, snap.Alias, func(cur *types.Instance) error {
		if cur.Revision != snap.Revision {
			return errRevisionChanged
		}
		cur.Observe(obs)
		switch {
		case take:
			cur.Transition = &types.Transition{Op: op, Owner: c.owner, StartedAt: now}
		case cur.Transition != nil && cur.Transition.Expired(now, c.ttl):
			cur.Transition = nil
		}
		return nil
	})
}

// execute performs the claimed provider call, confirms, and persists.
func (c *Controller) execute(ctx context.Context, p provider.Provider, inst types.Instance, op opSpec, prev types.Status) (Result, error) {
	logger := log.WithFunc("lifecycle." + op.name)
	if err := op.call(ctx, p, inst); err != nil {
		if _, ferr := c.finish(ctx, inst, nil, nil); ferr != nil {
			logger.Warnf(ctx, "release claim on %s: %v", inst.Alias, ferr)
		}
		return Result{Instance: inst, Previous: prev}, fmt.Errorf("%s %s: %w", op.name, inst.Alias, err)
	}

	var last *types.ObservedStatus
	var confirmErr error
	if op.target != "" {
		last, confirmErr = c.confirm(ctx, p, inst, op, false)
	}
	apply := op.apply
	if confirmErr != nil {
		apply = nil
	}
	final, err := c.finish(ctx, inst, last, apply)
	if err != nil {
		return Result{Instance: inst, Previous: prev}, fmt.Errorf("%s %s: %w", op.name, inst.Alias, errors.Join(confirmErr, err))
	}
	res := Result{Instance: final, Previous: prev, Changed: true}
	if confirmErr != nil {
		return res, fmt.Errorf("%s %s: %w", op.name, inst.Alias, confirmErr)
	}
	logger.Infof(ctx, "%s (%s): %s -> %s", inst.Alias, inst.InstanceID, prev, final.Status)
	return res, nil
}

// await confirms a transition driven by another invocation, without
// calling the provider's state-changing API.
func (c *Controller) await(ctx context.Context, p provider.Provider, inst types.Instance, op opSpec, prev types.Status) (Result, error) {
	last, err := c.confirm(ctx, p, inst, op, true)
	if last != nil {
		if rec, oerr := c.observe(ctx, inst.Alias, inst.InstanceID, last); oerr == nil {
			inst = rec
		} else {
			err = errors.Join(err, oerr)
		}
	}
	if err != nil {
		return Result{Instance: inst, Previous: prev}, fmt.Errorf("%s %s: %w", op.name, inst.Alias, err)
	}
	return Result{Instance: inst, Previous: prev}, nil
}

// confirm polls Describe until op.target, bounded by the poll config.
// Transient provider errors count as a failed check. With watch set, it
// also gives up once the owning invocation has released its claim and the
// instance is no longer moving.
func (c *Controller) confirm(ctx context.Context, p provider.Provider, inst types.Instance, op opSpec, watch bool) (*types.ObservedStatus, error) {
	var last *types.ObservedStatus
	err := utils.Poll(ctx, c.poll, func(n int) (bool, error) {
		obs, err := p.Describe(ctx, inst)
		if err != nil {
			if provider.IsRetryable(err) {
				return false, nil
			}
			return false, err
		}
		last = obs
		c.report(inst.Alias, op.name, obs.Status, n+1)
		if obs.Status == op.target {
			return true, nil
		}
		if !slices.Contains(op.passing, obs.Status) {
			return false, fmt.Errorf("reached %s while waiting for %s: %w", obs.Status, op.target, ErrInvalidTransition)
		}
		if watch && !obs.Status.Transient() {
			cur, err := c.reg.Get(ctx, inst.Alias)
			if err != nil {
				return false, err
			}
			if cur.Transition == nil || cur.Transition.Op != op.name {
				return false, fmt.Errorf("other invocation's %s ended at %s: %w", op.name, obs.Status, ErrConcurrentModification)
			}
		}
		return false, nil
	})
	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, utils.ErrPollExhausted):
		status := types.StatusUnknown
		if last != nil {
			status = last.Status
		}
		return last, fmt.Errorf("not %s after %d checks, last seen %s: %w", op.target, c.poll.MaxAttempts, status, ErrConfirmationTimeout)
	default:
		return last, err
	}
}

// finish persists obs, applies apply, and releases the claim. It runs on a
// non-cancellable context so an interrupt still leaves the last observed
// state on disk.
func (c *Controller) finish(ctx context.Context, inst types.Instance, obs *types.ObservedStatus, apply func(*types.Instance)) (types.Instance, error) {
	return c.reg.Update(context.WithoutCancel(ctx), inst.Alias, func(cur *types.Instance) error {
		if !c.owns(cur, inst) {
			return ErrConcurrentModification
		}
		cur.Observe(obs)
		if apply != nil {
			apply(cur)
		}
		cur.Transition = nil
		return nil
	})
}

// observe records obs without touching any claim.
func (c *Controller) observe(ctx context.Context, alias, instanceID string, obs *types.ObservedStatus) (types.Instance, error) {
	return c.reg.Update(context.WithoutCancel(ctx), alias, func(cur *types.Instance) error {
		if cur.InstanceID != instanceID {
			return ErrConcurrentModification
		}
		cur.Observe(obs)
		return nil
	})
}

// owns reports whether cur still carries the claim this controller made on inst.
func (c *Controller) owns(cur *types.Instance, inst types.Instance) bool {
	return cur.InstanceID == inst.InstanceID &&
		cur.Transition != nil && cur.Transition.Owner == c.owner
}
