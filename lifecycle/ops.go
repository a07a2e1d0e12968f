package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/remote/provider"
	"github.com/projecteru2/remote/types"
)

func invalid(op string, s types.Status) error {
	return fmt.Errorf("cannot %s from %s: %w", op, s, ErrInvalidTransition)
}

var startOp = opSpec{
	name:    "start",
	target:  types.StatusRunning,
	passing: []types.Status{types.StatusStarting, types.StatusStopped},
	decide: func(_ types.Instance, obs *types.ObservedStatus) (action, error) {
		switch obs.Status {
		case types.StatusRunning:
			return actDone, nil
		case types.StatusStarting:
			return actWait, nil
		case types.StatusStopped:
			return actCall, nil
		default:
			return actDone, invalid("start", obs.Status)
		}
	},
	call: func(ctx context.Context, p provider.Provider, inst types.Instance) error {
		return p.Start(ctx, inst)
	},
}

var stopOp = opSpec{
	name:    "stop",
	target:  types.StatusStopped,
	passing: []types.Status{types.StatusStopping, types.StatusRunning},
	decide: func(_ types.Instance, obs *types.ObservedStatus) (action, error) {
		switch obs.Status {
		case types.StatusStopped:
			return actDone, nil
		case types.StatusStopping:
			return actWait, nil
		case types.StatusRunning:
			return actCall, nil
		default:
			return actDone, invalid("stop", obs.Status)
		}
	},
	call: func(ctx context.Context, p provider.Provider, inst types.Instance) error {
		return p.Stop(ctx, inst)
	},
	apply: func(inst *types.Instance) { inst.PublicDNS = "" },
}

func resizeOp(newType string) opSpec {
	return opSpec{
		name: "resize",
		decide: func(inst types.Instance, obs *types.ObservedStatus) (action, error) {
			switch obs.Status {
			case types.StatusRunning, types.StatusStarting:
				return actDone, fmt.Errorf("%s is %s: %w", inst.Alias, obs.Status, ErrResizeRequiresStop)
			case types.StatusStopped:
				current := obs.InstanceType
				if current == "" {
					current = inst.Type
				}
				if current == newType {
					return actDone, nil
				}
				return actCall, nil
			default:
				return actDone, invalid("resize", obs.Status)
			}
		},
		call: func(ctx context.Context, p provider.Provider, inst types.Instance) error {
			return p.Resize(ctx, inst, newType)
		},
		apply: func(inst *types.Instance) { inst.Type = newType },
	}
}

var terminateOp = opSpec{
	name: "terminate",
	decide: func(_ types.Instance, obs *types.ObservedStatus) (action, error) {
		if obs.Status == types.StatusTerminated {
			return actDone, invalid("terminate", obs.Status)
		}
		return actCall, nil
	},
	call: func(ctx context.Context, p provider.Provider, inst types.Instance) error {
		return p.Terminate(ctx, inst)
	},
	apply: func(inst *types.Instance) {
		inst.Status = types.StatusTerminated
		inst.PublicDNS = ""
	},
}

var provisionOp = opSpec{
	name:    "provision",
	target:  types.StatusRunning,
	passing: []types.Status{types.StatusStarting},
}

// Start brings the active instance to running and waits until the provider
// confirms it. Starting an already running instance is a no-op; one that is
// already starting is waited on without another provider call.
func (c *Controller) Start(ctx context.Context) (Result, error) {
	alias, err := c.activeAlias(ctx)
	if err != nil {
		return Result{}, err
	}
	return c.run(ctx, alias, startOp)
}

// Stop brings the active instance to stopped and waits until the provider
// confirms it. Stopping an already stopped instance is a no-op; one that is
// already stopping is waited on without another provider call.
func (c *Controller) Stop(ctx context.Context) (Result, error) {
	alias, err := c.activeAlias(ctx)
	if err != nil {
		return Result{}, err
	}
	return c.run(ctx, alias, stopOp)
}

// Resize changes the instance type of the active instance. The instance
// must be stopped; it is never stopped implicitly.
func (c *Controller) Resize(ctx context.Context, newType string) (Result, error) {
	if newType == "" {
		return Result{}, errors.New("resize: instance type is required")
	}
	alias, err := c.activeAlias(ctx)
	if err != nil {
		return Result{}, err
	}
	return c.run(ctx, alias, resizeOp(newType))
}

// Terminate permanently destroys the cloud instance behind the active alias.
// The record stays in the registry, marked terminated.
func (c *Controller) Terminate(ctx context.Context) (Result, error) {
	alias, err := c.activeAlias(ctx)
	if err != nil {
		return Result{}, err
	}
	return c.run(ctx, alias, terminateOp)
}

// Provision launches a new cloud instance for the active record, which must
// not yet carry an instance id, and waits for it to run.
func (c *Controller) Provision(ctx context.Context, req types.ProvisionRequest) (Result, error) {
	logger := log.WithFunc("lifecycle.provision")
	alias, err := c.activeAlias(ctx)
	if err != nil {
		return Result{}, err
	}
	for range claimAttempts {
		snap, err := c.reg.Get(ctx, alias)
		if err != nil {
			return Result{}, err
		}
		if snap.Provisioned() {
			return Result{Instance: snap}, fmt.Errorf("provision %s: already bound to %s: %w", alias, snap.InstanceID, ErrInvalidTransition)
		}
		if c.busy(snap) {
			return Result{Instance: snap}, fmt.Errorf("provision %s: %s in progress: %w", alias, snap.Transition.Op, ErrConcurrentModification)
		}
		p, err := c.resolve(snap)
		if err != nil {
			return Result{Instance: snap}, err
		}
		pv, ok := p.(provider.Provisioner)
		if !ok {
			return Result{Instance: snap}, fmt.Errorf("provision %s on %s: %w", alias, p.Kind(), ErrUnsupported)
		}

		claimed, err := c.claim(ctx, snap, nil, provisionOp.name, true)
		if errors.Is(err, errRevisionChanged) {
			continue
		}
		if err != nil {
			return Result{Instance: snap}, fmt.Errorf("provision %s: %w", alias, err)
		}

		id, err := pv.Provision(ctx, claimed, req)
		if err != nil {
			if _, ferr := c.finish(ctx, claimed, nil, nil); ferr != nil {
				logger.Warnf(ctx, "release claim on %s: %v", alias, ferr)
			}
			return Result{Instance: claimed}, fmt.Errorf("provision %s: %w", alias, err)
		}

		rec, err := c.reg.Update(context.WithoutCancel(ctx), alias, func(cur *types.Instance) error {
			if !c.owns(cur, claimed) {
				return ErrConcurrentModification
			}
			cur.InstanceID = id
			cur.Status = types.StatusStarting
			if req.InstanceType != "" {
				cur.Type = req.InstanceType
			}
			return nil
		})
		if err != nil {
			logger.Errorf(ctx, err, "launched %s for %s but could not record it", id, alias)
			return Result{Instance: claimed}, fmt.Errorf("provision %s: record %s: %w", alias, id, err)
		}
		logger.Infof(ctx, "launched %s for %s", id, alias)

		last, confirmErr := c.confirm(ctx, p, rec, provisionOp, false)
		final, err := c.finish(ctx, rec, last, nil)
		if err != nil {
			return Result{Instance: rec}, fmt.Errorf("provision %s: %w", alias, errors.Join(confirmErr, err))
		}
		res := Result{Instance: final, Previous: types.StatusUnknown, Changed: true}
		if confirmErr != nil {
			return res, fmt.Errorf("provision %s: %w", alias, confirmErr)
		}
		return res, nil
	}
	return Result{}, fmt.Errorf("provision %s: lost claim %d times: %w", alias, claimAttempts, ErrConcurrentModification)
}
