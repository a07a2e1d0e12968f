// Package fake is an in-memory provider.Provider with scripted transitions,
// used to exercise lifecycle logic without a cloud account.
package fake

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/projecteru2/remote/provider"
	"github.com/projecteru2/remote/types"
)

// compile-time interface checks.
var (
	_ provider.Provider    = (*Provider)(nil)
	_ provider.Provisioner = (*Provider)(nil)
)

// Machine is one simulated cloud instance.
type Machine struct {
	ID      string
	Profile string
	Type    string
	Status  types.Status
	DNS     string
	// Private machines never report a public DNS name.
	Private bool
	// pending counts Describe calls left before a transient status settles.
	pending int
}

// Provider is a concurrency-safe fake cloud.
type Provider struct {
	// Settle is the number of Describe calls a starting/stopping machine
	// needs before reaching its target. Negative means it never settles.
	Settle int

	mu       sync.Mutex
	machines map[string]*Machine
	calls    map[string]int
	failures map[string][]error
	seq      int
}

// New returns an empty fake cloud whose transitions settle after settle describes.
func New(settle int) *Provider {
	return &Provider{
		Settle:   settle,
		machines: make(map[string]*Machine),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// Add seeds a machine.
func (p *Provider) Add(m Machine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mm := m
	if mm.DNS == "" {
		mm.DNS = mm.ID + ".compute.example"
	}
	if mm.Status.Transient() {
		p.begin(&mm, mm.Status)
	}
	p.machines[m.ID] = &mm
}

// Machine returns a copy of the machine with id.
func (p *Provider) Machine(id string) (Machine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.machines[id]
	if !ok {
		return Machine{}, false
	}
	return *m, true
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// FailNext queues errs to be returned by the next calls of op, in order.
func (p *Provider) FailNext(op string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], errs...)
}

func (p *Provider) Kind() types.ProviderKind { return types.ProviderAWS }

func (p *Provider) Describe(_ context.Context, inst types.Instance) (*types.ObservedStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.enter("Describe", inst.InstanceID)
	if err != nil {
		return nil, err
	}
	if m.Status.Transient() && m.pending > 0 {
		m.pending--
		if m.pending == 0 {
			m.settle()
		}
	}
	obs := &types.ObservedStatus{
		InstanceID:   m.ID,
		Status:       m.Status,
		RawState:     string(m.Status),
		InstanceType: m.Type,
		ObservedAt:   time.Now(),
	}
	if m.Status == types.StatusRunning && !m.Private {
		obs.PublicDNS = m.DNS
	}
	return obs, nil
}

func (p *Provider) Start(_ context.Context, inst types.Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.enter("Start", inst.InstanceID)
	if err != nil {
		return err
	}
	switch m.Status {
	case types.StatusRunning, types.StatusStarting:
	case types.StatusStopped:
		p.begin(m, types.StatusStarting)
	default:
		return provider.NewError(provider.KindInvalidState, "Start", m.ID, fmt.Errorf("cannot start from %s", m.Status))
	}
	return nil
}

func (p *Provider) Stop(_ context.Context, inst types.Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.enter("Stop", inst.InstanceID)
	if err != nil {
		return err
	}
	switch m.Status {
	case types.StatusStopped, types.StatusStopping:
	case types.StatusRunning:
		p.begin(m, types.StatusStopping)
	default:
		return provider.NewError(provider.KindInvalidState, "Stop", m.ID, fmt.Errorf("cannot stop from %s", m.Status))
	}
	return nil
}

func (p *Provider) Resize(_ context.Context, inst types.Instance, newType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.enter("Resize", inst.InstanceID)
	if err != nil {
		return err
	}
	if m.Status != types.StatusStopped {
		return provider.NewError(provider.KindInvalidState, "Resize", m.ID, fmt.Errorf("instance is %s", m.Status))
	}
	m.Type = newType
	return nil
}

func (p *Provider) Terminate(_ context.Context, inst types.Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.enter("Terminate", inst.InstanceID)
	if err != nil {
		return err
	}
	m.Status = types.StatusTerminated
	return nil
}

func (p *Provider) Provision(_ context.Context, inst types.Instance, req types.ProvisionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.enter("Provision", ""); err != nil {
		return "", err
	}
	p.seq++
	typ := req.InstanceType
	if typ == "" {
		typ = inst.Type
	}
	m := &Machine{ID: fmt.Sprintf("i-fake%04d", p.seq), Profile: inst.Profile, Type: typ}
	m.DNS = m.ID + ".compute.example"
	p.machines[m.ID] = m
	p.begin(m, types.StatusStarting)
	return m.ID, nil
}

func (p *Provider) ListAvailable(_ context.Context, profile string) iter.Seq2[types.InstanceDescriptor, error] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.enter("ListAvailable", ""); err != nil {
		return func(yield func(types.InstanceDescriptor, error) bool) { yield(types.InstanceDescriptor{}, err) }
	}
	var out []types.InstanceDescriptor
	for _, m := range p.machines {
		if m.Profile != profile {
			continue
		}
		out = append(out, types.InstanceDescriptor{InstanceID: m.ID, InstanceType: m.Type, Status: m.Status})
	}
	slices.SortFunc(out, func(a, b types.InstanceDescriptor) int {
		return strings.Compare(a.InstanceID, b.InstanceID)
	})
	return func(yield func(types.InstanceDescriptor, error) bool) {
		for _, d := range out {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// enter records the call, pops an injected failure, and resolves the
// machine when id is non-empty. Caller holds p.mu.
func (p *Provider) enter(op, id string) (*Machine, error) {
	p.calls[op]++
	if q := p.failures[op]; len(q) > 0 {
		p.failures[op] = q[1:]
		return nil, q[0]
	}
	if id == "" {
		return nil, nil
	}
	m, ok := p.machines[id]
	if !ok {
		return nil, provider.NewError(provider.KindNotFound, op, id, errors.New("no such machine"))
	}
	return m, nil
}

func (p *Provider) begin(m *Machine, s types.Status) {
	m.Status = s
	m.pending = p.Settle
	if p.Settle == 0 {
		m.settle()
	}
}

func (m *Machine) settle() {
	switch m.Status {
	case types.StatusStarting:
		m.Status = types.StatusRunning
	case types.StatusStopping:
		m.Status = types.StatusStopped
	}
}
