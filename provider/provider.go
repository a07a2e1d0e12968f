package provider

import (
	"context"
	"fmt"
	"iter"

	"github.com/projecteru2/remote/types"
)

// Provider is the capability set every cloud backend implements. It holds
// no lifecycle logic and caches no status; the registry owns the cache.
type Provider interface {
	Kind() types.ProviderKind

	Describe(ctx context.Context, inst types.Instance) (*types.ObservedStatus, error)
	Start(ctx context.Context, inst types.Instance) error
	Stop(ctx context.Context, inst types.Instance) error
	// Resize changes the machine type. Must fail with KindInvalidState while
	// the instance is running.
	Resize(ctx context.Context, inst types.Instance, newType string) error
	Terminate(ctx context.Context, inst types.Instance) error
	// ListAvailable lazily enumerates instances visible to profile,
	// whether or not they are registered.
	ListAvailable(ctx context.Context, profile string) iter.Seq2[types.InstanceDescriptor, error]
}

// Provisioner is implemented by providers that can create new instances.
type Provisioner interface {
	Provision(ctx context.Context, inst types.Instance, req types.ProvisionRequest) (string, error)
}

// Resolver selects the Provider for a kind.
type Resolver interface {
	Resolve(types.ProviderKind) (Provider, error)
}

// Map is a Resolver backed by a fixed set of providers.
type Map map[types.ProviderKind]Provider

// NewMap indexes providers by their Kind.
func NewMap(providers ...Provider) Map {
	m := make(Map, len(providers))
	for _, p := range providers {
		m[p.Kind()] = p
	}
	return m
}

// Resolve implements Resolver.
func (m Map) Resolve(kind types.ProviderKind) (Provider, error) {
	p, ok := m[kind]
	if !ok || p == nil {
		return nil, fmt.Errorf("no provider registered for %q", kind)
	}
	return p, nil
}
