package types

import (
	"fmt"
	"strings"
	"time"
)

// ProviderKind selects the cloud backend that manages an instance.
type ProviderKind string

const (
	ProviderAWS ProviderKind = "aws"
)

// ParseProviderKind normalises a user-supplied cloud name ("AWS", "aws").
func ParseProviderKind(s string) (ProviderKind, error) {
	switch k := ProviderKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ProviderAWS:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported cloud provider %q", s)
	}
}

// Instance is the persisted configuration of one remote instance, keyed by alias.
type Instance struct {
	Alias      string       `json:"alias" yaml:"alias"`
	Provider   ProviderKind `json:"provider" yaml:"provider"`
	Profile    string       `json:"profile" yaml:"profile"`
	Region     string       `json:"region,omitempty" yaml:"region,omitempty"`
	InstanceID string       `json:"instance_id,omitempty" yaml:"instance_id,omitempty"` // empty until provisioned
	Type       string       `json:"instance_type,omitempty" yaml:"instance_type,omitempty"`

	// SSH access.
	User    string `json:"user,omitempty" yaml:"user,omitempty"`
	KeyPath string `json:"key_path,omitempty" yaml:"key_path,omitempty"`

	// Cached view of the provider, possibly stale.
	Status        Status     `json:"status" yaml:"status"`
	PublicDNS     string     `json:"public_dns,omitempty" yaml:"public_dns,omitempty"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty" yaml:"last_refreshed,omitempty"`

	// Revision is bumped on every persisted change and used as a
	// compare-and-swap token between invocations.
	Revision   uint64      `json:"revision" yaml:"revision"`
	Transition *Transition `json:"transition,omitempty" yaml:"transition,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Provisioned reports whether the cloud resource exists (or existed).
func (i *Instance) Provisioned() bool { return i.InstanceID != "" }

// Observe copies an observed provider view into the cached fields.
func (i *Instance) Observe(obs *ObservedStatus) {
	if obs == nil {
		return
	}
	i.Status = obs.Status
	i.PublicDNS = obs.PublicDNS
	if obs.InstanceType != "" {
		i.Type = obs.InstanceType
	}
	t := obs.ObservedAt
	i.LastRefreshed = &t
}

// Transition marks a lifecycle operation claimed by one invocation.
type Transition struct {
	Op        string    `json:"op" yaml:"op"`
	Owner     string    `json:"owner" yaml:"owner"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}

// Expired reports whether the claim is older than ttl and may be ignored.
func (t *Transition) Expired(now time.Time, ttl time.Duration) bool {
	return t == nil || now.Sub(t.StartedAt) > ttl
}

// ObservedStatus is the provider-authoritative view returned by Describe.
type ObservedStatus struct {
	InstanceID   string
	Status       Status
	RawState     string // provider-native state name
	InstanceType string
	PublicDNS    string
	Tags         map[string]string
	ObservedAt   time.Time
}

// InstanceDescriptor describes an instance visible to a profile, managed or not.
type InstanceDescriptor struct {
	InstanceID   string
	Name         string
	InstanceType string
	Status       Status
	PublicDNS    string
	Zone         string
	LaunchedAt   *time.Time
	Tags         map[string]string
}

// ProvisionRequest carries the provider-specific inputs for creating an instance.
type ProvisionRequest struct {
	Image          string
	InstanceType   string
	KeyName        string
	SubnetID       string
	SecurityGroups []string
	Tags           map[string]string
}

// Endpoint is what an SSH or SCP session needs to reach a running instance.
type Endpoint struct {
	Alias   string
	User    string
	Host    string
	KeyPath string
}

// Target renders user@host.
func (e Endpoint) Target() string {
	if e.User == "" {
		return e.Host
	}
	return e.User + "@" + e.Host
}
