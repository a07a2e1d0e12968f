package registry

import (
	"fmt"

	"github.com/projecteru2/remote/types"
)

// Index is the persisted registry document.
type Index struct {
	Active    string                     `json:"active,omitempty" yaml:"active,omitempty"`
	Instances map[string]*types.Instance `json:"instances" yaml:"instances"`
}

// Init implements storage.Initer.
func (idx *Index) Init() {
	if idx.Instances == nil {
		idx.Instances = make(map[string]*types.Instance)
	}
}

// checkInstanceID enforces that no other alias manages the same cloud resource.
func (idx *Index) checkInstanceID(alias, instanceID string) error {
	if instanceID == "" {
		return nil
	}
	for other, inst := range idx.Instances {
		if inst == nil || other == alias {
			continue
		}
		if inst.InstanceID == instanceID {
			return fmt.Errorf("%s already managed as %q: %w", instanceID, other, ErrDuplicateInstanceID)
		}
	}
	return nil
}
