package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// PolicyTypeList returns the registered policy type names
func (e *Engine) PolicyTypeList() []string {
	return e.policies.Types()
}

// PolicyTypeSchema returns the spec schema of a policy type
func (e *Engine) PolicyTypeSchema(name string) (map[string]interface{}, error) {
	return e.policies.Schema(name)
}

// PolicyCreateRequest carries the inputs for PolicyCreate
type PolicyCreateRequest struct {
	Name     string
	Project  string
	Type     string
	Spec     map[string]interface{}
	Level    int
	Cooldown time.Duration
}

// PolicyCreate validates the spec against the type's constructor and
// persists the policy row.
func (e *Engine) PolicyCreate(req PolicyCreateRequest) (*types.Policy, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("policy name not specified")
	}

	row := &types.Policy{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Project:  req.Project,
		Type:     req.Type,
		Spec:     req.Spec,
		Level:    req.Level,
		Cooldown: req.Cooldown,
	}
	// Constructing the plugin validates both the type and the spec
	if _, err := e.policies.New(row); err != nil {
		return nil, err
	}
	if err := e.store.CreatePolicy(row); err != nil {
		return nil, err
	}
	return row, nil
}

// PolicyGet returns the policy row
func (e *Engine) PolicyGet(id string, showDeleted bool) (*types.Policy, error) {
	return e.store.GetPolicy(id, showDeleted)
}

// PolicyList returns policies in the project
func (e *Engine) PolicyList(project string, showDeleted bool) ([]*types.Policy, error) {
	return e.store.ListPolicies(project, showDeleted)
}

// PolicyUpdate changes only name, level and cooldown; the spec is immutable
func (e *Engine) PolicyUpdate(id, name string, level int, cooldown time.Duration) (*types.Policy, error) {
	row, err := e.store.GetPolicy(id, false)
	if err != nil {
		return nil, err
	}
	if name != "" {
		row.Name = name
	}
	if level > 0 {
		row.Level = level
	}
	if cooldown > 0 {
		row.Cooldown = cooldown
	}
	if err := e.store.UpdatePolicy(row); err != nil {
		return nil, err
	}
	return row, nil
}

// PolicyDelete soft-deletes the policy unless a cluster still binds it
func (e *Engine) PolicyDelete(id string) error {
	if _, err := e.store.GetPolicy(id, false); err != nil {
		return err
	}

	clusters, err := e.store.ListClusters(storage.ClusterFilter{})
	if err != nil {
		return err
	}
	for _, cluster := range clusters {
		bindings, err := e.store.ListClusterPolicies(cluster.ID)
		if err != nil {
			return err
		}
		for _, binding := range bindings {
			if binding.PolicyID == id {
				return errdefs.Conflict("policy %s still attached to cluster %s", id, cluster.ID)
			}
		}
	}
	return e.store.DeletePolicy(id)
}
