package engine

import (
	"github.com/google/uuid"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// ProfileTypeList returns the registered profile type names
func (e *Engine) ProfileTypeList() []string {
	return e.profiles.Types()
}

// ProfileTypeSchema returns the spec schema of a profile type
func (e *Engine) ProfileTypeSchema(name string) (map[string]interface{}, error) {
	return e.profiles.Schema(name)
}

// ProfileCreateRequest carries the inputs for ProfileCreate
type ProfileCreateRequest struct {
	Name    string
	Project string
	Type    string
	Spec    map[string]interface{}
	Tags    map[string]string
}

// ProfileCreate validates the spec against the type's driver and persists
// the profile row.
func (e *Engine) ProfileCreate(req ProfileCreateRequest) (*types.Profile, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("profile name not specified")
	}

	prof := &types.Profile{
		ID:      uuid.NewString(),
		Name:    req.Name,
		Project: req.Project,
		Type:    req.Type,
		Spec:    req.Spec,
		Tags:    req.Tags,
	}
	// Constructing a driver validates both the type and the spec
	if _, err := e.profiles.DriverFor(prof); err != nil {
		return nil, err
	}
	if err := e.store.CreateProfile(prof); err != nil {
		return nil, err
	}
	return prof, nil
}

// ProfileGet returns the profile row
func (e *Engine) ProfileGet(id string, showDeleted bool) (*types.Profile, error) {
	return e.store.GetProfile(id, showDeleted)
}

// ProfileList returns profiles in the project
func (e *Engine) ProfileList(project string, showDeleted bool) ([]*types.Profile, error) {
	return e.store.ListProfiles(project, showDeleted)
}

// ProfileUpdate changes only name and tags. The spec is immutable once the
// profile exists; spec changes mean a new profile row.
func (e *Engine) ProfileUpdate(id, name string, tags map[string]string) (*types.Profile, error) {
	prof, err := e.store.GetProfile(id, false)
	if err != nil {
		return nil, err
	}
	if name != "" {
		prof.Name = name
	}
	if tags != nil {
		prof.Tags = tags
	}
	if err := e.store.UpdateProfile(prof); err != nil {
		return nil, err
	}
	return prof, nil
}

// ProfileDelete soft-deletes the profile unless a live cluster or node
// still references it.
func (e *Engine) ProfileDelete(id string) error {
	if _, err := e.store.GetProfile(id, false); err != nil {
		return err
	}

	clusters, err := e.store.ListClusters(storage.ClusterFilter{})
	if err != nil {
		return err
	}
	for _, cluster := range clusters {
		if cluster.ProfileID == id {
			return errdefs.Conflict("profile %s still used by cluster %s", id, cluster.ID)
		}
	}
	nodes, err := e.store.ListNodes(storage.NodeFilter{})
	if err != nil {
		return err
	}
	for _, node := range nodes {
		if node.ProfileID == id {
			return errdefs.Conflict("profile %s still used by node %s", id, node.ID)
		}
	}
	return e.store.DeleteProfile(id)
}
