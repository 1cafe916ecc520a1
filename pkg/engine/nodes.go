package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// NodeCreateRequest carries the inputs for NodeCreate. A node created
// without a cluster is free and can be joined later.
type NodeCreateRequest struct {
	Name      string
	ClusterID string
	ProfileID string
	Role      string
	Tags      map[string]string
}

// NodeCreate persists the node row in INIT and submits the driving
// NODE_CREATE action.
func (e *Engine) NodeCreate(req NodeCreateRequest) (*types.Node, string, error) {
	if req.Name == "" {
		return nil, "", errdefs.Validation("node name not specified")
	}
	prof, err := e.store.GetProfile(req.ProfileID, false)
	if err != nil {
		return nil, "", err
	}
	if _, err := e.profiles.DriverFor(prof); err != nil {
		return nil, "", err
	}

	node := &types.Node{
		ID:           uuid.NewString(),
		Name:         req.Name,
		ProfileID:    req.ProfileID,
		Role:         req.Role,
		Status:       types.NodeStatusInit,
		StatusReason: "node initialized",
		Tags:         req.Tags,
		Data:         map[string]interface{}{},
	}

	if req.ClusterID != "" {
		cluster, err := e.store.GetCluster(req.ClusterID, false)
		if err != nil {
			return nil, "", err
		}
		clusterProf, err := e.store.GetProfile(cluster.ProfileID, false)
		if err != nil {
			return nil, "", err
		}
		if prof.Type != clusterProf.Type {
			return nil, "", errdefs.Validation(
				"node profile type %q does not match cluster profile type %q", prof.Type, clusterProf.Type)
		}
		index, err := e.store.NextNodeIndex(cluster.ID)
		if err != nil {
			return nil, "", err
		}
		node.ClusterID = cluster.ID
		node.Index = index
	}

	if err := e.store.CreateNode(node); err != nil {
		return nil, "", err
	}
	actionID, err := e.submitAction(types.NodeCreate, node.ID,
		fmt.Sprintf("node_create_%s", shortID(node.ID)), nil, 0)
	if err != nil {
		return nil, "", err
	}
	return node, actionID, nil
}

// NodeGet returns the node row
func (e *Engine) NodeGet(id string, showDeleted bool) (*types.Node, error) {
	return e.store.GetNode(id, showDeleted)
}

// NodeList returns nodes matching the filter
func (e *Engine) NodeList(filter storage.NodeFilter) ([]*types.Node, error) {
	return e.store.ListNodes(filter)
}

// NodeUpdate submits a NODE_UPDATE action carrying the new profile
func (e *Engine) NodeUpdate(id, newProfileID string) (string, error) {
	if _, err := e.store.GetNode(id, false); err != nil {
		return "", err
	}
	if _, err := e.store.GetProfile(newProfileID, false); err != nil {
		return "", err
	}
	return e.submitAction(types.NodeUpdate, id,
		fmt.Sprintf("node_update_%s", shortID(id)),
		map[string]interface{}{"new_profile_id": newProfileID}, 0)
}

// NodeDelete submits a NODE_DELETE action
func (e *Engine) NodeDelete(id string) (string, error) {
	if _, err := e.store.GetNode(id, false); err != nil {
		return "", err
	}
	return e.submitAction(types.NodeDelete, id,
		fmt.Sprintf("node_delete_%s", shortID(id)), nil, 0)
}

// NodeJoin submits a NODE_JOIN action making the node a member of the
// cluster. Profile types must match.
func (e *Engine) NodeJoin(id, clusterID string) (string, error) {
	node, err := e.store.GetNode(id, false)
	if err != nil {
		return "", err
	}
	cluster, err := e.store.GetCluster(clusterID, false)
	if err != nil {
		return "", err
	}
	nodeProf, err := e.store.GetProfile(node.ProfileID, false)
	if err != nil {
		return "", err
	}
	clusterProf, err := e.store.GetProfile(cluster.ProfileID, false)
	if err != nil {
		return "", err
	}
	if nodeProf.Type != clusterProf.Type {
		return "", errdefs.Validation(
			"node profile type %q does not match cluster profile type %q", nodeProf.Type, clusterProf.Type)
	}
	return e.submitAction(types.NodeJoin, id,
		fmt.Sprintf("node_join_%s", shortID(id)),
		map[string]interface{}{"cluster_id": clusterID}, 0)
}

// NodeLeave submits a NODE_LEAVE action removing cluster membership
func (e *Engine) NodeLeave(id string) (string, error) {
	node, err := e.store.GetNode(id, false)
	if err != nil {
		return "", err
	}
	if node.ClusterID == "" {
		return "", errdefs.Validation("node %s is not a member of any cluster", id)
	}
	return e.submitAction(types.NodeLeave, id,
		fmt.Sprintf("node_leave_%s", shortID(id)), nil, 0)
}
