package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// ClusterCreateRequest carries the inputs for ClusterCreate
type ClusterCreateRequest struct {
	Name      string
	Project   string
	ProfileID string
	Size      int
	Timeout   time.Duration
	Tags      map[string]string
}

// ClusterCreate persists the cluster row in INIT and submits the driving
// CLUSTER_CREATE action. The returned action id is what callers poll.
func (e *Engine) ClusterCreate(req ClusterCreateRequest) (*types.Cluster, string, error) {
	if req.Name == "" {
		return nil, "", errdefs.Validation("cluster name not specified")
	}
	if req.Size < 0 {
		return nil, "", errdefs.Validation("cluster size must not be negative, got %d", req.Size)
	}
	prof, err := e.store.GetProfile(req.ProfileID, false)
	if err != nil {
		return nil, "", err
	}
	if _, err := e.profiles.DriverFor(prof); err != nil {
		return nil, "", err
	}

	cluster := &types.Cluster{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Project:      req.Project,
		ProfileID:    req.ProfileID,
		Size:         req.Size,
		Timeout:      req.Timeout,
		Status:       types.ClusterStatusInit,
		StatusReason: "cluster initialized",
		Tags:         req.Tags,
	}
	if err := e.store.CreateCluster(cluster); err != nil {
		return nil, "", err
	}

	actionID, err := e.submitAction(types.ClusterCreate, cluster.ID,
		fmt.Sprintf("cluster_create_%s", shortID(cluster.ID)), nil, req.Timeout)
	if err != nil {
		return nil, "", err
	}
	return cluster, actionID, nil
}

// ClusterGet returns the cluster row
func (e *Engine) ClusterGet(id string, showDeleted bool) (*types.Cluster, error) {
	return e.store.GetCluster(id, showDeleted)
}

// ClusterList returns clusters matching the filter
func (e *Engine) ClusterList(filter storage.ClusterFilter) ([]*types.Cluster, error) {
	return e.store.ListClusters(filter)
}

// ClusterUpdate submits a CLUSTER_UPDATE action. Inputs may carry
// new_profile_id, name, tags and timeout.
func (e *Engine) ClusterUpdate(id string, inputs map[string]interface{}) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	return e.submitAction(types.ClusterUpdate, id,
		fmt.Sprintf("cluster_update_%s", shortID(id)), inputs, 0)
}

// ClusterDelete submits a CLUSTER_DELETE action
func (e *Engine) ClusterDelete(id string) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	return e.submitAction(types.ClusterDelete, id,
		fmt.Sprintf("cluster_delete_%s", shortID(id)), nil, 0)
}

// ClusterAddNodes submits a CLUSTER_ADD_NODES action for the given node ids
func (e *Engine) ClusterAddNodes(id string, nodeIDs []string) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	if len(nodeIDs) == 0 {
		return "", errdefs.Validation("no nodes specified")
	}
	return e.submitAction(types.ClusterAddNodes, id,
		fmt.Sprintf("cluster_add_nodes_%s", shortID(id)),
		map[string]interface{}{"nodes": nodeIDs}, 0)
}

// ClusterDelNodes submits a CLUSTER_DEL_NODES action for the given node ids
func (e *Engine) ClusterDelNodes(id string, nodeIDs []string) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	if len(nodeIDs) == 0 {
		return "", errdefs.Validation("no nodes specified")
	}
	return e.submitAction(types.ClusterDelNodes, id,
		fmt.Sprintf("cluster_del_nodes_%s", shortID(id)),
		map[string]interface{}{"nodes": nodeIDs}, 0)
}

// ClusterScaleOut submits a CLUSTER_SCALE_OUT action. A zero count defers
// to the creation policy, defaulting to one.
func (e *Engine) ClusterScaleOut(id string, count int) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	if count < 0 {
		return "", errdefs.Validation("count must not be negative, got %d", count)
	}
	return e.submitAction(types.ClusterScaleOut, id,
		fmt.Sprintf("cluster_scale_out_%s", shortID(id)),
		map[string]interface{}{"count": count}, 0)
}

// ClusterScaleIn submits a CLUSTER_SCALE_IN action. A zero count defers to
// the deletion policy, defaulting to one.
func (e *Engine) ClusterScaleIn(id string, count int) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	if count < 0 {
		return "", errdefs.Validation("count must not be negative, got %d", count)
	}
	return e.submitAction(types.ClusterScaleIn, id,
		fmt.Sprintf("cluster_scale_in_%s", shortID(id)),
		map[string]interface{}{"count": count}, 0)
}

// ClusterPolicyAttach submits a CLUSTER_ATTACH_POLICY action. Overrides may
// carry priority, level, cooldown and enabled.
func (e *Engine) ClusterPolicyAttach(id, policyID string, overrides map[string]interface{}) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	if _, err := e.store.GetPolicy(policyID, false); err != nil {
		return "", err
	}
	inputs := map[string]interface{}{"policy_id": policyID}
	for k, v := range overrides {
		inputs[k] = v
	}
	return e.submitAction(types.ClusterAttachPolicy, id,
		fmt.Sprintf("attach_policy_%s", shortID(id)), inputs, 0)
}

// ClusterPolicyDetach submits a CLUSTER_DETACH_POLICY action
func (e *Engine) ClusterPolicyDetach(id, policyID string) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	return e.submitAction(types.ClusterDetachPolicy, id,
		fmt.Sprintf("detach_policy_%s", shortID(id)),
		map[string]interface{}{"policy_id": policyID}, 0)
}

// ClusterPolicyUpdate submits a CLUSTER_UPDATE_POLICY action copying only
// the binding fields present in overrides.
func (e *Engine) ClusterPolicyUpdate(id, policyID string, overrides map[string]interface{}) (string, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return "", err
	}
	if _, err := e.store.GetClusterPolicy(id, policyID); err != nil {
		return "", err
	}
	inputs := map[string]interface{}{"policy_id": policyID}
	for k, v := range overrides {
		inputs[k] = v
	}
	return e.submitAction(types.ClusterUpdatePolicy, id,
		fmt.Sprintf("update_policy_%s", shortID(id)), inputs, 0)
}

// ClusterPolicyGet returns a single binding
func (e *Engine) ClusterPolicyGet(id, policyID string) (*types.ClusterPolicy, error) {
	return e.store.GetClusterPolicy(id, policyID)
}

// ClusterPolicyList returns all bindings of a cluster
func (e *Engine) ClusterPolicyList(id string) ([]*types.ClusterPolicy, error) {
	if _, err := e.store.GetCluster(id, false); err != nil {
		return nil, err
	}
	return e.store.ListClusterPolicies(id)
}

// IdentifyCluster resolves a cluster by exact id, by name within the
// project, or by unique id prefix, in that order.
func (e *Engine) IdentifyCluster(project, identity string) (*types.Cluster, error) {
	if cluster, err := e.store.GetCluster(identity, false); err == nil {
		return cluster, nil
	}
	if cluster, err := e.store.GetClusterByName(project, identity); err == nil {
		return cluster, nil
	}

	clusters, err := e.store.ListClusters(storage.ClusterFilter{Project: project})
	if err != nil {
		return nil, err
	}
	var matches []*types.Cluster
	for _, cluster := range clusters {
		if strings.HasPrefix(cluster.ID, identity) {
			matches = append(matches, cluster)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errdefs.NotFound("cluster not found: %s", identity)
	case 1:
		return matches[0], nil
	default:
		return nil, errdefs.Conflict("multiple clusters match %q", identity)
	}
}
