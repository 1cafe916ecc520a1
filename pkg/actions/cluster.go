package actions

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/lock"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/policy"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

type clusterHandler func(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string)

// clusterHandlers is the closed set of cluster verbs. Dispatch is a static
// map lookup, not name resolution.
var clusterHandlers = map[types.ActionName]clusterHandler{
	types.ClusterCreate:       doClusterCreate,
	types.ClusterDelete:       doClusterDelete,
	types.ClusterUpdate:       doClusterUpdate,
	types.ClusterAddNodes:     doClusterAddNodes,
	types.ClusterDelNodes:     doClusterDelNodes,
	types.ClusterScaleOut:     doClusterScaleOut,
	types.ClusterScaleIn:      doClusterScaleIn,
	types.ClusterAttachPolicy: doClusterAttachPolicy,
	types.ClusterDetachPolicy: doClusterDetachPolicy,
	types.ClusterUpdatePolicy: doClusterUpdatePolicy,
}

// ExecuteCluster runs the common envelope around every cluster verb: load
// the target, take the cluster lock (forced for CLUSTER_DELETE so deletion
// always makes progress), run the BEFORE policy pipeline, dispatch the verb,
// then run AFTER. The lock is released on every exit path.
func ExecuteCluster(rt *Runtime, action *types.Action) (Result, string) {
	cluster, err := rt.Store.GetCluster(action.Target, false)
	if err != nil {
		return ResError, fmt.Sprintf("cluster not found: %s", action.Target)
	}

	forced := action.Action == types.ClusterDelete
	if !rt.Locks.Acquire(cluster.ID, action.ID, lock.ScopeCluster, forced) {
		metrics.LockFailures.WithLabelValues(string(lock.ScopeCluster)).Inc()
		return ResError, "Failed locking cluster"
	}
	defer rt.Locks.Release(cluster.ID, action.ID, lock.ScopeCluster)

	data, err := rt.Checker.Check(cluster.ID, policy.PhaseBefore, action)
	if err != nil {
		return ResError, err.Error()
	}
	if data.Status == policy.CheckFailed {
		return ResError, data.Reason
	}

	handler, ok := clusterHandlers[action.Action]
	if !ok {
		return ResError, fmt.Sprintf("unsupported cluster action %q", action.Action)
	}
	res, reason := handler(rt, action, cluster, data)

	if res == ResOK {
		after, err := rt.Checker.Check(cluster.ID, policy.PhaseAfter, action)
		if err != nil {
			return ResError, err.Error()
		}
		if after.Status == policy.CheckFailed {
			return ResError, after.Reason
		}
	}
	return res, reason
}

// createNodes allocates count node rows with fresh per-cluster indexes,
// stamps placement hints from the policy envelope, fans out NODE_CREATE
// children and waits for them.
func createNodes(rt *Runtime, action *types.Action, cluster *types.Cluster, count int, data *policy.Data) (Result, string) {
	var placement []map[string]interface{}
	if data != nil && data.Creation != nil {
		placement = data.Creation.Placement
	}

	for i := 0; i < count; i++ {
		index, err := rt.Store.NextNodeIndex(cluster.ID)
		if err != nil {
			return ResError, err.Error()
		}
		node := &types.Node{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf("node-%s-%03d", shortID(cluster.ID), index),
			ClusterID: cluster.ID,
			ProfileID: cluster.ProfileID,
			Index:     index,
			Status:    types.NodeStatusInit,
			Data:      map[string]interface{}{},
		}
		if i < len(placement) {
			node.Data["placement"] = placement[i]
		}
		if err := rt.Store.CreateNode(node); err != nil {
			return ResError, err.Error()
		}
		name := fmt.Sprintf("node_create_%s", shortID(node.ID))
		if _, err := spawnChild(rt, action, types.NodeCreate, node.ID, name, nil); err != nil {
			return ResError, err.Error()
		}
	}
	return waitForDependents(rt, action)
}

// deleteNodes fans out one child per victim and waits. With destroy set the
// children are NODE_DELETE; otherwise NODE_LEAVE, which removes membership
// but keeps the backing artifact.
func deleteNodes(rt *Runtime, action *types.Action, nodeIDs []string, destroy bool, grace time.Duration) (Result, string) {
	if grace > 0 {
		rt.Sched.Sleep(grace)
	}
	for _, nodeID := range nodeIDs {
		verb := types.NodeLeave
		name := fmt.Sprintf("node_leave_%s", shortID(nodeID))
		if destroy {
			verb = types.NodeDelete
			name = fmt.Sprintf("node_delete_%s", shortID(nodeID))
		}
		if _, err := spawnChild(rt, action, verb, nodeID, name, nil); err != nil {
			return ResError, err.Error()
		}
	}
	return waitForDependents(rt, action)
}

func doClusterCreate(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	// Profile types realize their artifacts per node, so constructing the
	// driver here is the cluster-level realization step: it validates the
	// profile before any node is spawned. The backing resources come from
	// the NODE_CREATE children.
	prof, err := rt.Store.GetProfile(cluster.ProfileID, false)
	if err != nil {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, err.Error())
		return ResError, err.Error()
	}
	if _, err := rt.Profiles.DriverFor(prof); err != nil {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, err.Error())
		return ResError, err.Error()
	}

	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusCreating, "cluster creation started"); err != nil {
		return ResError, err.Error()
	}

	res, reason := createNodes(rt, action, cluster, cluster.Size, data)
	if res != ResOK {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, reason)
		return res, reason
	}
	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, "cluster created"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "cluster created"
}

func doClusterDelete(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusDeleting, "cluster deletion started"); err != nil {
		return ResError, err.Error()
	}

	nodes, err := rt.Store.ListNodes(storage.NodeFilter{ClusterID: cluster.ID})
	if err != nil {
		return ResError, err.Error()
	}
	victims := make([]string, 0, len(nodes))
	for _, node := range nodes {
		victims = append(victims, node.ID)
	}

	res, reason := deleteNodes(rt, action, victims, true, 0)
	if res != ResOK {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, reason)
		return res, reason
	}
	if err := rt.Store.DeleteCluster(cluster.ID); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "cluster deleted"
}

func doClusterUpdate(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	newProfileID := inputString(action.Inputs, "new_profile_id")

	if newProfileID != "" && newProfileID != cluster.ProfileID {
		newProf, err := rt.Store.GetProfile(newProfileID, false)
		if err != nil {
			return ResError, err.Error()
		}
		oldProf, err := rt.Store.GetProfile(cluster.ProfileID, false)
		if err != nil {
			return ResError, err.Error()
		}
		if newProf.Type != oldProf.Type {
			return ResError, fmt.Sprintf(
				"profile type %q does not match cluster profile type %q", newProf.Type, oldProf.Type)
		}
	}

	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusUpdating, "cluster update started"); err != nil {
		return ResError, err.Error()
	}

	if name := inputString(action.Inputs, "name"); name != "" {
		cluster.Name = name
	}
	if tags, ok := action.Inputs["tags"].(map[string]string); ok {
		cluster.Tags = tags
	}
	if timeout := inputInt(action.Inputs, "timeout"); timeout > 0 {
		cluster.Timeout = time.Duration(timeout) * time.Second
	}

	if newProfileID != "" && newProfileID != cluster.ProfileID {
		cluster.ProfileID = newProfileID
		if err := rt.Store.UpdateCluster(cluster); err != nil {
			return ResError, err.Error()
		}

		nodes, err := rt.Store.ListNodes(storage.NodeFilter{ClusterID: cluster.ID})
		if err != nil {
			return ResError, err.Error()
		}
		for _, node := range nodes {
			name := fmt.Sprintf("node_update_%s", shortID(node.ID))
			inputs := map[string]interface{}{"new_profile_id": newProfileID}
			if _, err := spawnChild(rt, action, types.NodeUpdate, node.ID, name, inputs); err != nil {
				return ResError, err.Error()
			}
		}
		res, reason := waitForDependents(rt, action)
		if res != ResOK {
			_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, reason)
			return res, reason
		}
	} else if err := rt.Store.UpdateCluster(cluster); err != nil {
		return ResError, err.Error()
	}

	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, "cluster updated"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "cluster updated"
}

// doClusterAddNodes validates every candidate before spawning any child.
// One hard rejection fails the whole request with a per-node failure map in
// the action outputs and no children at all.
func doClusterAddNodes(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	ids := inputStrings(action.Inputs, "nodes")
	if len(ids) == 0 {
		return ResError, "no nodes specified"
	}

	clusterProf, err := rt.Store.GetProfile(cluster.ProfileID, false)
	if err != nil {
		return ResError, err.Error()
	}

	failures := map[string]string{}
	var accepted []*types.Node
	for _, id := range ids {
		node, err := rt.Store.GetNode(id, false)
		if err != nil {
			failures[id] = "Node not found"
			continue
		}
		if node.ClusterID == cluster.ID {
			continue // already a member, skip silently
		}
		if node.ClusterID != "" {
			failures[id] = fmt.Sprintf("Node already owned by cluster %s", node.ClusterID)
			continue
		}
		if node.Status != types.NodeStatusActive {
			failures[id] = fmt.Sprintf("Node not in ACTIVE status: %s", node.Status)
			continue
		}
		prof, err := rt.Store.GetProfile(node.ProfileID, false)
		if err != nil {
			failures[id] = "Node profile not found"
			continue
		}
		if prof.Type != clusterProf.Type {
			failures[id] = fmt.Sprintf(
				"Node profile type %q does not match cluster profile type %q", prof.Type, clusterProf.Type)
			continue
		}
		accepted = append(accepted, node)
	}

	if len(failures) > 0 {
		_ = rt.Store.SetActionOutputs(action.ID, map[string]interface{}{"failures": failures})
		return ResError, "failed pre-checks on adding nodes"
	}
	if len(accepted) == 0 {
		return ResOK, "no nodes to add"
	}

	for _, node := range accepted {
		name := fmt.Sprintf("node_join_%s", shortID(node.ID))
		inputs := map[string]interface{}{"cluster_id": cluster.ID}
		if _, err := spawnChild(rt, action, types.NodeJoin, node.ID, name, inputs); err != nil {
			return ResError, err.Error()
		}
	}
	res, reason := waitForDependents(rt, action)
	if res != ResOK {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, reason)
		return res, reason
	}

	cluster.Size += len(accepted)
	if err := rt.Store.UpdateCluster(cluster); err != nil {
		return ResError, err.Error()
	}
	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, "nodes added"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "nodes added"
}

// doClusterDelNodes filters the candidate list in a first pass so that ids
// already outside any cluster are dropped silently, then removes the rest.
func doClusterDelNodes(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	ids := inputStrings(action.Inputs, "nodes")
	if len(ids) == 0 {
		return ResError, "no nodes specified"
	}

	failures := map[string]string{}
	var victims []string
	for _, id := range ids {
		node, err := rt.Store.GetNode(id, false)
		if err != nil {
			failures[id] = "Node not found"
			continue
		}
		if node.ClusterID == "" {
			continue // already outside a cluster, skip silently
		}
		if node.ClusterID != cluster.ID {
			failures[id] = fmt.Sprintf("Node not a member of cluster %s", cluster.ID)
			continue
		}
		victims = append(victims, node.ID)
	}

	if len(failures) > 0 {
		_ = rt.Store.SetActionOutputs(action.ID, map[string]interface{}{"failures": failures})
		return ResError, "failed pre-checks on deleting nodes"
	}
	if len(victims) == 0 {
		return ResOK, "no nodes to delete"
	}

	destroy := false
	var grace time.Duration
	if data != nil && data.Deletion != nil {
		destroy = data.Deletion.DestroyAfterDeletion
		grace = data.Deletion.GracePeriod
	}

	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusUpdating, "removing nodes"); err != nil {
		return ResError, err.Error()
	}
	res, reason := deleteNodes(rt, action, victims, destroy, grace)
	if res != ResOK {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, reason)
		return res, reason
	}

	cluster.Size -= len(victims)
	if err := rt.Store.UpdateCluster(cluster); err != nil {
		return ResError, err.Error()
	}
	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, "nodes removed"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "nodes removed"
}

func doClusterScaleOut(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	count := inputInt(action.Inputs, "count")
	if count <= 0 && data != nil && data.Creation != nil {
		count = data.Creation.Count
	}
	if count <= 0 {
		count = 1
	}

	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusUpdating, "scaling out"); err != nil {
		return ResError, err.Error()
	}
	res, reason := createNodes(rt, action, cluster, count, data)
	if res != ResOK {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, reason)
		return res, reason
	}

	cluster.Size += count
	if err := rt.Store.UpdateCluster(cluster); err != nil {
		return ResError, err.Error()
	}
	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, "scaled out"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, fmt.Sprintf("scaled out by %d", count)
}

func doClusterScaleIn(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	count := inputInt(action.Inputs, "count")
	destroy := true
	var grace time.Duration
	var victims []string

	if data != nil && data.Deletion != nil {
		if count <= 0 {
			count = data.Deletion.Count
		}
		victims = data.Deletion.Candidates
		destroy = data.Deletion.DestroyAfterDeletion
		grace = data.Deletion.GracePeriod
	}
	if count <= 0 {
		count = 1
	}

	if len(victims) == 0 {
		nodes, err := rt.Store.ListNodes(storage.NodeFilter{ClusterID: cluster.ID})
		if err != nil {
			return ResError, err.Error()
		}
		if count > len(nodes) {
			count = len(nodes)
		}
		for i := 0; i < count; i++ {
			r := rand.Intn(len(nodes))
			victims = append(victims, nodes[r].ID)
			nodes = append(nodes[:r], nodes[r+1:]...)
		}
	}
	if len(victims) == 0 {
		return ResOK, "no nodes to remove"
	}

	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusUpdating, "scaling in"); err != nil {
		return ResError, err.Error()
	}
	res, reason := deleteNodes(rt, action, victims, destroy, grace)
	if res != ResOK {
		_ = rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusError, reason)
		return res, reason
	}

	cluster.Size -= len(victims)
	if err := rt.Store.UpdateCluster(cluster); err != nil {
		return ResError, err.Error()
	}
	if err := rt.Store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, "scaled in"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, fmt.Sprintf("scaled in by %d", len(victims))
}

func doClusterAttachPolicy(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	policyID := inputString(action.Inputs, "policy_id")
	if policyID == "" {
		return ResError, "no policy specified"
	}

	// Re-attaching the same policy is idempotent
	if _, err := rt.Store.GetClusterPolicy(cluster.ID, policyID); err == nil {
		return ResOK, "policy already attached"
	}

	row, err := rt.Store.GetPolicy(policyID, false)
	if err != nil {
		return ResError, err.Error()
	}

	// At most one enabled policy of a given type per cluster
	bindings, err := rt.Store.ListClusterPolicies(cluster.ID)
	if err != nil {
		return ResError, err.Error()
	}
	for _, binding := range bindings {
		if !binding.Enabled {
			continue
		}
		existing, err := rt.Store.GetPolicy(binding.PolicyID, true)
		if err != nil {
			return ResError, err.Error()
		}
		if existing.Type == row.Type {
			return ResError, errdefs.Conflict(
				"policy of type %q already attached to cluster %s", row.Type, cluster.ID).Error()
		}
	}

	p, err := rt.PolicyReg.New(row)
	if err != nil {
		return ResError, err.Error()
	}
	if err := p.Attach(cluster, data); err != nil {
		return ResError, err.Error()
	}

	binding := &types.ClusterPolicy{
		ID:        uuid.NewString(),
		ClusterID: cluster.ID,
		PolicyID:  policyID,
		Priority:  50,
		Level:     row.Level,
		Cooldown:  row.Cooldown,
		Enabled:   true,
	}
	if v := inputInt(action.Inputs, "priority"); v > 0 {
		binding.Priority = v
	}
	if v := inputInt(action.Inputs, "level"); v > 0 {
		binding.Level = v
	}
	if v := inputInt(action.Inputs, "cooldown"); v > 0 {
		binding.Cooldown = time.Duration(v) * time.Second
	}
	if v, ok := inputBool(action.Inputs, "enabled"); ok {
		binding.Enabled = v
	}
	if err := rt.Store.AttachClusterPolicy(binding); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "policy attached"
}

func doClusterDetachPolicy(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	policyID := inputString(action.Inputs, "policy_id")
	if policyID == "" {
		return ResError, "no policy specified"
	}
	if _, err := rt.Store.GetClusterPolicy(cluster.ID, policyID); err != nil {
		return ResError, err.Error()
	}

	row, err := rt.Store.GetPolicy(policyID, false)
	if err != nil {
		return ResError, err.Error()
	}
	p, err := rt.PolicyReg.New(row)
	if err != nil {
		return ResError, err.Error()
	}
	if err := p.Detach(cluster, data); err != nil {
		return ResError, err.Error()
	}

	if err := rt.Store.DetachClusterPolicy(cluster.ID, policyID); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "policy detached"
}

// doClusterUpdatePolicy copies only the binding fields present in the inputs
func doClusterUpdatePolicy(rt *Runtime, action *types.Action, cluster *types.Cluster, data *policy.Data) (Result, string) {
	policyID := inputString(action.Inputs, "policy_id")
	if policyID == "" {
		return ResError, "no policy specified"
	}
	binding, err := rt.Store.GetClusterPolicy(cluster.ID, policyID)
	if err != nil {
		return ResError, err.Error()
	}

	if _, ok := action.Inputs["priority"]; ok {
		binding.Priority = inputInt(action.Inputs, "priority")
	}
	if _, ok := action.Inputs["level"]; ok {
		binding.Level = inputInt(action.Inputs, "level")
	}
	if _, ok := action.Inputs["cooldown"]; ok {
		binding.Cooldown = time.Duration(inputInt(action.Inputs, "cooldown")) * time.Second
	}
	if v, ok := inputBool(action.Inputs, "enabled"); ok {
		binding.Enabled = v
	}
	if err := rt.Store.UpdateClusterPolicy(binding); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "policy updated"
}
