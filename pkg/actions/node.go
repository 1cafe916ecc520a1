package actions

import (
	"fmt"
	"time"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/lock"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/profile"
	"github.com/cuemby/corral/pkg/types"
)

type nodeHandler func(rt *Runtime, action *types.Action, node *types.Node) (Result, string)

var nodeHandlers = map[types.ActionName]nodeHandler{
	types.NodeCreate: doNodeCreate,
	types.NodeDelete: doNodeDelete,
	types.NodeUpdate: doNodeUpdate,
	types.NodeJoin:   doNodeJoin,
	types.NodeLeave:  doNodeLeave,
}

// ExecuteNode mirrors the cluster envelope at node scope. Node verbs have no
// policy pipeline; policies act at the cluster level before fan-out.
func ExecuteNode(rt *Runtime, action *types.Action) (Result, string) {
	node, err := rt.Store.GetNode(action.Target, false)
	if err != nil {
		return ResError, fmt.Sprintf("node not found: %s", action.Target)
	}

	if !rt.Locks.Acquire(node.ID, action.ID, lock.ScopeNode, false) {
		metrics.LockFailures.WithLabelValues(string(lock.ScopeNode)).Inc()
		return ResError, "Failed locking node"
	}
	defer rt.Locks.Release(node.ID, action.ID, lock.ScopeNode)

	handler, ok := nodeHandlers[action.Action]
	if !ok {
		return ResError, fmt.Sprintf("unsupported node action %q", action.Action)
	}
	return handler(rt, action, node)
}

// driverFor resolves the node's profile row to a driver instance
func driverFor(rt *Runtime, node *types.Node) (profile.Driver, *types.Profile, error) {
	prof, err := rt.Store.GetProfile(node.ProfileID, false)
	if err != nil {
		return nil, nil, err
	}
	driver, err := rt.Profiles.DriverFor(prof)
	if err != nil {
		return nil, nil, err
	}
	return driver, prof, nil
}

// pollDriver polls the driver's status word until the expected verb reports
// COMPLETE, the action's deadline passes, or the driver fails. The loop
// observes the cancellation flag between polls.
func pollDriver(rt *Runtime, action *types.Action, driver profile.Driver, node *types.Node, verb string) error {
	deadline := time.Time{}
	if action.Timeout > 0 {
		base := action.StartTime
		if base.IsZero() {
			base = rt.Sched.Wallclock()
		}
		deadline = base.Add(action.Timeout)
	}

	for {
		status, err := driver.Check(node)
		if err != nil {
			return err
		}
		done, err := profile.CheckComplete(status, verb)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if cancelled, err := rt.Store.IsCancelled(action.ID); err == nil && cancelled {
			return errdefs.Cancelled("action cancelled while waiting for %s", verb)
		}
		if !deadline.IsZero() && rt.Sched.Wallclock().After(deadline) {
			return errdefs.Timeout("timeout waiting for %s on node %s", verb, node.ID)
		}
		rt.Sched.Sleep(rt.Sched.PollInterval())
	}
}

// driverResult maps a driver-loop error to the handler result kind
func driverResult(err error) Result {
	switch {
	case errdefs.IsTimeout(err):
		return ResTimeout
	case errdefs.IsCancelled(err):
		return ResCancel
	default:
		return ResError
	}
}

func doNodeCreate(rt *Runtime, action *types.Action, node *types.Node) (Result, string) {
	driver, _, err := driverFor(rt, node)
	if err != nil {
		_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
		return ResError, err.Error()
	}

	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusCreating, "node creation started"); err != nil {
		return ResError, err.Error()
	}

	physicalID, err := driver.Create(node)
	if err != nil {
		_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
		return ResError, err.Error()
	}
	node.PhysicalID = physicalID
	if err := rt.Store.UpdateNode(node); err != nil {
		return ResError, err.Error()
	}

	if err := pollDriver(rt, action, driver, node, profile.VerbCreate); err != nil {
		_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
		return driverResult(err), err.Error()
	}

	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusActive, "node created"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "node created"
}

func doNodeDelete(rt *Runtime, action *types.Action, node *types.Node) (Result, string) {
	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusDeleting, "node deletion started"); err != nil {
		return ResError, err.Error()
	}

	if node.PhysicalID != "" {
		driver, _, err := driverFor(rt, node)
		if err != nil {
			_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
			return ResError, err.Error()
		}
		if err := driver.Delete(node); err != nil {
			_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
			return ResError, err.Error()
		}
		if err := pollDriver(rt, action, driver, node, profile.VerbDelete); err != nil {
			_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
			return driverResult(err), err.Error()
		}
	}

	if err := rt.Store.DeleteNode(node.ID); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "node deleted"
}

func doNodeUpdate(rt *Runtime, action *types.Action, node *types.Node) (Result, string) {
	newProfileID := inputString(action.Inputs, "new_profile_id")
	if newProfileID == "" {
		return ResError, "no new profile specified"
	}
	newProf, err := rt.Store.GetProfile(newProfileID, false)
	if err != nil {
		return ResError, err.Error()
	}

	driver, _, err := driverFor(rt, node)
	if err != nil {
		return ResError, err.Error()
	}

	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusUpdating, "node update started"); err != nil {
		return ResError, err.Error()
	}

	if err := driver.Update(node, newProf); err != nil {
		_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
		return ResError, err.Error()
	}
	if err := pollDriver(rt, action, driver, node, profile.VerbUpdate); err != nil {
		_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
		return driverResult(err), err.Error()
	}

	node.ProfileID = newProfileID
	if err := rt.Store.UpdateNode(node); err != nil {
		return ResError, err.Error()
	}
	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusActive, "node updated"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "node updated"
}

// doNodeJoin makes the node a member of the target cluster, assigning a
// fresh index from the cluster's counter. The membership change happens only
// after the driver confirms the node is healthy.
func doNodeJoin(rt *Runtime, action *types.Action, node *types.Node) (Result, string) {
	clusterID := inputString(action.Inputs, "cluster_id")
	if clusterID == "" {
		return ResError, "no cluster specified"
	}
	if node.ClusterID == clusterID {
		return ResOK, "node already a member"
	}
	if node.ClusterID != "" {
		return ResError, fmt.Sprintf("node already owned by cluster %s", node.ClusterID)
	}

	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusJoining, "node join started"); err != nil {
		return ResError, err.Error()
	}

	driver, _, err := driverFor(rt, node)
	if err != nil {
		_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
		return ResError, err.Error()
	}
	if err := driver.Validate(node); err != nil {
		_ = rt.Store.SetNodeStatus(node.ID, types.NodeStatusError, err.Error())
		return ResError, err.Error()
	}

	index, err := rt.Store.NextNodeIndex(clusterID)
	if err != nil {
		return ResError, err.Error()
	}
	node.ClusterID = clusterID
	node.Index = index
	if err := rt.Store.UpdateNode(node); err != nil {
		return ResError, err.Error()
	}
	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusActive, "node joined"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "node joined"
}

// doNodeLeave removes cluster membership without destroying the backing
// artifact.
func doNodeLeave(rt *Runtime, action *types.Action, node *types.Node) (Result, string) {
	if node.ClusterID == "" {
		return ResOK, "node not a member of any cluster"
	}

	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusLeaving, "node leave started"); err != nil {
		return ResError, err.Error()
	}

	node.ClusterID = ""
	if err := rt.Store.UpdateNode(node); err != nil {
		return ResError, err.Error()
	}
	if err := rt.Store.SetNodeStatus(node.ID, types.NodeStatusActive, "node left"); err != nil {
		return ResError, err.Error()
	}
	return ResOK, "node left"
}
