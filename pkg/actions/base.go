package actions

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/corral/pkg/lock"
	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/policy"
	"github.com/cuemby/corral/pkg/profile"
	"github.com/cuemby/corral/pkg/scheduler"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// Result is the outcome of a verb handler, distinct from the persisted
// action status; Execute maps it to the terminal status.
type Result string

const (
	ResOK      Result = "OK"
	ResError   Result = "ERROR"
	ResTimeout Result = "TIMEOUT"
	ResCancel  Result = "CANCEL"
)

// Runtime bundles the collaborators every verb handler needs. Notify is
// installed by the engine and wakes the dispatcher about a freshly READY
// action.
type Runtime struct {
	Store     storage.Store
	Locks     *lock.Manager
	Sched     *scheduler.Scheduler
	Checker   *policy.Checker
	PolicyReg *policy.Registry
	Profiles  *profile.Registry
	Notify    func(actionID string)
}

// Execute owns the action's lifecycle from RUNNING to a terminal status.
// It is the single writer of the action row from this point on.
func Execute(rt *Runtime, actionID string) {
	logger := log.WithActionID(actionID)
	action, err := rt.Store.GetAction(actionID)
	if err != nil {
		logger.Error().Err(err).Msg("action load failed")
		return
	}

	if err := rt.Store.SetActionStatus(action.ID, types.ActionStatusRunning, ""); err != nil {
		logger.Error().Err(err).Msg("action start failed")
		return
	}
	action, err = rt.Store.GetAction(actionID)
	if err != nil {
		return
	}

	logger.Info().
		Str("verb", string(action.Action)).
		Str("target", action.Target).
		Msg("action started")

	var res Result
	var reason string
	switch {
	case action.Action.IsClusterAction():
		res, reason = ExecuteCluster(rt, action)
	case action.Action.IsNodeAction():
		res, reason = ExecuteNode(rt, action)
	default:
		res, reason = ResError, fmt.Sprintf("unknown action verb %q", action.Action)
	}

	status := terminalStatus(res)
	if err := rt.Store.SetActionStatus(action.ID, status, reason); err != nil {
		logger.Error().Err(err).Msg("action finish failed")
		return
	}
	logger.Info().
		Str("verb", string(action.Action)).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("action finished")
}

func terminalStatus(res Result) types.ActionStatus {
	switch res {
	case ResOK:
		return types.ActionStatusSucceeded
	case ResTimeout:
		return types.ActionStatusTimeout
	case ResCancel:
		return types.ActionStatusCancelled
	default:
		return types.ActionStatusFailed
	}
}

// spawnChild persists a DERIVED child action, wires the dependency edge to
// the parent, marks the child READY and notifies the dispatcher. The edge is
// written before the child becomes READY so the parent's wait always sees it.
func spawnChild(rt *Runtime, parent *types.Action, verb types.ActionName, target, name string, inputs map[string]interface{}) (string, error) {
	child := &types.Action{
		ID:      uuid.NewString(),
		Name:    name,
		Target:  target,
		Action:  verb,
		Cause:   types.CauseDerived,
		Inputs:  inputs,
		Status:  types.ActionStatusInit,
		Timeout: parent.Timeout,
	}
	if err := rt.Store.CreateAction(child); err != nil {
		return "", err
	}
	if err := rt.Store.AddDependency(child.ID, parent.ID); err != nil {
		return "", err
	}
	if err := rt.Store.SetActionStatus(child.ID, types.ActionStatusReady, ""); err != nil {
		return "", err
	}
	if rt.Notify != nil {
		rt.Notify(child.ID)
	}
	return child.ID, nil
}

// waitForDependents blocks the parent until every child reaches a terminal
// status, aggregating the outcome: any FAILED child wins as ERROR, then any
// CANCELLED as CANCEL, then any TIMEOUT (or the parent's own deadline) as
// TIMEOUT. The wait yields the worker slot between polls and observes the
// out-of-band cancellation flag at each suspension point.
func waitForDependents(rt *Runtime, action *types.Action) (Result, string) {
	deadline := time.Time{}
	if action.Timeout > 0 && !action.StartTime.IsZero() {
		deadline = action.StartTime.Add(action.Timeout)
	}

	for {
		cancelled, err := rt.Store.IsCancelled(action.ID)
		if err != nil {
			return ResError, err.Error()
		}
		if cancelled {
			action, err := rt.Store.GetAction(action.ID)
			if err == nil && action.StatusReason != "" {
				return ResCancel, action.StatusReason
			}
			return ResCancel, "action cancelled"
		}

		summary, err := rt.Store.ResolveDependents(action.ID)
		if err != nil {
			return ResError, err.Error()
		}
		switch {
		case summary.Failed > 0:
			return ResError, fmt.Sprintf("%d dependent actions failed", summary.Failed)
		case summary.Cancelled > 0:
			return ResCancel, fmt.Sprintf("%d dependent actions cancelled", summary.Cancelled)
		case summary.TimedOut > 0:
			return ResTimeout, fmt.Sprintf("%d dependent actions timed out", summary.TimedOut)
		case summary.Pending() == 0:
			return ResOK, ""
		}

		if !deadline.IsZero() && rt.Sched.Wallclock().After(deadline) {
			return ResTimeout, fmt.Sprintf("timeout waiting for %d dependent actions", summary.Pending())
		}

		// A concurrent CancelAction may have already driven the row to
		// CANCELLED, in which case the suspension transitions are illegal.
		if err := rt.Store.SetActionStatus(action.ID, types.ActionStatusWaiting, ""); err != nil {
			if cancelled, cerr := rt.Store.IsCancelled(action.ID); cerr == nil && cancelled {
				continue
			}
			return ResError, err.Error()
		}
		rt.Sched.Reschedule(rt.Sched.PollInterval())
		if err := rt.Store.SetActionStatus(action.ID, types.ActionStatusRunning, ""); err != nil {
			if cancelled, cerr := rt.Store.IsCancelled(action.ID); cerr == nil && cancelled {
				continue
			}
			return ResError, err.Error()
		}
	}
}

// shortID returns the first eight characters of an id for child action names
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func inputString(inputs map[string]interface{}, key string) string {
	s, _ := inputs[key].(string)
	return s
}

func inputInt(inputs map[string]interface{}, key string) int {
	switch v := inputs[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func inputBool(inputs map[string]interface{}, key string) (bool, bool) {
	b, ok := inputs[key].(bool)
	return b, ok
}

func inputStrings(inputs map[string]interface{}, key string) []string {
	switch v := inputs[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
