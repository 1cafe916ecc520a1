package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/types"
)

func newAction(t *testing.T, store *BoltStore, verb types.ActionName) *types.Action {
	t.Helper()
	action := &types.Action{
		ID:     uuid.NewString(),
		Name:   string(verb),
		Target: "c1",
		Action: verb,
		Cause:  types.CauseUser,
	}
	require.NoError(t, store.CreateAction(action))
	return action
}

func TestActionStatusTransitions(t *testing.T) {
	store := newTestStore(t)
	action := newAction(t, store, types.ClusterCreate)

	// INIT cannot go straight to RUNNING
	err := store.SetActionStatus(action.ID, types.ActionStatusRunning, "")
	assert.True(t, errdefs.IsInternal(err))

	require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusReady, ""))
	require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusRunning, ""))

	got, err := store.GetAction(action.ID)
	require.NoError(t, err)
	assert.False(t, got.StartTime.IsZero())
	assert.True(t, got.EndTime.IsZero())

	// Setting the current status again is a no-op
	require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusRunning, ""))

	require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusSucceeded, "done"))
	got, err = store.GetAction(action.ID)
	require.NoError(t, err)
	assert.False(t, got.EndTime.IsZero())
	assert.Equal(t, "done", got.StatusReason)

	// Terminal statuses admit no further transitions
	err = store.SetActionStatus(action.ID, types.ActionStatusRunning, "")
	assert.True(t, errdefs.IsInternal(err))
}

func TestAddDependency(t *testing.T) {
	store := newTestStore(t)
	parent := newAction(t, store, types.ClusterCreate)
	child := newAction(t, store, types.NodeCreate)

	require.NoError(t, store.AddDependency(child.ID, parent.ID))

	gotParent, err := store.GetAction(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, gotParent.DependsOn)

	gotChild, err := store.GetAction(child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{parent.ID}, gotChild.DependedBy)

	// Duplicate edges are absorbed
	require.NoError(t, store.AddDependency(child.ID, parent.ID))
	gotParent, err = store.GetAction(parent.ID)
	require.NoError(t, err)
	assert.Len(t, gotParent.DependsOn, 1)

	// Self-dependency and reverse edges are rejected
	err = store.AddDependency(parent.ID, parent.ID)
	assert.True(t, errdefs.IsValidation(err))
	err = store.AddDependency(parent.ID, child.ID)
	assert.True(t, errdefs.IsValidation(err))

	err = store.AddDependency("missing", parent.ID)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestResolveDependents(t *testing.T) {
	store := newTestStore(t)
	parent := newAction(t, store, types.ClusterCreate)

	children := make([]*types.Action, 4)
	for i := range children {
		children[i] = newAction(t, store, types.NodeCreate)
		require.NoError(t, store.AddDependency(children[i].ID, parent.ID))
		require.NoError(t, store.SetActionStatus(children[i].ID, types.ActionStatusReady, ""))
		require.NoError(t, store.SetActionStatus(children[i].ID, types.ActionStatusRunning, ""))
	}

	summary, err := store.ResolveDependents(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 4, summary.Pending())

	require.NoError(t, store.SetActionStatus(children[0].ID, types.ActionStatusSucceeded, ""))
	require.NoError(t, store.SetActionStatus(children[1].ID, types.ActionStatusFailed, "boom"))
	require.NoError(t, store.SetActionStatus(children[2].ID, types.ActionStatusCancelled, ""))
	require.NoError(t, store.SetActionStatus(children[3].ID, types.ActionStatusTimeout, ""))

	summary, err = store.ResolveDependents(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Cancelled)
	assert.Equal(t, 1, summary.TimedOut)
	assert.Equal(t, 0, summary.Pending())
}

func TestCancelAction(t *testing.T) {
	store := newTestStore(t)

	// Cancelling a READY action moves it to CANCELLED directly
	ready := newAction(t, store, types.ClusterUpdate)
	require.NoError(t, store.SetActionStatus(ready.ID, types.ActionStatusReady, ""))
	require.NoError(t, store.CancelAction(ready.ID, "preempted by deletion"))

	got, err := store.GetAction(ready.ID)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
	assert.Equal(t, types.ActionStatusCancelled, got.Status)
	assert.Equal(t, "preempted by deletion", got.StatusReason)

	cancelled, err := store.IsCancelled(ready.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Cancelling a terminal action is a no-op
	done := newAction(t, store, types.ClusterUpdate)
	require.NoError(t, store.SetActionStatus(done.ID, types.ActionStatusReady, ""))
	require.NoError(t, store.SetActionStatus(done.ID, types.ActionStatusRunning, ""))
	require.NoError(t, store.SetActionStatus(done.ID, types.ActionStatusSucceeded, ""))
	require.NoError(t, store.CancelAction(done.ID, "too late"))

	got, err = store.GetAction(done.ID)
	require.NoError(t, err)
	assert.False(t, got.Cancelled)
	assert.Equal(t, types.ActionStatusSucceeded, got.Status)
}

func TestListActionsFilters(t *testing.T) {
	store := newTestStore(t)

	a1 := newAction(t, store, types.ClusterCreate)
	require.NoError(t, store.SetActionStatus(a1.ID, types.ActionStatusReady, ""))
	newAction(t, store, types.ClusterScaleIn)

	other := &types.Action{ID: uuid.NewString(), Target: "c2", Action: types.ClusterDelete}
	require.NoError(t, store.CreateAction(other))

	byTarget, err := store.ListActions(ActionFilter{Target: "c1"})
	require.NoError(t, err)
	assert.Len(t, byTarget, 2)

	byStatus, err := store.ListActions(ActionFilter{Status: types.ActionStatusReady})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)
	assert.Equal(t, a1.ID, byStatus[0].ID)

	limited, err := store.ListActions(ActionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestEventsAppendedOnTransitions(t *testing.T) {
	store := newTestStore(t)

	cluster := &types.Cluster{ID: uuid.NewString(), Name: "c1", Project: "demo"}
	require.NoError(t, store.CreateCluster(cluster))
	require.NoError(t, store.SetClusterStatus(cluster.ID, types.ClusterStatusCreating, "starting"))
	require.NoError(t, store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, "done"))

	events, err := store.ListEvents(EventFilter{Subject: types.EventSubjectCluster, SubjectID: cluster.ID})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Chronological order
	assert.Equal(t, string(types.ClusterStatusCreating), events[0].Status)
	assert.Equal(t, string(types.ClusterStatusActive), events[1].Status)
	assert.True(t, !events[1].Timestamp.Before(events[0].Timestamp))

	got, err := store.GetEvent(events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, cluster.ID, got.SubjectID)

	_, err = store.GetEvent("missing")
	assert.True(t, errdefs.IsNotFound(err))

	// Action transitions are recorded too
	action := newAction(t, store, types.ClusterCreate)
	require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusReady, ""))

	actionEvents, err := store.ListEvents(EventFilter{Subject: types.EventSubjectAction, SubjectID: action.ID})
	require.NoError(t, err)
	assert.Len(t, actionEvents, 1)
	assert.Equal(t, types.ClusterCreate, actionEvents[0].Action)
}

func TestEventNotifier(t *testing.T) {
	store := newTestStore(t)

	got := make(chan *types.Event, 8)
	store.SetEventNotifier(func(e *types.Event) { got <- e })

	cluster := &types.Cluster{ID: uuid.NewString(), Name: "c1", Project: "demo"}
	require.NoError(t, store.CreateCluster(cluster))
	require.NoError(t, store.SetClusterStatus(cluster.ID, types.ClusterStatusActive, ""))

	event := <-got
	assert.Equal(t, cluster.ID, event.SubjectID)
}
