package dispatcher

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/corral/pkg/actions"
	"github.com/cuemby/corral/pkg/scheduler"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

func newDispatcher(t *testing.T) (*Dispatcher, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rt := &actions.Runtime{
		Store: store,
		Sched: scheduler.New(scheduler.WithPollInterval(5 * time.Millisecond)),
	}
	d := New(rt, 2)
	rt.Notify = d.Notify
	return d, store
}

func createAction(t *testing.T, store *storage.BoltStore, verb types.ActionName) *types.Action {
	t.Helper()
	action := &types.Action{
		ID:     uuid.NewString(),
		Name:   string(verb),
		Target: "t1",
		Action: verb,
		Cause:  types.CauseUser,
	}
	require.NoError(t, store.CreateAction(action))
	return action
}

func waitStatus(t *testing.T, store *storage.BoltStore, id string, want types.ActionStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := store.GetActionStatus(id)
		require.NoError(t, err)
		if status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("action %s never reached %s", id, want)
}

func TestNotifyExecutesReadyAction(t *testing.T) {
	d, store := newDispatcher(t)
	defer d.Stop()

	// A verb outside the closed set runs to FAILED, which is enough to
	// observe the worker picking the action up
	action := createAction(t, store, "BOGUS_VERB")
	require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusReady, ""))
	d.Notify(action.ID)

	waitStatus(t, store, action.ID, types.ActionStatusFailed)

	got, err := store.GetAction(action.ID)
	require.NoError(t, err)
	assert.Contains(t, got.StatusReason, "unknown action verb")
}

func TestNotifySkipsNonReadyAction(t *testing.T) {
	d, store := newDispatcher(t)
	defer d.Stop()

	action := createAction(t, store, "BOGUS_VERB")
	d.Notify(action.ID)

	time.Sleep(50 * time.Millisecond)
	status, err := store.GetActionStatus(action.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionStatusInit, status)
}

func TestStopDropsNotifications(t *testing.T) {
	d, store := newDispatcher(t)
	d.Stop()

	action := createAction(t, store, "BOGUS_VERB")
	require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusReady, ""))
	d.Notify(action.ID)

	time.Sleep(50 * time.Millisecond)
	status, err := store.GetActionStatus(action.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionStatusReady, status)
}

func TestConcurrentNotifies(t *testing.T) {
	d, store := newDispatcher(t)

	var ids []string
	for i := 0; i < 10; i++ {
		action := createAction(t, store, "BOGUS_VERB")
		require.NoError(t, store.SetActionStatus(action.ID, types.ActionStatusReady, ""))
		ids = append(ids, action.ID)
	}
	for _, id := range ids {
		d.Notify(id)
	}
	d.Stop()

	// Stop drained the pool, so every action is terminal
	for _, id := range ids {
		status, err := store.GetActionStatus(id)
		require.NoError(t, err)
		assert.Equal(t, types.ActionStatusFailed, status)
	}
}
