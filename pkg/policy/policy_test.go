package policy

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedCluster creates a cluster with nodes whose creation times are spaced
// one minute apart, oldest first.
func seedCluster(t *testing.T, store storage.Store, size int) (*types.Cluster, []*types.Node) {
	t.Helper()
	cluster := &types.Cluster{ID: uuid.NewString(), Name: "c1", Project: "demo", ProfileID: "p1", Size: size}
	require.NoError(t, store.CreateCluster(cluster))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nodes := make([]*types.Node, size)
	for i := 0; i < size; i++ {
		nodes[i] = &types.Node{
			ID:        uuid.NewString(),
			Name:      string(rune('a' + i)),
			ClusterID: cluster.ID,
			ProfileID: "p1",
			Index:     i + 1,
			Status:    types.NodeStatusActive,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateNode(nodes[i]))
	}
	return cluster, nodes
}

func deletionPolicy(t *testing.T, store storage.Store, spec map[string]interface{}) Policy {
	t.Helper()
	p, err := NewDeletionConstructor(store)(&types.Policy{
		ID: uuid.NewString(), Name: "dp", Type: DeletionTypeName, Spec: spec,
	})
	require.NoError(t, err)
	return p
}

func scaleInAction(count int) *types.Action {
	return &types.Action{
		ID:     uuid.NewString(),
		Action: types.ClusterScaleIn,
		Inputs: map[string]interface{}{"count": count},
	}
}

func TestDeletionOldestFirst(t *testing.T) {
	store := newTestStore(t)
	cluster, nodes := seedCluster(t, store, 3)
	p := deletionPolicy(t, store, map[string]interface{}{"criteria": CriteriaOldestFirst})

	data := NewData()
	require.NoError(t, p.PreOp(cluster.ID, scaleInAction(2), data))

	require.NotNil(t, data.Deletion)
	assert.Equal(t, 2, data.Deletion.Count)
	assert.Equal(t, []string{nodes[0].ID, nodes[1].ID}, data.Deletion.Candidates)
	assert.True(t, data.Deletion.DestroyAfterDeletion)
}

func TestDeletionYoungestFirst(t *testing.T) {
	store := newTestStore(t)
	cluster, nodes := seedCluster(t, store, 3)
	p := deletionPolicy(t, store, map[string]interface{}{"criteria": CriteriaYoungestFirst})

	data := NewData()
	require.NoError(t, p.PreOp(cluster.ID, scaleInAction(2), data))

	// Takes from the tail of the age-sorted list: youngest, then second
	// youngest
	assert.Equal(t, []string{nodes[2].ID, nodes[1].ID}, data.Deletion.Candidates)
}

func TestDeletionOldestProfileFirst(t *testing.T) {
	store := newTestStore(t)
	cluster, nodes := seedCluster(t, store, 3)

	// Two profiles: the middle node uses the older one
	oldProf := &types.Profile{ID: "p-old", Name: "old", Type: "stack",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newProf := &types.Profile{ID: "p-new", Name: "new", Type: "stack",
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.CreateProfile(oldProf))
	require.NoError(t, store.CreateProfile(newProf))

	for i, node := range nodes {
		if i == 1 {
			node.ProfileID = oldProf.ID
		} else {
			node.ProfileID = newProf.ID
		}
		require.NoError(t, store.UpdateNode(node))
	}

	p := deletionPolicy(t, store, map[string]interface{}{"criteria": CriteriaOldestProfileFirst})
	data := NewData()
	require.NoError(t, p.PreOp(cluster.ID, scaleInAction(1), data))

	// Candidates are node references, and the oldest-profile node leads
	assert.Equal(t, []string{nodes[1].ID}, data.Deletion.Candidates)
}

func TestDeletionRandomClampsToPopulation(t *testing.T) {
	store := newTestStore(t)
	cluster, nodes := seedCluster(t, store, 3)
	p := deletionPolicy(t, store, nil)

	data := NewData()
	require.NoError(t, p.PreOp(cluster.ID, scaleInAction(10), data))

	// Count exceeding the live population clamps, without replacement
	assert.Len(t, data.Deletion.Candidates, 3)
	seen := map[string]bool{}
	for _, id := range data.Deletion.Candidates {
		assert.False(t, seen[id], "candidate repeated")
		seen[id] = true
	}
	for _, node := range nodes {
		assert.True(t, seen[node.ID])
	}
}

func TestDeletionDelNodesUsesExplicitCandidates(t *testing.T) {
	store := newTestStore(t)
	cluster, nodes := seedCluster(t, store, 3)
	p := deletionPolicy(t, store, map[string]interface{}{
		"destroy_after_deletion": false,
		"grace_period":           5,
	})

	action := &types.Action{
		ID:     uuid.NewString(),
		Action: types.ClusterDelNodes,
		Inputs: map[string]interface{}{"nodes": []string{nodes[2].ID}},
	}
	data := NewData()
	require.NoError(t, p.PreOp(cluster.ID, action, data))

	assert.Equal(t, []string{nodes[2].ID}, data.Deletion.Candidates)
	assert.False(t, data.Deletion.DestroyAfterDeletion)
	assert.Equal(t, 5*time.Second, data.Deletion.GracePeriod)
}

func TestDeletionRejectsUnknownCriteria(t *testing.T) {
	store := newTestStore(t)
	_, err := NewDeletionConstructor(store)(&types.Policy{
		ID: uuid.NewString(), Type: DeletionTypeName,
		Spec: map[string]interface{}{"criteria": "NEWEST_PROFILE_LAST"},
	})
	assert.True(t, errdefs.IsValidation(err))
}

// recordingPolicy is a test plugin that records pipeline invocations in
// order and can fail the check.
type recordingPolicy struct {
	name string
	fail bool
	log  *[]string
}

func (p *recordingPolicy) Type() string { return "recording" }
func (p *recordingPolicy) Targets() []Target {
	return []Target{{Phase: PhaseBefore, Action: types.ClusterScaleIn}}
}
func (p *recordingPolicy) Attach(*types.Cluster, *Data) error { return nil }
func (p *recordingPolicy) Detach(*types.Cluster, *Data) error { return nil }
func (p *recordingPolicy) PreOp(clusterID string, action *types.Action, data *Data) error {
	*p.log = append(*p.log, p.name)
	if p.fail {
		data.Fail(p.name + " says no")
	}
	return nil
}
func (p *recordingPolicy) PostOp(string, *types.Action, *Data) error { return nil }

func TestCheckerOrderingAndShortCircuit(t *testing.T) {
	store := newTestStore(t)
	cluster, _ := seedCluster(t, store, 1)

	var callLog []string
	registry := NewRegistry()
	require.NoError(t, registry.Register("recording", func(row *types.Policy) (Policy, error) {
		fail, _ := row.Spec["fail"].(bool)
		return &recordingPolicy{name: row.Name, fail: fail, log: &callLog}, nil
	}, nil))

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	attach := func(name string, priority int, enabled, fail bool, created time.Time) {
		row := &types.Policy{ID: uuid.NewString(), Name: name, Type: "recording",
			Spec: map[string]interface{}{"fail": fail}}
		require.NoError(t, store.CreatePolicy(row))
		require.NoError(t, store.AttachClusterPolicy(&types.ClusterPolicy{
			ID: uuid.NewString(), ClusterID: cluster.ID, PolicyID: row.ID,
			Priority: priority, Enabled: enabled, CreatedAt: created,
		}))
	}

	attach("low", 10, true, false, base)
	attach("high", 90, true, false, base.Add(time.Minute))
	attach("disabled", 99, false, false, base.Add(2*time.Minute))
	attach("mid-old", 50, true, true, base.Add(3*time.Minute))
	attach("mid-new", 50, true, false, base.Add(4*time.Minute))

	checker := NewChecker(store, registry)
	data, err := checker.Check(cluster.ID, PhaseBefore, scaleInAction(1))
	require.NoError(t, err)

	// Priority descending, creation order breaking the tie; the failing
	// policy stops the pipeline before lower priorities run
	assert.Equal(t, []string{"high", "mid-old"}, callLog)
	assert.Equal(t, CheckFailed, data.Status)
	assert.Equal(t, "mid-old says no", data.Reason)
}

func TestCheckerSkipsNonMatchingTargets(t *testing.T) {
	store := newTestStore(t)
	cluster, _ := seedCluster(t, store, 1)

	var callLog []string
	registry := NewRegistry()
	require.NoError(t, registry.Register("recording", func(row *types.Policy) (Policy, error) {
		return &recordingPolicy{name: row.Name, log: &callLog}, nil
	}, nil))

	row := &types.Policy{ID: uuid.NewString(), Name: "scale-in-only", Type: "recording"}
	require.NoError(t, store.CreatePolicy(row))
	require.NoError(t, store.AttachClusterPolicy(&types.ClusterPolicy{
		ID: uuid.NewString(), ClusterID: cluster.ID, PolicyID: row.ID, Priority: 50, Enabled: true,
	}))

	checker := NewChecker(store, registry)

	// Wrong verb: policy not consulted
	data, err := checker.Check(cluster.ID, PhaseBefore, &types.Action{
		ID: uuid.NewString(), Action: types.ClusterScaleOut,
	})
	require.NoError(t, err)
	assert.Empty(t, callLog)
	assert.Equal(t, CheckOK, data.Status)

	// Wrong phase: same
	_, err = checker.Check(cluster.ID, PhaseAfter, scaleInAction(1))
	require.NoError(t, err)
	assert.Empty(t, callLog)
}

func TestRegistryConflicts(t *testing.T) {
	registry := NewRegistry()
	ctor := func(row *types.Policy) (Policy, error) { return nil, nil }

	require.NoError(t, registry.Register("deletion", ctor, DeletionSchema))
	err := registry.Register("deletion", ctor, nil)
	assert.True(t, errdefs.IsConflict(err))

	_, err = registry.New(&types.Policy{Type: "placement"})
	assert.True(t, errdefs.IsValidation(err))

	schema, err := registry.Schema("deletion")
	require.NoError(t, err)
	assert.Contains(t, schema, "criteria")
}
