package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClusterCRUD(t *testing.T) {
	store := newTestStore(t)

	cluster := &types.Cluster{
		ID:        uuid.NewString(),
		Name:      "c1",
		Project:   "demo",
		ProfileID: "p1",
		Size:      3,
		Status:    types.ClusterStatusInit,
	}
	require.NoError(t, store.CreateCluster(cluster))

	got, err := store.GetCluster(cluster.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.Name)
	assert.Equal(t, 3, got.Size)

	got, err = store.GetClusterByName("demo", "c1")
	require.NoError(t, err)
	assert.Equal(t, cluster.ID, got.ID)

	_, err = store.GetCluster("missing", false)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestClusterNameUniquePerProject(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateCluster(&types.Cluster{
		ID: uuid.NewString(), Name: "c1", Project: "demo",
	}))

	// Same name in the same project is a conflict
	err := store.CreateCluster(&types.Cluster{
		ID: uuid.NewString(), Name: "c1", Project: "demo",
	})
	assert.True(t, errdefs.IsConflict(err))

	// Same name in another project is fine
	assert.NoError(t, store.CreateCluster(&types.Cluster{
		ID: uuid.NewString(), Name: "c1", Project: "other",
	}))
}

func TestClusterSoftDelete(t *testing.T) {
	store := newTestStore(t)

	cluster := &types.Cluster{ID: uuid.NewString(), Name: "c1", Project: "demo"}
	require.NoError(t, store.CreateCluster(cluster))
	require.NoError(t, store.DeleteCluster(cluster.ID))

	// Deleted rows are NotFound without the flag
	_, err := store.GetCluster(cluster.ID, false)
	assert.True(t, errdefs.IsNotFound(err))

	got, err := store.GetCluster(cluster.ID, true)
	require.NoError(t, err)
	assert.Equal(t, types.ClusterStatusDeleted, got.Status)
	assert.False(t, got.DeletedAt.IsZero())

	// List hides deleted rows unless asked
	clusters, err := store.ListClusters(ClusterFilter{Project: "demo"})
	require.NoError(t, err)
	assert.Empty(t, clusters)

	clusters, err = store.ListClusters(ClusterFilter{Project: "demo", ShowDeleted: true})
	require.NoError(t, err)
	assert.Len(t, clusters, 1)

	// The name is free again after deletion
	assert.NoError(t, store.CreateCluster(&types.Cluster{
		ID: uuid.NewString(), Name: "c1", Project: "demo",
	}))
}

func TestNextNodeIndex(t *testing.T) {
	store := newTestStore(t)

	clusterID := uuid.NewString()
	for want := 1; want <= 5; want++ {
		index, err := store.NextNodeIndex(clusterID)
		require.NoError(t, err)
		assert.Equal(t, want, index)
	}

	// Indexes are never reused, even after the node holding one is deleted
	node := &types.Node{ID: uuid.NewString(), ClusterID: clusterID, Index: 5}
	require.NoError(t, store.CreateNode(node))
	require.NoError(t, store.DeleteNode(node.ID))

	index, err := store.NextNodeIndex(clusterID)
	require.NoError(t, err)
	assert.Equal(t, 6, index)

	// Counters are per cluster
	index, err = store.NextNodeIndex(uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, 1, index)
}

func TestNodeSoftDelete(t *testing.T) {
	store := newTestStore(t)

	node := &types.Node{ID: uuid.NewString(), Name: "n1", ClusterID: "c1"}
	require.NoError(t, store.CreateNode(node))
	require.NoError(t, store.SetNodeStatus(node.ID, types.NodeStatusDeleted, "node deleted"))

	_, err := store.GetNode(node.ID, false)
	assert.True(t, errdefs.IsNotFound(err))

	got, err := store.GetNode(node.ID, true)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusDeleted, got.Status)

	nodes, err := store.ListNodes(NodeFilter{ClusterID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestClusterPolicyBindings(t *testing.T) {
	store := newTestStore(t)

	cp := &types.ClusterPolicy{
		ID:        uuid.NewString(),
		ClusterID: "c1",
		PolicyID:  "pol1",
		Priority:  50,
		Enabled:   true,
	}
	require.NoError(t, store.AttachClusterPolicy(cp))

	// Attaching the same binding twice is a conflict at the store level
	err := store.AttachClusterPolicy(&types.ClusterPolicy{
		ID: uuid.NewString(), ClusterID: "c1", PolicyID: "pol1",
	})
	assert.True(t, errdefs.IsConflict(err))

	got, err := store.GetClusterPolicy("c1", "pol1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Priority)

	got.Priority = 70
	require.NoError(t, store.UpdateClusterPolicy(got))
	got, err = store.GetClusterPolicy("c1", "pol1")
	require.NoError(t, err)
	assert.Equal(t, 70, got.Priority)

	bindings, err := store.ListClusterPolicies("c1")
	require.NoError(t, err)
	assert.Len(t, bindings, 1)

	require.NoError(t, store.DetachClusterPolicy("c1", "pol1"))
	_, err = store.GetClusterPolicy("c1", "pol1")
	assert.True(t, errdefs.IsNotFound(err))

	err = store.DetachClusterPolicy("c1", "pol1")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestProfileAndPolicyRows(t *testing.T) {
	store := newTestStore(t)

	prof := &types.Profile{ID: uuid.NewString(), Name: "p1", Project: "demo", Type: "stack"}
	require.NoError(t, store.CreateProfile(prof))

	pol := &types.Policy{ID: uuid.NewString(), Name: "dp", Project: "demo", Type: "deletion"}
	require.NoError(t, store.CreatePolicy(pol))

	require.NoError(t, store.DeleteProfile(prof.ID))
	_, err := store.GetProfile(prof.ID, false)
	assert.True(t, errdefs.IsNotFound(err))
	_, err = store.GetProfile(prof.ID, true)
	assert.NoError(t, err)

	profiles, err := store.ListProfiles("demo", false)
	require.NoError(t, err)
	assert.Empty(t, profiles)

	policies, err := store.ListPolicies("demo", false)
	require.NoError(t, err)
	assert.Len(t, policies, 1)
}
