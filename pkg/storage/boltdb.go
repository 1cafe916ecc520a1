package storage

import (
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketClusters        = []byte("clusters")
	bucketNodes           = []byte("nodes")
	bucketProfiles        = []byte("profiles")
	bucketPolicies        = []byte("policies")
	bucketClusterPolicies = []byte("cluster_policies")
	bucketActions         = []byte("actions")
	bucketEvents          = []byte("events")
	bucketNodeIndexes     = []byte("node_indexes")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db     *bolt.DB
	notify func(*types.Event)
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "corral.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errdefs.Internal("failed to open database: %v", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketClusters,
			bucketNodes,
			bucketProfiles,
			bucketPolicies,
			bucketClusterPolicies,
			bucketActions,
			bucketEvents,
			bucketNodeIndexes,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return errdefs.Internal("failed to create bucket %s: %v", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// Cluster operations

func (s *BoltStore) CreateCluster(cluster *types.Cluster) error {
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusters)
		if err := b.ForEach(func(k, v []byte) error {
			var existing types.Cluster
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.DeletedAt.IsZero() &&
				existing.Project == cluster.Project && existing.Name == cluster.Name {
				return errdefs.Conflict("cluster name %q already in use in project %q",
					cluster.Name, cluster.Project)
			}
			return nil
		}); err != nil {
			return err
		}
		return putJSON(tx, bucketClusters, cluster.ID, cluster)
	})
}

func (s *BoltStore) GetCluster(id string, showDeleted bool) (*types.Cluster, error) {
	var cluster types.Cluster
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketClusters).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("cluster not found: %s", id)
		}
		if err := json.Unmarshal(data, &cluster); err != nil {
			return err
		}
		if !cluster.DeletedAt.IsZero() && !showDeleted {
			return errdefs.NotFound("cluster not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (s *BoltStore) GetClusterByName(project, name string) (*types.Cluster, error) {
	var found *types.Cluster
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusters).ForEach(func(k, v []byte) error {
			var cluster types.Cluster
			if err := json.Unmarshal(v, &cluster); err != nil {
				return err
			}
			if cluster.DeletedAt.IsZero() &&
				cluster.Project == project && cluster.Name == name {
				found = &cluster
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errdefs.NotFound("cluster not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListClusters(filter ClusterFilter) ([]*types.Cluster, error) {
	var clusters []*types.Cluster
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusters).ForEach(func(k, v []byte) error {
			var cluster types.Cluster
			if err := json.Unmarshal(v, &cluster); err != nil {
				return err
			}
			if !cluster.DeletedAt.IsZero() && !filter.ShowDeleted {
				return nil
			}
			if filter.Project != "" && cluster.Project != filter.Project {
				return nil
			}
			clusters = append(clusters, &cluster)
			return nil
		})
	})
	return clusters, err
}

func (s *BoltStore) UpdateCluster(cluster *types.Cluster) error {
	cluster.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketClusters).Get([]byte(cluster.ID)) == nil {
			return errdefs.NotFound("cluster not found: %s", cluster.ID)
		}
		return putJSON(tx, bucketClusters, cluster.ID, cluster)
	})
}

func (s *BoltStore) SetClusterStatus(id string, status types.ClusterStatus, reason string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketClusters).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("cluster not found: %s", id)
		}
		var cluster types.Cluster
		if err := json.Unmarshal(data, &cluster); err != nil {
			return err
		}
		cluster.Status = status
		cluster.StatusReason = reason
		cluster.UpdatedAt = time.Now()
		if status == types.ClusterStatusDeleted {
			cluster.DeletedAt = cluster.UpdatedAt
		}
		if err := putJSON(tx, bucketClusters, id, &cluster); err != nil {
			return err
		}
		return s.appendEventTx(tx, &types.Event{
			Subject:   types.EventSubjectCluster,
			SubjectID: cluster.ID,
			Name:      cluster.Name,
			Status:    string(status),
			Reason:    reason,
		})
	})
}

func (s *BoltStore) DeleteCluster(id string) error {
	return s.SetClusterStatus(id, types.ClusterStatusDeleted, "cluster deleted")
}

// Node operations

func (s *BoltStore) CreateNode(node *types.Node) error {
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketNodes, node.ID, node)
	})
}

func (s *BoltStore) GetNode(id string, showDeleted bool) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("node not found: %s", id)
		}
		if err := json.Unmarshal(data, &node); err != nil {
			return err
		}
		if !node.DeletedAt.IsZero() && !showDeleted {
			return errdefs.NotFound("node not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes(filter NodeFilter) ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if !node.DeletedAt.IsZero() && !filter.ShowDeleted {
				return nil
			}
			if filter.ClusterID != "" && node.ClusterID != filter.ClusterID {
				return nil
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	node.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketNodes).Get([]byte(node.ID)) == nil {
			return errdefs.NotFound("node not found: %s", node.ID)
		}
		return putJSON(tx, bucketNodes, node.ID, node)
	})
}

func (s *BoltStore) SetNodeStatus(id string, status types.NodeStatus, reason string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("node not found: %s", id)
		}
		var node types.Node
		if err := json.Unmarshal(data, &node); err != nil {
			return err
		}
		node.Status = status
		node.StatusReason = reason
		node.UpdatedAt = time.Now()
		if status == types.NodeStatusDeleted {
			node.DeletedAt = node.UpdatedAt
		}
		if err := putJSON(tx, bucketNodes, id, &node); err != nil {
			return err
		}
		return s.appendEventTx(tx, &types.Event{
			Subject:   types.EventSubjectNode,
			SubjectID: node.ID,
			Name:      node.Name,
			Status:    string(status),
			Reason:    reason,
		})
	})
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.SetNodeStatus(id, types.NodeStatusDeleted, "node deleted")
}

// NextNodeIndex returns the next node index for the cluster. Indexes are
// allocated from a per-cluster counter and never reused, so they stay unique
// across the cluster's full history including deleted nodes.
func (s *BoltStore) NextNodeIndex(clusterID string) (int, error) {
	var index int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeIndexes)
		var current uint64
		if data := b.Get([]byte(clusterID)); data != nil {
			current = binary.BigEndian.Uint64(data)
		}
		current++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, current)
		if err := b.Put([]byte(clusterID), buf); err != nil {
			return err
		}
		index = int(current)
		return nil
	})
	return index, err
}

// Profile operations

func (s *BoltStore) CreateProfile(profile *types.Profile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketProfiles, profile.ID, profile)
	})
}

func (s *BoltStore) GetProfile(id string, showDeleted bool) (*types.Profile, error) {
	var profile types.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProfiles).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("profile not found: %s", id)
		}
		if err := json.Unmarshal(data, &profile); err != nil {
			return err
		}
		if !profile.DeletedAt.IsZero() && !showDeleted {
			return errdefs.NotFound("profile not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *BoltStore) ListProfiles(project string, showDeleted bool) ([]*types.Profile, error) {
	var profiles []*types.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).ForEach(func(k, v []byte) error {
			var profile types.Profile
			if err := json.Unmarshal(v, &profile); err != nil {
				return err
			}
			if !profile.DeletedAt.IsZero() && !showDeleted {
				return nil
			}
			if project != "" && profile.Project != project {
				return nil
			}
			profiles = append(profiles, &profile)
			return nil
		})
	})
	return profiles, err
}

func (s *BoltStore) UpdateProfile(profile *types.Profile) error {
	profile.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketProfiles).Get([]byte(profile.ID)) == nil {
			return errdefs.NotFound("profile not found: %s", profile.ID)
		}
		return putJSON(tx, bucketProfiles, profile.ID, profile)
	})
}

func (s *BoltStore) DeleteProfile(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProfiles).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("profile not found: %s", id)
		}
		var profile types.Profile
		if err := json.Unmarshal(data, &profile); err != nil {
			return err
		}
		profile.DeletedAt = time.Now()
		return putJSON(tx, bucketProfiles, id, &profile)
	})
}

// Policy operations

func (s *BoltStore) CreatePolicy(policy *types.Policy) error {
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketPolicies, policy.ID, policy)
	})
}

func (s *BoltStore) GetPolicy(id string, showDeleted bool) (*types.Policy, error) {
	var policy types.Policy
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPolicies).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("policy not found: %s", id)
		}
		if err := json.Unmarshal(data, &policy); err != nil {
			return err
		}
		if !policy.DeletedAt.IsZero() && !showDeleted {
			return errdefs.NotFound("policy not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (s *BoltStore) ListPolicies(project string, showDeleted bool) ([]*types.Policy, error) {
	var policies []*types.Policy
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPolicies).ForEach(func(k, v []byte) error {
			var policy types.Policy
			if err := json.Unmarshal(v, &policy); err != nil {
				return err
			}
			if !policy.DeletedAt.IsZero() && !showDeleted {
				return nil
			}
			if project != "" && policy.Project != project {
				return nil
			}
			policies = append(policies, &policy)
			return nil
		})
	})
	return policies, err
}

func (s *BoltStore) UpdatePolicy(policy *types.Policy) error {
	policy.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketPolicies).Get([]byte(policy.ID)) == nil {
			return errdefs.NotFound("policy not found: %s", policy.ID)
		}
		return putJSON(tx, bucketPolicies, policy.ID, policy)
	})
}

func (s *BoltStore) DeletePolicy(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPolicies).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("policy not found: %s", id)
		}
		var policy types.Policy
		if err := json.Unmarshal(data, &policy); err != nil {
			return err
		}
		policy.DeletedAt = time.Now()
		return putJSON(tx, bucketPolicies, id, &policy)
	})
}

// Cluster-policy binding operations. Bindings are keyed by
// "<cluster_id>/<policy_id>" and hard-deleted on detach.

func bindingKey(clusterID, policyID string) string {
	return clusterID + "/" + policyID
}

func (s *BoltStore) AttachClusterPolicy(cp *types.ClusterPolicy) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusterPolicies)
		key := bindingKey(cp.ClusterID, cp.PolicyID)
		if b.Get([]byte(key)) != nil {
			return errdefs.Conflict("policy %s already attached to cluster %s",
				cp.PolicyID, cp.ClusterID)
		}
		return putJSON(tx, bucketClusterPolicies, key, cp)
	})
}

func (s *BoltStore) GetClusterPolicy(clusterID, policyID string) (*types.ClusterPolicy, error) {
	var cp types.ClusterPolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketClusterPolicies).Get([]byte(bindingKey(clusterID, policyID)))
		if data == nil {
			return errdefs.NotFound("policy %s not attached to cluster %s", policyID, clusterID)
		}
		return json.Unmarshal(data, &cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *BoltStore) ListClusterPolicies(clusterID string) ([]*types.ClusterPolicy, error) {
	var bindings []*types.ClusterPolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusterPolicies).ForEach(func(k, v []byte) error {
			var cp types.ClusterPolicy
			if err := json.Unmarshal(v, &cp); err != nil {
				return err
			}
			if cp.ClusterID == clusterID {
				bindings = append(bindings, &cp)
			}
			return nil
		})
	})
	return bindings, err
}

func (s *BoltStore) UpdateClusterPolicy(cp *types.ClusterPolicy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := bindingKey(cp.ClusterID, cp.PolicyID)
		if tx.Bucket(bucketClusterPolicies).Get([]byte(key)) == nil {
			return errdefs.NotFound("policy %s not attached to cluster %s",
				cp.PolicyID, cp.ClusterID)
		}
		return putJSON(tx, bucketClusterPolicies, key, cp)
	})
}

func (s *BoltStore) DetachClusterPolicy(clusterID, policyID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusterPolicies)
		key := bindingKey(clusterID, policyID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFound("policy %s not attached to cluster %s", policyID, clusterID)
		}
		return b.Delete([]byte(key))
	})
}
