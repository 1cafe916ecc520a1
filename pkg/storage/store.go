package storage

import (
	"github.com/cuemby/corral/pkg/types"
)

// ClusterFilter narrows ListClusters
type ClusterFilter struct {
	Project     string
	ShowDeleted bool
}

// NodeFilter narrows ListNodes
type NodeFilter struct {
	ClusterID   string
	ShowDeleted bool
}

// ActionFilter narrows ListActions
type ActionFilter struct {
	Target string
	Status types.ActionStatus
	Limit  int
}

// EventFilter narrows ListEvents
type EventFilter struct {
	Subject   types.EventSubject
	SubjectID string
	Limit     int
}

// DependentsSummary aggregates the statuses of a parent action's dependents.
// The executor derives the wait result from the counts.
type DependentsSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	TimedOut  int
}

// Pending returns the number of dependents not yet in a terminal status
func (d *DependentsSummary) Pending() int {
	return d.Total - d.Succeeded - d.Failed - d.Cancelled - d.TimedOut
}

// Store defines the interface for orchestrator state storage.
// Implemented by the BoltDB-backed store; rows are soft-deleted and reads
// skip deleted rows unless the caller asks for them.
type Store interface {
	// Clusters
	CreateCluster(cluster *types.Cluster) error
	GetCluster(id string, showDeleted bool) (*types.Cluster, error)
	GetClusterByName(project, name string) (*types.Cluster, error)
	ListClusters(filter ClusterFilter) ([]*types.Cluster, error)
	UpdateCluster(cluster *types.Cluster) error
	SetClusterStatus(id string, status types.ClusterStatus, reason string) error
	DeleteCluster(id string) error

	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id string, showDeleted bool) (*types.Node, error)
	ListNodes(filter NodeFilter) ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	SetNodeStatus(id string, status types.NodeStatus, reason string) error
	DeleteNode(id string) error
	NextNodeIndex(clusterID string) (int, error)

	// Profiles
	CreateProfile(profile *types.Profile) error
	GetProfile(id string, showDeleted bool) (*types.Profile, error)
	ListProfiles(project string, showDeleted bool) ([]*types.Profile, error)
	UpdateProfile(profile *types.Profile) error
	DeleteProfile(id string) error

	// Policies
	CreatePolicy(policy *types.Policy) error
	GetPolicy(id string, showDeleted bool) (*types.Policy, error)
	ListPolicies(project string, showDeleted bool) ([]*types.Policy, error)
	UpdatePolicy(policy *types.Policy) error
	DeletePolicy(id string) error

	// Cluster-policy bindings
	AttachClusterPolicy(cp *types.ClusterPolicy) error
	GetClusterPolicy(clusterID, policyID string) (*types.ClusterPolicy, error)
	ListClusterPolicies(clusterID string) ([]*types.ClusterPolicy, error)
	UpdateClusterPolicy(cp *types.ClusterPolicy) error
	DetachClusterPolicy(clusterID, policyID string) error

	// Actions
	CreateAction(action *types.Action) error
	GetAction(id string) (*types.Action, error)
	GetActionStatus(id string) (types.ActionStatus, error)
	ListActions(filter ActionFilter) ([]*types.Action, error)
	SetActionStatus(id string, status types.ActionStatus, reason string) error
	SetActionOutputs(id string, outputs map[string]interface{}) error
	AddDependency(childID, parentID string) error
	ResolveDependents(parentID string) (*DependentsSummary, error)
	CancelAction(id string, reason string) error
	IsCancelled(id string) (bool, error)

	// Events
	AppendEvent(event *types.Event) error
	ListEvents(filter EventFilter) ([]*types.Event, error)
	GetEvent(id string) (*types.Event, error)
	SetEventNotifier(fn func(*types.Event))

	// Utility
	Close() error
}
