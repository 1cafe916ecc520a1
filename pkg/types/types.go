package types

import (
	"time"
)

// Cluster is a named group of nodes realized from a provisioning profile.
type Cluster struct {
	ID           string
	Name         string
	Project      string
	ProfileID    string
	ParentID     string
	Size         int
	Timeout      time.Duration
	Status       ClusterStatus
	StatusReason string
	Tags         map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    time.Time
}

// ClusterStatus represents the lifecycle state of a cluster
type ClusterStatus string

const (
	ClusterStatusInit     ClusterStatus = "INIT"
	ClusterStatusCreating ClusterStatus = "CREATING"
	ClusterStatusActive   ClusterStatus = "ACTIVE"
	ClusterStatusUpdating ClusterStatus = "UPDATING"
	ClusterStatusDeleting ClusterStatus = "DELETING"
	ClusterStatusError    ClusterStatus = "ERROR"
	ClusterStatusDeleted  ClusterStatus = "DELETED"
)

// Node is a single member of a cluster, backed by a physical artifact in the
// provisioning system (an opaque handle stored in PhysicalID).
type Node struct {
	ID           string
	Name         string
	ClusterID    string // empty when the node is free
	ProfileID    string
	Index        int // monotone per cluster, never reused
	Role         string
	Status       NodeStatus
	StatusReason string
	PhysicalID   string
	Tags         map[string]string
	Data         map[string]interface{} // policy hints such as placement
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    time.Time
}

// NodeStatus represents the lifecycle state of a node
type NodeStatus string

const (
	NodeStatusInit     NodeStatus = "INIT"
	NodeStatusCreating NodeStatus = "CREATING"
	NodeStatusActive   NodeStatus = "ACTIVE"
	NodeStatusUpdating NodeStatus = "UPDATING"
	NodeStatusDeleting NodeStatus = "DELETING"
	NodeStatusError    NodeStatus = "ERROR"
	NodeStatusLeaving  NodeStatus = "LEAVING"
	NodeStatusJoining  NodeStatus = "JOINING"
	NodeStatusDeleted  NodeStatus = "DELETED"
)

// Profile is a template describing how to realize one node. A profile is
// immutable once referenced by a live cluster or node; updates create a new
// profile row.
type Profile struct {
	ID        string
	Name      string
	Project   string
	Type      string // resolved through the profile driver registry
	Spec      map[string]interface{}
	Tags      map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt time.Time
}

// Policy is a named, typed behavior tuning rule attachable to clusters.
type Policy struct {
	ID        string
	Name      string
	Project   string
	Type      string
	Spec      map[string]interface{}
	Level     int
	Cooldown  time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt time.Time
}

// ClusterPolicy binds a policy to a cluster with per-binding overrides.
// At most one enabled policy of a given type may be bound to a cluster.
type ClusterPolicy struct {
	ID        string
	ClusterID string
	PolicyID  string
	Priority  int
	Level     int
	Cooldown  time.Duration
	Enabled   bool
	CreatedAt time.Time
}

// ActionName is a verb executed against a cluster or node
type ActionName string

const (
	ClusterCreate       ActionName = "CLUSTER_CREATE"
	ClusterDelete       ActionName = "CLUSTER_DELETE"
	ClusterUpdate       ActionName = "CLUSTER_UPDATE"
	ClusterAddNodes     ActionName = "CLUSTER_ADD_NODES"
	ClusterDelNodes     ActionName = "CLUSTER_DEL_NODES"
	ClusterScaleOut     ActionName = "CLUSTER_SCALE_OUT"
	ClusterScaleIn      ActionName = "CLUSTER_SCALE_IN"
	ClusterAttachPolicy ActionName = "CLUSTER_ATTACH_POLICY"
	ClusterDetachPolicy ActionName = "CLUSTER_DETACH_POLICY"
	ClusterUpdatePolicy ActionName = "CLUSTER_UPDATE_POLICY"

	NodeCreate ActionName = "NODE_CREATE"
	NodeDelete ActionName = "NODE_DELETE"
	NodeUpdate ActionName = "NODE_UPDATE"
	NodeJoin   ActionName = "NODE_JOIN"
	NodeLeave  ActionName = "NODE_LEAVE"
)

// IsClusterAction reports whether the verb targets a cluster
func (a ActionName) IsClusterAction() bool {
	switch a {
	case ClusterCreate, ClusterDelete, ClusterUpdate,
		ClusterAddNodes, ClusterDelNodes,
		ClusterScaleOut, ClusterScaleIn,
		ClusterAttachPolicy, ClusterDetachPolicy, ClusterUpdatePolicy:
		return true
	}
	return false
}

// IsNodeAction reports whether the verb targets a node
func (a ActionName) IsNodeAction() bool {
	switch a {
	case NodeCreate, NodeDelete, NodeUpdate, NodeJoin, NodeLeave:
		return true
	}
	return false
}

// ActionCause records how an action was originated
type ActionCause string

const (
	CauseUser    ActionCause = "USER"    // external request
	CauseDerived ActionCause = "DERIVED" // spawned by a parent action
	CauseRPC     ActionCause = "RPC"     // internal call
)

// ActionStatus represents the lifecycle state of an action
type ActionStatus string

const (
	ActionStatusInit      ActionStatus = "INIT"
	ActionStatusWaiting   ActionStatus = "WAITING"
	ActionStatusReady     ActionStatus = "READY"
	ActionStatusRunning   ActionStatus = "RUNNING"
	ActionStatusSucceeded ActionStatus = "SUCCEEDED"
	ActionStatusFailed    ActionStatus = "FAILED"
	ActionStatusCancelled ActionStatus = "CANCELLED"
	ActionStatusTimeout   ActionStatus = "TIMEOUT"
)

// Terminal reports whether the status admits no further transitions
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionStatusSucceeded, ActionStatusFailed, ActionStatusCancelled, ActionStatusTimeout:
		return true
	}
	return false
}

// legalActionTransitions encodes the action state machine:
//
//	INIT -> READY -> RUNNING -> {SUCCEEDED, FAILED, CANCELLED, TIMEOUT}
//	RUNNING <-> WAITING while a parent is blocked on dependents
var legalActionTransitions = map[ActionStatus][]ActionStatus{
	ActionStatusInit:    {ActionStatusReady, ActionStatusCancelled},
	ActionStatusReady:   {ActionStatusRunning, ActionStatusCancelled},
	ActionStatusRunning: {ActionStatusWaiting, ActionStatusSucceeded, ActionStatusFailed, ActionStatusCancelled, ActionStatusTimeout},
	ActionStatusWaiting: {ActionStatusReady, ActionStatusRunning, ActionStatusSucceeded, ActionStatusFailed, ActionStatusCancelled, ActionStatusTimeout},
}

// ValidActionTransition reports whether from -> to is a legal transition
func ValidActionTransition(from, to ActionStatus) bool {
	for _, next := range legalActionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Action is the unit of scheduled work. A parent action records the IDs of
// the child actions it awaits in DependsOn; each child records the parent in
// DependedBy. Edges are written by the parent before the child becomes READY
// and are never pruned.
type Action struct {
	ID           string
	Name         string
	Target       string // cluster or node id
	Action       ActionName
	Cause        ActionCause
	Inputs       map[string]interface{}
	Outputs      map[string]interface{}
	Status       ActionStatus
	StatusReason string
	Cancelled    bool // out-of-band cancellation flag, observed at suspension points
	DependsOn    []string
	DependedBy   []string
	StartTime    time.Time
	EndTime      time.Time
	Timeout      time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    time.Time
}

// EventSubject identifies what kind of entity an event is about
type EventSubject string

const (
	EventSubjectCluster EventSubject = "cluster"
	EventSubjectNode    EventSubject = "node"
	EventSubjectAction  EventSubject = "action"
)

// Event is an append-only record of a status transition. Events are never
// mutated after being written.
type Event struct {
	ID        string
	Timestamp time.Time
	Subject   EventSubject
	SubjectID string
	Name      string // human name of the subject at the time of the event
	Action    ActionName
	Status    string
	Reason    string
}
