/*
Package types defines the core data structures used throughout Corral.

This package contains all fundamental types that represent Corral's domain
model: clusters, nodes, profiles, policies, cluster-policy bindings, actions,
and events. These types are used by all other packages for state management
and orchestration logic.

# Core Types

Entities:
  - Cluster: a named group of nodes with a desired size and a profile
  - Node: a cluster member backed by a physical provisioning artifact
  - Profile: an immutable template describing how to realize one node
  - Policy: a typed behavior tuning rule
  - ClusterPolicy: the binding of a policy to a cluster with overrides

Execution:
  - Action: the unit of scheduled work, with inputs, outputs, a status and
    dependency edge sets (DependsOn / DependedBy)
  - ActionName: the closed set of cluster and node verbs
  - Event: an append-only record of a status transition

The action state machine is encoded here (ValidActionTransition) so the
storage layer can guard transitions without importing the engine.

All types are designed to be JSON-serializable for storage and streaming.
*/
package types
