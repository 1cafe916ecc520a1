/*
Package storage provides persistent state management for Corral.

The package defines the Store interface and its BoltDB-backed implementation.
One bucket exists per entity (clusters, nodes, profiles, policies,
cluster-policy bindings, actions, events) plus a bucket of per-cluster node
index counters. Rows are stored as JSON.

# Semantics

  - Soft deletion: deleting a cluster, node, profile or policy stamps a
    deletion time and keeps the row. Reads skip deleted rows unless the
    caller passes the show-deleted flag.
  - Status transitions on clusters, nodes and actions append an Event row in
    the same transaction, so the event log is an exact record of every
    transition.
  - Action transitions are guarded by the state machine in pkg/types;
    illegal moves are Internal errors.
  - Dependency edges (DependsOn / DependedBy) are written on both action
    rows in one transaction and never pruned. ResolveDependents aggregates
    dependent statuses for a waiting parent.
  - Node indexes are allocated from a monotone per-cluster counter and never
    reused, even after nodes are deleted.

Failures are classified with pkg/errdefs kinds (NotFound, Conflict, ...).
*/
package storage
