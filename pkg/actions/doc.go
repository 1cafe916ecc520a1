/*
Package actions implements the per-verb executors for cluster and node
actions.

A cluster verb runs inside a fixed envelope: load the target, acquire the
cluster lock (forced for CLUSTER_DELETE), run the BEFORE policy pipeline,
dispatch on a static verb table, run AFTER, release the lock. Fan-out verbs
persist DERIVED child actions with dependency edges back to the parent, mark
them READY, and suspend in waitForDependents until every child is terminal;
the suspension yields the worker slot so children can run on the same pool.

Node verbs mirror the envelope at node scope and delegate the physical work
to the node's profile driver, polling its status word until COMPLETE or
FAILED within the action's timeout.
*/
package actions
