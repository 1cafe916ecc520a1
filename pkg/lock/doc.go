/*
Package lock implements the cluster and node lock manager.

Locks serialize actions against the same resource: workers execute actions
in parallel across different clusters while the lock manager guarantees
mutual exclusion within one. Acquisition failure is a normal return value;
callers surface it as an error result with reason "Failed locking cluster".

A forced acquisition evicts the current holder and reports it through the
eviction callback so the engine can mark the evicted action CANCELLED.
*/
package lock
