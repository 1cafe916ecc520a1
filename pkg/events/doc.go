/*
Package events distributes status-transition events to live subscribers.

Every status transition of a cluster, node or action is persisted as an
Event row by the storage layer; the Broker here is the streaming side. It
fans events out to subscriber channels and skips subscribers whose buffers
are full rather than blocking the engine.
*/
package events
