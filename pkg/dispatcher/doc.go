/*
Package dispatcher routes READY actions to a bounded worker pool.

Each NEW_ACTION notification spawns a goroutine that first acquires a
worker slot from a weighted semaphore, then owns the action until it is
terminal. Concurrency across clusters comes from the pool width; within one
cluster the lock manager serializes. The dispatcher installs the
scheduler's yield hook so a parent suspended on its children gives its slot
back to the pool for the duration of the wait.
*/
package dispatcher
