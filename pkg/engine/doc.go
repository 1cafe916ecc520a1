/*
Package engine is the orchestrator facade.

New wires the full component graph: storage, lock manager, scheduler,
policy checker, plugin registries and dispatcher. The exported methods form
the verb surface, grouped the way external callers see it: profile, policy,
cluster, node, action, event, plus the identify/revision meta verbs.

Mutating verbs are asynchronous: they validate inputs, persist a USER
action, notify the dispatcher and return the entity together with the
driving action's id. Callers poll the action to observe completion;
streaming consumers can subscribe to the event broker instead.
*/
package engine
