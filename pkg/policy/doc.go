/*
Package policy implements the cluster policy plugin interface and the
BEFORE/AFTER check pipeline.

A policy declares a TARGET list of (phase, verb) pairs; for each action the
Checker enumerates the cluster's enabled bindings in priority order and
invokes PreOp or PostOp on the matching policies. Policies mutate a shared
envelope (Data) in place; a CHECK_FAILED status stops the pipeline and the
executor surfaces the policy's reason as the action result.

The built-in deletion policy is the canonical example: its PreOp fills
Data.Deletion with the scale-in count, the victim candidates chosen per the
configured criteria (RANDOM, OLDEST_FIRST, YOUNGEST_FIRST,
OLDEST_PROFILE_FIRST), and the destroy/grace options.
*/
package policy
