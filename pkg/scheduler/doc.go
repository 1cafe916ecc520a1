/*
Package scheduler provides the timing primitives used by action executors.

Three primitives exist:

  - Reschedule: cooperative yield used by a parent action waiting on its
    dependents. The dispatcher installs a yield hook that releases the
    caller's worker slot for the duration of the delay, which is the central
    correctness requirement of the engine: a naive blocking wait would
    starve the children that the parent is waiting for.
  - Sleep: uncoordinated wait used inside profile-driver polling loops.
  - Wallclock: the time source for timeout accounting; tests substitute a
    FakeClock.

The WithoutSleep option disables real sleeping so unit tests complete fast.
*/
package scheduler
