package lock

import (
	"sync"

	"github.com/cuemby/corral/pkg/log"
)

// Scope is the lock granularity
type Scope string

const (
	ScopeCluster Scope = "cluster"
	ScopeNode    Scope = "node"
)

type key struct {
	scope    Scope
	resource string
}

// EvictFunc is called with the evicted holder's action ID after a forced
// acquisition takes the lock away from it.
type EvictFunc func(actionID string)

// Manager is a process-wide registry of (scope, resource) -> holder action.
// At most one action holds a given lock at any instant. Forced acquisition
// exists so CLUSTER_DELETE can always make progress; every other action
// yields to it.
type Manager struct {
	mu      sync.Mutex
	holders map[key]string
	onEvict EvictFunc
}

// NewManager creates a lock manager. onEvict may be nil.
func NewManager(onEvict EvictFunc) *Manager {
	return &Manager{
		holders: make(map[key]string),
		onEvict: onEvict,
	}
}

// Acquire grants the lock to actionID and returns true if no other action
// holds it, or if forced is set, in which case the previous holder is
// evicted. Failure to acquire is a normal return value, not an error.
func (m *Manager) Acquire(resourceID, actionID string, scope Scope, forced bool) bool {
	m.mu.Lock()
	k := key{scope: scope, resource: resourceID}
	holder, held := m.holders[k]
	if !held || holder == actionID {
		m.holders[k] = actionID
		m.mu.Unlock()
		return true
	}
	if !forced {
		m.mu.Unlock()
		return false
	}
	m.holders[k] = actionID
	m.mu.Unlock()

	logger := log.WithComponent("lock")
	logger.Warn().
		Str("scope", string(scope)).
		Str("resource", resourceID).
		Str("evicted", holder).
		Str("holder", actionID).
		Msg("forced lock takeover")

	if m.onEvict != nil {
		m.onEvict(holder)
	}
	return true
}

// Release gives the lock up if actionID is the current holder. Releasing a
// lock that is not held, or held by someone else, is a no-op.
func (m *Manager) Release(resourceID, actionID string, scope Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{scope: scope, resource: resourceID}
	if m.holders[k] == actionID {
		delete(m.holders, k)
	}
}

// Holder returns the current holder of the lock, if any
func (m *Manager) Holder(resourceID string, scope Scope) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holder, held := m.holders[key{scope: scope, resource: resourceID}]
	return holder, held
}
