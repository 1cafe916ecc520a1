package engine

import (
	"fmt"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// ActionCreate submits a generic USER action against a target. The verb
// must belong to the closed set of cluster and node verbs.
func (e *Engine) ActionCreate(verb types.ActionName, target string, inputs map[string]interface{}) (string, error) {
	switch {
	case verb.IsClusterAction():
		if _, err := e.store.GetCluster(target, false); err != nil {
			return "", err
		}
	case verb.IsNodeAction():
		if _, err := e.store.GetNode(target, false); err != nil {
			return "", err
		}
	default:
		return "", errdefs.Validation("unknown action verb %q", verb)
	}
	return e.submitAction(verb, target, fmt.Sprintf("%s_%s", verb, shortID(target)), inputs, 0)
}

// ActionGet returns the action row
func (e *Engine) ActionGet(id string) (*types.Action, error) {
	return e.store.GetAction(id)
}

// ActionList returns actions matching the filter
func (e *Engine) ActionList(filter storage.ActionFilter) ([]*types.Action, error) {
	return e.store.ListActions(filter)
}

// EventGet returns a single event row
func (e *Engine) EventGet(id string) (*types.Event, error) {
	return e.store.GetEvent(id)
}

// EventList returns events matching the filter, in chronological order
func (e *Engine) EventList(filter storage.EventFilter) ([]*types.Event, error) {
	return e.store.ListEvents(filter)
}

// GetRevision reports the verb surface revision
func (e *Engine) GetRevision() string {
	return Revision
}
