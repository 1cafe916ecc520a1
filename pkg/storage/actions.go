package storage

import (
	"encoding/json"
	"time"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Action store operations. Action rows carry their dependency edges inline;
// edges are written by the parent before the child becomes READY and are
// never pruned, so a terminal parent can always be audited against its
// dependents.

func (s *BoltStore) CreateAction(action *types.Action) error {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	if action.Status == "" {
		action.Status = types.ActionStatusInit
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketActions, action.ID, action)
	})
}

func (s *BoltStore) GetAction(id string) (*types.Action, error) {
	var action types.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketActions).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("action not found: %s", id)
		}
		return json.Unmarshal(data, &action)
	})
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (s *BoltStore) GetActionStatus(id string) (types.ActionStatus, error) {
	action, err := s.GetAction(id)
	if err != nil {
		return "", err
	}
	return action.Status, nil
}

func (s *BoltStore) ListActions(filter ActionFilter) ([]*types.Action, error) {
	var actions []*types.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketActions).ForEach(func(k, v []byte) error {
			if filter.Limit > 0 && len(actions) >= filter.Limit {
				return nil
			}
			var action types.Action
			if err := json.Unmarshal(v, &action); err != nil {
				return err
			}
			if filter.Target != "" && action.Target != filter.Target {
				return nil
			}
			if filter.Status != "" && action.Status != filter.Status {
				return nil
			}
			actions = append(actions, &action)
			return nil
		})
	})
	return actions, err
}

// SetActionStatus transitions the action, guarding against illegal moves in
// the state machine. Setting the current status again is a no-op. Entering
// RUNNING stamps the start time; any terminal status stamps the end time.
func (s *BoltStore) SetActionStatus(id string, status types.ActionStatus, reason string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.setActionStatusTx(tx, id, status, reason)
	})
}

func (s *BoltStore) setActionStatusTx(tx *bolt.Tx, id string, status types.ActionStatus, reason string) error {
	data := tx.Bucket(bucketActions).Get([]byte(id))
	if data == nil {
		return errdefs.NotFound("action not found: %s", id)
	}
	var action types.Action
	if err := json.Unmarshal(data, &action); err != nil {
		return err
	}
	if action.Status == status {
		return nil
	}
	if !types.ValidActionTransition(action.Status, status) {
		return errdefs.Internal("illegal action transition %s -> %s for %s",
			action.Status, status, id)
	}
	action.Status = status
	if reason != "" {
		action.StatusReason = reason
	}
	action.UpdatedAt = time.Now()
	if status == types.ActionStatusRunning && action.StartTime.IsZero() {
		action.StartTime = action.UpdatedAt
	}
	if status.Terminal() {
		action.EndTime = action.UpdatedAt
	}
	if err := putJSON(tx, bucketActions, id, &action); err != nil {
		return err
	}
	return s.appendEventTx(tx, &types.Event{
		Subject:   types.EventSubjectAction,
		SubjectID: action.ID,
		Name:      action.Name,
		Action:    action.Action,
		Status:    string(status),
		Reason:    reason,
	})
}

func (s *BoltStore) SetActionOutputs(id string, outputs map[string]interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketActions).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("action not found: %s", id)
		}
		var action types.Action
		if err := json.Unmarshal(data, &action); err != nil {
			return err
		}
		action.Outputs = outputs
		action.UpdatedAt = time.Now()
		return putJSON(tx, bucketActions, id, &action)
	})
}

// AddDependency records that parentID must await childID. Both rows are
// updated in one transaction. The hierarchy is a forest one level deep, so
// anything that would close a loop is rejected outright.
func (s *BoltStore) AddDependency(childID, parentID string) error {
	if childID == parentID {
		return errdefs.Validation("action %s cannot depend on itself", parentID)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)

		childData := b.Get([]byte(childID))
		if childData == nil {
			return errdefs.NotFound("action not found: %s", childID)
		}
		parentData := b.Get([]byte(parentID))
		if parentData == nil {
			return errdefs.NotFound("action not found: %s", parentID)
		}

		var child, parent types.Action
		if err := json.Unmarshal(childData, &child); err != nil {
			return err
		}
		if err := json.Unmarshal(parentData, &parent); err != nil {
			return err
		}

		for _, id := range parent.DependedBy {
			if id == childID {
				return errdefs.Validation("dependency cycle between %s and %s", childID, parentID)
			}
		}
		for _, id := range parent.DependsOn {
			if id == childID {
				return nil // already recorded
			}
		}

		parent.DependsOn = append(parent.DependsOn, childID)
		child.DependedBy = append(child.DependedBy, parentID)
		parent.UpdatedAt = time.Now()
		child.UpdatedAt = parent.UpdatedAt

		if err := putJSON(tx, bucketActions, parentID, &parent); err != nil {
			return err
		}
		return putJSON(tx, bucketActions, childID, &child)
	})
}

// ResolveDependents aggregates the statuses of everything the parent awaits.
// The caller derives the wait result: any FAILED means error, else any
// CANCELLED means cancel, else any TIMEOUT means timeout, else all SUCCEEDED
// means done; otherwise keep waiting.
func (s *BoltStore) ResolveDependents(parentID string) (*DependentsSummary, error) {
	summary := &DependentsSummary{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)
		parentData := b.Get([]byte(parentID))
		if parentData == nil {
			return errdefs.NotFound("action not found: %s", parentID)
		}
		var parent types.Action
		if err := json.Unmarshal(parentData, &parent); err != nil {
			return err
		}
		summary.Total = len(parent.DependsOn)
		for _, childID := range parent.DependsOn {
			childData := b.Get([]byte(childID))
			if childData == nil {
				return errdefs.Internal("dependent action %s of %s missing", childID, parentID)
			}
			var child types.Action
			if err := json.Unmarshal(childData, &child); err != nil {
				return err
			}
			switch child.Status {
			case types.ActionStatusSucceeded:
				summary.Succeeded++
			case types.ActionStatusFailed:
				summary.Failed++
			case types.ActionStatusCancelled:
				summary.Cancelled++
			case types.ActionStatusTimeout:
				summary.TimedOut++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// CancelAction raises the out-of-band cancellation flag and, where the state
// machine allows it, moves the action to CANCELLED directly. A running or
// waiting owner observes the flag at its next suspension point.
func (s *BoltStore) CancelAction(id string, reason string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketActions).Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("action not found: %s", id)
		}
		var action types.Action
		if err := json.Unmarshal(data, &action); err != nil {
			return err
		}
		if action.Status.Terminal() {
			return nil
		}
		action.Cancelled = true
		action.UpdatedAt = time.Now()
		if err := putJSON(tx, bucketActions, id, &action); err != nil {
			return err
		}
		if types.ValidActionTransition(action.Status, types.ActionStatusCancelled) {
			return s.setActionStatusTx(tx, id, types.ActionStatusCancelled, reason)
		}
		return nil
	})
}

func (s *BoltStore) IsCancelled(id string) (bool, error) {
	action, err := s.GetAction(id)
	if err != nil {
		return false, err
	}
	return action.Cancelled, nil
}
