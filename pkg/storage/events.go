package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/corral/pkg/errdefs"
	"github.com/cuemby/corral/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Event rows are append-only. Keys are timestamp-prefixed so a bucket scan
// returns events in chronological order.

func eventKey(ts time.Time, id string) string {
	return fmt.Sprintf("%020d-%s", ts.UnixNano(), id)
}

func (s *BoltStore) appendEventTx(tx *bolt.Tx, event *types.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketEvents).Put([]byte(eventKey(event.Timestamp, event.ID)), data); err != nil {
		return err
	}
	if s.notify != nil {
		// Detached so a slow streaming subscriber never blocks the tx
		go s.notify(event)
	}
	return nil
}

// SetEventNotifier installs a callback invoked for every appended event.
// The engine points it at the streaming broker.
func (s *BoltStore) SetEventNotifier(fn func(*types.Event)) {
	s.notify = fn
}

func (s *BoltStore) AppendEvent(event *types.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.appendEventTx(tx, event)
	})
}

func (s *BoltStore) ListEvents(filter EventFilter) ([]*types.Event, error) {
	var events []*types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if filter.Limit > 0 && len(events) >= filter.Limit {
				break
			}
			var event types.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if filter.Subject != "" && event.Subject != filter.Subject {
				continue
			}
			if filter.SubjectID != "" && event.SubjectID != filter.SubjectID {
				continue
			}
			events = append(events, &event)
		}
		return nil
	})
	return events, err
}

func (s *BoltStore) GetEvent(id string) (*types.Event, error) {
	var found *types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var event types.Event
			if err := json.Unmarshal(v, &event); err != nil {
				continue
			}
			if event.ID == id {
				found = &event
				return nil
			}
		}
		return errdefs.NotFound("event not found: %s", id)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
