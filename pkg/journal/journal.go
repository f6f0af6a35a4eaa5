package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/flbench/flbench/pkg/log"
)

const rootBucket = "run_events"

// Event is one journaled lifecycle transition. Events are append-only and
// ordered per logical run identity by insertion sequence.
type Event struct {
	ID        string    `json:"id"`
	LogicalID string    `json:"logical_id"`
	Attempt   int       `json:"attempt"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Journal records lifecycle transitions in a bbolt database, one
// sub-bucket per logical run identity. It is the durable audit trail for
// post-hoc debugging of a sweep.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	logger := log.WithComponent("journal")
	logger.Debug().Str("path", path).Msg("journal opened")
	return &Journal{db: db}, nil
}

// Append records one transition for a run. The event ID and timestamp are
// filled in here.
func (j *Journal) Append(logicalID string, attempt int, state, reason string) error {
	event := Event{
		ID:        uuid.New().String(),
		LogicalID: logicalID,
		Attempt:   attempt,
		State:     state,
		Reason:    reason,
		At:        time.Now().UTC(),
	}
	data, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("failed to marshal journal event: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		bucket, err := root.CreateBucketIfNotExists([]byte(logicalID))
		if err != nil {
			return fmt.Errorf("failed to create run bucket: %w", err)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, data)
	})
}

// Events returns all recorded transitions for a run in insertion order.
// An identity with no events yields an empty slice.
func (j *Journal) Events(logicalID string) ([]Event, error) {
	var events []Event
	err := j.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		bucket := root.Bucket([]byte(logicalID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("failed to unmarshal journal event: %w", err)
			}
			events = append(events, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
