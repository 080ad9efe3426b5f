// Package audit persists the operational audit trail in a local badger
// store: SESSION INIT guard outcomes, lifecycle transitions, and defect
// activity. Events are append-only; the key space sorts by time so recent
// history is a reverse scan.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const keyPrefix = "audit:"

// Event is one recorded audit entry.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Trail is a badger-backed append-only event log.
type Trail struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the trail at dir. An empty dir opens an in-memory
// store, which tests use.
func Open(dir string, logger *slog.Logger) (*Trail, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	return &Trail{db: db, logger: logger}, nil
}

func (t *Trail) Close() error {
	return t.db.Close()
}

// Record appends one event. Audit writes never fail the operation that
// triggered them; storage errors are logged and dropped.
func (t *Trail) Record(eventType string, fields map[string]any) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Fields:    fields,
	}
	value, err := json.Marshal(event)
	if err != nil {
		t.logger.Error("marshaling audit event", "type", eventType, "err", err)
		return
	}

	key := fmt.Sprintf("%s%020d:%s", keyPrefix, event.Timestamp.UnixNano(), event.ID)
	err = t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		t.logger.Error("writing audit event", "type", eventType, "err", err)
	}
}

// Recent returns up to limit events, newest first, optionally restricted to
// one coach (matched against the event's coach_id field).
func (t *Trail) Recent(limit int, coachID string) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []Event
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// ';' is ':'+1, so seeking to "audit;" lands just past the last
		// audit key when iterating in reverse.
		for it.Seek([]byte("audit;")); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			var event Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return err
			}
			if coachID != "" {
				if got, ok := event.Fields["coach_id"].(string); !ok || got != coachID {
					continue
				}
			}
			events = append(events, event)
			if len(events) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
