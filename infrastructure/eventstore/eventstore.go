package eventstore

import (
	"context"
	"errors"
)

// ErrConcurrencyConflict is returned by Save when another writer already
// appended an event with the same (aggregate_id, version).
var ErrConcurrencyConflict = errors.New("eventstore: concurrent append for aggregate version")

// Event is a stored event row.
type Event struct {
	ID            int64
	EventID       string
	AggregateID   string
	AggregateType string
	EventType     string
	Version       int
	EventData     []byte
	Metadata      []byte
	CreatedAt     string // RFC3339
}

// OutboxMessage is an event waiting to be relayed to the message bus.
type OutboxMessage struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	EventData   []byte
}

// EventStore appends and replays aggregate events. Save writes the events
// and their outbox rows atomically.
type EventStore interface {
	Save(ctx context.Context, events []interface{}) error
	Load(ctx context.Context, aggregateID string) ([]Event, error)
}

// Outbox is the relay side of the store.
type Outbox interface {
	PendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkPublished(ctx context.Context, ids []int64) error
}
