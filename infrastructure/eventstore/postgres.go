package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresEventStore keeps events in the events table and writes the outbox
// row in the same transaction.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Save appends events. A unique violation on (aggregate_id, version) means
// another writer got there first.
func (s *PostgresEventStore) Save(ctx context.Context, events []interface{}) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, event := range events {
		r, err := encodeRecord(event)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, version, event_data, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, r.EventID, r.AggregateID, r.AggregateType, r.EventType, r.Version, r.data, r.metadata, r.Timestamp)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s v%d", ErrConcurrencyConflict, r.AggregateID, r.Version)
			}
			return fmt.Errorf("failed to insert event %s: %w", r.EventType, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO outbox (event_id, aggregate_id, event_type, event_data, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, r.EventID, r.AggregateID, r.EventType, r.data)
		if err != nil {
			return fmt.Errorf("failed to insert outbox row: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns all events of an aggregate ordered by version.
func (s *PostgresEventStore) Load(ctx context.Context, aggregateID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, aggregate_id, aggregate_type, event_type, version, event_data, metadata, created_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateID, &e.AggregateType, &e.EventType,
			&e.Version, &e.EventData, &e.Metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		events = append(events, e)
	}

	return events, rows.Err()
}

// PendingOutbox returns unpublished outbox rows, oldest first.
func (s *PostgresEventStore) PendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, aggregate_id, event_type, event_data
		FROM outbox
		WHERE published = false
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.EventID, &m.AggregateID, &m.EventType, &m.EventData); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PostgresEventStore) MarkPublished(ctx context.Context, ids []int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET published = true, published_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	return err
}
