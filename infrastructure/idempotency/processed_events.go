package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Ledger records which consumer has handled which message. Keys are scoped by
// consumer so several consumers can each handle the same event once.
type Ledger interface {
	IsProcessed(ctx context.Context, eventID, processedBy string) (bool, error)
	// MarkAsProcessed claims eventID for processedBy. It reports false when
	// the pair was already recorded.
	MarkAsProcessed(ctx context.Context, eventID, aggregateID, eventType, processedBy string) (bool, error)
	// Forget drops a claim so a failed attempt can be retried.
	Forget(ctx context.Context, eventID, processedBy string) error
}

// ProcessedEventsRepository is the PostgreSQL Ledger.
type ProcessedEventsRepository struct {
	db *sql.DB
}

func NewProcessedEventsRepository(db *sql.DB) *ProcessedEventsRepository {
	return &ProcessedEventsRepository{db: db}
}

// IsProcessed checks if an event has already been processed
func (r *ProcessedEventsRepository) IsProcessed(ctx context.Context, eventID, processedBy string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1 AND processed_by = $2)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, eventID, processedBy).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}

	return exists, nil
}

func (r *ProcessedEventsRepository) MarkAsProcessed(
	ctx context.Context,
	eventID, aggregateID, eventType, processedBy string,
) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, aggregate_id, event_type, processed_by, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (event_id, processed_by) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query, eventID, aggregateID, eventType, processedBy)
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if n == 0 {
		log.Printf("⏭️  Event %s already processed by %s", eventID, processedBy)
		return false, nil
	}
	log.Printf("✅ Marked event %s as processed by %s", eventID, processedBy)
	return true, nil
}

func (r *ProcessedEventsRepository) Forget(ctx context.Context, eventID, processedBy string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE event_id = $1 AND processed_by = $2`,
		eventID, processedBy)
	if err != nil {
		return fmt.Errorf("failed to forget processed event: %w", err)
	}
	return nil
}
