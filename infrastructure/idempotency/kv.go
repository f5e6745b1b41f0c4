package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"workshop_booking/infrastructure/kv"
)

// KVLedger keeps claims in a kv.Store. Claims are atomic because Incr is.
type KVLedger struct {
	store kv.Store
	ttl   time.Duration
}

// NewKVLedger returns a ledger whose claims expire after ttl (0 keeps them).
func NewKVLedger(store kv.Store, ttl time.Duration) *KVLedger {
	return &KVLedger{store: store, ttl: ttl}
}

func key(eventID, processedBy string) string {
	return "processed:" + processedBy + ":" + eventID
}

func (l *KVLedger) IsProcessed(ctx context.Context, eventID, processedBy string) (bool, error) {
	_, err := l.store.Get(ctx, key(eventID, processedBy))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return true, nil
}

func (l *KVLedger) MarkAsProcessed(ctx context.Context, eventID, aggregateID, eventType, processedBy string) (bool, error) {
	n, err := l.store.Incr(ctx, key(eventID, processedBy), l.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if n > 1 {
		log.Printf("⏭️  Event %s already processed by %s", eventID, processedBy)
		return false, nil
	}
	return true, nil
}

func (l *KVLedger) Forget(ctx context.Context, eventID, processedBy string) error {
	return l.store.Delete(ctx, key(eventID, processedBy))
}
