package outbox

import (
	"context"
	"log"
	"time"

	"workshop_booking/infrastructure/eventstore"
	"workshop_booking/infrastructure/messaging"
)

const batchSize = 100

// OutboxPublisher relays outbox rows to the message bus and marks them
// published. Delivery is at-least-once: a row is marked only after the bus
// accepted it.
type OutboxPublisher struct {
	outbox     eventstore.Outbox
	messageBus messaging.Bus
	interval   time.Duration
}

func NewOutboxPublisher(outbox eventstore.Outbox, mb messaging.Bus, interval time.Duration) *OutboxPublisher {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &OutboxPublisher{
		outbox:     outbox,
		messageBus: mb,
		interval:   interval,
	}
}

// Start runs the relay loop until ctx is cancelled.
func (op *OutboxPublisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(op.interval)
	defer ticker.Stop()

	log.Println("📮 Outbox Publisher started")

	for {
		select {
		case <-ticker.C:
			if _, err := op.PublishPending(ctx); err != nil {
				log.Printf("❌ Failed to publish events: %v", err)
			}

		case <-ctx.Done():
			log.Println("📮 Outbox Publisher stopped")
			return nil
		}
	}
}

// PublishPending relays one batch and returns how many rows were published.
func (op *OutboxPublisher) PublishPending(ctx context.Context) (int, error) {
	pending, err := op.outbox.PendingOutbox(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	var publishedIDs []int64
	for _, msg := range pending {
		if err := op.messageBus.Publish(ctx, msg.EventType, msg.EventData); err != nil {
			log.Printf("❌ Failed to publish event %s: %v", msg.EventID, err)
			// keep per-aggregate order: stop at the first failure
			break
		}
		publishedIDs = append(publishedIDs, msg.ID)
	}

	if len(publishedIDs) > 0 {
		if err := op.outbox.MarkPublished(ctx, publishedIDs); err != nil {
			return 0, err
		}
		log.Printf("📤 Published %d events", len(publishedIDs))
	}

	return len(publishedIDs), nil
}
