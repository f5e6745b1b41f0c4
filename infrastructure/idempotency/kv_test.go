package idempotency

import (
	"context"
	"testing"

	"workshop_booking/infrastructure/kv"
)

func TestKVLedgerClaimsOncePerConsumer(t *testing.T) {
	ctx := context.Background()
	l := NewKVLedger(kv.NewMemoryStore(), 0)

	first, err := l.MarkAsProcessed(ctx, "evt-1", "b1", "booking.created", "notifications")
	if err != nil || !first {
		t.Fatalf("first claim = %v, %v", first, err)
	}
	again, _ := l.MarkAsProcessed(ctx, "evt-1", "b1", "booking.created", "notifications")
	if again {
		t.Error("second claim by the same consumer succeeded")
	}
	other, _ := l.MarkAsProcessed(ctx, "evt-1", "b1", "booking.created", "anomaly")
	if !other {
		t.Error("claim by another consumer was refused")
	}

	done, _ := l.IsProcessed(ctx, "evt-1", "notifications")
	if !done {
		t.Error("IsProcessed = false after claim")
	}

	if err := l.Forget(ctx, "evt-1", "notifications"); err != nil {
		t.Fatal(err)
	}
	retry, _ := l.MarkAsProcessed(ctx, "evt-1", "b1", "booking.created", "notifications")
	if !retry {
		t.Error("claim after Forget was refused")
	}
}
