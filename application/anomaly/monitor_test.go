package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"workshop_booking/domain/alert"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/idempotency"
	"workshop_booking/infrastructure/kv"
	"workshop_booking/infrastructure/repository"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newMonitor() (*Monitor, *repository.MemoryAlertStore) {
	alerts := repository.NewMemoryAlertStore()
	return NewMonitor(alerts, idempotency.NewKVLedger(kv.NewMemoryStore(), 0), DefaultRules), alerts
}

func encode(t *testing.T, e interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func created(t *testing.T, bookingID, customerID, workshopID string, at time.Time) []byte {
	t.Helper()
	b, err := booking.Apply(nil, booking.Create{
		Meta:            booking.Meta{At: at},
		BookingID:       bookingID,
		CustomerID:      customerID,
		WorkshopID:      workshopID,
		VehicleID:       "v-" + customerID,
		ServiceID:       "inspection",
		AppointmentDate: at.Add(48 * time.Hour),
	}, booking.Customer(customerID))
	if err != nil {
		t.Fatal(err)
	}
	return encode(t, b.Changes[0])
}

func rejected(t *testing.T, bookingID, customerID, workshopID string, at time.Time) []byte {
	t.Helper()
	b, _ := booking.Apply(nil, booking.Create{
		Meta:            booking.Meta{At: at},
		BookingID:       bookingID,
		CustomerID:      customerID,
		WorkshopID:      workshopID,
		VehicleID:       "v",
		ServiceID:       "inspection",
		AppointmentDate: at.Add(48 * time.Hour),
	}, booking.Customer(customerID))
	b, err := booking.Apply(b, booking.Reject{Meta: booking.Meta{At: at}, Reason: "no slots"}, booking.Workshop(workshopID))
	if err != nil {
		t.Fatal(err)
	}
	return encode(t, b.Changes[1])
}

func list(t *testing.T, alerts *repository.MemoryAlertStore, c alert.Category) []alert.Alert {
	t.Helper()
	got, err := alerts.List(context.Background(), alert.Filter{Category: c})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestHighRejectionRateFiresOnceOnCrossing(t *testing.T) {
	ctx := context.Background()
	m, alerts := newMonitor()

	for i := 0; i < 6; i++ {
		m.Handle(ctx, created(t, fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i), "w1", t0))
	}

	for i := 0; i < 4; i++ {
		m.Handle(ctx, rejected(t, fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i), "w1", t0.Add(time.Hour)))
		got := list(t, alerts, alert.HighRejectionRate)
		want := 0
		if i == 3 {
			want = 1
		}
		if len(got) != want {
			t.Fatalf("after rejection %d: %d alerts, want %d", i+1, len(got), want)
		}
	}

	a := list(t, alerts, alert.HighRejectionRate)[0]
	if a.EntityID != "w1" || a.Severity != alert.SeverityMedium {
		t.Errorf("alert = %+v", a)
	}
}

func TestHighRejectionRateRearms(t *testing.T) {
	ctx := context.Background()
	m, alerts := newMonitor()

	for i := 0; i < 5; i++ {
		m.Handle(ctx, created(t, fmt.Sprintf("a%d", i), "c", "w1", t0))
	}
	for i := 0; i < 3; i++ {
		m.Handle(ctx, rejected(t, fmt.Sprintf("a%d", i), "c", "w1", t0))
	}
	// 3/5 crossed; dilute to 3/7, then cross again with 4/7
	m.Handle(ctx, created(t, "a5", "c2", "w1", t0))
	m.Handle(ctx, created(t, "a6", "c3", "w1", t0))
	m.Handle(ctx, rejected(t, "a3", "c", "w1", t0))

	if got := list(t, alerts, alert.HighRejectionRate); len(got) != 2 {
		t.Errorf("%d alerts, want 2", len(got))
	}
}

func TestMinimumSample(t *testing.T) {
	ctx := context.Background()
	m, alerts := newMonitor()

	for i := 0; i < 4; i++ {
		m.Handle(ctx, created(t, fmt.Sprintf("b%d", i), "c", "w1", t0))
		m.Handle(ctx, rejected(t, fmt.Sprintf("b%d", i), "c", "w1", t0))
	}
	if got := list(t, alerts, alert.HighRejectionRate); len(got) != 0 {
		t.Errorf("alert raised below minimum sample: %+v", got)
	}
}

func TestCustomerSpike(t *testing.T) {
	ctx := context.Background()
	m, alerts := newMonitor()

	for i := 0; i < 7; i++ {
		m.Handle(ctx, created(t, fmt.Sprintf("b%d", i), "c1", fmt.Sprintf("w%d", i), t0.Add(time.Duration(i)*time.Hour)))
	}
	got := list(t, alerts, alert.SuspiciousActivity)
	if len(got) != 1 || got[0].EntityID != "c1" {
		t.Fatalf("alerts = %+v", got)
	}

	// outside the trailing window the count starts over
	m.Handle(ctx, created(t, "late", "c2", "w9", t0))
	m.Handle(ctx, created(t, "later", "c2", "w9", t0.Add(48*time.Hour)))
	if got := list(t, alerts, alert.SuspiciousActivity); len(got) != 1 {
		t.Errorf("%d spike alerts", len(got))
	}
}

func TestLowRating(t *testing.T) {
	ctx := context.Background()
	m, alerts := newMonitor()

	for i, rating := range []int{5, 2, 1, 3} {
		m.Handle(ctx, encode(t, ReviewCreated{
			EventID:    fmt.Sprintf("r%d", i),
			EventType:  EventReviewCreated,
			ReviewID:   fmt.Sprintf("rev%d", i),
			BookingID:  "b1",
			CustomerID: "c1",
			WorkshopID: "w1",
			Rating:     rating,
			Timestamp:  t0,
		}))
	}

	got := list(t, alerts, alert.LowRating)
	if len(got) != 2 {
		t.Fatalf("%d low rating alerts, want 2", len(got))
	}
}

func TestRedeliveryCountsOnce(t *testing.T) {
	ctx := context.Background()
	m, alerts := newMonitor()

	e := created(t, "b1", "c1", "w1", t0)
	for i := 0; i < 10; i++ {
		m.Handle(ctx, e)
	}
	if got := list(t, alerts, alert.SuspiciousActivity); len(got) != 0 {
		t.Errorf("redelivered booking raised %d spike alerts", len(got))
	}
}
