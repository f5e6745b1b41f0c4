package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/idempotency"
	"workshop_booking/infrastructure/kv"
	"workshop_booking/infrastructure/messaging"
	"workshop_booking/infrastructure/repository"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
	fail error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, msg)
	return nil
}

var now = time.Date(2025, 4, 10, 14, 0, 0, 0, time.UTC)

// events runs cmds from a fresh booking and returns each new event encoded.
func events(t *testing.T, steps ...func(*booking.Booking) (booking.Command, booking.Actor)) [][]byte {
	t.Helper()
	b, err := booking.Apply(nil, booking.Create{
		Meta:            booking.Meta{At: now},
		BookingID:       "b1",
		CustomerID:      "c1",
		WorkshopID:      "w1",
		VehicleID:       "v1",
		ServiceID:       "oil",
		AppointmentDate: now.Add(24 * time.Hour),
	}, booking.Customer("c1"))
	if err != nil {
		t.Fatal(err)
	}
	for _, step := range steps {
		cmd, actor := step(b)
		if b, err = booking.Apply(b, cmd, actor); err != nil {
			t.Fatal(err)
		}
	}

	var out [][]byte
	for _, e := range b.Changes {
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, data)
	}
	return out
}

func newDispatcher(n Notifier) (*Dispatcher, *DeviceRegistry) {
	dir := repository.NewMemoryDirectory()
	dir.AddCustomer(repository.Customer{ID: "c1", Email: "ana@example.com", DisplayName: "Ana"})
	store := kv.NewMemoryStore()
	devices := NewDeviceRegistry(store, time.Hour)
	return NewDispatcher(dir, devices, idempotency.NewKVLedger(store, 0), n), devices
}

func TestDispatcherRecipients(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	d, devices := newDispatcher(n)
	devices.Register(ctx, "c1", Device{Token: "tok-1", Platform: "android"})

	msgs := events(t,
		func(*booking.Booking) (booking.Command, booking.Actor) {
			return booking.SuggestTime{Meta: booking.Meta{At: now}, ProposedDate: now.Add(48 * time.Hour)}, booking.Workshop("w1")
		},
		func(*booking.Booking) (booking.Command, booking.Actor) {
			return booking.RespondToSuggestion{Meta: booking.Meta{At: now}, Accept: true}, booking.Customer("c1")
		},
	)
	for _, m := range msgs {
		d.Handle(ctx, m)
	}

	want := []struct {
		recipient string
		kind      string
	}{
		{"w1", "booking_requested"},
		{"c1", "time_suggested"},
		{"w1", "suggestion_accepted"},
	}
	if len(n.sent) != len(want) {
		t.Fatalf("sent %d messages: %+v", len(n.sent), n.sent)
	}
	for i, w := range want {
		if n.sent[i].RecipientID != w.recipient || n.sent[i].Kind != w.kind {
			t.Errorf("message %d = %s/%s, want %s/%s", i, n.sent[i].RecipientID, n.sent[i].Kind, w.recipient, w.kind)
		}
	}

	customerMsg := n.sent[1].Payload
	if customerMsg["display_name"] != "Ana" || customerMsg["email"] != "ana@example.com" {
		t.Errorf("customer payload not enriched: %v", customerMsg)
	}
	if devs, _ := customerMsg["devices"].([]Device); len(devs) != 1 || devs[0].Token != "tok-1" {
		t.Errorf("devices = %v", customerMsg["devices"])
	}
}

func TestDispatcherDedupesRedelivery(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	d, _ := newDispatcher(n)

	created := events(t)[0]
	d.Handle(ctx, created)
	d.Handle(ctx, created)

	if len(n.sent) != 1 {
		t.Errorf("sent %d messages for one event", len(n.sent))
	}
}

// countingLedger counts claim attempts on top of a real ledger.
type countingLedger struct {
	idempotency.Ledger
	claims int
}

func (l *countingLedger) MarkAsProcessed(ctx context.Context, eventID, aggregateID, eventType, processedBy string) (bool, error) {
	l.claims++
	return l.Ledger.MarkAsProcessed(ctx, eventID, aggregateID, eventType, processedBy)
}

func TestDispatcherSkipsKnownEventWithoutClaiming(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	ledger := &countingLedger{Ledger: idempotency.NewKVLedger(kv.NewMemoryStore(), 0)}
	d := NewDispatcher(repository.NewMemoryDirectory(), nil, ledger, n)

	created := events(t)[0]
	for i := 0; i < 3; i++ {
		if err := d.Handle(ctx, created); err != nil {
			t.Fatalf("Handle #%d: %v", i+1, err)
		}
	}

	if ledger.claims != 1 {
		t.Errorf("%d claim attempts, want 1", ledger.claims)
	}
	if len(n.sent) != 1 {
		t.Errorf("sent %d messages for one event", len(n.sent))
	}
}

func TestDispatcherFailuresAreSwallowed(t *testing.T) {
	d, _ := newDispatcher(&recordingNotifier{fail: errors.New("smtp down")})

	if err := d.Handle(context.Background(), events(t)[0]); err != nil {
		t.Errorf("Handle returned %v", err)
	}
	if err := d.Handle(context.Background(), []byte("not json")); err != nil {
		t.Errorf("Handle of garbage returned %v", err)
	}
}

func TestAMQPNotifierRoutingKey(t *testing.T) {
	bus := messaging.NewMemoryBus(8)
	defer bus.Close()

	var (
		mu  sync.Mutex
		got []Message
	)
	bus.Subscribe("push-worker", []string{"notify.customer.*"}, func(ctx context.Context, data []byte) error {
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	})

	n := NewAMQPNotifier(bus)
	n.Notify(context.Background(), Message{RecipientID: "c1", Role: "customer", Kind: "booking_confirmed", BookingID: "b1"})
	n.Notify(context.Background(), Message{RecipientID: "w1", Role: "workshop", Kind: "booking_requested", BookingID: "b1"})
	bus.Flush(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].RecipientID != "c1" {
		t.Errorf("push worker got %+v", got)
	}
}
