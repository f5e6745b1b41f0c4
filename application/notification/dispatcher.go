// Package notification tells customers and workshops about changes to their
// bookings. Delivery is best effort: failures are logged and never reach the
// booking flow.
package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"workshop_booking/application/aggregates"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/idempotency"
	"workshop_booking/infrastructure/messaging"
	"workshop_booking/infrastructure/repository"
)

const consumerName = "notification-dispatcher"

type audience int

const (
	toCustomer audience = iota
	toWorkshop
	toBoth
	// the parties other than whoever acted
	toOthers
)

var routes = map[string]struct {
	kind string
	to   audience
}{
	booking.EventCreated:             {"booking_requested", toWorkshop},
	booking.EventConfirmed:           {"booking_confirmed", toCustomer},
	booking.EventRejected:            {"booking_rejected", toCustomer},
	booking.EventTimeSuggested:       {"time_suggested", toOthers},
	booking.EventSuggestionAccepted:  {"suggestion_accepted", toOthers},
	booking.EventSuggestionDeclined:  {"suggestion_declined", toOthers},
	booking.EventSuggestionExpired:   {"suggestion_expired", toBoth},
	booking.EventFinalizedByWorkshop: {"service_finalized", toCustomer},
	booking.EventPaymentApproved:     {"payment_approved", toBoth},
	booking.EventPaymentDeclined:     {"payment_declined", toCustomer},
	booking.EventPaymentCancelled:    {"payment_cancelled", toCustomer},
	booking.EventRefundPending:       {"refund_pending", toCustomer},
	booking.EventCancelled:           {"booking_cancelled", toOthers},
	booking.EventNoShow:              {"no_show", toCustomer},
}

// Dispatcher turns booking events into notifications for the affected
// parties.
type Dispatcher struct {
	customers repository.CustomerDirectory
	devices   *DeviceRegistry
	processed idempotency.Ledger
	notifier  Notifier
	now       func() time.Time
}

func NewDispatcher(
	customers repository.CustomerDirectory,
	devices *DeviceRegistry,
	processed idempotency.Ledger,
	notifier Notifier,
) *Dispatcher {
	return &Dispatcher{
		customers: customers,
		devices:   devices,
		processed: processed,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Start subscribes the dispatcher to every booking event.
func (d *Dispatcher) Start(bus messaging.Bus) error {
	if err := bus.Subscribe(consumerName, []string{"booking.#"}, d.Handle); err != nil {
		return err
	}
	log.Println("✅ Notification dispatcher started, listening for events...")
	return nil
}

// Handle never fails: a broken message or notifier is logged and dropped.
func (d *Dispatcher) Handle(ctx context.Context, eventData []byte) error {
	env, err := aggregates.ReadEnvelope(eventData)
	if err != nil {
		log.Printf("⚠️  Notification dispatcher dropped message: %v", err)
		return nil
	}
	route, ok := routes[env.EventType]
	if !ok {
		return nil
	}

	// redeliveries are answered from a read, without a write transaction
	if done, err := d.processed.IsProcessed(ctx, env.EventID, consumerName); err == nil && done {
		log.Printf("⏭️  Event %s already notified, skipping", env.EventID)
		return nil
	}

	claimed, err := d.processed.MarkAsProcessed(ctx, env.EventID, env.AggregateID, env.EventType, consumerName)
	if err != nil {
		log.Printf("⚠️  Failed to claim event %s: %v", env.EventID, err)
		return nil
	}
	if !claimed {
		return nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(eventData, &fields); err != nil {
		log.Printf("⚠️  Failed to decode %s: %v", env.EventType, err)
		return nil
	}

	for _, r := range recipients(env, route.to) {
		msg := Message{
			RecipientID: r.ID,
			Role:        string(r.Role),
			Kind:        route.kind,
			BookingID:   env.AggregateID,
			Payload:     d.payload(ctx, r, env, fields),
			SentAt:      d.now().UTC(),
		}
		if err := d.notifier.Notify(ctx, msg); err != nil {
			log.Printf("⚠️  Failed to notify %s %s of %s: %v", r.Role, r.ID, env.EventType, err)
			continue
		}
		log.Printf("📤 Notification %s sent to %s %s", route.kind, r.Role, r.ID)
	}
	return nil
}

func recipients(env aggregates.Envelope, to audience) []booking.Actor {
	customer := booking.Customer(env.Metadata["customer_id"])
	workshop := booking.Workshop(env.Metadata["workshop_id"])

	var out []booking.Actor
	switch to {
	case toCustomer:
		out = []booking.Actor{customer}
	case toWorkshop:
		out = []booking.Actor{workshop}
	case toBoth:
		out = []booking.Actor{customer, workshop}
	case toOthers:
		for _, a := range []booking.Actor{customer, workshop} {
			if a != env.Actor {
				out = append(out, a)
			}
		}
	}

	kept := out[:0]
	for _, a := range out {
		if a.ID != "" {
			kept = append(kept, a)
		}
	}
	return kept
}

func (d *Dispatcher) payload(ctx context.Context, r booking.Actor, env aggregates.Envelope, fields map[string]interface{}) map[string]interface{} {
	p := map[string]interface{}{
		"event_type": env.EventType,
	}
	for _, k := range []string{"reason", "proposed_date", "appointment_date", "final_price", "commission", "amount", "compensation"} {
		if v, ok := fields[k]; ok {
			p[k] = v
		}
	}

	if r.Role == booking.RoleCustomer && d.customers != nil {
		if c, err := d.customers.GetCustomer(ctx, r.ID); err == nil {
			p["display_name"] = c.DisplayName
			p["email"] = c.Email
		} else {
			log.Printf("⚠️  No contact details for customer %s: %v", r.ID, err)
		}
	}

	if d.devices != nil {
		if devices, err := d.devices.Devices(ctx, r.ID); err == nil && len(devices) > 0 {
			p["devices"] = devices
		}
	}
	return p
}
