// Package projection keeps the booking listing in step with the event stream.
package projection

import (
	"context"
	"errors"
	"log"

	"workshop_booking/application/aggregates"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/messaging"
	"workshop_booking/infrastructure/repository"
)

const consumerName = "booking-view"

// Projector rebuilds a listing row from the aggregate on every booking event.
// Rows are version guarded, so redelivered or reordered events are harmless.
type Projector struct {
	aggregateStore *aggregates.AggregateStore
	view           repository.BookingView
}

func NewProjector(aggregateStore *aggregates.AggregateStore, view repository.BookingView) *Projector {
	return &Projector{aggregateStore: aggregateStore, view: view}
}

func (p *Projector) Start(bus messaging.Bus) error {
	if err := bus.Subscribe(consumerName, []string{"booking.#"}, p.Handle); err != nil {
		return err
	}
	log.Println("✅ Booking view projector started")
	return nil
}

func (p *Projector) Handle(ctx context.Context, eventData []byte) error {
	env, err := aggregates.ReadEnvelope(eventData)
	if err != nil {
		return err
	}

	b, err := p.aggregateStore.LoadBooking(ctx, env.AggregateID)
	if errors.Is(err, booking.ErrNotFound) {
		log.Printf("⚠️  Event %s refers to unknown booking %s", env.EventID, env.AggregateID)
		return nil
	}
	if err != nil {
		return err
	}

	return p.view.UpsertBooking(ctx, Row(b))
}

// Row flattens a booking into its listing row.
func Row(b *booking.Booking) repository.BookingRow {
	row := repository.BookingRow{
		ID:              b.ID,
		CustomerID:      b.CustomerID,
		WorkshopID:      b.WorkshopID,
		Status:          string(b.Status),
		AppointmentDate: b.AppointmentDate,
		Version:         b.Version,
		UpdatedAt:       b.UpdatedAt,
	}
	if b.PendingSuggestion != nil {
		at := b.PendingSuggestion.At
		row.SuggestedAt = &at
	}
	return row
}
