package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/eventstore"
)

// AggregateStore provides high-level methods for loading and saving aggregates
type AggregateStore struct {
	eventStore eventstore.EventStore
}

func NewAggregateStore(es eventstore.EventStore) *AggregateStore {
	return &AggregateStore{eventStore: es}
}

// LoadBooking rebuilds a Booking from its events. A booking without events
// yields booking.ErrNotFound.
func (as *AggregateStore) LoadBooking(ctx context.Context, bookingID string) (*booking.Booking, error) {
	events, err := as.eventStore.Load(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, bookingID)
	}

	b := booking.NewBooking()

	// Replay all events
	for _, evt := range events {
		domainEvent, err := DecodeBookingEvent(evt.EventType, evt.EventData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize event: %w", err)
		}

		if err := b.When(domainEvent); err != nil {
			return nil, fmt.Errorf("failed to apply event: %w", err)
		}
	}

	return b, nil
}

// SaveBooking appends the booking's uncommitted events. Losing the version
// race is reported as a booking conflict carrying the winner's status.
func (as *AggregateStore) SaveBooking(ctx context.Context, b *booking.Booking, command string) error {
	if len(b.Changes) == 0 {
		return nil // No changes to save
	}

	if err := as.eventStore.Save(ctx, b.Changes); err != nil {
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			expected := b.Version - len(b.Changes)
			current, loadErr := as.LoadBooking(ctx, b.ID)
			if loadErr != nil {
				return booking.Conflict(command, b.Status, expected, -1)
			}
			return booking.Conflict(command, current.Status, expected, current.Version)
		}
		return fmt.Errorf("failed to save events: %w", err)
	}

	// Clear uncommitted events after successful save
	b.Changes = make([]interface{}, 0)

	return nil
}

// LoadEvents returns the raw stream of a booking, oldest first.
func (as *AggregateStore) LoadEvents(ctx context.Context, bookingID string) ([]eventstore.Event, error) {
	events, err := as.eventStore.Load(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, bookingID)
	}
	return events, nil
}

func decode[T any](data []byte) (interface{}, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// DecodeBookingEvent converts a stored or published payload to its domain
// event type.
func DecodeBookingEvent(eventType string, data []byte) (interface{}, error) {
	switch eventType {
	case booking.EventCreated:
		return decode[booking.BookingCreated](data)
	case booking.EventConfirmed:
		return decode[booking.BookingConfirmed](data)
	case booking.EventRejected:
		return decode[booking.BookingRejected](data)
	case booking.EventTimeSuggested:
		return decode[booking.TimeSuggested](data)
	case booking.EventSuggestionAccepted:
		return decode[booking.TimeSuggestionAccepted](data)
	case booking.EventSuggestionDeclined:
		return decode[booking.TimeSuggestionDeclined](data)
	case booking.EventSuggestionExpired:
		return decode[booking.TimeSuggestionExpired](data)
	case booking.EventFinalizedByWorkshop:
		return decode[booking.BookingFinalizedByWorkshop](data)
	case booking.EventPaymentInitiated:
		return decode[booking.PaymentInitiated](data)
	case booking.EventPaymentApproved:
		return decode[booking.PaymentApproved](data)
	case booking.EventPaymentDeclined:
		return decode[booking.PaymentDeclined](data)
	case booking.EventPaymentCancelled:
		return decode[booking.PaymentCancelled](data)
	case booking.EventRefundPending:
		return decode[booking.RefundPending](data)
	case booking.EventCancelled:
		return decode[booking.BookingCancelled](data)
	case booking.EventNoShow:
		return decode[booking.BookingNoShow](data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// Envelope is the part of every published booking event a consumer needs
// before decoding the full payload.
type Envelope struct {
	EventID     string            `json:"event_id"`
	AggregateID string            `json:"aggregate_id"`
	EventType   string            `json:"event_type"`
	Version     int               `json:"version"`
	Actor       booking.Actor     `json:"actor"`
	Metadata    map[string]string `json:"metadata"`
}

func ReadEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("failed to read event envelope: %w", err)
	}
	if env.EventID == "" || env.EventType == "" {
		return env, errors.New("event envelope missing id or type")
	}
	return env, nil
}
