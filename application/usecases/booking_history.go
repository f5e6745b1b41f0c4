package usecases

import (
	"context"
	"encoding/json"
	"time"

	"workshop_booking/application/aggregates"
	"workshop_booking/domain/booking"
)

// TimelineEntry is one stored event of a booking, as shown to its parties.
type TimelineEntry struct {
	Version   int             `json:"version"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Actor     booking.Actor   `json:"actor"`
	At        time.Time       `json:"at"`
	Data      json.RawMessage `json:"data"`
}

type BookingHistoryUseCase struct {
	aggregateStore *aggregates.AggregateStore
}

func NewBookingHistoryUseCase(aggregateStore *aggregates.AggregateStore) *BookingHistoryUseCase {
	return &BookingHistoryUseCase{aggregateStore: aggregateStore}
}

// Execute returns the booking's full event timeline, oldest first.
func (uc *BookingHistoryUseCase) Execute(ctx context.Context, bookingID string) ([]TimelineEntry, error) {
	events, err := uc.aggregateStore.LoadEvents(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	timeline := make([]TimelineEntry, 0, len(events))
	for _, evt := range events {
		var head struct {
			Actor     booking.Actor `json:"actor"`
			Timestamp time.Time     `json:"timestamp"`
		}
		if err := json.Unmarshal(evt.EventData, &head); err != nil {
			return nil, err
		}
		timeline = append(timeline, TimelineEntry{
			Version:   evt.Version,
			EventID:   evt.EventID,
			EventType: evt.EventType,
			Actor:     head.Actor,
			At:        head.Timestamp,
			Data:      json.RawMessage(evt.EventData),
		})
	}
	return timeline, nil
}
