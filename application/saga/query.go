package saga

import (
	"context"

	"workshop_booking/application/usecases"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/repository"
)

func canRead(b *booking.Booking, actor booking.Actor) bool {
	switch actor.Role {
	case booking.RolePlatform:
		return true
	case booking.RoleCustomer:
		return actor.ID == b.CustomerID
	case booking.RoleWorkshop:
		return actor.ID == b.WorkshopID
	}
	return false
}

// Get returns the current state of a booking visible to actor.
func (s *BookingSaga) Get(ctx context.Context, bookingID string, actor booking.Actor) (*booking.Booking, error) {
	b, err := s.aggregateStore.LoadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canRead(b, actor) {
		// non-parties learn nothing about the booking, not even its status
		return nil, &booking.TransitionError{Kind: booking.ErrForbidden, Command: "get"}
	}
	return b, nil
}

// History returns the event timeline of a booking visible to actor.
func (s *BookingSaga) History(ctx context.Context, bookingID string, actor booking.Actor) ([]usecases.TimelineEntry, error) {
	if _, err := s.Get(ctx, bookingID, actor); err != nil {
		return nil, err
	}
	return s.historyUC.Execute(ctx, bookingID)
}

// List returns the actor's bookings from the listing projection.
func (s *BookingSaga) List(ctx context.Context, actor booking.Actor, limit int) ([]repository.BookingRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	switch actor.Role {
	case booking.RoleCustomer:
		return s.view.ListForParty(ctx, actor.ID, "", limit)
	case booking.RoleWorkshop:
		return s.view.ListForParty(ctx, "", actor.ID, limit)
	}
	return s.view.ListForParty(ctx, "", "", limit)
}
