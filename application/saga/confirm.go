package saga

import (
	"context"
	"log"

	"workshop_booking/domain/booking"
)

func (s *BookingSaga) Confirm(ctx context.Context, bookingID, workshopID string) (*booking.Booking, error) {
	b, err := s.execute(ctx, bookingID, booking.Confirm{Meta: s.meta()}, booking.Workshop(workshopID))
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Booking %s confirmed by workshop %s", bookingID, workshopID)
	return b, nil
}

func (s *BookingSaga) Reject(ctx context.Context, bookingID, workshopID, reason string) (*booking.Booking, error) {
	b, err := s.execute(ctx, bookingID, booking.Reject{Meta: s.meta(), Reason: reason}, booking.Workshop(workshopID))
	if err != nil {
		return nil, err
	}
	log.Printf("🚫 Booking %s rejected: %s", bookingID, reason)
	return b, nil
}
