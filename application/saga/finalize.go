package saga

import (
	"context"
	"log"

	"workshop_booking/domain/booking"
)

// FinalizeByWorkshop closes the service. A nil finalPrice keeps the
// estimated price.
func (s *BookingSaga) FinalizeByWorkshop(ctx context.Context, bookingID, workshopID string, finalPrice *int64, notes string) (*booking.Booking, error) {
	b, err := s.execute(ctx, bookingID, booking.Finalize{
		Meta:       s.meta(),
		FinalPrice: finalPrice,
		Notes:      notes,
	}, booking.Workshop(workshopID))
	if err != nil {
		return nil, err
	}
	log.Printf("🔧 Booking %s finalized by workshop at %d", bookingID, *b.FinalPrice)
	return b, nil
}

func (s *BookingSaga) MarkNoShow(ctx context.Context, bookingID string, actor booking.Actor) (*booking.Booking, error) {
	b, err := s.execute(ctx, bookingID, booking.MarkNoShow{Meta: s.meta()}, actor)
	if err != nil {
		return nil, err
	}
	log.Printf("👻 Booking %s marked as no-show", bookingID)
	return b, nil
}
