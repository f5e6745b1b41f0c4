package saga

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"workshop_booking/application/usecases"
	"workshop_booking/domain/booking"
	"workshop_booking/pkg/uuid"
)

type CreateRequest struct {
	CustomerID      string
	WorkshopID      string
	VehicleID       string
	ServiceID       string
	AppointmentDate time.Time
	Notes           string
	EstimatedPrice  int64
}

// Create validates the workshop and vehicle and stores a new booking in
// pending_workshop.
func (s *BookingSaga) Create(ctx context.Context, req CreateRequest) (b *booking.Booking, err error) {
	id := uuid.New()
	ctx, span := startSpan(ctx, "create", id)
	defer func() { endSpan(span, err) }()

	if err := s.checkRate(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	return s.createUC.Execute(ctx, usecases.CreateBookingRequest{
		BookingID:       id,
		CustomerID:      req.CustomerID,
		WorkshopID:      req.WorkshopID,
		VehicleID:       req.VehicleID,
		ServiceID:       req.ServiceID,
		AppointmentDate: req.AppointmentDate,
		EstimatedPrice:  req.EstimatedPrice,
		Notes:           strings.TrimSpace(req.Notes),
		At:              s.now().UTC(),
	})
}

func (s *BookingSaga) checkRate(ctx context.Context, customerID string) error {
	if s.limiter == nil || s.opts.CreateRateLimit <= 0 {
		return nil
	}
	n, err := s.limiter.Incr(ctx, "rl:create:"+customerID, s.opts.CreateRateWindow)
	if err != nil {
		// advisory only
		log.Printf("⚠️  Rate limiter unavailable: %v", err)
		return nil
	}
	if n > s.opts.CreateRateLimit {
		return fmt.Errorf("%w (customer %s)", ErrRateLimited, customerID)
	}
	return nil
}
