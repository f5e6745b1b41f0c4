package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"workshop_booking/application/aggregates"
	"workshop_booking/domain/booking"
	"workshop_booking/domain/settlement"
	"workshop_booking/infrastructure/repository"
)

// SettleBookingUseCase applies a provider verdict to the booking and its
// settlement record. The transition is checked before the settlement is
// touched; the commission is then written ahead of the booking save and is
// immutable, so a retry after a failed booking save repeats a no-op.
type SettleBookingUseCase struct {
	aggregateStore *aggregates.AggregateStore
	settlements    repository.SettlementRepository
	rate           settlement.Rate
}

func NewSettleBookingUseCase(
	aggregateStore *aggregates.AggregateStore,
	settlements repository.SettlementRepository,
	rate settlement.Rate,
) *SettleBookingUseCase {
	return &SettleBookingUseCase{
		aggregateStore: aggregateStore,
		settlements:    settlements,
		rate:           rate,
	}
}

type SettleRequest struct {
	BookingID     string
	Outcome       booking.SettlementOutcome
	SessionID     string
	TransactionID string
	At            time.Time
}

func (uc *SettleBookingUseCase) Execute(ctx context.Context, req SettleRequest) (*booking.Booking, error) {
	b, err := uc.aggregateStore.LoadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	cmd := booking.SettlePayment{
		Meta:          booking.Meta{At: req.At},
		Outcome:       req.Outcome,
		SessionID:     req.SessionID,
		TransactionID: req.TransactionID,
	}

	switch req.Outcome {
	case booking.OutcomeApproved:
		if b.Status == booking.StatusFinalizedByCustomer {
			log.Printf("⏭️  Booking %s already settled", b.ID)
			return b, nil
		}
		if b.FinalPrice == nil {
			return nil, fmt.Errorf("booking %s has no final price", b.ID)
		}
		commission, err := settlement.ComputeCommission(*b.FinalPrice, uc.rate)
		if err != nil {
			return nil, err
		}
		cmd.Commission = commission
		cmd.CommissionRate = uc.rate.String()

	case booking.OutcomeDeclined, booking.OutcomeCancelled, booking.OutcomeRefunded:
		// the cancellation already returned the funds
		if b.Status == booking.StatusCancelled {
			log.Printf("⏭️  Booking %s already cancelled, %s verdict ignored", b.ID, req.Outcome)
			return b, nil
		}
	}

	next, err := booking.Apply(b, cmd, booking.Platform())
	if err != nil {
		return nil, err
	}

	if req.Outcome == booking.OutcomeApproved {
		if err := uc.attachCommission(ctx, b, cmd.Commission, req); err != nil {
			return nil, err
		}
	}

	if err := uc.aggregateStore.SaveBooking(ctx, next, cmd.Name()); err != nil {
		return nil, err
	}

	if req.Outcome == booking.OutcomeRefunded {
		uc.CloseSettlement(ctx, next.ID, req.At)
	}

	log.Printf("💰 Booking %s settled: %s", next.ID, req.Outcome)
	return next, nil
}

func (uc *SettleBookingUseCase) attachCommission(ctx context.Context, b *booking.Booking, commission int64, req SettleRequest) error {
	s, err := uc.settlements.GetByBooking(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("failed to load settlement: %w", err)
	}
	changed, err := s.AttachCommission(commission, uc.rate, req.TransactionID, req.At)
	if err != nil {
		return fmt.Errorf("settlement %s: %w", s.OrderID, err)
	}
	if !changed {
		return nil
	}
	if err := uc.settlements.Update(ctx, s); err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	log.Printf("🧾 Commission %d (rate %s) recorded on order %s", commission, uc.rate, s.OrderID)
	return nil
}

// CloseSettlement marks the booking's order refunded once its funds were
// voided or returned. A booking cancelled before paying has no settlement.
func (uc *SettleBookingUseCase) CloseSettlement(ctx context.Context, bookingID string, at time.Time) {
	s, err := uc.settlements.GetByBooking(ctx, bookingID)
	if errors.Is(err, settlement.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("❌ Failed to load settlement of %s: %v", bookingID, err)
		return
	}
	if err := s.MarkRefunded(at); err != nil {
		return
	}
	if err := uc.settlements.Update(ctx, s); err != nil {
		log.Printf("❌ Failed to close settlement %s: %v", s.OrderID, err)
	}
}
