package saga

import (
	"context"
	"errors"
	"fmt"
	"log"

	"workshop_booking/domain/booking"
	"workshop_booking/domain/settlement"
	"workshop_booking/infrastructure/payment"
)

// ConfirmAndPay opens the payment of a finalized booking. Every sub-step is
// idempotent: the settlement is keyed by booking, an open session is reused
// and re-recording the same session appends nothing, so a failed call can be
// retried as a whole.
//
// If the gateway cannot be reached the booking is left unchanged. If the
// session request was sent but its result is unknown the booking moves to
// awaiting_provider and the returned error is a GatewayError with Unknown set.
func (s *BookingSaga) ConfirmAndPay(ctx context.Context, bookingID, customerID string) (b *booking.Booking, sess *payment.Session, err error) {
	ctx, span := startSpan(ctx, "confirm_and_pay", bookingID)
	defer func() { endSpan(span, err) }()

	log.Printf("💳 Payment requested for booking %s", bookingID)

	b, err = s.aggregateStore.LoadBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	actor := booking.Customer(customerID)
	orderID := settlement.OrderIDFor(b.ID)

	// dry run so a refused command never reaches the gateway
	if _, err := booking.Apply(b, booking.InitiatePayment{
		Meta:             s.meta(),
		OrderID:          orderID,
		Amount:           finalPrice(b),
		Currency:         s.opts.Currency,
		AwaitingProvider: true,
	}, actor); err != nil {
		return nil, nil, err
	}

	// STEP 1: settlement record
	stored, created, err := s.settlements.CreateIfAbsent(ctx, settlement.New(b.ID, b.CustomerID, b.WorkshopID, *b.FinalPrice, s.opts.Currency, s.now().UTC()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create settlement: %w", err)
	}
	if created {
		log.Printf("🧾 Order %s opened for booking %s", stored.OrderID, b.ID)
	}

	// STEP 2: gateway session
	sess, err = s.openSession(ctx, b, stored)
	if err != nil {
		if !payment.IsUnknownOutcome(err) {
			log.Printf("❌ Payment session for booking %s failed: %v", b.ID, err)
			return nil, nil, err
		}
		log.Printf("⚠️  Payment session for booking %s in unknown state, awaiting provider", b.ID)
		next, applyErr := s.recordPayment(ctx, b, actor, stored, "", true)
		if applyErr != nil {
			return nil, nil, applyErr
		}
		return next, nil, err
	}

	// STEP 3: order and session on the booking
	next, err := s.recordPayment(ctx, b, actor, stored, sess.ID, false)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("✅ Payment session %s open for booking %s (%d %s)", sess.ID, b.ID, sess.Amount, sess.Currency)
	return next, sess, nil
}

func finalPrice(b *booking.Booking) int64 {
	if b.FinalPrice == nil {
		return 0
	}
	return *b.FinalPrice
}

func (s *BookingSaga) openSession(ctx context.Context, b *booking.Booking, order *settlement.Settlement) (*payment.Session, error) {
	existing, err := s.sessions.OpenSessionFor(ctx, b.ID)
	if err == nil {
		log.Printf("⏭️  Reusing session %s for booking %s", existing.ID, b.ID)
		return existing, nil
	}
	if !errors.Is(err, payment.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	var sess *payment.Session
	err = s.callGateway(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.gateway.CreateSession(ctx, payment.SessionRequest{
			BookingID: b.ID,
			OrderID:   order.OrderID,
			Amount:    order.Amount,
			Currency:  order.Currency,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return sess, nil
}

func (s *BookingSaga) recordPayment(ctx context.Context, b *booking.Booking, actor booking.Actor, order *settlement.Settlement, sessionID string, awaiting bool) (*booking.Booking, error) {
	cmd := booking.InitiatePayment{
		Meta:             s.meta(),
		OrderID:          order.OrderID,
		SessionID:        sessionID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		AwaitingProvider: awaiting,
	}
	next, err := booking.Apply(b, cmd, actor)
	if err != nil {
		return nil, err
	}
	if err := s.aggregateStore.SaveBooking(ctx, next, cmd.Name()); err != nil {
		return nil, err
	}
	return next, nil
}
