package saga

import (
	"context"
	"errors"
	"fmt"
	"log"

	"workshop_booking/application/usecases"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/payment"
)

const webhookConsumer = "payment-webhook"

// HandleWebhook verifies a provider notification and settles the booking it
// refers to. Unsigned or tampered payloads yield a *payment.SignatureError.
func (s *BookingSaga) HandleWebhook(ctx context.Context, payload []byte, signature string) (*booking.Booking, error) {
	ev, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	return s.OnPaymentSettled(ctx, *ev)
}

// OnPaymentSettled applies a provider verdict once per transaction and
// outcome. Replays return the booking as it is without further effects.
func (s *BookingSaga) OnPaymentSettled(ctx context.Context, ev payment.WebhookEvent) (b *booking.Booking, err error) {
	bookingID, err := s.resolveBooking(ctx, ev)
	if err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "on_payment_settled", bookingID)
	defer func() { endSpan(span, err) }()

	dedupeKey := ev.TransactionID
	if dedupeKey == "" {
		dedupeKey = ev.ID
	}
	dedupeKey += ":" + string(ev.Outcome)

	claimed, err := s.processed.MarkAsProcessed(ctx, dedupeKey, bookingID, "payment."+string(ev.Outcome), webhookConsumer)
	if err != nil {
		return nil, fmt.Errorf("failed to claim webhook: %w", err)
	}
	if !claimed {
		log.Printf("⏭️  Webhook %s for booking %s already processed, skipping", dedupeKey, bookingID)
		return s.aggregateStore.LoadBooking(ctx, bookingID)
	}

	b, err = s.settle(ctx, bookingID, ev)
	if err != nil {
		// release the claim so the provider's redelivery is processed
		if fErr := s.processed.Forget(ctx, dedupeKey, webhookConsumer); fErr != nil {
			log.Printf("❌ Failed to release webhook claim %s: %v", dedupeKey, fErr)
		}
		return nil, err
	}
	return b, nil
}

func (s *BookingSaga) resolveBooking(ctx context.Context, ev payment.WebhookEvent) (string, error) {
	sess, err := s.sessions.GetSession(ctx, ev.SessionID)
	if err == nil {
		return sess.BookingID, nil
	}
	if !errors.Is(err, payment.ErrSessionNotFound) {
		return "", fmt.Errorf("failed to look up session: %w", err)
	}
	// a session created while the gateway timed out is only known by its metadata
	if ev.BookingID != "" {
		return ev.BookingID, nil
	}
	return "", fmt.Errorf("%w: %s", payment.ErrSessionNotFound, ev.SessionID)
}

func (s *BookingSaga) settle(ctx context.Context, bookingID string, ev payment.WebhookEvent) (*booking.Booking, error) {
	current, err := s.aggregateStore.LoadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	outcome := booking.SettlementOutcome(ev.Outcome)
	// a voided session completes a pending cancellation like a refund does
	if ev.Outcome == payment.OutcomeCancelled && current.Payment.Step == booking.PaymentRefundPending {
		outcome = booking.OutcomeRefunded
	}

	s.recordSession(ctx, ev)

	if outcome == booking.OutcomeApproved && current.Status == booking.StatusCancelled {
		return s.refundLateCharge(ctx, current, ev)
	}

	b, err := s.settleUC.Execute(ctx, usecases.SettleRequest{
		BookingID:     bookingID,
		Outcome:       outcome,
		SessionID:     ev.SessionID,
		TransactionID: ev.TransactionID,
		At:            s.now().UTC(),
	})
	if err != nil {
		log.Printf("❌ Failed to settle booking %s (%s): %v", bookingID, ev.Outcome, err)
		return nil, err
	}
	return b, nil
}

// refundLateCharge returns money the provider captured after the booking was
// cancelled. The booking and its settlement stay as the cancellation left them.
func (s *BookingSaga) refundLateCharge(ctx context.Context, b *booking.Booking, ev payment.WebhookEvent) (*booking.Booking, error) {
	log.Printf("🔙 COMPENSATION: Session %s captured after booking %s was cancelled, refunding", ev.SessionID, b.ID)

	var refunded *payment.Session
	err := s.callGateway(ctx, func(ctx context.Context) error {
		var err error
		refunded, err = s.gateway.Refund(ctx, ev.SessionID, nil)
		return err
	})
	if err != nil {
		log.Printf("❌ Refund of late capture %s on booking %s failed: %v", ev.SessionID, b.ID, err)
		return nil, &CompensationError{BookingID: b.ID, Pending: payment.IsUnknownOutcome(err), Err: err}
	}

	refunded.UpdatedAt = s.now().UTC()
	if err := s.sessions.SaveSession(ctx, refunded); err != nil {
		log.Printf("❌ Failed to update session %s: %v", refunded.ID, err)
	}
	return b, nil
}

// recordSession mirrors the verdict on the stored session.
func (s *BookingSaga) recordSession(ctx context.Context, ev payment.WebhookEvent) {
	sess, err := s.sessions.GetSession(ctx, ev.SessionID)
	if err != nil {
		return
	}
	switch ev.Outcome {
	case payment.OutcomeApproved:
		sess.Status = payment.SessionCaptured
	case payment.OutcomeDeclined:
		sess.Status = payment.SessionDeclined
	case payment.OutcomeCancelled:
		sess.Status = payment.SessionCancelled
	case payment.OutcomeRefunded:
		sess.Status = payment.SessionRefunded
	}
	if ev.TransactionID != "" {
		sess.TransactionID = ev.TransactionID
	}
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		log.Printf("❌ Failed to update session %s: %v", sess.ID, err)
	}
}
