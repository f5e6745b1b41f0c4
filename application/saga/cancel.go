package saga

import (
	"context"
	"errors"
	"fmt"
	"log"

	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/payment"
)

// CompensationError is returned when a cancellation could not void or
// refund the booking's payment. With Pending set the provider may still
// complete the refund and the booking waits in refund_pending; otherwise the
// booking is unchanged.
type CompensationError struct {
	BookingID string
	Pending   bool
	Err       error
}

func (e *CompensationError) Error() string {
	if e.Pending {
		return fmt.Sprintf("booking %s: refund pending with provider: %v", e.BookingID, e.Err)
	}
	return fmt.Sprintf("booking %s: payment compensation failed: %v", e.BookingID, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// Cancel ends a non-terminal booking. Money held by an open session is
// returned first: an uncaptured session is voided, a captured one refunded.
func (s *BookingSaga) Cancel(ctx context.Context, bookingID string, actor booking.Actor, reason string) (b *booking.Booking, err error) {
	ctx, span := startSpan(ctx, "cancel", bookingID)
	defer func() { endSpan(span, err) }()

	current, err := s.aggregateStore.LoadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	// dry run so terminal or foreign bookings never reach the gateway
	if _, err := booking.Apply(current, booking.Cancel{Meta: s.meta(), Reason: reason, Compensation: booking.CompensationVoided}, actor); err != nil {
		return nil, err
	}

	if !current.Payment.HoldsSession() && current.Payment.Step != booking.PaymentAwaitingProvider {
		return s.finishCancel(ctx, current, actor, reason, booking.CompensationNone)
	}

	if current.Payment.SessionID == "" {
		// session creation timed out; only the provider's webhook can tell
		// whether it exists
		return nil, &CompensationError{BookingID: bookingID, Pending: true, Err: errors.New("payment session outcome not yet known")}
	}

	sess, err := s.sessions.GetSession(ctx, current.Payment.SessionID)
	if err != nil {
		return nil, &CompensationError{BookingID: bookingID, Err: err}
	}

	log.Printf("🔙 COMPENSATION: Returning funds of session %s (%s) before cancelling %s", sess.ID, sess.Status, bookingID)

	compensation := booking.CompensationVoided
	err = s.callGateway(ctx, func(ctx context.Context) error {
		var (
			updated *payment.Session
			err     error
		)
		switch sess.Status {
		case payment.SessionCaptured:
			compensation = booking.CompensationRefunded
			updated, err = s.gateway.Refund(ctx, sess.ID, nil)
		case payment.SessionRefunded, payment.SessionCancelled, payment.SessionDeclined:
			return nil
		default:
			updated, err = s.gateway.Cancel(ctx, sess.ID)
		}
		if err == nil {
			sess = updated
		}
		return err
	})

	if err != nil {
		if payment.IsUnknownOutcome(err) {
			log.Printf("⚠️  Compensation of booking %s in unknown state, awaiting provider", bookingID)
			if _, rErr := s.execute(ctx, bookingID, booking.RequestRefund{Meta: s.meta(), Reason: reason}, actor); rErr != nil {
				return nil, rErr
			}
			return nil, &CompensationError{BookingID: bookingID, Pending: true, Err: err}
		}
		log.Printf("❌ Compensation of booking %s failed: %v", bookingID, err)
		return nil, &CompensationError{BookingID: bookingID, Err: err}
	}

	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		log.Printf("❌ Failed to update session %s: %v", sess.ID, err)
	}

	return s.finishCancel(ctx, current, actor, reason, compensation)
}

func (s *BookingSaga) finishCancel(ctx context.Context, current *booking.Booking, actor booking.Actor, reason string, compensation booking.Compensation) (*booking.Booking, error) {
	cmd := booking.Cancel{Meta: s.meta(), Reason: reason, Compensation: compensation}
	next, err := booking.Apply(current, cmd, actor)
	if err != nil {
		return nil, err
	}
	if err := s.aggregateStore.SaveBooking(ctx, next, cmd.Name()); err != nil {
		return nil, err
	}

	if compensation != booking.CompensationNone {
		s.settleUC.CloseSettlement(ctx, next.ID, cmd.At)
	}

	log.Printf("🛑 Booking %s cancelled by %s (%s)", next.ID, actor.Role, reason)
	return next, nil
}
