package settlement

import (
	"errors"
	"time"

	"workshop_booking/pkg/uuid"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusSettled  Status = "settled"
	StatusRefunded Status = "refunded"
)

var (
	ErrNotFound        = errors.New("settlement not found")
	ErrCommissionSet   = errors.New("commission already recorded with a different value")
	ErrAlreadyRefunded = errors.New("settlement already refunded")
)

// Settlement is the order record created when a customer starts paying for a
// booking. There is at most one per booking.
type Settlement struct {
	OrderID        string     `db:"order_id" json:"order_id"`
	BookingID      string     `db:"booking_id" json:"booking_id"`
	CustomerID     string     `db:"customer_id" json:"customer_id"`
	WorkshopID     string     `db:"workshop_id" json:"workshop_id"`
	Amount         int64      `db:"amount" json:"amount"`
	Currency       string     `db:"currency" json:"currency"`
	Commission     *int64     `db:"commission" json:"commission,omitempty"`
	CommissionRate string     `db:"commission_rate" json:"commission_rate,omitempty"`
	TransactionID  string     `db:"transaction_id" json:"transaction_id,omitempty"`
	Status         Status     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	SettledAt      *time.Time `db:"settled_at" json:"settled_at,omitempty"`
	RefundedAt     *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
}

// OrderIDFor derives the order id of a booking. Every retry of the payment
// step computes the same id.
func OrderIDFor(bookingID string) string {
	return uuid.Derive("order", bookingID)
}

func New(bookingID, customerID, workshopID string, amount int64, currency string, at time.Time) *Settlement {
	return &Settlement{
		OrderID:    OrderIDFor(bookingID),
		BookingID:  bookingID,
		CustomerID: customerID,
		WorkshopID: workshopID,
		Amount:     amount,
		Currency:   currency,
		Status:     StatusOpen,
		CreatedAt:  at,
	}
}

// AttachCommission records the platform cut once. Repeating the call with the
// same values is a no-op; a different value is rejected.
func (s *Settlement) AttachCommission(commission int64, rate Rate, transactionID string, at time.Time) (changed bool, err error) {
	if s.Commission != nil {
		if *s.Commission == commission && s.TransactionID == transactionID {
			return false, nil
		}
		return false, ErrCommissionSet
	}
	s.Commission = &commission
	s.CommissionRate = rate.String()
	s.TransactionID = transactionID
	s.Status = StatusSettled
	s.SettledAt = &at
	return true, nil
}

// MarkRefunded closes the order after the booking was cancelled and its
// payment session voided or refunded.
func (s *Settlement) MarkRefunded(at time.Time) error {
	if s.Status == StatusRefunded {
		return ErrAlreadyRefunded
	}
	s.Status = StatusRefunded
	s.RefundedAt = &at
	return nil
}
