package booking

import (
	"fmt"
	"time"

	"workshop_booking/pkg/uuid"
)

// VehicleSnapshot is copied from the vehicle directory at creation and never
// changes afterwards.
type VehicleSnapshot struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	Plate    string `json:"plate"`
	Odometer int64  `json:"odometer"`
}

type HistoryEntry struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Actor  Actor     `json:"actor"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Suggestion is an open proposal for a new appointment time.
type Suggestion struct {
	ProposedDate time.Time `json:"proposed_date"`
	ProposedBy   Actor     `json:"proposed_by"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// PaymentStep tracks how far the pay/settle saga got for this booking.
type PaymentStep string

const (
	PaymentNone             PaymentStep = ""
	PaymentSessionOpen      PaymentStep = "session_open"
	PaymentAwaitingProvider PaymentStep = "awaiting_provider"
	PaymentSettled          PaymentStep = "settled"
	PaymentRefundPending    PaymentStep = "refund_pending"
	PaymentRefunded         PaymentStep = "refunded"
)

// Compensation records what was done with collected funds on cancellation.
type Compensation string

const (
	CompensationNone     Compensation = ""
	CompensationVoided   Compensation = "voided"
	CompensationRefunded Compensation = "refunded"
)

type Payment struct {
	Step          PaymentStep `json:"step,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	Amount        int64       `json:"amount,omitempty"`
	Currency      string      `json:"currency,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	// set while a refund is in flight
	CancelRequestedBy *Actor `json:"cancel_requested_by,omitempty"`
	CancelReason      string `json:"cancel_reason,omitempty"`
}

// HoldsSession reports whether a provider session may still hold or move funds.
func (p Payment) HoldsSession() bool {
	if p.SessionID == "" {
		return false
	}
	switch p.Step {
	case PaymentSessionOpen, PaymentAwaitingProvider, PaymentRefundPending:
		return true
	}
	return false
}

// Booking is the aggregate root.
type Booking struct {
	ID              string
	CustomerID      string
	WorkshopID      string
	VehicleID       string
	ServiceID       string
	AppointmentDate time.Time
	Status          Status
	StatusHistory   []HistoryEntry
	VehicleSnapshot VehicleSnapshot
	EstimatedPrice  int64
	FinalPrice      *int64
	OrderID         string
	Commission      *int64
	CustomerNotes   string
	WorkshopNotes   string

	RejectionReason    string
	CancellationReason string
	PendingSuggestion  *Suggestion
	Payment            Payment

	ConfirmedAt *time.Time
	FinalizedAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	NoShowAt    *time.Time

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time

	// uncommitted events
	Changes []interface{}
}

func NewBooking() *Booking {
	return &Booking{
		Changes: make([]interface{}, 0),
	}
}

// When rebuilds state from an event (replay).
func (b *Booking) When(event interface{}) error {
	switch e := event.(type) {

	case BookingCreated:
		b.ID = e.AggregateID
		b.CustomerID = e.CustomerID
		b.WorkshopID = e.WorkshopID
		b.VehicleID = e.VehicleID
		b.ServiceID = e.ServiceID
		b.AppointmentDate = e.AppointmentDate
		b.VehicleSnapshot = e.VehicleSnapshot
		b.EstimatedPrice = e.EstimatedPrice
		b.CustomerNotes = e.CustomerNotes
		b.CreatedAt = e.Timestamp
		b.moveTo(StatusPendingWorkshop, e.BaseEvent, "")

	case BookingConfirmed:
		b.ConfirmedAt = timePtr(e.Timestamp)
		b.moveTo(StatusConfirmed, e.BaseEvent, "")

	case BookingRejected:
		b.RejectionReason = e.Reason
		b.PendingSuggestion = nil
		b.moveTo(StatusRejected, e.BaseEvent, e.Reason)

	case TimeSuggested:
		b.PendingSuggestion = &Suggestion{
			ProposedDate: e.ProposedDate,
			ProposedBy:   e.Actor,
			Reason:       e.Reason,
			At:           e.Timestamp,
		}
		b.moveTo(StatusAwaitingCounterpartyConfirmation, e.BaseEvent, e.Reason)

	case TimeSuggestionAccepted:
		b.AppointmentDate = e.AppointmentDate
		b.PendingSuggestion = nil
		b.moveTo(StatusPendingWorkshop, e.BaseEvent, "suggestion accepted")

	case TimeSuggestionDeclined:
		b.PendingSuggestion = nil
		if e.Outcome == StatusRejected {
			b.RejectionReason = "suggested time declined"
		}
		b.moveTo(e.Outcome, e.BaseEvent, "suggestion declined")

	case TimeSuggestionExpired:
		b.PendingSuggestion = nil
		b.moveTo(StatusPendingWorkshop, e.BaseEvent, "suggestion expired")

	case BookingFinalizedByWorkshop:
		price := e.FinalPrice
		b.FinalPrice = &price
		b.WorkshopNotes = e.Notes
		b.FinalizedAt = timePtr(e.Timestamp)
		b.moveTo(StatusFinalizedByMechanic, e.BaseEvent, "")

	case PaymentInitiated:
		if b.OrderID == "" {
			b.OrderID = e.OrderID
		}
		b.Payment = Payment{
			Step:      e.Step,
			SessionID: e.SessionID,
			Amount:    e.Amount,
			Currency:  e.Currency,
		}
		b.touch(e.BaseEvent)

	case PaymentApproved:
		commission := e.Commission
		b.Commission = &commission
		b.Payment.Step = PaymentSettled
		b.Payment.TransactionID = e.TransactionID
		b.CompletedAt = timePtr(e.Timestamp)
		b.moveTo(StatusFinalizedByCustomer, e.BaseEvent, "")

	case PaymentDeclined:
		b.Payment = Payment{TransactionID: e.TransactionID}
		b.touch(e.BaseEvent)

	case PaymentCancelled:
		b.Payment = Payment{TransactionID: e.TransactionID}
		b.touch(e.BaseEvent)

	case RefundPending:
		requestedBy := e.RequestedBy
		b.Payment.Step = PaymentRefundPending
		b.Payment.CancelRequestedBy = &requestedBy
		b.Payment.CancelReason = e.Reason
		b.touch(e.BaseEvent)

	case BookingCancelled:
		b.CancellationReason = e.Reason
		b.CancelledAt = timePtr(e.Timestamp)
		b.PendingSuggestion = nil
		if e.Compensation != CompensationNone {
			b.Payment.Step = PaymentRefunded
		}
		b.Payment.CancelRequestedBy = nil
		entry := e.BaseEvent
		if e.RequestedBy.Role != "" {
			entry.Actor = e.RequestedBy
		}
		b.moveTo(StatusCancelled, entry, e.Reason)

	case BookingNoShow:
		b.NoShowAt = timePtr(e.Timestamp)
		b.moveTo(StatusNoShow, e.BaseEvent, "")

	default:
		return fmt.Errorf("unknown event type: %T", event)
	}

	return nil
}

// raise applies the event and queues it for persistence.
func (b *Booking) raise(event interface{}) error {
	if err := b.When(event); err != nil {
		return err
	}
	b.Changes = append(b.Changes, event)
	return nil
}

func (b *Booking) moveTo(to Status, e BaseEvent, reason string) {
	b.StatusHistory = append(b.StatusHistory, HistoryEntry{
		From:   b.Status,
		To:     to,
		Actor:  e.Actor,
		At:     e.Timestamp,
		Reason: reason,
	})
	b.Status = to
	b.touch(e)
}

func (b *Booking) touch(e BaseEvent) {
	b.Version = e.Version
	b.UpdatedAt = e.Timestamp
}

func (b *Booking) newBase(eventType string, actor Actor, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New(),
		AggregateID:   b.ID,
		AggregateType: AggregateType,
		EventType:     eventType,
		Version:       b.Version + 1,
		Timestamp:     at,
		Actor:         actor,
		Metadata: map[string]string{
			"customer_id": b.CustomerID,
			"workshop_id": b.WorkshopID,
		},
	}
}

func (b *Booking) clone() *Booking {
	c := *b
	c.StatusHistory = append([]HistoryEntry(nil), b.StatusHistory...)
	c.Changes = append(make([]interface{}, 0, len(b.Changes)), b.Changes...)
	if b.FinalPrice != nil {
		v := *b.FinalPrice
		c.FinalPrice = &v
	}
	if b.Commission != nil {
		v := *b.Commission
		c.Commission = &v
	}
	if b.PendingSuggestion != nil {
		s := *b.PendingSuggestion
		c.PendingSuggestion = &s
	}
	if b.Payment.CancelRequestedBy != nil {
		a := *b.Payment.CancelRequestedBy
		c.Payment.CancelRequestedBy = &a
	}
	return &c
}

func timePtr(t time.Time) *time.Time {
	return &t
}
