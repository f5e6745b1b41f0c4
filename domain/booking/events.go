package booking

import (
	"time"

	"workshop_booking/infrastructure/eventstore"
)

const AggregateType = "Booking"

// Event types double as message-bus routing keys.
const (
	EventCreated             = "booking.created"
	EventConfirmed           = "booking.confirmed"
	EventRejected            = "booking.rejected"
	EventTimeSuggested       = "booking.time_suggested"
	EventSuggestionAccepted  = "booking.time_suggestion_accepted"
	EventSuggestionDeclined  = "booking.time_suggestion_declined"
	EventSuggestionExpired   = "booking.time_suggestion_expired"
	EventFinalizedByWorkshop = "booking.finalized_by_workshop"
	EventPaymentInitiated    = "booking.payment_initiated"
	EventPaymentApproved     = "booking.payment_approved"
	EventPaymentDeclined     = "booking.payment_declined"
	EventPaymentCancelled    = "booking.payment_cancelled"
	EventRefundPending       = "booking.refund_pending"
	EventCancelled           = "booking.cancelled"
	EventNoShow              = "booking.no_show"
)

// BaseEvent holds the fields every booking event carries. Metadata always
// includes customer_id and workshop_id so consumers need not reload the booking.
type BaseEvent struct {
	EventID       string            `json:"event_id"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	EventType     string            `json:"event_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Actor         Actor             `json:"actor"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (b BaseEvent) StreamHeader() eventstore.Header {
	return eventstore.Header{
		EventID:       b.EventID,
		AggregateID:   b.AggregateID,
		AggregateType: b.AggregateType,
		EventType:     b.EventType,
		Version:       b.Version,
		Timestamp:     b.Timestamp,
		Metadata:      b.Metadata,
	}
}

type BookingCreated struct {
	BaseEvent
	CustomerID      string          `json:"customer_id"`
	WorkshopID      string          `json:"workshop_id"`
	VehicleID       string          `json:"vehicle_id"`
	ServiceID       string          `json:"service_id"`
	AppointmentDate time.Time       `json:"appointment_date"`
	VehicleSnapshot VehicleSnapshot `json:"vehicle_snapshot"`
	EstimatedPrice  int64           `json:"estimated_price"`
	CustomerNotes   string          `json:"customer_notes,omitempty"`
}

type BookingConfirmed struct {
	BaseEvent
}

type BookingRejected struct {
	BaseEvent
	Reason string `json:"reason"`
}

type TimeSuggested struct {
	BaseEvent
	ProposedDate time.Time `json:"proposed_date"`
	Reason       string    `json:"reason,omitempty"`
}

type TimeSuggestionAccepted struct {
	BaseEvent
	AppointmentDate time.Time `json:"appointment_date"`
}

// TimeSuggestionDeclined resolves to StatusRejected when the workshop declines
// and back to StatusPendingWorkshop when the customer does.
type TimeSuggestionDeclined struct {
	BaseEvent
	Outcome Status `json:"outcome"`
}

type TimeSuggestionExpired struct {
	BaseEvent
}

type BookingFinalizedByWorkshop struct {
	BaseEvent
	FinalPrice int64  `json:"final_price"`
	Notes      string `json:"notes,omitempty"`
}

type PaymentInitiated struct {
	BaseEvent
	OrderID   string      `json:"order_id"`
	SessionID string      `json:"session_id"`
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency"`
	Step      PaymentStep `json:"step"`
}

type PaymentApproved struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	TransactionID  string `json:"transaction_id"`
	Amount         int64  `json:"amount"`
	Commission     int64  `json:"commission"`
	CommissionRate string `json:"commission_rate"`
}

type PaymentDeclined struct {
	BaseEvent
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
}

type PaymentCancelled struct {
	BaseEvent
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
}

// RefundPending is recorded when a cancellation's refund was sent but its
// outcome is unknown; the provider webhook completes the cancellation.
type RefundPending struct {
	BaseEvent
	SessionID   string `json:"session_id"`
	RequestedBy Actor  `json:"requested_by"`
	Reason      string `json:"reason,omitempty"`
}

type BookingCancelled struct {
	BaseEvent
	Reason       string       `json:"reason,omitempty"`
	Compensation Compensation `json:"compensation,omitempty"`
	RequestedBy  Actor        `json:"requested_by"`
}

type BookingNoShow struct {
	BaseEvent
}
