package booking

import (
	"fmt"
	"strings"
	"time"
)

// Meta is embedded in every command. At is the command's clock reading;
// ExpectedVersion, when non-zero, must match the booking's current version.
type Meta struct {
	ExpectedVersion int
	At              time.Time
}

func (m Meta) meta() Meta { return m }

type Command interface {
	Name() string
	meta() Meta
}

type Create struct {
	Meta
	BookingID       string
	CustomerID      string
	WorkshopID      string
	VehicleID       string
	ServiceID       string
	AppointmentDate time.Time
	Snapshot        VehicleSnapshot
	EstimatedPrice  int64
	Notes           string
}

type Confirm struct{ Meta }

type Reject struct {
	Meta
	Reason string
}

type SuggestTime struct {
	Meta
	ProposedDate time.Time
	Reason       string
}

type RespondToSuggestion struct {
	Meta
	Accept bool
}

type ExpireSuggestion struct{ Meta }

type Finalize struct {
	Meta
	FinalPrice *int64 // nil means estimated price
	Notes      string
}

type InitiatePayment struct {
	Meta
	OrderID          string
	SessionID        string
	Amount           int64
	Currency         string
	AwaitingProvider bool
}

// SettlementOutcome is the provider's verdict on a payment session.
type SettlementOutcome string

const (
	OutcomeApproved  SettlementOutcome = "approved"
	OutcomeDeclined  SettlementOutcome = "declined"
	OutcomeCancelled SettlementOutcome = "cancelled"
	OutcomeRefunded  SettlementOutcome = "refunded"
)

type SettlePayment struct {
	Meta
	Outcome        SettlementOutcome
	SessionID      string
	TransactionID  string
	Commission     int64
	CommissionRate string
}

type RequestRefund struct {
	Meta
	Reason string
}

type Cancel struct {
	Meta
	Reason       string
	Compensation Compensation
}

type MarkNoShow struct{ Meta }

func (Create) Name() string              { return "create" }
func (Confirm) Name() string             { return "confirm" }
func (Reject) Name() string              { return "reject" }
func (SuggestTime) Name() string         { return "suggest_time" }
func (RespondToSuggestion) Name() string { return "respond_to_suggestion" }
func (ExpireSuggestion) Name() string    { return "expire_suggestion" }
func (Finalize) Name() string            { return "finalize" }
func (InitiatePayment) Name() string     { return "initiate_payment" }
func (SettlePayment) Name() string       { return "settle_payment" }
func (RequestRefund) Name() string       { return "request_refund" }
func (Cancel) Name() string              { return "cancel" }
func (MarkNoShow) Name() string          { return "mark_no_show" }

// Apply runs cmd against b on behalf of actor and returns the resulting
// booking with the new events in Changes. b is never modified. A nil b is
// only accepted for Create.
func Apply(b *Booking, cmd Command, actor Actor) (*Booking, error) {
	m := cmd.meta()
	if m.At.IsZero() {
		return nil, invalid("at", "command time is required")
	}

	var next *Booking
	if b == nil {
		next = NewBooking()
	} else {
		next = b.clone()
	}

	if _, creating := cmd.(Create); !creating && next.Version == 0 {
		return nil, ErrNotFound
	}
	if m.ExpectedVersion != 0 && m.ExpectedVersion != next.Version {
		return nil, Conflict(cmd.Name(), next.Status, m.ExpectedVersion, next.Version)
	}

	if err := next.handle(cmd, actor); err != nil {
		return nil, err
	}
	return next, nil
}

func (b *Booking) handle(cmd Command, actor Actor) error {
	switch c := cmd.(type) {
	case Create:
		return b.create(c, actor)
	case Confirm:
		return b.confirm(c, actor)
	case Reject:
		return b.reject(c, actor)
	case SuggestTime:
		return b.suggestTime(c, actor)
	case RespondToSuggestion:
		return b.respondToSuggestion(c, actor)
	case ExpireSuggestion:
		return b.expireSuggestion(c, actor)
	case Finalize:
		return b.finalize(c, actor)
	case InitiatePayment:
		return b.initiatePayment(c, actor)
	case SettlePayment:
		return b.settlePayment(c, actor)
	case RequestRefund:
		return b.requestRefund(c, actor)
	case Cancel:
		return b.cancel(c, actor)
	case MarkNoShow:
		return b.markNoShow(c, actor)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

func (b *Booking) create(c Create, actor Actor) error {
	if b.Version != 0 {
		return illegal(c.Name(), b.Status, "booking already exists")
	}
	if actor.Role != RoleCustomer || actor.ID != c.CustomerID {
		return forbidden(c.Name(), b.Status, actor)
	}
	switch {
	case c.BookingID == "":
		return invalid("id", "is required")
	case c.WorkshopID == "":
		return invalid("workshop_id", "is required")
	case c.VehicleID == "":
		return invalid("vehicle_id", "is required")
	case c.ServiceID == "":
		return invalid("service_id", "is required")
	case c.EstimatedPrice < 0:
		return invalid("estimated_price", "must not be negative")
	case !c.AppointmentDate.After(c.At):
		return invalid("appointment_date", "must be in the future")
	}

	seed := &Booking{ID: c.BookingID, CustomerID: c.CustomerID, WorkshopID: c.WorkshopID}
	return b.raise(BookingCreated{
		BaseEvent:       seed.newBase(EventCreated, actor, c.At),
		CustomerID:      c.CustomerID,
		WorkshopID:      c.WorkshopID,
		VehicleID:       c.VehicleID,
		ServiceID:       c.ServiceID,
		AppointmentDate: c.AppointmentDate,
		VehicleSnapshot: c.Snapshot,
		EstimatedPrice:  c.EstimatedPrice,
		CustomerNotes:   c.Notes,
	})
}

func (b *Booking) confirm(c Confirm, actor Actor) error {
	if b.Status != StatusPendingWorkshop {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.isOwningWorkshop(actor) {
		return forbidden(c.Name(), b.Status, actor)
	}
	return b.raise(BookingConfirmed{BaseEvent: b.newBase(EventConfirmed, actor, c.At)})
}

func (b *Booking) reject(c Reject, actor Actor) error {
	if b.Status != StatusPendingWorkshop && b.Status != StatusAwaitingCounterpartyConfirmation {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.isOwningWorkshop(actor) {
		return forbidden(c.Name(), b.Status, actor)
	}
	if strings.TrimSpace(c.Reason) == "" {
		return invalid("reason", "is required")
	}
	return b.raise(BookingRejected{
		BaseEvent: b.newBase(EventRejected, actor, c.At),
		Reason:    c.Reason,
	})
}

func (b *Booking) suggestTime(c SuggestTime, actor Actor) error {
	if b.Status != StatusPendingWorkshop {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.isParty(actor) {
		return forbidden(c.Name(), b.Status, actor)
	}
	if !c.ProposedDate.After(c.At) {
		return invalid("proposed_date", "must be in the future")
	}
	if c.ProposedDate.Equal(b.AppointmentDate) {
		return invalid("proposed_date", "matches the current appointment")
	}
	return b.raise(TimeSuggested{
		BaseEvent:    b.newBase(EventTimeSuggested, actor, c.At),
		ProposedDate: c.ProposedDate,
		Reason:       c.Reason,
	})
}

func (b *Booking) respondToSuggestion(c RespondToSuggestion, actor Actor) error {
	if b.Status != StatusAwaitingCounterpartyConfirmation || b.PendingSuggestion == nil {
		return illegal(c.Name(), b.Status, "")
	}
	// only the counterparty of whoever proposed may answer
	if !b.isParty(actor) || actor.Role == b.PendingSuggestion.ProposedBy.Role {
		return forbidden(c.Name(), b.Status, actor)
	}

	if c.Accept {
		return b.raise(TimeSuggestionAccepted{
			BaseEvent:       b.newBase(EventSuggestionAccepted, actor, c.At),
			AppointmentDate: b.PendingSuggestion.ProposedDate,
		})
	}

	outcome := StatusPendingWorkshop
	if actor.Role == RoleWorkshop {
		outcome = StatusRejected
	}
	return b.raise(TimeSuggestionDeclined{
		BaseEvent: b.newBase(EventSuggestionDeclined, actor, c.At),
		Outcome:   outcome,
	})
}

func (b *Booking) expireSuggestion(c ExpireSuggestion, actor Actor) error {
	if b.Status != StatusAwaitingCounterpartyConfirmation {
		return illegal(c.Name(), b.Status, "")
	}
	if actor.Role != RolePlatform {
		return forbidden(c.Name(), b.Status, actor)
	}
	return b.raise(TimeSuggestionExpired{BaseEvent: b.newBase(EventSuggestionExpired, actor, c.At)})
}

func (b *Booking) finalize(c Finalize, actor Actor) error {
	if b.Status != StatusConfirmed {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.isOwningWorkshop(actor) {
		return forbidden(c.Name(), b.Status, actor)
	}
	price := b.EstimatedPrice
	if c.FinalPrice != nil {
		price = *c.FinalPrice
	}
	if price < 0 {
		return invalid("final_price", "must not be negative")
	}
	return b.raise(BookingFinalizedByWorkshop{
		BaseEvent:  b.newBase(EventFinalizedByWorkshop, actor, c.At),
		FinalPrice: price,
		Notes:      c.Notes,
	})
}

func (b *Booking) initiatePayment(c InitiatePayment, actor Actor) error {
	if b.Status != StatusFinalizedByMechanic {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.isOwningCustomer(actor) {
		return forbidden(c.Name(), b.Status, actor)
	}
	switch b.Payment.Step {
	case PaymentNone, PaymentSessionOpen, PaymentAwaitingProvider:
	default:
		return illegal(c.Name(), b.Status, "payment is "+string(b.Payment.Step))
	}
	if c.OrderID == "" {
		return invalid("order_id", "is required")
	}
	if b.OrderID != "" && b.OrderID != c.OrderID {
		return illegal(c.Name(), b.Status, "order already assigned")
	}
	if b.FinalPrice == nil || c.Amount != *b.FinalPrice {
		return invalid("amount", "must equal the final price")
	}

	step := PaymentSessionOpen
	if c.AwaitingProvider {
		step = PaymentAwaitingProvider
	} else if c.SessionID == "" {
		return invalid("session_id", "is required")
	}
	if b.Payment.Step == step && b.Payment.SessionID == c.SessionID {
		return nil
	}

	return b.raise(PaymentInitiated{
		BaseEvent: b.newBase(EventPaymentInitiated, actor, c.At),
		OrderID:   c.OrderID,
		SessionID: c.SessionID,
		Amount:    c.Amount,
		Currency:  c.Currency,
		Step:      step,
	})
}

func (b *Booking) settlePayment(c SettlePayment, actor Actor) error {
	if actor.Role != RolePlatform {
		return forbidden(c.Name(), b.Status, actor)
	}

	if c.Outcome == OutcomeRefunded {
		if b.Payment.Step != PaymentRefundPending {
			return illegal(c.Name(), b.Status, "no refund pending")
		}
		requestedBy := actor
		if b.Payment.CancelRequestedBy != nil {
			requestedBy = *b.Payment.CancelRequestedBy
		}
		return b.raise(BookingCancelled{
			BaseEvent:    b.newBase(EventCancelled, actor, c.At),
			Reason:       b.Payment.CancelReason,
			Compensation: CompensationRefunded,
			RequestedBy:  requestedBy,
		})
	}

	if b.Status != StatusFinalizedByMechanic {
		return illegal(c.Name(), b.Status, "")
	}
	if b.Payment.Step != PaymentSessionOpen && b.Payment.Step != PaymentAwaitingProvider {
		return illegal(c.Name(), b.Status, "no open payment session")
	}
	if c.SessionID != "" && b.Payment.SessionID != "" && c.SessionID != b.Payment.SessionID {
		return illegal(c.Name(), b.Status, "stale payment session")
	}

	switch c.Outcome {
	case OutcomeApproved:
		if b.Commission != nil {
			return illegal(c.Name(), b.Status, "commission already recorded")
		}
		if c.Commission < 0 {
			return invalid("commission", "must not be negative")
		}
		return b.raise(PaymentApproved{
			BaseEvent:      b.newBase(EventPaymentApproved, actor, c.At),
			OrderID:        b.OrderID,
			TransactionID:  c.TransactionID,
			Amount:         *b.FinalPrice,
			Commission:     c.Commission,
			CommissionRate: c.CommissionRate,
		})
	case OutcomeDeclined:
		return b.raise(PaymentDeclined{
			BaseEvent:     b.newBase(EventPaymentDeclined, actor, c.At),
			SessionID:     b.Payment.SessionID,
			TransactionID: c.TransactionID,
		})
	case OutcomeCancelled:
		return b.raise(PaymentCancelled{
			BaseEvent:     b.newBase(EventPaymentCancelled, actor, c.At),
			SessionID:     b.Payment.SessionID,
			TransactionID: c.TransactionID,
		})
	default:
		return invalid("outcome", fmt.Sprintf("unknown settlement outcome %q", c.Outcome))
	}
}

func (b *Booking) mayCancel(actor Actor) bool {
	if actor.Role == RolePlatform {
		return true
	}
	if b.Status.IsConfirmed() {
		return b.isParty(actor)
	}
	return b.isOwningCustomer(actor)
}

func (b *Booking) requestRefund(c RequestRefund, actor Actor) error {
	if b.Status.IsTerminal() {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.mayCancel(actor) {
		return forbidden(c.Name(), b.Status, actor)
	}
	if b.Payment.Step == PaymentRefundPending {
		return nil
	}
	if !b.Payment.HoldsSession() {
		return illegal(c.Name(), b.Status, "no payment session to refund")
	}
	return b.raise(RefundPending{
		BaseEvent:   b.newBase(EventRefundPending, actor, c.At),
		SessionID:   b.Payment.SessionID,
		RequestedBy: actor,
		Reason:      c.Reason,
	})
}

func (b *Booking) cancel(c Cancel, actor Actor) error {
	if b.Status.IsTerminal() {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.mayCancel(actor) {
		return forbidden(c.Name(), b.Status, actor)
	}
	if b.Payment.HoldsSession() && c.Compensation == CompensationNone {
		return illegal(c.Name(), b.Status, "payment session must be voided or refunded first")
	}
	return b.raise(BookingCancelled{
		BaseEvent:    b.newBase(EventCancelled, actor, c.At),
		Reason:       c.Reason,
		Compensation: c.Compensation,
		RequestedBy:  actor,
	})
}

func (b *Booking) markNoShow(c MarkNoShow, actor Actor) error {
	if b.Status != StatusConfirmed {
		return illegal(c.Name(), b.Status, "")
	}
	if !b.isOwningWorkshop(actor) && actor.Role != RolePlatform {
		return forbidden(c.Name(), b.Status, actor)
	}
	return b.raise(BookingNoShow{BaseEvent: b.newBase(EventNoShow, actor, c.At)})
}
