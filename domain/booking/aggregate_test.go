package booking

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const (
	custID = "cust-1"
	shopID = "shop-1"
)

func at(minutes int) Meta {
	return Meta{At: t0.Add(time.Duration(minutes) * time.Minute)}
}

func newPending(t *testing.T) *Booking {
	t.Helper()
	b, err := Apply(nil, Create{
		Meta:            at(0),
		BookingID:       "bk-1",
		CustomerID:      custID,
		WorkshopID:      shopID,
		VehicleID:       "veh-1",
		ServiceID:       "svc-oil",
		AppointmentDate: t0.Add(48 * time.Hour),
		Snapshot:        VehicleSnapshot{Brand: "Fiat", Model: "Uno", Year: 2012, Plate: "ABC1D23", Odometer: 120000},
		EstimatedPrice:  12000,
	}, Customer(custID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return commit(b)
}

// commit mimics a successful save.
func commit(b *Booking) *Booking {
	b.Changes = b.Changes[:0]
	return b
}

func mustApply(t *testing.T, b *Booking, cmd Command, actor Actor) *Booking {
	t.Helper()
	next, err := Apply(b, cmd, actor)
	if err != nil {
		t.Fatalf("%s: %v", cmd.Name(), err)
	}
	return commit(next)
}

func finalized(t *testing.T, price *int64) *Booking {
	t.Helper()
	b := newPending(t)
	b = mustApply(t, b, Confirm{Meta: at(1)}, Workshop(shopID))
	return mustApply(t, b, Finalize{Meta: at(2), FinalPrice: price}, Workshop(shopID))
}

func int64p(v int64) *int64 { return &v }

func TestCreate(t *testing.T) {
	b := newPending(t)

	if b.Status != StatusPendingWorkshop {
		t.Fatalf("status = %s, want %s", b.Status, StatusPendingWorkshop)
	}
	if b.Version != 1 {
		t.Errorf("version = %d, want 1", b.Version)
	}
	if len(b.StatusHistory) != 1 || b.StatusHistory[0].From != "" || b.StatusHistory[0].To != StatusPendingWorkshop {
		t.Errorf("unexpected history %+v", b.StatusHistory)
	}
	if b.VehicleSnapshot.Plate != "ABC1D23" {
		t.Errorf("snapshot not captured: %+v", b.VehicleSnapshot)
	}
}

func TestCreateValidation(t *testing.T) {
	base := Create{
		Meta:            at(0),
		BookingID:       "bk-1",
		CustomerID:      custID,
		WorkshopID:      shopID,
		VehicleID:       "veh-1",
		ServiceID:       "svc",
		AppointmentDate: t0.Add(time.Hour),
	}

	tests := []struct {
		name    string
		mutate  func(c *Create)
		actor   Actor
		wantErr error
	}{
		{"past appointment", func(c *Create) { c.AppointmentDate = t0.Add(-time.Hour) }, Customer(custID), ErrValidation},
		{"negative estimate", func(c *Create) { c.EstimatedPrice = -1 }, Customer(custID), ErrValidation},
		{"missing workshop", func(c *Create) { c.WorkshopID = "" }, Customer(custID), ErrValidation},
		{"workshop cannot create", func(c *Create) {}, Workshop(shopID), ErrForbidden},
		{"other customer", func(c *Create) {}, Customer("someone"), ErrForbidden},
		{"no clock", func(c *Create) { c.At = time.Time{} }, Customer(custID), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := base
			tt.mutate(&cmd)
			_, err := Apply(nil, cmd, tt.actor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRejectScenario(t *testing.T) {
	b := newPending(t)
	b = mustApply(t, b, Reject{Meta: at(5), Reason: "oficina fechada"}, Workshop(shopID))

	if b.Status != StatusRejected {
		t.Fatalf("status = %s", b.Status)
	}
	if len(b.StatusHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(b.StatusHistory))
	}
	if got := b.StatusHistory[1].Reason; got != "oficina fechada" {
		t.Errorf("reason = %q", got)
	}
	if b.Payment.SessionID != "" || b.OrderID != "" {
		t.Errorf("unexpected payment state %+v", b.Payment)
	}
}

func TestTransitionErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) *Booking
		cmd     Command
		actor   Actor
		wantErr error
	}{
		{"confirm by customer", newPending, Confirm{Meta: at(1)}, Customer(custID), ErrForbidden},
		{"confirm by other workshop", newPending, Confirm{Meta: at(1)}, Workshop("shop-2"), ErrForbidden},
		{"finalize while pending", newPending, Finalize{Meta: at(1)}, Workshop(shopID), ErrIllegalState},
		{"no-show while pending", newPending, MarkNoShow{Meta: at(1)}, Workshop(shopID), ErrIllegalState},
		{"workshop cancels before confirmation", newPending, Cancel{Meta: at(1)}, Workshop(shopID), ErrForbidden},
		{"reject without reason", newPending, Reject{Meta: at(1)}, Workshop(shopID), ErrValidation},
		{"stale version", newPending, Confirm{Meta: Meta{At: t0, ExpectedVersion: 7}}, Workshop(shopID), ErrConflict},
		{
			"confirm after reject",
			func(t *testing.T) *Booking {
				return mustApply(t, newPending(t), Reject{Meta: at(1), Reason: "full"}, Workshop(shopID))
			},
			Confirm{Meta: at(2)}, Workshop(shopID), ErrIllegalState,
		},
		{
			"pay before finalize",
			func(t *testing.T) *Booking {
				return mustApply(t, newPending(t), Confirm{Meta: at(1)}, Workshop(shopID))
			},
			InitiatePayment{Meta: at(2), OrderID: "o", SessionID: "s", Amount: 12000}, Customer(custID), ErrIllegalState,
		},
		{
			"settle by customer",
			func(t *testing.T) *Booking { return finalized(t, nil) },
			SettlePayment{Meta: at(3), Outcome: OutcomeApproved}, Customer(custID), ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.setup(t)
			history := len(b.StatusHistory)
			version := b.Version

			_, err := Apply(b, tt.cmd, tt.actor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(b.StatusHistory) != history || b.Version != version {
				t.Errorf("input booking mutated by failed command")
			}
			if tt.wantErr != ErrValidation {
				if cur, ok := CurrentStatus(err); !ok || cur != b.Status {
					t.Errorf("error does not carry current status: %v", err)
				}
			}
		})
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	b := newPending(t)
	next := mustApply(t, b, Confirm{Meta: at(1)}, Workshop(shopID))

	if b.Status != StatusPendingWorkshop || len(b.StatusHistory) != 1 {
		t.Fatalf("original changed: %s %d", b.Status, len(b.StatusHistory))
	}
	if next.ConfirmedAt == nil || !next.ConfirmedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("confirmedAt = %v", next.ConfirmedAt)
	}
}

func TestSuggestTime(t *testing.T) {
	newDate := t0.Add(72 * time.Hour)

	tests := []struct {
		name       string
		proposer   Actor
		responder  Actor
		accept     bool
		wantStatus Status
		wantDate   time.Time
	}{
		{"workshop proposes, customer accepts", Workshop(shopID), Customer(custID), true, StatusPendingWorkshop, newDate},
		{"customer proposes, workshop accepts", Customer(custID), Workshop(shopID), true, StatusPendingWorkshop, newDate},
		{"workshop proposes, customer declines", Workshop(shopID), Customer(custID), false, StatusPendingWorkshop, t0.Add(48 * time.Hour)},
		{"customer proposes, workshop declines", Customer(custID), Workshop(shopID), false, StatusRejected, t0.Add(48 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newPending(t)
			b = mustApply(t, b, SuggestTime{Meta: at(1), ProposedDate: newDate, Reason: "agenda cheia"}, tt.proposer)
			if b.Status != StatusAwaitingCounterpartyConfirmation {
				t.Fatalf("status = %s", b.Status)
			}

			if _, err := Apply(b, RespondToSuggestion{Meta: at(2), Accept: true}, tt.proposer); !errors.Is(err, ErrForbidden) {
				t.Fatalf("proposer answering own suggestion: err = %v", err)
			}

			b = mustApply(t, b, RespondToSuggestion{Meta: at(2), Accept: tt.accept}, tt.responder)
			if b.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", b.Status, tt.wantStatus)
			}
			if !b.AppointmentDate.Equal(tt.wantDate) {
				t.Errorf("appointment = %v, want %v", b.AppointmentDate, tt.wantDate)
			}
			if b.PendingSuggestion != nil {
				t.Errorf("suggestion not cleared")
			}
			if len(b.StatusHistory) != 3 {
				t.Errorf("history length = %d, want 3", len(b.StatusHistory))
			}
		})
	}
}

func TestSuggestionExpiry(t *testing.T) {
	b := newPending(t)
	b = mustApply(t, b, SuggestTime{Meta: at(1), ProposedDate: t0.Add(96 * time.Hour)}, Customer(custID))

	if _, err := Apply(b, ExpireSuggestion{Meta: at(60)}, Customer(custID)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer expiring: err = %v", err)
	}
	b = mustApply(t, b, ExpireSuggestion{Meta: at(60)}, Platform())
	if b.Status != StatusPendingWorkshop || !b.AppointmentDate.Equal(t0.Add(48*time.Hour)) {
		t.Errorf("status = %s date = %v", b.Status, b.AppointmentDate)
	}
}

func TestSuggestOnlyFromPending(t *testing.T) {
	b := mustApply(t, newPending(t), Confirm{Meta: at(1)}, Workshop(shopID))
	_, err := Apply(b, SuggestTime{Meta: at(2), ProposedDate: t0.Add(96 * time.Hour)}, Workshop(shopID))
	if !errors.Is(err, ErrIllegalState) {
		t.Fatalf("err = %v", err)
	}
}

func TestFinalizePrice(t *testing.T) {
	if b := finalized(t, nil); *b.FinalPrice != 12000 {
		t.Errorf("default final price = %d, want estimated 12000", *b.FinalPrice)
	}
	if b := finalized(t, int64p(15000)); *b.FinalPrice != 15000 {
		t.Errorf("final price = %d", *b.FinalPrice)
	}

	b := mustApply(t, newPending(t), Confirm{Meta: at(1)}, Workshop(shopID))
	if _, err := Apply(b, Finalize{Meta: at(2), FinalPrice: int64p(-5)}, Workshop(shopID)); !errors.Is(err, ErrValidation) {
		t.Errorf("negative price: err = %v", err)
	}
}

func TestPaymentLifecycle(t *testing.T) {
	b := finalized(t, int64p(15000))

	pay := InitiatePayment{Meta: at(3), OrderID: "ord-1", SessionID: "ses-1", Amount: 15000, Currency: "BRL"}
	b = mustApply(t, b, pay, Customer(custID))
	if b.OrderID != "ord-1" || b.Payment.Step != PaymentSessionOpen {
		t.Fatalf("payment = %+v order = %s", b.Payment, b.OrderID)
	}
	historyBefore := len(b.StatusHistory)

	// same session again is a no-op
	again, err := Apply(b, pay, Customer(custID))
	if err != nil || len(again.Changes) != 0 || again.Version != b.Version {
		t.Fatalf("repeat initiate: err=%v changes=%d", err, len(again.Changes))
	}

	if _, err := Apply(b, InitiatePayment{Meta: at(4), OrderID: "ord-2", SessionID: "ses-2", Amount: 15000}, Customer(custID)); !errors.Is(err, ErrIllegalState) {
		t.Errorf("second order id: err = %v", err)
	}

	b = mustApply(t, b, SettlePayment{Meta: at(5), Outcome: OutcomeDeclined, SessionID: "ses-1", TransactionID: "tx-1"}, Platform())
	if b.Status != StatusFinalizedByMechanic || b.Payment.Step != PaymentNone {
		t.Fatalf("after decline: %s %+v", b.Status, b.Payment)
	}
	if len(b.StatusHistory) != historyBefore {
		t.Errorf("decline appended history")
	}

	b = mustApply(t, b, InitiatePayment{Meta: at(6), OrderID: "ord-1", SessionID: "ses-2", Amount: 15000}, Customer(custID))
	b = mustApply(t, b, SettlePayment{Meta: at(7), Outcome: OutcomeApproved, SessionID: "ses-2", TransactionID: "tx-2", Commission: 1500, CommissionRate: "0.1"}, Platform())

	if b.Status != StatusFinalizedByCustomer {
		t.Fatalf("status = %s", b.Status)
	}
	if b.Commission == nil || *b.Commission != 1500 {
		t.Errorf("commission = %v", b.Commission)
	}
	if b.CompletedAt == nil {
		t.Errorf("completedAt not set")
	}
	if _, err := Apply(b, SettlePayment{Meta: at(8), Outcome: OutcomeApproved}, Platform()); !errors.Is(err, ErrIllegalState) {
		t.Errorf("second approval: err = %v", err)
	}
}

func TestCancelRequiresCompensation(t *testing.T) {
	b := finalized(t, nil)
	b = mustApply(t, b, InitiatePayment{Meta: at(3), OrderID: "ord-1", SessionID: "ses-1", Amount: 12000}, Customer(custID))

	if _, err := Apply(b, Cancel{Meta: at(4), Reason: "changed my mind"}, Customer(custID)); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("cancel without compensation: err = %v", err)
	}

	b = mustApply(t, b, Cancel{Meta: at(4), Reason: "changed my mind", Compensation: CompensationRefunded}, Customer(custID))
	if b.Status != StatusCancelled || b.CancelledAt == nil {
		t.Fatalf("status = %s", b.Status)
	}
}

func TestRefundPendingCompletesOnWebhook(t *testing.T) {
	b := finalized(t, nil)
	b = mustApply(t, b, InitiatePayment{Meta: at(3), OrderID: "ord-1", SessionID: "ses-1", Amount: 12000}, Customer(custID))
	b = mustApply(t, b, RequestRefund{Meta: at(4), Reason: "duplicate"}, Customer(custID))

	if b.Status != StatusFinalizedByMechanic || b.Payment.Step != PaymentRefundPending {
		t.Fatalf("status=%s step=%s", b.Status, b.Payment.Step)
	}

	b = mustApply(t, b, SettlePayment{Meta: at(9), Outcome: OutcomeRefunded, TransactionID: "rf-1"}, Platform())
	if b.Status != StatusCancelled {
		t.Fatalf("status = %s", b.Status)
	}
	last := b.StatusHistory[len(b.StatusHistory)-1]
	if last.Actor != Customer(custID) || last.Reason != "duplicate" {
		t.Errorf("history entry = %+v", last)
	}
}

func TestCancelAuthorization(t *testing.T) {
	confirmed := func(t *testing.T) *Booking {
		return mustApply(t, newPending(t), Confirm{Meta: at(1)}, Workshop(shopID))
	}

	tests := []struct {
		name    string
		setup   func(t *testing.T) *Booking
		actor   Actor
		wantErr error
	}{
		{"customer before confirmation", newPending, Customer(custID), nil},
		{"platform before confirmation", newPending, Platform(), nil},
		{"workshop after confirmation", confirmed, Workshop(shopID), nil},
		{"stranger after confirmation", confirmed, Customer("cust-9"), ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.setup(t), Cancel{Meta: at(3), Reason: "r"}, tt.actor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHistoryGrowsOncePerStatusChange(t *testing.T) {
	b := finalized(t, nil)
	b = mustApply(t, b, InitiatePayment{Meta: at(3), OrderID: "o", SessionID: "s", Amount: 12000}, Customer(custID))
	b = mustApply(t, b, SettlePayment{Meta: at(4), Outcome: OutcomeApproved, SessionID: "s", TransactionID: "t", Commission: 1200}, Platform())

	// created, confirmed, finalized, approved
	if got := len(b.StatusHistory); got != 4 {
		t.Fatalf("history length = %d, want 4", got)
	}
	for i := 1; i < len(b.StatusHistory); i++ {
		if b.StatusHistory[i].From != b.StatusHistory[i-1].To {
			t.Errorf("entry %d does not chain: %+v", i, b.StatusHistory[i])
		}
	}
	if b.Version != 5 {
		t.Errorf("version = %d, want 5", b.Version)
	}
}

func TestReplayMatchesLiveState(t *testing.T) {
	var (
		live   *Booking
		events []interface{}
	)

	step := func(cmd Command, actor Actor) {
		next, err := Apply(live, cmd, actor)
		if err != nil {
			t.Fatalf("%s: %v", cmd.Name(), err)
		}
		events = append(events, next.Changes...)
		live = commit(next)
	}

	created, _ := Apply(nil, Create{
		Meta: at(0), BookingID: "bk-1", CustomerID: custID, WorkshopID: shopID,
		VehicleID: "veh-1", ServiceID: "svc", AppointmentDate: t0.Add(time.Hour),
	}, Customer(custID))
	events = append(events, created.Changes...)
	live = commit(created)

	step(Confirm{Meta: at(1)}, Workshop(shopID))
	step(MarkNoShow{Meta: at(90)}, Workshop(shopID))

	replayed := NewBooking()
	for _, e := range events {
		if err := replayed.When(e); err != nil {
			t.Fatal(err)
		}
	}
	if replayed.Status != StatusNoShow || replayed.Version != live.Version || len(replayed.StatusHistory) != 3 {
		t.Errorf("replayed = %s v%d h%d", replayed.Status, replayed.Version, len(replayed.StatusHistory))
	}
}
