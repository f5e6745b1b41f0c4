package payment

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/omise/omise-go"
)

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec")
	payload := []byte(`{"id":"evt_1"}`)
	good := Sign(secret, payload)

	tests := []struct {
		name      string
		secret    []byte
		signature string
		wantErr   bool
	}{
		{"valid", secret, good, false},
		{"valid with prefix", secret, "sha256=" + good, false},
		{"missing", secret, "", true},
		{"not hex", secret, "zz", true},
		{"wrong secret", secret, Sign([]byte("other"), payload), true},
		{"no secret configured", nil, good, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySignature(tt.secret, payload, tt.signature)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			var se *SignatureError
			if err != nil && !errors.As(err, &se) {
				t.Errorf("err is %T, want *SignatureError", err)
			}
		})
	}
}

func TestFakeGatewayWebhookRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := NewFakeGateway([]byte("whsec"))

	s, err := g.CreateSession(ctx, SessionRequest{BookingID: "b1", OrderID: "o1", Amount: 15000, Currency: "BRL"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Status != SessionPending {
		t.Errorf("status = %s, want pending", s.Status)
	}

	payload, sig, err := g.Complete(s.ID, OutcomeApproved)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := g.VerifyWebhook(payload, sig)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if ev.BookingID != "b1" || ev.SessionID != s.ID || ev.Outcome != OutcomeApproved || ev.TransactionID == "" {
		t.Errorf("event = %+v", ev)
	}

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'
	if _, err := g.VerifyWebhook(tampered, sig); err == nil {
		t.Error("tampered payload verified")
	}
}

func TestFakeGatewayTransitions(t *testing.T) {
	ctx := context.Background()
	g := NewFakeGateway(nil)
	open := func() *Session {
		s, err := g.CreateSession(ctx, SessionRequest{BookingID: "b1", Amount: 100, Currency: "BRL"})
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	s := open()
	if _, err := g.Refund(ctx, s.ID, nil); err == nil {
		t.Error("refund of an uncaptured session succeeded")
	}
	if got, err := g.Cancel(ctx, s.ID); err != nil || got.Status != SessionCancelled {
		t.Errorf("Cancel = %+v, %v", got, err)
	}

	s = open()
	g.Authorize(s.ID)
	if got, err := g.Capture(ctx, s.ID); err != nil || got.Status != SessionCaptured {
		t.Fatalf("Capture = %+v, %v", got, err)
	}
	if _, err := g.Cancel(ctx, s.ID); err == nil {
		t.Error("cancel of a captured session succeeded")
	}
	too := int64(101)
	if _, err := g.Refund(ctx, s.ID, &too); err == nil {
		t.Error("refund above the captured amount succeeded")
	}
	got, err := g.Refund(ctx, s.ID, nil)
	if err != nil || got.Status != SessionRefunded {
		t.Errorf("Refund = %+v, %v", got, err)
	}
	// repeat is a no-op
	if _, err := g.Refund(ctx, s.ID, nil); err != nil {
		t.Errorf("second Refund: %v", err)
	}
}

func TestFakeGatewayFailNext(t *testing.T) {
	g := NewFakeGateway(nil)
	transient := &GatewayError{Op: "create_session", Retryable: true, Err: errors.New("503")}
	g.FailNext("create_session", transient)

	req := SessionRequest{BookingID: "b1", Amount: 100, Currency: "BRL"}
	if _, err := g.CreateSession(context.Background(), req); !IsRetryable(err) {
		t.Fatalf("first call err = %v, want retryable", err)
	}
	if _, err := g.CreateSession(context.Background(), req); err != nil {
		t.Fatalf("second call err = %v", err)
	}
	if n := g.Calls("create_session"); n != 2 {
		t.Errorf("Calls = %d, want 2", n)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		retry, unknwn bool
	}{
		{"server error", &omise.Error{StatusCode: 503, Code: "service_unavailable"}, true, false},
		{"rate limited", &omise.Error{StatusCode: 429}, true, false},
		{"bad request", &omise.Error{StatusCode: 400, Code: "invalid_charge"}, false, false},
		{"timeout", timeoutErr{}, true, true},
		{"other", errors.New("connection refused"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("capture", tt.err)
			if IsRetryable(err) != tt.retry || IsUnknownOutcome(err) != tt.unknwn {
				t.Errorf("classify(%v): retryable=%v unknown=%v", tt.err, IsRetryable(err), IsUnknownOutcome(err))
			}
		})
	}
	if classify("capture", nil) != nil {
		t.Error("classify(nil) != nil")
	}
}

func TestChargeOutcome(t *testing.T) {
	tests := map[string]Outcome{
		"successful": OutcomeApproved,
		"failed":     OutcomeDeclined,
		"reversed":   OutcomeCancelled,
		"expired":    OutcomeCancelled,
		"pending":    "",
	}
	for status, want := range tests {
		got, _ := chargeOutcome(status)
		if got != want {
			t.Errorf("chargeOutcome(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestOmiseChargeToSession(t *testing.T) {
	g := &OmiseGateway{now: func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) }}
	tests := []struct {
		name   string
		charge omise.Charge
		want   SessionStatus
	}{
		{"paid source charge is captured", omise.Charge{Status: omise.ChargeSuccessful, Paid: true}, SessionCaptured},
		{"awaiting customer", omise.Charge{Status: omise.ChargePending}, SessionPending},
		{"authorized only", omise.Charge{Status: omise.ChargePending, Authorized: true}, SessionAuthorized},
		{"reversed", omise.Charge{Status: "reversed"}, SessionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.charge.ID = "chrg_1"
			tt.charge.Metadata = map[string]interface{}{"booking_id": "b1"}
			s := g.toSession(&tt.charge)
			if s.Status != tt.want || s.BookingID != "b1" || s.ID != "chrg_1" {
				t.Errorf("session = %+v, want status %s", s, tt.want)
			}
		})
	}
}

func TestMemorySessionStoreOpenSession(t *testing.T) {
	ctx := context.Background()
	st := NewMemorySessionStore()
	st.SaveSession(ctx, &Session{ID: "s1", BookingID: "b1", Status: SessionDeclined})
	if _, err := st.OpenSessionFor(ctx, "b1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	st.SaveSession(ctx, &Session{ID: "s2", BookingID: "b1", Status: SessionPending})
	s, err := st.OpenSessionFor(ctx, "b1")
	if err != nil || s.ID != "s2" {
		t.Fatalf("OpenSessionFor = %+v, %v", s, err)
	}
}
