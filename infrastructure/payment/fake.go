package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"workshop_booking/pkg/uuid"
)

// FakeGateway is an in-process provider for local mode and tests. Failures
// can be queued per operation with FailNext.
type FakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*Session
	failures map[string][]error
	calls    map[string]int
	secret   []byte
	now      func() time.Time
}

func NewFakeGateway(webhookSecret []byte) *FakeGateway {
	return &FakeGateway{
		sessions: make(map[string]*Session),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
		secret:   webhookSecret,
		now:      time.Now,
	}
}

// FailNext makes the next len(errs) calls of op return errs in order.
func (f *FakeGateway) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how many times op was invoked.
func (f *FakeGateway) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeGateway) enter(op string) error {
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *FakeGateway) session(op, id string) (*Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, &GatewayError{Op: op, Err: ErrSessionNotFound}
	}
	return s, nil
}

func (f *FakeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("create_session"); err != nil {
		return nil, err
	}
	if req.Amount <= 0 || req.Currency == "" {
		return nil, &GatewayError{Op: "create_session", Err: errors.New("invalid amount or currency")}
	}

	now := f.now()
	s := &Session{
		ID:        "sess_" + uuid.New(),
		BookingID: req.BookingID,
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    SessionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *FakeGateway) Capture(ctx context.Context, sessionID string) (*Session, error) {
	return f.move("capture", sessionID, SessionCaptured, SessionPending, SessionAuthorized)
}

func (f *FakeGateway) Refund(ctx context.Context, sessionID string, amount *int64) (*Session, error) {
	f.mu.Lock()
	var total int64
	if s, ok := f.sessions[sessionID]; ok {
		total = s.Amount
	}
	f.mu.Unlock()
	if amount != nil && (*amount <= 0 || *amount > total) {
		return nil, &GatewayError{Op: "refund", Err: fmt.Errorf("refund amount %d out of range", *amount)}
	}
	return f.move("refund", sessionID, SessionRefunded, SessionCaptured)
}

func (f *FakeGateway) Cancel(ctx context.Context, sessionID string) (*Session, error) {
	return f.move("cancel", sessionID, SessionCancelled, SessionPending, SessionAuthorized)
}

func (f *FakeGateway) move(op, sessionID string, to SessionStatus, from ...SessionStatus) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(op); err != nil {
		return nil, err
	}
	s, err := f.session(op, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == to {
		cp := *s
		return &cp, nil
	}

	allowed := false
	for _, st := range from {
		allowed = allowed || s.Status == st
	}
	if !allowed {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("session %s is %s", s.ID, s.Status)}
	}

	s.Status = to
	s.UpdatedAt = f.now()
	if to == SessionCaptured || to == SessionRefunded {
		s.TransactionID = "txn_" + string(to) + "_" + s.ID
	}
	cp := *s
	return &cp, nil
}

// Authorize moves a pending session to authorized, as a customer paying
// would.
func (f *FakeGateway) Authorize(sessionID string) error {
	_, err := f.move("authorize", sessionID, SessionAuthorized, SessionPending)
	return err
}

// Complete settles a session with outcome and returns the signed webhook the
// provider would send.
func (f *FakeGateway) Complete(sessionID string, outcome Outcome) ([]byte, string, error) {
	var to SessionStatus
	switch outcome {
	case OutcomeApproved:
		to = SessionCaptured
	case OutcomeDeclined:
		to = SessionDeclined
	case OutcomeCancelled:
		to = SessionCancelled
	case OutcomeRefunded:
		to = SessionRefunded
	default:
		return nil, "", fmt.Errorf("unknown outcome %q", outcome)
	}

	f.mu.Lock()
	s, err := f.session("complete", sessionID)
	if err != nil {
		f.mu.Unlock()
		return nil, "", err
	}
	s.Status = to
	s.UpdatedAt = f.now()
	if s.TransactionID == "" || outcome == OutcomeRefunded {
		s.TransactionID = "txn_" + string(to) + "_" + s.ID
	}
	ev := WebhookEvent{
		ID:            "evt_" + uuid.New(),
		BookingID:     s.BookingID,
		SessionID:     s.ID,
		TransactionID: s.TransactionID,
		Outcome:       outcome,
	}
	f.mu.Unlock()

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	return payload, Sign(f.secret, payload), nil
}

func (f *FakeGateway) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if err := verifySignature(f.secret, payload, signature); err != nil {
		return nil, err
	}
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	if ev.SessionID == "" || !ev.Outcome.Valid() {
		return nil, fmt.Errorf("webhook missing session or outcome")
	}
	return &ev, nil
}
