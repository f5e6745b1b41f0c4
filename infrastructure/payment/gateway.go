// Package payment adapts external payment processors behind one Gateway
// interface: session creation, capture, refund, cancel and webhook checks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionAuthorized SessionStatus = "authorized"
	SessionCaptured   SessionStatus = "captured"
	SessionRefunded   SessionStatus = "refunded"
	SessionDeclined   SessionStatus = "declined"
	SessionCancelled  SessionStatus = "cancelled"
)

// Open reports whether the session can still be paid or voided.
func (s SessionStatus) Open() bool {
	return s == SessionPending || s == SessionAuthorized
}

// Session is the gateway's view of one payment attempt.
type Session struct {
	ID            string        `db:"id" json:"id"`
	BookingID     string        `db:"booking_id" json:"booking_id"`
	OrderID       string        `db:"order_id" json:"order_id"`
	Amount        int64         `db:"amount" json:"amount"`
	Currency      string        `db:"currency" json:"currency"`
	Status        SessionStatus `db:"status" json:"status"`
	TransactionID string        `db:"transaction_id" json:"transaction_id,omitempty"`
	RedirectURL   string        `db:"redirect_url" json:"redirect_url,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

type SessionRequest struct {
	BookingID string
	OrderID   string
	Amount    int64
	Currency  string
}

// Outcome is the provider's final word on a session, as carried by webhooks.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeDeclined  Outcome = "declined"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeRefunded  Outcome = "refunded"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeApproved, OutcomeDeclined, OutcomeCancelled, OutcomeRefunded:
		return true
	}
	return false
}

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	ID            string  `json:"id"`
	BookingID     string  `json:"booking_id,omitempty"`
	SessionID     string  `json:"session_id"`
	TransactionID string  `json:"transaction_id"`
	Outcome       Outcome `json:"outcome"`
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	Capture(ctx context.Context, sessionID string) (*Session, error)
	// Refund returns funds; a nil amount refunds the whole session.
	Refund(ctx context.Context, sessionID string, amount *int64) (*Session, error)
	// Cancel voids a session that has not been captured.
	Cancel(ctx context.Context, sessionID string) (*Session, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// SessionStore keeps sessions so a booking reuses its open session.
type SessionStore interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// OpenSessionFor returns the newest pending or authorized session of a
	// booking, or ErrSessionNotFound.
	OpenSessionFor(ctx context.Context, bookingID string) (*Session, error)
}

var ErrSessionNotFound = errors.New("payment session not found")

// GatewayError wraps a failed provider call.
type GatewayError struct {
	Op        string
	Retryable bool
	// Unknown is set when the request may have reached the provider, so its
	// effect has to be confirmed through the webhook channel.
	Unknown bool
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}

// IsUnknownOutcome reports whether the provider may have applied the call.
func IsUnknownOutcome(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Unknown
}

// SignatureError is returned for webhooks that fail verification.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string { return "webhook signature rejected: " + e.Reason }
