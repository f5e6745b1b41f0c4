package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// ErrIgnoredEvent marks a verified webhook that carries no settlement.
var ErrIgnoredEvent = errors.New("webhook event ignored")

// OmiseGateway opens a source-backed charge per session. The charge id is
// the session id.
type OmiseGateway struct {
	client        *omise.Client
	sourceType    string
	webhookSecret []byte
	now           func() time.Time
}

func NewOmiseGateway(publicKey, secretKey, sourceType string, webhookSecret []byte) (*OmiseGateway, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create omise client: %w", err)
	}
	c.SetDebug(false)
	if sourceType == "" {
		sourceType = "promptpay"
	}
	return &OmiseGateway{
		client:        c,
		sourceType:    sourceType,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}, nil
}

func (g *OmiseGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.Amount <= 0 || req.Currency == "" {
		return nil, &GatewayError{Op: "create_session", Err: errors.New("invalid amount or currency")}
	}
	currency := strings.ToLower(req.Currency)

	src := &omise.Source{}
	err := g.call(ctx, "create_source", func() error {
		return g.client.Do(src, &operations.CreateSource{
			Type:     g.sourceType,
			Amount:   req.Amount,
			Currency: currency,
		})
	})
	if err != nil {
		return nil, err
	}

	// a source charge captures once the customer completes it offsite
	ch := &omise.Charge{}
	err = g.call(ctx, "create_charge", func() error {
		return g.client.Do(ch, &operations.CreateCharge{
			Amount:   req.Amount,
			Currency: currency,
			Source:   src.ID,
			Metadata: map[string]interface{}{
				"booking_id": req.BookingID,
				"order_id":   req.OrderID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("💳 Omise charge %s opened for booking %s (%d %s)", ch.ID, req.BookingID, req.Amount, currency)
	s := g.toSession(ch)
	s.BookingID, s.OrderID, s.CreatedAt = req.BookingID, req.OrderID, s.UpdatedAt
	return s, nil
}

func (g *OmiseGateway) Capture(ctx context.Context, sessionID string) (*Session, error) {
	ch := &omise.Charge{}
	err := g.call(ctx, "capture", func() error {
		return g.client.Do(ch, &operations.CaptureCharge{ChargeID: sessionID})
	})
	if err != nil {
		return nil, err
	}
	return g.toSession(ch), nil
}

func (g *OmiseGateway) Refund(ctx context.Context, sessionID string, amount *int64) (*Session, error) {
	ch := &omise.Charge{}
	err := g.call(ctx, "retrieve_charge", func() error {
		return g.client.Do(ch, &operations.RetrieveCharge{ChargeID: sessionID})
	})
	if err != nil {
		return nil, err
	}

	amt := ch.Amount
	if amount != nil {
		amt = *amount
	}

	ref := &omise.Refund{}
	err = g.call(ctx, "refund", func() error {
		return g.client.Do(ref, &operations.CreateRefund{ChargeID: sessionID, Amount: amt})
	})
	if err != nil {
		return nil, err
	}

	s := g.toSession(ch)
	s.Status = SessionRefunded
	s.TransactionID = ref.ID
	return s, nil
}

func (g *OmiseGateway) Cancel(ctx context.Context, sessionID string) (*Session, error) {
	ch := &omise.Charge{}
	err := g.call(ctx, "cancel", func() error {
		return g.client.Do(ch, &operations.ReverseCharge{ChargeID: sessionID})
	})
	if err != nil {
		return nil, err
	}
	return g.toSession(ch), nil
}

type omiseEvent struct {
	ID   string          `json:"id"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

type omiseRefund struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
}

func (g *OmiseGateway) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if err := verifySignature(g.webhookSecret, payload, signature); err != nil {
		return nil, err
	}

	var ev omiseEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode omise event: %w", err)
	}

	switch ev.Key {
	case "charge.complete", "charge.reverse":
		var ch omise.Charge
		if err := json.Unmarshal(ev.Data, &ch); err != nil {
			return nil, fmt.Errorf("failed to decode charge: %w", err)
		}
		outcome, ok := chargeOutcome(string(ch.Status))
		if !ok {
			return nil, ErrIgnoredEvent
		}
		bookingID, _ := ch.Metadata["booking_id"].(string)
		return &WebhookEvent{
			ID:            ev.ID,
			BookingID:     bookingID,
			SessionID:     ch.ID,
			TransactionID: ch.ID,
			Outcome:       outcome,
		}, nil

	case "refund.create":
		var ref omiseRefund
		if err := json.Unmarshal(ev.Data, &ref); err != nil {
			return nil, fmt.Errorf("failed to decode refund: %w", err)
		}
		return &WebhookEvent{
			ID:            ev.ID,
			SessionID:     ref.Charge,
			TransactionID: ref.ID,
			Outcome:       OutcomeRefunded,
		}, nil
	}

	log.Printf("⏭️  Ignoring omise event %s (%s)", ev.ID, ev.Key)
	return nil, ErrIgnoredEvent
}

func chargeOutcome(status string) (Outcome, bool) {
	switch status {
	case "successful":
		return OutcomeApproved, true
	case "failed":
		return OutcomeDeclined, true
	case "reversed", "expired":
		return OutcomeCancelled, true
	}
	return "", false
}

func (g *OmiseGateway) toSession(ch *omise.Charge) *Session {
	s := &Session{
		ID:            ch.ID,
		Amount:        ch.Amount,
		Currency:      strings.ToUpper(ch.Currency),
		TransactionID: ch.ID,
		RedirectURL:   ch.AuthorizeURI,
		UpdatedAt:     g.now(),
	}
	s.BookingID, _ = ch.Metadata["booking_id"].(string)
	s.OrderID, _ = ch.Metadata["order_id"].(string)

	switch string(ch.Status) {
	case "successful":
		s.Status = SessionCaptured
	case "failed":
		s.Status = SessionDeclined
	case "reversed", "expired":
		s.Status = SessionCancelled
	default:
		s.Status = SessionPending
		if ch.Authorized {
			s.Status = SessionAuthorized
		}
	}
	return s
}

// call runs fn under ctx. omise.Client has no per-call context, so a call
// that outlives ctx is abandoned and reported with an unknown outcome.
func (g *OmiseGateway) call(ctx context.Context, op string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return classify(op, err)
	case <-ctx.Done():
		return &GatewayError{Op: op, Retryable: true, Unknown: true, Err: ctx.Err()}
	}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var oe *omise.Error
	if errors.As(err, &oe) {
		retryable := oe.StatusCode >= 500 || oe.StatusCode == 429
		return &GatewayError{Op: op, Retryable: retryable, Err: err}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return &GatewayError{Op: op, Retryable: true, Unknown: ne.Timeout(), Err: err}
	}
	return &GatewayError{Op: op, Retryable: true, Err: err}
}
