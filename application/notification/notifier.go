package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"workshop_booking/infrastructure/messaging"
)

// Message is one notification addressed to one user.
type Message struct {
	RecipientID string                 `json:"recipient_id"`
	Role        string                 `json:"role"`
	Kind        string                 `json:"kind"`
	BookingID   string                 `json:"booking_id"`
	Payload     map[string]interface{} `json:"payload"`
	SentAt      time.Time              `json:"sent_at"`
}

// Notifier delivers messages (push, e-mail, chat...).
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the process log. Used in local mode.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	log.Printf("📱 [NOTIFY] %s %s: %s (booking %s)", msg.Role, msg.RecipientID, msg.Kind, msg.BookingID)
	return nil
}

// AMQPNotifier hands messages to delivery workers through the notifications
// exchange, routed as notify.<role>.<kind>.
type AMQPNotifier struct {
	bus messaging.Bus
}

func NewAMQPNotifier(bus messaging.Bus) *AMQPNotifier {
	return &AMQPNotifier{bus: bus}
}

func (n *AMQPNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	return n.bus.Publish(ctx, "notify."+msg.Role+"."+msg.Kind, body)
}
