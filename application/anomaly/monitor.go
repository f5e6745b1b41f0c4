// Package anomaly watches the event stream for abnormal behaviour of
// workshops and customers and records alerts for the operations team.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"workshop_booking/domain/alert"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/idempotency"
	"workshop_booking/infrastructure/messaging"
	"workshop_booking/infrastructure/repository"
	"workshop_booking/pkg/uuid"
)

const (
	consumerName       = "anomaly-monitor"
	EventReviewCreated = "review.created"
)

type Rules struct {
	RejectionWindow    int
	RejectionMinSample int
	RejectionThreshold float64
	SpikeLimit         int
	SpikeWindow        time.Duration
	LowRatingMax       int
}

var DefaultRules = Rules{
	RejectionWindow:    20,
	RejectionMinSample: 5,
	RejectionThreshold: 0.5,
	SpikeLimit:         5,
	SpikeWindow:        24 * time.Hour,
	LowRatingMax:       2,
}

// ReviewCreated is published by the reviews service.
type ReviewCreated struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	ReviewID   string    `json:"review_id"`
	BookingID  string    `json:"booking_id"`
	CustomerID string    `json:"customer_id"`
	WorkshopID string    `json:"workshop_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type workshopWindow struct {
	bookings []string
	rejected map[string]bool
	armed    bool
}

type customerWindow struct {
	created []time.Time
	armed   bool
}

// Monitor keeps rolling windows per workshop and customer. Alerts fire once
// when a rule starts matching and re-arm when it stops.
type Monitor struct {
	alerts    repository.AlertStore
	processed idempotency.Ledger
	rules     Rules

	mu        sync.Mutex
	workshops map[string]*workshopWindow
	customers map[string]*customerWindow
}

func NewMonitor(alerts repository.AlertStore, processed idempotency.Ledger, rules Rules) *Monitor {
	return &Monitor{
		alerts:    alerts,
		processed: processed,
		rules:     rules,
		workshops: make(map[string]*workshopWindow),
		customers: make(map[string]*customerWindow),
	}
}

func (m *Monitor) Start(bus messaging.Bus) error {
	keys := []string{
		booking.EventCreated,
		booking.EventRejected,
		booking.EventSuggestionDeclined,
		EventReviewCreated,
	}
	if err := bus.Subscribe(consumerName, keys, m.Handle); err != nil {
		return err
	}
	log.Println("✅ Anomaly monitor started")
	return nil
}

type envelope struct {
	EventID     string            `json:"event_id"`
	AggregateID string            `json:"aggregate_id"`
	EventType   string            `json:"event_type"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata"`
	Outcome     booking.Status    `json:"outcome"`
	Rating      *int              `json:"rating"`
}

// Handle never fails; monitoring must not hold up the stream.
func (m *Monitor) Handle(ctx context.Context, eventData []byte) error {
	var env envelope
	if err := json.Unmarshal(eventData, &env); err != nil || env.EventID == "" {
		log.Printf("⚠️  Anomaly monitor dropped message: %v", err)
		return nil
	}
	if env.EventType == "" && env.Rating != nil {
		env.EventType = EventReviewCreated
	}

	claimed, err := m.processed.MarkAsProcessed(ctx, env.EventID, env.AggregateID, env.EventType, consumerName)
	if err != nil {
		log.Printf("⚠️  Failed to claim event %s: %v", env.EventID, err)
		return nil
	}
	if !claimed {
		return nil
	}

	var raised []alert.Alert
	switch env.EventType {
	case booking.EventCreated:
		raised = m.onCreated(env)
	case booking.EventRejected:
		raised = m.onRejected(env)
	case booking.EventSuggestionDeclined:
		if env.Outcome == booking.StatusRejected {
			raised = m.onRejected(env)
		}
	case EventReviewCreated:
		var r ReviewCreated
		if err := json.Unmarshal(eventData, &r); err != nil {
			log.Printf("⚠️  Bad review event %s: %v", env.EventID, err)
			return nil
		}
		raised = m.onReview(r)
	}

	for _, a := range raised {
		if err := m.alerts.Add(ctx, a); err != nil {
			log.Printf("❌ Failed to store %s alert for %s: %v", a.Category, a.EntityID, err)
			continue
		}
		log.Printf("🚨 ALERT %s [%s] %s %s: %s", a.Category, a.Severity, a.EntityType, a.EntityID, a.Details)
	}
	return nil
}

func (m *Monitor) workshop(id string) *workshopWindow {
	w, ok := m.workshops[id]
	if !ok {
		w = &workshopWindow{rejected: make(map[string]bool), armed: true}
		m.workshops[id] = w
	}
	return w
}

func (m *Monitor) customer(id string) *customerWindow {
	c, ok := m.customers[id]
	if !ok {
		c = &customerWindow{armed: true}
		m.customers[id] = c
	}
	return c
}

func (m *Monitor) onCreated(env envelope) []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []alert.Alert

	if workshopID := env.Metadata["workshop_id"]; workshopID != "" {
		w := m.workshop(workshopID)
		w.bookings = append(w.bookings, env.AggregateID)
		if len(w.bookings) > m.rules.RejectionWindow {
			delete(w.rejected, w.bookings[0])
			w.bookings = w.bookings[1:]
		}
		if a, ok := m.checkRejections(workshopID, w, env.Timestamp); ok {
			out = append(out, a)
		}
	}

	if customerID := env.Metadata["customer_id"]; customerID != "" {
		c := m.customer(customerID)
		cutoff := env.Timestamp.Add(-m.rules.SpikeWindow)
		kept := c.created[:0]
		for _, at := range c.created {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}
		c.created = append(kept, env.Timestamp)

		over := len(c.created) > m.rules.SpikeLimit
		if over && c.armed {
			c.armed = false
			out = append(out, newAlert(alert.SeverityHigh, alert.SuspiciousActivity, "customer", customerID, env.Timestamp,
				fmt.Sprintf("%d bookings created within %s", len(c.created), m.rules.SpikeWindow)))
		} else if !over {
			c.armed = true
		}
	}
	return out
}

func (m *Monitor) onRejected(env envelope) []alert.Alert {
	workshopID := env.Metadata["workshop_id"]
	if workshopID == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.workshop(workshopID)
	tracked := false
	for _, id := range w.bookings {
		tracked = tracked || id == env.AggregateID
	}
	// bookings older than the window no longer count
	if !tracked {
		return nil
	}
	w.rejected[env.AggregateID] = true

	if a, ok := m.checkRejections(workshopID, w, env.Timestamp); ok {
		return []alert.Alert{a}
	}
	return nil
}

func (m *Monitor) checkRejections(workshopID string, w *workshopWindow, at time.Time) (alert.Alert, bool) {
	total := len(w.bookings)
	if total < m.rules.RejectionMinSample {
		return alert.Alert{}, false
	}
	rate := float64(len(w.rejected)) / float64(total)
	if rate <= m.rules.RejectionThreshold {
		w.armed = true
		return alert.Alert{}, false
	}
	if !w.armed {
		return alert.Alert{}, false
	}
	w.armed = false
	return newAlert(alert.SeverityMedium, alert.HighRejectionRate, "workshop", workshopID, at,
		fmt.Sprintf("%d of the last %d bookings rejected (%.0f%%)", len(w.rejected), total, rate*100)), true
}

func (m *Monitor) onReview(r ReviewCreated) []alert.Alert {
	if r.Rating > m.rules.LowRatingMax || r.WorkshopID == "" {
		return nil
	}
	severity := alert.SeverityLow
	if r.Rating <= 1 {
		severity = alert.SeverityMedium
	}
	return []alert.Alert{newAlert(severity, alert.LowRating, "workshop", r.WorkshopID, r.Timestamp,
		fmt.Sprintf("rated %d by customer %s on booking %s", r.Rating, r.CustomerID, r.BookingID))}
}

func newAlert(severity alert.Severity, category alert.Category, entityType, entityID string, at time.Time, details string) alert.Alert {
	return alert.Alert{
		ID:         uuid.New(),
		Severity:   severity,
		Category:   category,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  at,
	}
}
