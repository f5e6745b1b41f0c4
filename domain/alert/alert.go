// Package alert holds the records raised by the anomaly monitor.
package alert

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Category string

const (
	HighRejectionRate  Category = "HighRejectionRate"
	SuspiciousActivity Category = "SuspiciousActivity"
	LowRating          Category = "LowRating"
)

type Alert struct {
	ID         string    `db:"id" json:"id"`
	Severity   Severity  `db:"severity" json:"severity"`
	Category   Category  `db:"category" json:"category"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Details    string    `db:"details" json:"details"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Filter narrows a listing; zero fields match everything.
type Filter struct {
	Category Category
	EntityID string
	Limit    int
}

func (f Filter) Match(a Alert) bool {
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.EntityID != "" && a.EntityID != f.EntityID {
		return false
	}
	return true
}
