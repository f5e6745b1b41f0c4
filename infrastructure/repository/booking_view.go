package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// BookingRow is the listing projection of a booking, rebuilt from events.
type BookingRow struct {
	ID              string     `db:"id" json:"id"`
	CustomerID      string     `db:"customer_id" json:"customer_id"`
	WorkshopID      string     `db:"workshop_id" json:"workshop_id"`
	Status          string     `db:"status" json:"status"`
	AppointmentDate time.Time  `db:"appointment_date" json:"appointment_date"`
	SuggestedAt     *time.Time `db:"suggested_at" json:"suggested_at,omitempty"`
	Version         int        `db:"version" json:"version"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

type BookingView interface {
	// UpsertBooking writes row unless a newer version is already stored.
	UpsertBooking(ctx context.Context, row BookingRow) error
	// ListForParty lists bookings of a customer or workshop, newest first.
	ListForParty(ctx context.Context, customerID, workshopID string, limit int) ([]BookingRow, error)
	// StaleSuggestions returns ids of bookings whose open time suggestion
	// was made before the cutoff.
	StaleSuggestions(ctx context.Context, status string, before time.Time, limit int) ([]string, error)
	// RenameStatus rewrites rows stored under an old status spelling.
	RenameStatus(ctx context.Context, from, to string) (int64, error)
}

type SQLBookingView struct {
	db *sqlx.DB
}

func NewSQLBookingView(db *sqlx.DB) *SQLBookingView {
	return &SQLBookingView{db: db}
}

func (v *SQLBookingView) UpsertBooking(ctx context.Context, row BookingRow) error {
	_, err := v.db.NamedExecContext(ctx, `
		INSERT INTO booking_view (id, customer_id, workshop_id, status, appointment_date, suggested_at, version, updated_at)
		VALUES (:id, :customer_id, :workshop_id, :status, :appointment_date, :suggested_at, :version, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			appointment_date = EXCLUDED.appointment_date,
			suggested_at = EXCLUDED.suggested_at,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE booking_view.version < EXCLUDED.version`, row)
	if err != nil {
		return fmt.Errorf("failed to upsert booking view: %w", err)
	}
	return nil
}

func (v *SQLBookingView) ListForParty(ctx context.Context, customerID, workshopID string, limit int) ([]BookingRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows := []BookingRow{}
	err := v.db.SelectContext(ctx, &rows, `
		SELECT id, customer_id, workshop_id, status, appointment_date, suggested_at, version, updated_at
		FROM booking_view
		WHERE ($1 = '' OR customer_id = $1) AND ($2 = '' OR workshop_id = $2)
		ORDER BY updated_at DESC
		LIMIT $3`, customerID, workshopID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return rows, nil
}

func (v *SQLBookingView) StaleSuggestions(ctx context.Context, status string, before time.Time, limit int) ([]string, error) {
	var ids []string
	err := v.db.SelectContext(ctx, &ids, `
		SELECT id FROM booking_view
		WHERE status = $1 AND suggested_at < $2
		ORDER BY suggested_at
		LIMIT $3`, status, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale suggestions: %w", err)
	}
	return ids, nil
}

func (v *SQLBookingView) RenameStatus(ctx context.Context, from, to string) (int64, error) {
	res, err := v.db.ExecContext(ctx, `UPDATE booking_view SET status = $1 WHERE status = $2`, to, from)
	if err != nil {
		return 0, fmt.Errorf("failed to rename status %s: %w", from, err)
	}
	return res.RowsAffected()
}

type MemoryBookingView struct {
	mu   sync.RWMutex
	rows map[string]BookingRow
}

func NewMemoryBookingView() *MemoryBookingView {
	return &MemoryBookingView{rows: make(map[string]BookingRow)}
}

func (v *MemoryBookingView) UpsertBooking(ctx context.Context, row BookingRow) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cur, ok := v.rows[row.ID]; ok && cur.Version >= row.Version {
		return nil
	}
	v.rows[row.ID] = row
	return nil
}

func (v *MemoryBookingView) sorted(keep func(BookingRow) bool, less func(a, b BookingRow) bool) []BookingRow {
	out := []BookingRow{}
	for _, r := range v.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (v *MemoryBookingView) ListForParty(ctx context.Context, customerID, workshopID string, limit int) ([]BookingRow, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := v.sorted(func(r BookingRow) bool {
		return (customerID == "" || r.CustomerID == customerID) && (workshopID == "" || r.WorkshopID == workshopID)
	}, func(a, b BookingRow) bool { return a.UpdatedAt.After(b.UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *MemoryBookingView) StaleSuggestions(ctx context.Context, status string, before time.Time, limit int) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rows := v.sorted(func(r BookingRow) bool {
		return r.Status == status && r.SuggestedAt != nil && r.SuggestedAt.Before(before)
	}, func(a, b BookingRow) bool { return a.SuggestedAt.Before(*b.SuggestedAt) })

	var ids []string
	for _, r := range rows {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (v *MemoryBookingView) RenameStatus(ctx context.Context, from, to string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var n int64
	for id, r := range v.rows {
		if r.Status == from {
			r.Status = to
			v.rows[id] = r
			n++
		}
	}
	return n, nil
}
