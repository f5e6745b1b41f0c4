package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jmoiron/sqlx"

	"workshop_booking/domain/settlement"
)

type SettlementRepository interface {
	// CreateIfAbsent stores s unless the booking already has a settlement,
	// in which case the stored one is returned with created == false.
	CreateIfAbsent(ctx context.Context, s *settlement.Settlement) (stored *settlement.Settlement, created bool, err error)
	GetByBooking(ctx context.Context, bookingID string) (*settlement.Settlement, error)
	Update(ctx context.Context, s *settlement.Settlement) error
}

type SQLSettlementRepository struct {
	db *sqlx.DB
}

func NewSQLSettlementRepository(db *sqlx.DB) *SQLSettlementRepository {
	return &SQLSettlementRepository{db: db}
}

func (r *SQLSettlementRepository) CreateIfAbsent(ctx context.Context, s *settlement.Settlement) (*settlement.Settlement, bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO settlements (
			order_id, booking_id, customer_id, workshop_id, amount, currency,
			commission, commission_rate, transaction_id, status, created_at, settled_at, refunded_at
		) VALUES (
			:order_id, :booking_id, :customer_id, :workshop_id, :amount, :currency,
			:commission, :commission_rate, :transaction_id, :status, :created_at, :settled_at, :refunded_at
		)
		ON CONFLICT (booking_id) DO NOTHING`, s)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert settlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert settlement: %w", err)
	}

	stored, err := r.GetByBooking(ctx, s.BookingID)
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		log.Printf("🧾 Settlement %s opened for booking %s", stored.OrderID, stored.BookingID)
	}
	return stored, n == 1, nil
}

func (r *SQLSettlementRepository) GetByBooking(ctx context.Context, bookingID string) (*settlement.Settlement, error) {
	var s settlement.Settlement
	err := r.db.GetContext(ctx, &s, `
		SELECT order_id, booking_id, customer_id, workshop_id, amount, currency,
		       commission, commission_rate, transaction_id, status, created_at, settled_at, refunded_at
		FROM settlements WHERE booking_id = $1`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settlement.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return &s, nil
}

func (r *SQLSettlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE settlements
		SET commission = :commission, commission_rate = :commission_rate,
		    transaction_id = :transaction_id, status = :status,
		    settled_at = :settled_at, refunded_at = :refunded_at
		WHERE order_id = :order_id`, s)
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrNotFound
	}
	return nil
}

type MemorySettlementRepository struct {
	mu        sync.Mutex
	byBooking map[string]settlement.Settlement
}

func NewMemorySettlementRepository() *MemorySettlementRepository {
	return &MemorySettlementRepository{byBooking: make(map[string]settlement.Settlement)}
}

func (r *MemorySettlementRepository) CreateIfAbsent(ctx context.Context, s *settlement.Settlement) (*settlement.Settlement, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byBooking[s.BookingID]; ok {
		return &existing, false, nil
	}
	r.byBooking[s.BookingID] = *s
	cp := *s
	return &cp, true, nil
}

func (r *MemorySettlementRepository) GetByBooking(ctx context.Context, bookingID string) (*settlement.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byBooking[bookingID]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	return &s, nil
}

func (r *MemorySettlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byBooking[s.BookingID]; !ok {
		return settlement.ErrNotFound
	}
	r.byBooking[s.BookingID] = *s
	return nil
}
