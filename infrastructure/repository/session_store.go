package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"workshop_booking/infrastructure/payment"
)

// SQLSessionStore persists payment sessions in Postgres.
type SQLSessionStore struct {
	db *sqlx.DB
}

func NewSQLSessionStore(db *sqlx.DB) *SQLSessionStore {
	return &SQLSessionStore{db: db}
}

func (s *SQLSessionStore) SaveSession(ctx context.Context, sess *payment.Session) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO payment_sessions (
			id, booking_id, order_id, amount, currency, status, transaction_id, redirect_url, created_at, updated_at
		) VALUES (
			:id, :booking_id, :order_id, :amount, :currency, :status, :transaction_id, :redirect_url, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			transaction_id = EXCLUDED.transaction_id,
			updated_at = EXCLUDED.updated_at`, sess)
	if err != nil {
		return fmt.Errorf("failed to save payment session: %w", err)
	}
	return nil
}

func (s *SQLSessionStore) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	var sess payment.Session
	err := s.db.GetContext(ctx, &sess, `SELECT * FROM payment_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	return &sess, nil
}

func (s *SQLSessionStore) OpenSessionFor(ctx context.Context, bookingID string) (*payment.Session, error) {
	var sess payment.Session
	err := s.db.GetContext(ctx, &sess, `
		SELECT * FROM payment_sessions
		WHERE booking_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1`, bookingID, payment.SessionPending, payment.SessionAuthorized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open payment session: %w", err)
	}
	return &sess, nil
}
