package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"workshop_booking/domain/alert"
)

type AlertStore interface {
	Add(ctx context.Context, a alert.Alert) error
	// List returns matching alerts, newest first.
	List(ctx context.Context, f alert.Filter) ([]alert.Alert, error)
}

type SQLAlertStore struct {
	db *sqlx.DB
}

func NewSQLAlertStore(db *sqlx.DB) *SQLAlertStore {
	return &SQLAlertStore{db: db}
}

func (s *SQLAlertStore) Add(ctx context.Context, a alert.Alert) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO alerts (id, severity, category, entity_type, entity_id, details, created_at)
		VALUES (:id, :severity, :category, :entity_type, :entity_id, :details, :created_at)
		ON CONFLICT (id) DO NOTHING`, a)
	if err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

func (s *SQLAlertStore) List(ctx context.Context, f alert.Filter) ([]alert.Alert, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	alerts := []alert.Alert{}
	err := s.db.SelectContext(ctx, &alerts, `
		SELECT id, severity, category, entity_type, entity_id, details, created_at
		FROM alerts
		WHERE ($1 = '' OR category = $1) AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`, string(f.Category), f.EntityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []alert.Alert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

func (s *MemoryAlertStore) Add(ctx context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *MemoryAlertStore) List(ctx context.Context, f alert.Filter) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []alert.Alert{}
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if !f.Match(s.alerts[i]) {
			continue
		}
		out = append(out, s.alerts[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
