package payment

import (
	"context"
	"sync"
)

// MemorySessionStore is the in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	order    []string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (m *MemorySessionStore) SaveSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemorySessionStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemorySessionStore) OpenSessionFor(ctx context.Context, bookingID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.sessions[m.order[i]]
		if s.BookingID == bookingID && s.Status.Open() {
			return &s, nil
		}
	}
	return nil, ErrSessionNotFound
}
