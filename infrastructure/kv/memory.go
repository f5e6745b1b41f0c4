package kv

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), now: time.Now}
}

// WithClock replaces the store's clock; used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = encode(value, expiry(s.now(), ttl))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _, live := decode(s.data[key], s.now())
	if !live {
		delete(s.data, key)
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	expires := expiry(now, ttl)
	if v, exp, live := decode(s.data[key], now); live {
		n = parseCounter(v)
		expires = exp
	}
	n++
	s.data[key] = encode([]byte(strconv.FormatInt(n, 10)), expires)
	return n, nil
}

func (s *MemoryStore) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]byte)
	now := s.now()
	for k, raw := range s.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if v, _, live := decode(raw, now); live {
			out[k] = v
		}
	}
	return out, nil
}
