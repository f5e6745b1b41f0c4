package messaging

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var ErrBusClosed = errors.New("bus closed")

type subscription struct {
	consumer string
	keys     []string
	handler  EventHandler
	ch       chan []byte
}

func (s *subscription) matches(key string) bool {
	for _, p := range s.keys {
		if MatchTopic(p, key) {
			return true
		}
	}
	return false
}

// MemoryBus is an in-process Bus. Publish never blocks: each consumer has a
// buffered queue drained by its own goroutine, and a full queue drops the
// message for that consumer.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     []*subscription
	buffer   int
	closed   bool
	wg       sync.WaitGroup
	inflight atomic.Int64
}

func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryBus{buffer: buffer}
}

func (b *MemoryBus) Publish(ctx context.Context, routingKey string, eventData []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	for _, s := range b.subs {
		if !s.matches(routingKey) {
			continue
		}
		b.inflight.Add(1)
		select {
		case s.ch <- eventData:
		default:
			b.inflight.Add(-1)
			log.Printf("⚠️  %s queue full, dropping %s", s.consumer, routingKey)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(consumer string, keys []string, handler EventHandler) error {
	s := &subscription{
		consumer: consumer,
		keys:     keys,
		handler:  handler,
		ch:       make(chan []byte, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.subs = append(b.subs, s)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for data := range s.ch {
			if err := s.handler(context.Background(), data); err != nil {
				log.Printf("❌ %s failed: %v", s.consumer, err)
			}
			b.inflight.Add(-1)
		}
	}()
	return nil
}

// Flush waits until every published message has been handled or the timeout
// elapses. It reports whether the bus drained.
func (b *MemoryBus) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for b.inflight.Load() > 0 {
		if !time.Now().Before(deadline) {
			return false
		}
		<-tick.C
	}
	return true
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
