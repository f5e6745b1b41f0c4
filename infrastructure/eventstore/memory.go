package eventstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type outboxRow struct {
	msg       OutboxMessage
	published bool
}

// MemoryEventStore is the in-process store used in local mode and tests.
type MemoryEventStore struct {
	mu       sync.Mutex
	streams  map[string][]Event
	outbox   []outboxRow
	nextID   int64
	eventIDs map[string]struct{}
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams:  make(map[string][]Event),
		eventIDs: make(map[string]struct{}),
	}
}

func (s *MemoryEventStore) Save(ctx context.Context, events []interface{}) error {
	if len(events) == 0 {
		return nil
	}

	batch := make([]record, 0, len(events))
	for _, event := range events {
		r, err := encodeRecord(event)
		if err != nil {
			return err
		}
		batch = append(batch, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before writing anything.
	seen := make(map[string]int)
	for _, r := range batch {
		last, ok := seen[r.AggregateID]
		if !ok {
			if stream := s.streams[r.AggregateID]; len(stream) > 0 {
				last = stream[len(stream)-1].Version
			}
		}
		if r.Version != last+1 {
			return fmt.Errorf("%w: %s v%d", ErrConcurrencyConflict, r.AggregateID, r.Version)
		}
		if _, dup := s.eventIDs[r.EventID]; dup {
			return fmt.Errorf("duplicate event id %s", r.EventID)
		}
		seen[r.AggregateID] = r.Version
	}

	for _, r := range batch {
		s.nextID++
		e := Event{
			ID:            s.nextID,
			EventID:       r.EventID,
			AggregateID:   r.AggregateID,
			AggregateType: r.AggregateType,
			EventType:     r.EventType,
			Version:       r.Version,
			EventData:     r.data,
			Metadata:      r.metadata,
			CreatedAt:     r.Timestamp.UTC().Format(time.RFC3339),
		}
		s.streams[r.AggregateID] = append(s.streams[r.AggregateID], e)
		s.eventIDs[r.EventID] = struct{}{}
		s.outbox = append(s.outbox, outboxRow{msg: OutboxMessage{
			ID:          e.ID,
			EventID:     e.EventID,
			AggregateID: e.AggregateID,
			EventType:   e.EventType,
			EventData:   e.EventData,
		}})
	}
	return nil
}

func (s *MemoryEventStore) Load(ctx context.Context, aggregateID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	out := make([]Event, len(stream))
	copy(out, stream)
	return out, nil
}

func (s *MemoryEventStore) PendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []OutboxMessage
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		msgs = append(msgs, row.msg)
		if len(msgs) == limit {
			break
		}
	}
	return msgs, nil
}

func (s *MemoryEventStore) MarkPublished(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	for i := range s.outbox {
		if _, ok := marked[s.outbox[i].msg.ID]; ok {
			s.outbox[i].published = true
		}
	}
	return nil
}

// EventsOfType returns every stored event with the given type across all
// aggregates, in append order.
func (s *MemoryEventStore) EventsOfType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, row := range s.outbox {
		if row.msg.EventType != eventType {
			continue
		}
		for _, e := range s.streams[row.msg.AggregateID] {
			if e.ID == row.msg.ID {
				out = append(out, e)
			}
		}
	}
	return out
}
