package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Header is what the store needs to know about an event to place it in its
// stream. The payload itself is stored as opaque JSON.
type Header struct {
	EventID       string
	AggregateID   string
	AggregateType string
	EventType     string
	Version       int
	Timestamp     time.Time
	Metadata      map[string]string
}

// Streamable is implemented by every event the store accepts.
type Streamable interface {
	StreamHeader() Header
}

type record struct {
	Header
	data     []byte
	metadata []byte
}

func encodeRecord(event interface{}) (record, error) {
	s, ok := event.(Streamable)
	if !ok {
		return record{}, fmt.Errorf("event %T has no stream header", event)
	}
	r := record{Header: s.StreamHeader(), metadata: []byte("{}")}

	var err error
	if r.data, err = json.Marshal(event); err != nil {
		return record{}, fmt.Errorf("encode %s: %w", r.EventType, err)
	}
	if len(r.Metadata) > 0 {
		if r.metadata, err = json.Marshal(r.Metadata); err != nil {
			return record{}, fmt.Errorf("encode %s metadata: %w", r.EventType, err)
		}
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
