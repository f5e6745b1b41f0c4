// Package kv is a small key-value store with per-key expiry, used for device
// tokens and request rate limits.
package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	// Put stores value under key. ttl <= 0 means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Incr adds one to the counter at key and returns the new value. The ttl
	// is applied only when the counter is created, giving a fixed window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Scan returns live entries whose key starts with prefix.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
}

// record layout: 8-byte big-endian expiry (unix nanos, 0 = never) + value
func encode(value []byte, expires time.Time) []byte {
	buf := make([]byte, 8+len(value))
	if !expires.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(expires.UnixNano()))
	}
	copy(buf[8:], value)
	return buf
}

func decode(raw []byte, now time.Time) (value []byte, expires time.Time, live bool) {
	if len(raw) < 8 {
		return nil, time.Time{}, false
	}
	if n := binary.BigEndian.Uint64(raw[:8]); n != 0 {
		expires = time.Unix(0, int64(n))
		if !now.Before(expires) {
			return nil, expires, false
		}
	}
	value = make([]byte, len(raw)-8)
	copy(value, raw[8:])
	return value, expires, true
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func parseCounter(v []byte) int64 {
	n, _ := strconv.ParseInt(string(v), 10, 64)
	return n
}
