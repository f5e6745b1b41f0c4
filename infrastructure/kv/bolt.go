package kv

import (
	"bytes"
	"context"
	"log"
	"strconv"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "kv"

// BoltStore keeps entries in a single BoltDB file.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// WithClock replaces the store's clock; used by tests.
func (s *BoltStore) WithClock(now func() time.Time) *BoltStore {
	s.now = now
	return s
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), encode(value, expiry(s.now(), ttl)))
	})
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		v, _, live := decode(raw, s.now())
		if !live {
			return ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

func (s *BoltStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		now := s.now()

		expires := expiry(now, ttl)
		if v, exp, live := decode(b.Get([]byte(key)), now); live {
			n = parseCounter(v)
			expires = exp
		}
		n++
		return b.Put([]byte(key), encode([]byte(strconv.FormatInt(n, 10)), expires))
	})
	return n, err
}

func (s *BoltStore) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()
		p := []byte(prefix)
		now := s.now()
		for k, raw := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, raw = c.Next() {
			if v, _, live := decode(raw, now); live {
				out[string(k)] = v
			}
		}
		return nil
	})
	return out, err
}

// Purge deletes expired entries and returns how many were removed.
func (s *BoltStore) Purge(ctx context.Context) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		now := s.now()

		var dead [][]byte
		if err := b.ForEach(func(k, raw []byte) error {
			if _, _, live := decode(raw, now); !live {
				dead = append(dead, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range dead {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(dead)
		return nil
	})
	return removed, err
}

// RunPurger purges expired keys every interval until ctx is done.
func (s *BoltStore) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.Purge(ctx); err != nil {
				log.Printf("❌ KV purge failed: %v", err)
			} else if n > 0 {
				log.Printf("🧹 KV purged %d expired keys", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
