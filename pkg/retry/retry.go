package retry

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds an exponential backoff.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultPolicy = Policy{
	MaxRetries:      3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// Do runs op until it succeeds, returns an error retryable rejects, the
// policy is exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err != nil && (retryable == nil || !retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		log.Printf("⏳ Retrying in %s after: %v", wait.Round(time.Millisecond), err)
	})
}
