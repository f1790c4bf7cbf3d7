package generation

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff retries an operation with exponentially growing delays, no jitter.
// Delay for retry n (1-indexed) is min(Initial * 2^(n-1), Max).
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff is used for post-admission writes that must not be lost.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 5, Initial: 100 * time.Millisecond, Max: 2 * time.Second}
}

func (b Backoff) exponential() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Initial
	eb.MaxInterval = b.Max
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = time.Duration(math.MaxInt64)
	}
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// Delay returns the wait before retry attempt n.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	eb := b.exponential()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = eb.NextBackOff()
	}
	return d
}

// Total is the sum of all delays across every retry.
func (b Backoff) Total() time.Duration {
	eb := b.exponential()
	var total time.Duration
	for i := 1; i < b.Attempts; i++ {
		total += eb.NextBackOff()
	}
	return total
}

// Do calls fn until it succeeds, attempts run out, or ctx is done. The last
// error from fn is returned.
func (b Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.Attempts <= 1 {
		// WithMaxRetries treats zero as unlimited.
		return fn(ctx)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b.exponential(), uint64(b.Attempts-1)), ctx)

	var last error
	err := backoff.Retry(func() error {
		last = fn(ctx)
		return last
	}, policy)
	if err != nil && last != nil {
		return last
	}
	return err
}
