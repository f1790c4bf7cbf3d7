// Package ratelimit admits requests under a fixed-window counter per caller
// identity. Counters live in a shared store so every API instance sees the
// same window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CounterStore atomically increments key and returns the new count. A key
// created by the call must expire after ttl.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the counter store failed and the request was
	// admitted without counting.
	Degraded bool
}

// RetryAfter is the time left until the window resets, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter implements fixed-window admission.
type Limiter struct {
	store     CounterStore
	logger    zerolog.Logger
	now       func() time.Time
	keyPrefix string
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for degraded decisions.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter backed by store.
func New(store CounterStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:     store,
		logger:    zerolog.Nop(),
		now:       time.Now,
		keyPrefix: "ratelimit:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WindowStart floors now to a multiple of window since the Unix epoch.
func WindowStart(now time.Time, window time.Duration) time.Time {
	ns := window.Nanoseconds()
	if ns <= 0 {
		return now.UTC()
	}
	return time.Unix(0, now.UnixNano()/ns*ns).UTC()
}

// Key returns the counter key for identity in the window starting at start.
func (l *Limiter) Key(identity string, start time.Time) string {
	return fmt.Sprintf("%s%s:%d", l.keyPrefix, identity, start.Unix())
}

// Admit counts one request for identity against limit per window. When the
// counter store is unreachable the request is admitted and the decision is
// marked Degraded.
func (l *Limiter) Admit(ctx context.Context, identity string, limit int, window time.Duration) Decision {
	now := l.now()
	start := WindowStart(now, window)
	reset := start.Add(window)

	count, err := l.store.Incr(ctx, l.Key(identity, start), window)
	if err != nil {
		l.logger.Warn().Err(err).Str("identity", identity).Msg("rate limit store unavailable, admitting request")
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: reset, Degraded: true}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   reset,
	}
}
