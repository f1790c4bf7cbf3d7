package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local CounterStore. It is only correct for a
// single API instance.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
	now      func() time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{counters: make(map[string]memoryCounter), now: now}
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}

	c, ok := s.counters[key]
	if !ok {
		c = memoryCounter{expiresAt: now.Add(ttl)}
	}
	c.count++
	s.counters[key] = c
	return c.count, nil
}

// Len reports the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
