package usage

import (
	"context"
	"sync"
)

// Store persists per-subject-per-window counters. Keys encode the subject,
// the dimension, and the window (minute, date, or month).
type Store interface {
	// Get returns the current value for a key; absent keys read as 0.
	Get(ctx context.Context, key string) (int64, error)
	// IncrementBy adds delta to a key, creating it at delta if absent.
	IncrementBy(ctx context.Context, key string, delta int64) error
	// IncrementIfBelow atomically increments the key only when its current
	// value is below limit, reporting whether the increment happened. The
	// read-check-write must be indivisible under concurrent callers.
	IncrementIfBelow(ctx context.Context, key string, limit int64) (bool, error)
}

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) IncrementBy(ctx context.Context, key string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += delta
	return nil
}

func (s *MemoryStore) IncrementIfBelow(ctx context.Context, key string, limit int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[key] >= limit {
		return false, nil
	}
	s.counters[key]++
	return true, nil
}
