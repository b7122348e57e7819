package quota

import (
	"context"
	"sync"
)

// MemoryUsageStore is an in-memory UsageStore for tests and single-node
// development setups.
type MemoryUsageStore struct {
	mu    sync.Mutex
	usage map[string]Usage // subject key + period key
}

// NewMemoryUsageStore creates an empty in-memory store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{usage: make(map[string]Usage)}
}

// AddUsage implements UsageStore.
func (s *MemoryUsageStore) AddUsage(ctx context.Context, subject Subject, dayKey, monthKey string, tokens int64, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{subject.Key() + "|" + dayKey, subject.Key() + "|" + monthKey} {
		u := s.usage[key]
		u.Tokens += tokens
		u.Cost += cost
		s.usage[key] = u
	}
	return nil
}

// PeriodUsage implements UsageStore.
func (s *MemoryUsageStore) PeriodUsage(ctx context.Context, subject Subject, dayKey, monthKey string) (Usage, Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[subject.Key()+"|"+dayKey], s.usage[subject.Key()+"|"+monthKey], nil
}
