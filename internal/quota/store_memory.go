package quota

import (
	"context"
	"sync"
	"time"

	"github.com/mentora-ai/mentora/internal/billing"
)

// MemoryStore is an in-process Store for tests and single-instance
// deployments without PostgreSQL. Counters do not survive restarts and are
// not shared across instances; production uses PostgresStore.
//
// MemoryStore is safe for concurrent use by multiple goroutines.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[memoryKey]*Usage
}

type memoryKey struct {
	userID      string
	periodStart time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[memoryKey]*Usage)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID string, period billing.Period) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.rows[memoryKey{userID, period.Start}]; ok {
		return *row, nil
	}
	return Usage{UserID: userID, PeriodStart: period.Start, PeriodEnd: period.End}, nil
}

// Consume implements Store. The mutex plays the role the upsert guard plays
// in PostgresStore: check and increment happen under one critical section.
func (s *MemoryStore) Consume(_ context.Context, userID string, period billing.Period, limit, tokens, costMicros int64) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{userID, period.Start}
	row, ok := s.rows[key]
	if !ok {
		row = &Usage{UserID: userID, PeriodStart: period.Start, PeriodEnd: period.End}
		s.rows[key] = row
	}
	if row.MessagesUsed >= limit {
		return Usage{}, ErrLimitReached
	}
	row.MessagesUsed++
	row.TokensUsed += tokens
	row.CostMicros += costMicros
	return *row, nil
}
