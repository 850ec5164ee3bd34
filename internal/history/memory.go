package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/dutch-better/internal/models"
)

// MemoryStore is an in-memory Store used when database persistence is
// disabled. Outcomes survive day rollovers but not process restarts.
type MemoryStore struct {
	outcomes []models.RaceOutcome
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// RecordOutcome appends a settled race outcome
func (s *MemoryStore) RecordOutcome(ctx context.Context, outcome models.RaceOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

// Outcomes returns outcomes settled within [from, to)
func (s *MemoryStore) Outcomes(ctx context.Context, from, to time.Time) ([]models.RaceOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.RaceOutcome
	for _, outcome := range s.outcomes {
		if !outcome.SettledAt.Before(from) && outcome.SettledAt.Before(to) {
			result = append(result, outcome)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SettledAt.Before(result[j].SettledAt)
	})
	return result, nil
}

// DailySummary aggregates the outcomes of one calendar day
func (s *MemoryStore) DailySummary(ctx context.Context, day time.Time) (DaySummary, error) {
	from, to := dayBounds(day)
	outcomes, err := s.Outcomes(ctx, from, to)
	if err != nil {
		return DaySummary{}, err
	}
	return summarize(from, outcomes), nil
}
