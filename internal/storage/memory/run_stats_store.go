package memory

import (
	"context"
	"sort"
	"sync"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// RunStatsStore is an in-memory implementation of storage.RunStatsStore.
type RunStatsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunStats // keyed by run_id
}

// NewRunStatsStore creates a new in-memory run stats store.
func NewRunStatsStore() *RunStatsStore {
	return &RunStatsStore{
		data: make(map[string]*domain.RunStats),
	}
}

// Compile-time interface check.
var _ storage.RunStatsStore = (*RunStatsStore)(nil)

// Upsert stores stats, replacing any previous row for the run id.
func (s *RunStatsStore) Upsert(_ context.Context, stats *domain.RunStats) error {
	if stats == nil || stats.RunID == "" {
		return storage.Invalid("run stats without run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[stats.RunID] = cloneStats(stats)
	return nil
}

// GetByRun retrieves stats for a run. Returns ErrNotFound if not exists.
func (s *RunStatsStore) GetByRun(_ context.Context, runID string) (*domain.RunStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneStats(stats), nil
}

// GetAll retrieves all stats ordered by strategy, then timeframe.
func (s *RunStatsStore) GetAll(_ context.Context) ([]*domain.RunStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RunStats, 0, len(s.data))
	for _, stats := range s.data {
		out = append(out, cloneStats(stats))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StrategyID != out[j].StrategyID {
			return out[i].StrategyID < out[j].StrategyID
		}
		if out[i].Timeframe != out[j].Timeframe {
			return out[i].Timeframe < out[j].Timeframe
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

func cloneStats(s *domain.RunStats) *domain.RunStats {
	c := *s
	c.Skipped = cloneCounts(s.Skipped)
	c.ForcedExits = cloneCounts(s.ForcedExits)
	return &c
}

func cloneCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
