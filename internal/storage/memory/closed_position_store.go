package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// ClosedPositionStore is an in-memory implementation of storage.ClosedPositionStore.
type ClosedPositionStore struct {
	mu   sync.RWMutex
	data map[string][]domain.ClosedPosition // keyed by run_id
	keys map[string]struct{}                // run_id|position_key|exit_timestamp
}

// NewClosedPositionStore creates a new in-memory closed position store.
func NewClosedPositionStore() *ClosedPositionStore {
	return &ClosedPositionStore{
		data: make(map[string][]domain.ClosedPosition),
		keys: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.ClosedPositionStore = (*ClosedPositionStore)(nil)

func closedKey(c *domain.ClosedPosition) string {
	return fmt.Sprintf("%s|%s|%d", c.RunID, c.Key, c.ExitTimestamp)
}

// InsertBulk adds records atomically. Fails entire batch on any duplicate.
func (s *ClosedPositionStore) InsertBulk(_ context.Context, records []domain.ClosedPosition) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))
	for i := range records {
		if records[i].RunID == "" || records[i].Key == "" {
			return storage.Invalid("closed position without run id or key")
		}
		k := closedKey(&records[i])
		if _, exists := s.keys[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for i := range records {
		s.keys[closedKey(&records[i])] = struct{}{}
		s.data[records[i].RunID] = append(s.data[records[i].RunID], records[i])
	}
	return nil
}

// GetByRun retrieves records for a run ordered by exit time, then key.
func (s *ClosedPositionStore) GetByRun(_ context.Context, runID string) ([]domain.ClosedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]domain.ClosedPosition(nil), s.data[runID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExitTimestamp != out[j].ExitTimestamp {
			return out[i].ExitTimestamp < out[j].ExitTimestamp
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}
