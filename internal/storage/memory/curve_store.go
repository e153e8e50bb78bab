package memory

import (
	"context"
	"sort"
	"sync"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// CurveStore is an in-memory implementation of storage.CurveStore.
type CurveStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.CurvePoint // run_id -> timestamp -> point
}

// NewCurveStore creates a new in-memory curve store.
func NewCurveStore() *CurveStore {
	return &CurveStore{
		data: make(map[string]map[int64]domain.CurvePoint),
	}
}

// Compile-time interface check.
var _ storage.CurveStore = (*CurveStore)(nil)

// InsertBulk adds curve points for a run. Fails entire batch on any duplicate.
func (s *CurveStore) InsertBulk(_ context.Context, runID string, points []domain.CurvePoint) error {
	if runID == "" {
		return storage.Invalid("curve points without run id")
	}
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[runID]
	batch := make(map[int64]struct{}, len(points))
	for _, p := range points {
		if _, ok := existing[p.Timestamp]; ok {
			return storage.ErrDuplicateKey
		}
		if _, ok := batch[p.Timestamp]; ok {
			return storage.ErrDuplicateKey
		}
		batch[p.Timestamp] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.CurvePoint, len(points))
		s.data[runID] = existing
	}
	for _, p := range points {
		existing[p.Timestamp] = p
	}
	return nil
}

// GetByRun retrieves the curve for a run ordered by timestamp.
func (s *CurveStore) GetByRun(_ context.Context, runID string) ([]domain.CurvePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CurvePoint
	for _, p := range s.data[runID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
