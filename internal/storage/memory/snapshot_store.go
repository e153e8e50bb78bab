package memory

import (
	"context"
	"sync"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunSnapshot // keyed by run_id
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]*domain.RunSnapshot),
	}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores s, replacing any snapshot with the same run id.
func (s *SnapshotStore) Save(_ context.Context, snap *domain.RunSnapshot) error {
	if snap == nil || snap.RunID == "" || len(snap.Data) == 0 {
		return storage.Invalid("snapshot without run id or data")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[snap.RunID] = cloneSnapshot(snap)
	return nil
}

// Load retrieves the snapshot for a run. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Load(_ context.Context, runID string) (*domain.RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

// Delete removes the snapshot for a run.
func (s *SnapshotStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, runID)
	return nil
}

func cloneSnapshot(snap *domain.RunSnapshot) *domain.RunSnapshot {
	c := *snap
	c.Data = append([]byte(nil), snap.Data...)
	return &c
}
