package postgres

import (
	"context"
	"fmt"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores snap, replacing any snapshot with the same run id.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.RunSnapshot) error {
	if snap == nil || snap.RunID == "" || len(snap.Data) == 0 {
		return storage.Invalid("snapshot without run id or data")
	}

	query := `
		INSERT INTO run_snapshots (run_id, strategy_id, timeframe, tick, events, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			strategy_id = EXCLUDED.strategy_id,
			timeframe = EXCLUDED.timeframe,
			tick = EXCLUDED.tick,
			events = EXCLUDED.events,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query,
		snap.RunID, snap.StrategyID, snap.Timeframe, snap.Tick, snap.Events, snap.Data, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for a run. Returns ErrNotFound if not exists.
func (s *SnapshotStore) Load(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	query := `
		SELECT run_id, strategy_id, timeframe, tick, events, data, updated_at
		FROM run_snapshots
		WHERE run_id = $1
	`
	var snap domain.RunSnapshot
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&snap.RunID, &snap.StrategyID, &snap.Timeframe, &snap.Tick, &snap.Events, &snap.Data, &snap.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load run snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot for a run.
func (s *SnapshotStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM run_snapshots WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete run snapshot: %w", err)
	}
	return nil
}
