package clickhouse

import (
	"context"
	"fmt"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// CurveStore implements storage.CurveStore using ClickHouse.
type CurveStore struct {
	conn *Conn
}

// NewCurveStore creates a new CurveStore.
func NewCurveStore(conn *Conn) *CurveStore {
	return &CurveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CurveStore = (*CurveStore)(nil)

// InsertBulk adds curve points for a run. Fails entire batch on any duplicate.
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *CurveStore) InsertBulk(ctx context.Context, runID string, points []domain.CurvePoint) error {
	if runID == "" {
		return storage.Invalid("curve points without run id")
	}
	if len(points) == 0 {
		return nil
	}

	existing, err := s.timestamps(ctx, runID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for _, p := range points {
		if _, ok := existing[p.Timestamp]; ok {
			return storage.ErrDuplicateKey
		}
		existing[p.Timestamp] = struct{}{}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO capital_curves (run_id, timestamp, date, value, cash)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(runID, p.Timestamp, p.Date, p.Value, p.Cash); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRun retrieves the curve for a run ordered by timestamp.
func (s *CurveStore) GetByRun(ctx context.Context, runID string) ([]domain.CurvePoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp, date, value, cash
		FROM capital_curves
		WHERE run_id = ?
		ORDER BY timestamp ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query capital curve: %w", err)
	}
	defer rows.Close()

	var out []domain.CurvePoint
	for rows.Next() {
		var p domain.CurvePoint
		if err := rows.Scan(&p.Timestamp, &p.Date, &p.Value, &p.Cash); err != nil {
			return nil, fmt.Errorf("scan capital curve row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capital curve rows: %w", err)
	}
	return out, nil
}

func (s *CurveStore) timestamps(ctx context.Context, runID string) (map[int64]struct{}, error) {
	rows, err := s.conn.Query(ctx, `SELECT timestamp FROM capital_curves WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out[ts] = struct{}{}
	}
	return out, rows.Err()
}
