package postgres

import (
	"context"
	"fmt"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// ClosedPositionStore implements storage.ClosedPositionStore using PostgreSQL.
type ClosedPositionStore struct {
	pool *Pool
}

// NewClosedPositionStore creates a new ClosedPositionStore.
func NewClosedPositionStore(pool *Pool) *ClosedPositionStore {
	return &ClosedPositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClosedPositionStore = (*ClosedPositionStore)(nil)

// InsertBulk adds records atomically. Fails entire batch on any duplicate.
func (s *ClosedPositionStore) InsertBulk(ctx context.Context, records []domain.ClosedPosition) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO closed_positions (
			run_id, position_key, trader_id, market_key,
			cost_basis, shares, entry_price, exit_price,
			entry_timestamp, exit_timestamp, proceeds, pnl, reason
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13
		)
	`

	for i := range records {
		c := &records[i]
		if c.RunID == "" || c.Key == "" {
			return storage.Invalid("closed position without run id or key")
		}
		_, err := tx.Exec(ctx, query,
			c.RunID, c.Key, c.TraderID, c.MarketKey,
			c.CostBasis, c.Shares, c.EntryPrice, c.ExitPrice,
			c.EntryTimestamp, c.ExitTimestamp, c.Proceeds, c.PnL, string(c.Reason),
		)
		if err != nil {
			if uniqueViolation(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert closed position in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves records for a run ordered by exit time, then key.
func (s *ClosedPositionStore) GetByRun(ctx context.Context, runID string) ([]domain.ClosedPosition, error) {
	query := `
		SELECT
			run_id, position_key, trader_id, market_key,
			cost_basis, shares, entry_price, exit_price,
			entry_timestamp, exit_timestamp, proceeds, pnl, reason
		FROM closed_positions
		WHERE run_id = $1
		ORDER BY exit_timestamp ASC, position_key ASC
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get closed positions by run: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedPosition
	for rows.Next() {
		var c domain.ClosedPosition
		var reason string
		if err := rows.Scan(
			&c.RunID, &c.Key, &c.TraderID, &c.MarketKey,
			&c.CostBasis, &c.Shares, &c.EntryPrice, &c.ExitPrice,
			&c.EntryTimestamp, &c.ExitTimestamp, &c.Proceeds, &c.PnL, &reason,
		); err != nil {
			return nil, fmt.Errorf("scan closed position row: %w", err)
		}
		c.Reason = domain.ExitReason(reason)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed position rows: %w", err)
	}
	return out, nil
}
