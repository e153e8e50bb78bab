package storage

import (
	"context"

	"shadow-index-lab/internal/domain"
)

// EventStore holds the normalized PositionEvent stream.
type EventStore interface {
	// InsertNew adds events whose ID is not stored yet and returns how many were added.
	// Events already stored are left untouched.
	InsertNew(ctx context.Context, events []domain.PositionEvent) (int, error)

	// GetAll retrieves all events ordered by timestamp ASC, id ASC.
	GetAll(ctx context.Context) ([]domain.PositionEvent, error)

	// GetByTimeRange retrieves events within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]domain.PositionEvent, error)

	// GetByTrader retrieves all events for one trader.
	GetByTrader(ctx context.Context, traderID string) ([]domain.PositionEvent, error)
}

// SnapshotStore holds the latest engine snapshot per run.
// Unlike the other stores it is mutable: Save replaces the previous snapshot.
type SnapshotStore interface {
	// Save stores s, replacing any snapshot with the same run id.
	Save(ctx context.Context, s *domain.RunSnapshot) error

	// Load retrieves the snapshot for a run. Returns ErrNotFound if not exists.
	Load(ctx context.Context, runID string) (*domain.RunSnapshot, error)

	// Delete removes the snapshot for a run. Missing runs are not an error.
	Delete(ctx context.Context, runID string) error
}

// ClosedPositionStore holds the realized trade log.
type ClosedPositionStore interface {
	// InsertBulk adds records atomically. Fails entire batch on duplicate
	// (run_id, position_key, exit_timestamp).
	InsertBulk(ctx context.Context, records []domain.ClosedPosition) error

	// GetByRun retrieves records for a run ordered by exit_timestamp ASC, position_key ASC.
	GetByRun(ctx context.Context, runID string) ([]domain.ClosedPosition, error)
}

// CurveStore holds capital curves.
type CurveStore interface {
	// InsertBulk adds curve points for a run. Fails entire batch on duplicate (run_id, timestamp).
	InsertBulk(ctx context.Context, runID string, points []domain.CurvePoint) error

	// GetByRun retrieves the curve for a run ordered by timestamp ASC.
	GetByRun(ctx context.Context, runID string) ([]domain.CurvePoint, error)
}

// RunStatsStore holds run statistics. The latest write per run id wins.
type RunStatsStore interface {
	// Upsert stores stats, replacing any previous row for the run id.
	Upsert(ctx context.Context, s *domain.RunStats) error

	// GetByRun retrieves stats for a run. Returns ErrNotFound if not exists.
	GetByRun(ctx context.Context, runID string) (*domain.RunStats, error)

	// GetAll retrieves all stats ordered by strategy_id, timeframe.
	GetAll(ctx context.Context) ([]*domain.RunStats, error)
}

// QuoteStore holds daily token quotes. The latest write per (token, date) wins.
type QuoteStore interface {
	// Upsert stores points, replacing existing (token_id, date) rows.
	Upsert(ctx context.Context, points []domain.QuotePoint) error

	// GetByToken retrieves quotes for a token ordered by date ASC.
	GetByToken(ctx context.Context, tokenID string) ([]domain.QuotePoint, error)

	// GetAll retrieves all quotes ordered by token_id, date.
	GetAll(ctx context.Context) ([]domain.QuotePoint, error)
}
