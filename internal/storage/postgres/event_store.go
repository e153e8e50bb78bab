package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `
	event_id, kind, trader_id, market_key, token_id, ts,
	price, trader_notional, shares, market_title, outcome_label, tx_hash`

// InsertNew adds events whose ID is not stored yet, in one transaction.
func (s *EventStore) InsertNew(ctx context.Context, events []domain.PositionEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	for i := range events {
		if events[i].ID == "" {
			return 0, storage.Invalid("event without id")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO position_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING`

	batch := &pgx.Batch{}
	for i := range events {
		ev := &events[i]
		batch.Queue(query,
			ev.ID, string(ev.Kind), ev.TraderID, ev.MarketKey, ev.TokenID, ev.Timestamp,
			ev.Price, ev.TraderNotional, ev.Shares, ev.MarketTitle, ev.OutcomeLabel, ev.TxHash,
		)
	}

	results := tx.SendBatch(ctx, batch)
	added := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert position event: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return added, nil
}

// GetAll retrieves all events in replay order.
func (s *EventStore) GetAll(ctx context.Context) ([]domain.PositionEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM position_events ORDER BY ts ASC, event_id ASC`
	return s.query(ctx, "get all position events", query)
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]domain.PositionEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM position_events
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC, event_id ASC`
	return s.query(ctx, "get position events by time range", query, start, end)
}

// GetByTrader retrieves all events for one trader.
func (s *EventStore) GetByTrader(ctx context.Context, traderID string) ([]domain.PositionEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM position_events
		WHERE trader_id = $1
		ORDER BY ts ASC, event_id ASC`
	return s.query(ctx, "get position events by trader", query, traderID)
}

func (s *EventStore) query(ctx context.Context, op, query string, args ...any) ([]domain.PositionEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var events []domain.PositionEvent
	for rows.Next() {
		var ev domain.PositionEvent
		var kind string
		if err := rows.Scan(
			&ev.ID, &kind, &ev.TraderID, &ev.MarketKey, &ev.TokenID, &ev.Timestamp,
			&ev.Price, &ev.TraderNotional, &ev.Shares, &ev.MarketTitle, &ev.OutcomeLabel, &ev.TxHash,
		); err != nil {
			return nil, fmt.Errorf("scan position event row: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position event rows: %w", err)
	}
	return events, nil
}
