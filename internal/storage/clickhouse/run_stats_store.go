package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// RunStatsStore implements storage.RunStatsStore using ClickHouse.
// Rows live in a ReplacingMergeTree and are read with FINAL.
type RunStatsStore struct {
	conn *Conn
}

// NewRunStatsStore creates a new RunStatsStore.
func NewRunStatsStore(conn *Conn) *RunStatsStore {
	return &RunStatsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RunStatsStore = (*RunStatsStore)(nil)

const runStatsColumns = `
	run_id, strategy_id, timeframe,
	starting_capital, final_value, final_cash, total_return_pct,
	max_drawdown, sharpe, win_rate, trade_count, wins,
	avg_holding_days, idle_cash_ratio, realized_pnl, open_positions, open_cost_basis,
	entered, scaled_in, skipped, forced_exits,
	malformed_events, late_events, duplicate_events, quote_lookups, deferred_checks, partial_sells`

// Upsert stores stats, replacing any previous row for the run id.
func (s *RunStatsStore) Upsert(ctx context.Context, st *domain.RunStats) error {
	if st == nil || st.RunID == "" {
		return storage.Invalid("run stats without run id")
	}

	err := s.conn.Exec(ctx, `INSERT INTO run_stats (`+runStatsColumns+`) VALUES (
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?, ?
		)`,
		st.RunID, st.StrategyID, st.Timeframe,
		st.StartingCapital, st.FinalValue, st.FinalCash, st.TotalReturnPct,
		st.MaxDrawdown, st.Sharpe, st.WinRate, int64(st.TradeCount), int64(st.Wins),
		st.AvgHoldingDays, st.IdleCashRatio, st.RealizedPnL, int64(st.OpenPositions), st.OpenCostBasis,
		int64(st.Entered), int64(st.ScaledIn), toInt64Map(st.Skipped), toInt64Map(st.ForcedExits),
		int64(st.MalformedEvents), int64(st.LateEvents), int64(st.DuplicateEvents), int64(st.QuoteLookups), int64(st.DeferredChecks),
		int64(st.PartialSells),
	)
	if err != nil {
		return fmt.Errorf("insert run stats: %w", err)
	}
	return nil
}

// GetByRun retrieves stats for a run. Returns ErrNotFound if not exists.
func (s *RunStatsStore) GetByRun(ctx context.Context, runID string) (*domain.RunStats, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+runStatsColumns+` FROM run_stats FINAL WHERE run_id = ? LIMIT 1`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate run stats rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	return scanRunStats(rows)
}

// GetAll retrieves all stats ordered by strategy, then timeframe.
func (s *RunStatsStore) GetAll(ctx context.Context) ([]*domain.RunStats, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+runStatsColumns+` FROM run_stats FINAL ORDER BY strategy_id, timeframe, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()

	var out []*domain.RunStats
	for rows.Next() {
		st, err := scanRunStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run stats rows: %w", err)
	}
	return out, nil
}

func scanRunStats(rows driver.Rows) (*domain.RunStats, error) {
	var (
		st                                                 domain.RunStats
		tradeCount, wins, openPositions, entered, scaledIn int64
		malformed, late, duplicates, lookups, deferred     int64
		partialSells                                       int64
		skipped, forced                                    map[string]int64
	)
	err := rows.Scan(
		&st.RunID, &st.StrategyID, &st.Timeframe,
		&st.StartingCapital, &st.FinalValue, &st.FinalCash, &st.TotalReturnPct,
		&st.MaxDrawdown, &st.Sharpe, &st.WinRate, &tradeCount, &wins,
		&st.AvgHoldingDays, &st.IdleCashRatio, &st.RealizedPnL, &openPositions, &st.OpenCostBasis,
		&entered, &scaledIn, &skipped, &forced,
		&malformed, &late, &duplicates, &lookups, &deferred,
		&partialSells,
	)
	if err != nil {
		return nil, fmt.Errorf("scan run stats row: %w", err)
	}

	st.TradeCount = int(tradeCount)
	st.Wins = int(wins)
	st.OpenPositions = int(openPositions)
	st.Entered = int(entered)
	st.ScaledIn = int(scaledIn)
	st.Skipped = fromInt64Map(skipped)
	st.ForcedExits = fromInt64Map(forced)
	st.MalformedEvents = int(malformed)
	st.LateEvents = int(late)
	st.DuplicateEvents = int(duplicates)
	st.QuoteLookups = int(lookups)
	st.DeferredChecks = int(deferred)
	st.PartialSells = int(partialSells)
	return &st, nil
}

func toInt64Map(m map[string]int) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = int64(v)
	}
	return out
}

func fromInt64Map(m map[string]int64) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = int(v)
	}
	return out
}
