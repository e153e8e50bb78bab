// Package verification replays stored runs from the event log and reports
// where the stored outputs diverge from the replay.
package verification

import (
	"context"
	"fmt"
	"math"

	"shadow-index-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name, e.g. stats.final_value or closed[3].pnl
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying one run.
type VerificationResult struct {
	RunID          string
	StrategyID     string
	Timeframe      string
	Match          bool // true if every compared field matches
	Divergences    []FieldDivergence
	StoredReturn   float64 // total return % as stored
	ReplayedReturn float64 // total return % from the replay
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalRuns     int
	MatchedRuns   int
	DivergentRuns int
	Results       []VerificationResult
}

// Verifier checks stored runs against fresh replays.
type Verifier interface {
	// VerifyRun replays one stored run and compares stats, trades and curve.
	VerifyRun(ctx context.Context, runID string) (*VerificationResult, error)

	// VerifyAll verifies every stored run.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// CompareRunStats compares the statistics of two runs.
func CompareRunStats(stored, replayed *domain.RunStats) []FieldDivergence {
	var d diff

	d.eqString("stats.run_id", stored.RunID, replayed.RunID)
	d.eqString("stats.strategy_id", stored.StrategyID, replayed.StrategyID)
	d.eqString("stats.timeframe", stored.Timeframe, replayed.Timeframe)

	d.eqFloat("stats.final_value", stored.FinalValue, replayed.FinalValue)
	d.eqFloat("stats.final_cash", stored.FinalCash, replayed.FinalCash)
	d.eqFloat("stats.total_return_pct", stored.TotalReturnPct, replayed.TotalReturnPct)
	d.eqFloat("stats.max_drawdown", stored.MaxDrawdown, replayed.MaxDrawdown)
	d.eqFloat("stats.sharpe", stored.Sharpe, replayed.Sharpe)
	d.eqFloat("stats.win_rate", stored.WinRate, replayed.WinRate)
	d.eqFloat("stats.avg_holding_days", stored.AvgHoldingDays, replayed.AvgHoldingDays)
	d.eqFloat("stats.idle_cash_ratio", stored.IdleCashRatio, replayed.IdleCashRatio)
	d.eqFloat("stats.realized_pnl", stored.RealizedPnL, replayed.RealizedPnL)
	d.eqFloat("stats.open_cost_basis", stored.OpenCostBasis, replayed.OpenCostBasis)

	d.eqInt("stats.trade_count", stored.TradeCount, replayed.TradeCount)
	d.eqInt("stats.wins", stored.Wins, replayed.Wins)
	d.eqInt("stats.open_positions", stored.OpenPositions, replayed.OpenPositions)
	d.eqInt("stats.entered", stored.Entered, replayed.Entered)

	return d.out
}

// CompareClosedPositions compares two trade logs in exit order.
func CompareClosedPositions(stored, replayed []domain.ClosedPosition) []FieldDivergence {
	var d diff
	if d.eqInt("closed.len", len(stored), len(replayed)) {
		return d.out
	}
	for i := range stored {
		s, r := &stored[i], &replayed[i]
		prefix := fmt.Sprintf("closed[%d].", i)
		d.eqString(prefix+"key", s.Key, r.Key)
		d.eqString(prefix+"reason", string(s.Reason), string(r.Reason))
		d.eqInt64(prefix+"exit_timestamp", s.ExitTimestamp, r.ExitTimestamp)
		d.eqFloat(prefix+"cost_basis", s.CostBasis, r.CostBasis)
		d.eqFloat(prefix+"exit_price", s.ExitPrice, r.ExitPrice)
		d.eqFloat(prefix+"pnl", s.PnL, r.PnL)
	}
	return d.out
}

// CompareCurves compares two capital curves point by point.
func CompareCurves(stored, replayed []domain.CurvePoint) []FieldDivergence {
	var d diff
	if d.eqInt("curve.len", len(stored), len(replayed)) {
		return d.out
	}
	for i := range stored {
		prefix := fmt.Sprintf("curve[%d].", i)
		d.eqInt64(prefix+"timestamp", stored[i].Timestamp, replayed[i].Timestamp)
		d.eqFloat(prefix+"value", stored[i].Value, replayed[i].Value)
		d.eqFloat(prefix+"cash", stored[i].Cash, replayed[i].Cash)
	}
	return d.out
}

// diff accumulates divergences. Each method reports whether it recorded one.
type diff struct {
	out []FieldDivergence
}

func (d *diff) add(field string, expected, actual interface{}) bool {
	d.out = append(d.out, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	return true
}

func (d *diff) eqString(field, a, b string) bool {
	if a == b {
		return false
	}
	return d.add(field, a, b)
}

func (d *diff) eqInt(field string, a, b int) bool {
	if a == b {
		return false
	}
	return d.add(field, a, b)
}

func (d *diff) eqInt64(field string, a, b int64) bool {
	if a == b {
		return false
	}
	return d.add(field, a, b)
}

func (d *diff) eqFloat(field string, a, b float64) bool {
	if floatEquals(a, b) {
		return false
	}
	return d.add(field, a, b)
}

// floatEquals compares with FloatTolerance. NaN equals NaN.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= FloatTolerance
}
