package domain

// CurvePoint is one daily sample of the capital curve.
type CurvePoint struct {
	Date      string  `json:"date" msgpack:"date"`           // YYYY-MM-DD, UTC
	Timestamp int64   `json:"timestamp" msgpack:"timestamp"` // day start, unix seconds
	Value     float64 `json:"value" msgpack:"value"`         // cash + open positions at the configured valuation
	Cash      float64 `json:"cash" msgpack:"cash"`
}

// Skip reasons for rejected entries.
const (
	SkipAlreadyOpen      = "already_open"
	SkipClosedKey        = "closed_key"
	SkipPriceCeiling     = "price_ceiling"
	SkipInsufficientCash = "insufficient_cash"
	SkipZeroSize         = "zero_size"
	SkipBeforeBaseline   = "before_baseline"
)

// RunStats is the statistics record for one strategy x timeframe run.
type RunStats struct {
	RunID           string  `json:"run_id"`
	StrategyID      string  `json:"strategy_id"`
	Timeframe       string  `json:"timeframe"`
	StartingCapital float64 `json:"starting_capital"`
	FinalValue      float64 `json:"final_value"`
	FinalCash       float64 `json:"final_cash"`
	TotalReturnPct  float64 `json:"total_return_pct"`
	MaxDrawdown     float64 `json:"max_drawdown"` // fraction of peak
	Sharpe          float64 `json:"sharpe"`
	WinRate         float64 `json:"win_rate"`
	TradeCount      int     `json:"trade_count"`
	Wins            int     `json:"wins"`
	AvgHoldingDays  float64 `json:"avg_holding_days"`
	IdleCashRatio   float64 `json:"idle_cash_ratio"`
	RealizedPnL     float64 `json:"realized_pnl"`
	OpenPositions   int     `json:"open_positions"`
	OpenCostBasis   float64 `json:"open_cost_basis"`

	// Diagnostics
	Entered         int            `json:"entered"`
	ScaledIn        int            `json:"scaled_in"`
	Skipped         map[string]int `json:"skipped,omitempty"`      // skip reason -> count
	ForcedExits     map[string]int `json:"forced_exits,omitempty"` // exit reason -> count
	MalformedEvents int            `json:"malformed_events"`
	LateEvents      int            `json:"late_events"`
	DuplicateEvents int            `json:"duplicate_events"`
	QuoteLookups    int            `json:"quote_lookups"`
	DeferredChecks  int            `json:"deferred_checks"`
	PartialSells    int            `json:"partial_sells"` // trader trims that left the position open
}

// SkippedTotal sums skips across reasons.
func (s *RunStats) SkippedTotal() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// RunResult bundles the output of one run.
type RunResult struct {
	StrategyID string           `json:"strategy_id"`
	Timeframe  string           `json:"timeframe"`
	Curve      []CurvePoint     `json:"curve"`
	Stats      RunStats         `json:"stats"`
	Closed     []ClosedPosition `json:"closed,omitempty"`
	Open       []OpenPosition   `json:"open,omitempty"`
	Err        error            `json:"-"` // set when the run aborted
}
