package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report compares strategies across timeframes.
type Report struct {
	// Metadata
	GeneratedAt     time.Time
	StartingCapital decimal.Decimal
	StrategyCount   int
	TimeframeCount  int

	// Strategy rows sorted by timeframe order, then total return DESC, then strategy id
	Rows []StrategyRow

	// Best strategy per timeframe, in timeframe order
	Best []StrategyRow

	// Trader leaderboards per timeframe, in timeframe order
	Leaderboards []Leaderboard

	// Tier distribution of the trader book
	TierCounts []TierCount

	// Runs that aborted
	Failures []string
}

// StrategyRow represents one strategy x timeframe run. Money and percentages
// are decimals rounded to cents and hundredths.
type StrategyRow struct {
	StrategyID     string
	Timeframe      string
	FinalValue     decimal.Decimal
	RealizedPnL    decimal.Decimal
	TotalReturnPct decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	Sharpe         decimal.Decimal
	WinRatePct     decimal.Decimal
	IdleCashPct    decimal.Decimal
	AvgHoldingDays decimal.Decimal
	Trades         int
	OpenPositions  int
	Entered        int
	Skipped        int
	ForcedExits    int
}

// Leaderboard lists the top traders of one timeframe.
type Leaderboard struct {
	Timeframe string
	Traders   []TraderRow
}

// TraderRow is one leaderboard line.
type TraderRow struct {
	Rank         int
	TraderID     string
	Username     string
	Sharpe       decimal.Decimal
	Trades       int
	WinRatePct   decimal.Decimal
	AvgReturnPct decimal.Decimal
	TotalPnL     decimal.Decimal
	InsiderRisk  string
	Cluster      string
}

// TierCount is the number of traders in one tier.
type TierCount struct {
	Tier  string
	Count int
}
