package domain

// ExitReason records why a position left the ledger.
type ExitReason string

// Exit reasons.
const (
	ExitReasonSell         ExitReason = "SELL"
	ExitReasonRedeem       ExitReason = "REDEEM"
	ExitReasonTimeLimit    ExitReason = "TIME_LIMIT"
	ExitReasonPriceCeiling ExitReason = "PRICE_CEILING"
	ExitReasonPriceFloor   ExitReason = "PRICE_FLOOR"
	ExitReasonTrailingStop ExitReason = "TRAILING_STOP"
)

// IsForced reports whether the reason comes from an exit rule rather than the trader.
func (r ExitReason) IsForced() bool {
	return r != ExitReasonSell && r != ExitReasonRedeem
}

// OpenPosition is a position held by one simulation run.
type OpenPosition struct {
	Key            string  `msgpack:"key"`             // trader_id|market_key
	TraderID       string  `msgpack:"trader_id"`       // origin trader
	MarketKey      string  `msgpack:"market_key"`      // condition|outcome
	TokenID        string  `msgpack:"token_id"`        // quote lookup id
	CostBasis      float64 `msgpack:"cost_basis"`      // currency committed
	Shares         float64 `msgpack:"shares"`          // cost_basis / effective entry price, 0 if price is 0
	EntryPrice     float64 `msgpack:"entry_price"`     // effective entry price (size-weighted after scale-in)
	EntryTimestamp int64   `msgpack:"entry_timestamp"` // unix seconds of first accepted entry
	PeakPrice      float64 `msgpack:"peak_price"`      // best price observed since entry, never decreases
	LastPrice      float64 `msgpack:"last_price"`      // most recent observed price
	TraderBought   float64 `msgpack:"trader_bought"`   // origin trader's shares bought while open
	TraderSold     float64 `msgpack:"trader_sold"`     // origin trader's shares sold while open
}

// TraderExitFraction is the share of the trader's bought size that must be
// sold before the trader counts as out of the position.
const TraderExitFraction = 0.9

// RecordTraderSell adds a trader sell and reports whether the trader is now out.
// Without share counts on both sides every sell counts as a full exit.
func (p *OpenPosition) RecordTraderSell(shares float64) bool {
	if shares <= 0 || p.TraderBought <= 0 {
		return true
	}
	p.TraderSold += shares
	return p.TraderSold >= p.TraderBought*TraderExitFraction
}

// ObservePrice records a price observation, raising the peak when exceeded.
func (p *OpenPosition) ObservePrice(price float64) {
	p.LastPrice = price
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
}

// ClosedPosition is an append-only record of a fully closed position.
type ClosedPosition struct {
	RunID          string     `json:"run_id,omitempty"`
	Key            string     `json:"key"`
	TraderID       string     `json:"trader_id"`
	MarketKey      string     `json:"market_key"`
	CostBasis      float64    `json:"cost_basis"`
	Shares         float64    `json:"shares"`
	EntryPrice     float64    `json:"entry_price"`
	ExitPrice      float64    `json:"exit_price"`
	EntryTimestamp int64      `json:"entry_timestamp"`
	ExitTimestamp  int64      `json:"exit_timestamp"`
	Proceeds       float64    `json:"proceeds"`
	PnL            float64    `json:"pnl"` // proceeds - cost_basis
	Reason         ExitReason `json:"reason"`
}

// HoldingSeconds returns the time the position was held.
func (c *ClosedPosition) HoldingSeconds() int64 {
	return c.ExitTimestamp - c.EntryTimestamp
}

// IsWin reports whether the close booked a positive pnl.
func (c *ClosedPosition) IsWin() bool {
	return c.PnL > 0
}
