package domain

// RunSnapshot is a persisted engine state for one run.
type RunSnapshot struct {
	RunID      string `json:"run_id"`
	StrategyID string `json:"strategy_id"`
	Timeframe  string `json:"timeframe"`
	Tick       int64  `json:"tick"`   // day start of the last evaluated tick
	Events     int    `json:"events"` // processed event ids
	Data       []byte `json:"-"`
	UpdatedAt  int64  `json:"updated_at"`
}

// QuotePoint is one stored daily quote for an outcome token.
type QuotePoint struct {
	TokenID string  `json:"token_id"`
	Date    string  `json:"date"` // YYYY-MM-DD, UTC
	Price   float64 `json:"price"`
}
