package domain

import "math"

// EventKind classifies a market action.
type EventKind string

// Event kinds.
const (
	EventKindEntry      EventKind = "ENTRY"
	EventKindExitSell   EventKind = "EXIT_SELL"
	EventKindExitRedeem EventKind = "EXIT_REDEEM"
)

// IsExit reports whether the kind closes exposure.
func (k EventKind) IsExit() bool {
	return k == EventKindExitSell || k == EventKindExitRedeem
}

// PositionEvent is an immutable record of one market action by one trader.
type PositionEvent struct {
	ID             string    `json:"id" msgpack:"id"`                       // identity hash of (trader_id, tx_hash)
	Kind           EventKind `json:"kind" msgpack:"kind"`                   // ENTRY | EXIT_SELL | EXIT_REDEEM
	TraderID       string    `json:"trader_id" msgpack:"trader_id"`         // acting wallet, lower-case
	MarketKey      string    `json:"market_key" msgpack:"market_key"`       // condition|outcome
	TokenID        string    `json:"token_id" msgpack:"token_id"`           // outcome token used for quote lookups
	Timestamp      int64     `json:"timestamp" msgpack:"timestamp"`         // unix seconds
	Price          float64   `json:"price" msgpack:"price"`                 // fill price in [0,1]
	TraderNotional float64   `json:"trader_notional" msgpack:"notional"`    // USDC the origin trader transacted
	Shares         float64   `json:"shares" msgpack:"shares"`               // origin trader share count
	MarketTitle    string    `json:"market_title" msgpack:"market_title"`   // descriptive only
	OutcomeLabel   string    `json:"outcome_label" msgpack:"outcome_label"` // descriptive only
	TxHash         string    `json:"tx_hash,omitempty" msgpack:"tx_hash"`   // on-chain transaction hash
}

// Validate checks the fields the engine depends on.
// Returns ErrMalformedEvent wrapped with the failing field.
func (e *PositionEvent) Validate() error {
	if e == nil {
		return ErrMalformedEvent
	}
	switch e.Kind {
	case EventKindEntry, EventKindExitSell, EventKindExitRedeem:
	default:
		return malformed("kind")
	}
	if e.TraderID == "" {
		return malformed("trader_id")
	}
	if e.MarketKey == "" {
		return malformed("market_key")
	}
	if e.Timestamp <= 0 {
		return malformed("timestamp")
	}
	if math.IsNaN(e.Price) || math.IsInf(e.Price, 0) || e.Price < 0 {
		return malformed("price")
	}
	// Redemption prices are clamped later; trades must be a valid share price.
	if e.Kind != EventKindExitRedeem && e.Price > 1 {
		return malformed("price")
	}
	return nil
}

// PositionKey returns the ledger key for (trader, market).
func (e *PositionEvent) PositionKey() string {
	return PositionKey(e.TraderID, e.MarketKey)
}

// PositionKey joins trader and market into the ledger key.
func PositionKey(traderID, marketKey string) string {
	return traderID + "|" + marketKey
}

// ClampUnit clamps a price into [0,1].
func ClampUnit(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
