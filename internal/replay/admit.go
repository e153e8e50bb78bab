package replay

import (
	"context"
	"math"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/quotes"
	"shadow-index-lab/internal/sizing"
)

// AdmissionResult is the outcome of one entry event.
type AdmissionResult struct {
	Admitted   bool
	ScaledIn   bool
	SkipReason string  // set when not admitted
	Amount     float64 // committed cash
	Price      float64 // effective entry price
}

// admit decides whether an entry event opens or extends a shadow position.
//
// Checks run in order: open key, closed key, stale price, price ceiling,
// sizing, then the liquidity and cash caps. The first failing check records
// a skip reason.
func (e *Engine) admit(ctx context.Context, ev *domain.PositionEvent) AdmissionResult {
	key := ev.PositionKey()
	pos, isOpen := e.ledger.Get(key)
	if isOpen {
		// The trader's exposure grows whether or not the follower adds to it.
		pos.TraderBought += ev.Shares
	}
	if isOpen && e.cfg.EntryRule == domain.EntryRuleFirstBuy {
		pos.ObservePrice(ev.Price)
		return e.skip(domain.SkipAlreadyOpen)
	}
	if !isOpen && e.ledger.WasClosed(key) && !e.cfg.AllowReentry {
		return e.skip(domain.SkipClosedKey)
	}

	price, capToTrader := e.entryPrice(ctx, ev)
	if price >= e.cfg.MaxEntryPrice {
		return e.skip(domain.SkipPriceCeiling)
	}

	amount, next := e.policy.Size(sizing.Input{
		Event:          ev,
		Cash:           e.ledger.Cash(),
		PortfolioValue: e.ledger.Cash() + e.ledger.OpenCostBasis(),
	}, e.policyState)
	e.policyState = next

	if capToTrader && ev.TraderNotional > 0 {
		amount = math.Min(amount, ev.TraderNotional)
	}
	cash := e.ledger.Cash()
	amount = math.Min(amount, cash)
	if math.IsNaN(amount) || amount <= minBet {
		if cash <= minBet {
			return e.skip(domain.SkipInsufficientCash)
		}
		return e.skip(domain.SkipZeroSize)
	}

	res := AdmissionResult{Admitted: true, ScaledIn: isOpen, Amount: amount, Price: price}
	if isOpen {
		if _, err := e.ledger.ScaleIn(key, amount, price); err != nil {
			return AdmissionResult{}
		}
		e.diag.ScaledIn++
		return res
	}
	if _, err := e.ledger.Open(ev, amount, price); err != nil {
		return AdmissionResult{}
	}
	e.diag.Entered++
	return res
}

// entryPrice returns the price the engine may enter at and whether the
// trader's notional caps the bet.
//
// When the day's quote differs from the event price by more than the stale
// threshold, the follower could not have filled at the trader's price, so the
// quote is used and the bet is capped at what the trader moved.
func (e *Engine) entryPrice(ctx context.Context, ev *domain.PositionEvent) (float64, bool) {
	price := ev.Price
	capToTrader := e.cfg.CapToTraderNotional

	if ev.TokenID == "" {
		return price, capToTrader
	}
	q, ok := e.quotes.PriceAt(ctx, ev.TokenID, quotes.DateOf(ev.Timestamp))
	e.diag.QuoteLookups++
	if !ok {
		return price, capToTrader
	}
	q = domain.ClampUnit(q)
	if isStale(price, q, e.cfg.StalePriceThreshold) {
		return q, true
	}
	return price, capToTrader
}

func isStale(eventPrice, quote, threshold float64) bool {
	if eventPrice <= 0 {
		return quote > 0
	}
	return math.Abs(quote-eventPrice)/eventPrice > threshold
}

func (e *Engine) skip(reason string) AdmissionResult {
	e.diag.Skipped[reason]++
	return AdmissionResult{SkipReason: reason}
}
