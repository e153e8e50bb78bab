package ledger

import (
	"errors"
	"sort"

	"shadow-index-lab/internal/domain"
)

// Ledger errors
var (
	ErrPositionOpen     = errors.New("position already open")
	ErrPositionNotFound = errors.New("position not found")
)

// Ledger tracks the cash and open positions of one simulation run.
// It is owned by a single run and is not safe for concurrent use.
type Ledger struct {
	cash        float64
	realizedPnL float64
	tradeCount  int
	winCount    int

	open       map[string]*domain.OpenPosition
	closedKeys map[string]struct{}
	closedLog  []domain.ClosedPosition
}

// New creates a ledger holding startingCash.
func New(startingCash float64) *Ledger {
	return &Ledger{
		cash:       startingCash,
		open:       make(map[string]*domain.OpenPosition),
		closedKeys: make(map[string]struct{}),
	}
}

// Cash returns available cash.
func (l *Ledger) Cash() float64 { return l.cash }

// RealizedPnL returns the sum of pnl over closed positions.
func (l *Ledger) RealizedPnL() float64 { return l.realizedPnL }

// TradeCount returns the number of closed positions.
func (l *Ledger) TradeCount() int { return l.tradeCount }

// WinCount returns the number of closed positions with positive pnl.
func (l *Ledger) WinCount() int { return l.winCount }

// Len returns the number of open positions.
func (l *Ledger) Len() int { return len(l.open) }

// Get returns the open position for key.
func (l *Ledger) Get(key string) (*domain.OpenPosition, bool) {
	p, ok := l.open[key]
	return p, ok
}

// WasClosed reports whether key was closed earlier in the run.
func (l *Ledger) WasClosed(key string) bool {
	_, ok := l.closedKeys[key]
	return ok
}

// Keys returns open position keys in ascending order.
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.open))
	for k := range l.open {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Positions returns copies of the open positions ordered by key.
func (l *Ledger) Positions() []domain.OpenPosition {
	keys := l.Keys()
	out := make([]domain.OpenPosition, 0, len(keys))
	for _, k := range keys {
		out = append(out, *l.open[k])
	}
	return out
}

// ClosedLog returns a copy of the closed-position records in close order.
func (l *Ledger) ClosedLog() []domain.ClosedPosition {
	out := make([]domain.ClosedPosition, len(l.closedLog))
	copy(out, l.closedLog)
	return out
}

// OpenCostBasis sums cost basis over open positions.
func (l *Ledger) OpenCostBasis() float64 {
	// Summed in key order so the float result is reproducible.
	total := 0.0
	for _, k := range l.Keys() {
		total += l.open[k].CostBasis
	}
	return total
}

// PortfolioValue is cash plus open positions marked per valuation.
// last-price marks at LastPrice when one was observed, else at cost.
func (l *Ledger) PortfolioValue(v domain.Valuation) float64 {
	total := l.cash
	for _, k := range l.Keys() {
		p := l.open[k]
		if v == domain.ValuationLastPrice && p.LastPrice > 0 && p.Shares > 0 {
			total += p.Shares * p.LastPrice
			continue
		}
		total += p.CostBasis
	}
	return total
}

// Open debits amount and records a new position at price.
// Shares are amount/price, or 0 when price is 0.
func (l *Ledger) Open(ev *domain.PositionEvent, amount, price float64) (*domain.OpenPosition, error) {
	key := ev.PositionKey()
	if _, ok := l.open[key]; ok {
		return nil, ErrPositionOpen
	}
	p := &domain.OpenPosition{
		Key:            key,
		TraderID:       ev.TraderID,
		MarketKey:      ev.MarketKey,
		TokenID:        ev.TokenID,
		CostBasis:      amount,
		Shares:         sharesFor(amount, price),
		EntryPrice:     price,
		EntryTimestamp: ev.Timestamp,
		PeakPrice:      price,
		LastPrice:      price,
		TraderBought:   ev.Shares,
	}
	l.cash -= amount
	l.open[key] = p
	return p, nil
}

// ScaleIn adds amount to an open position at price.
// Entry price becomes the share-weighted average; entry timestamp is kept.
func (l *Ledger) ScaleIn(key string, amount, price float64) (*domain.OpenPosition, error) {
	p, ok := l.open[key]
	if !ok {
		return nil, ErrPositionNotFound
	}
	added := sharesFor(amount, price)
	p.CostBasis += amount
	p.Shares += added
	if p.Shares > 0 {
		p.EntryPrice = p.CostBasis / p.Shares
	}
	p.ObservePrice(price)
	l.cash -= amount
	return p, nil
}

// Close removes the position at key, crediting shares x exitPrice.
// Returns false when no position is open for key.
func (l *Ledger) Close(key string, exitPrice float64, ts int64, reason domain.ExitReason) (domain.ClosedPosition, bool) {
	p, ok := l.open[key]
	if !ok {
		return domain.ClosedPosition{}, false
	}
	return l.settle(p, p.Shares*exitPrice, exitPrice, ts, reason), true
}

// CloseAtCost removes the position at key returning exactly its cost basis.
func (l *Ledger) CloseAtCost(key string, ts int64, reason domain.ExitReason) (domain.ClosedPosition, bool) {
	p, ok := l.open[key]
	if !ok {
		return domain.ClosedPosition{}, false
	}
	return l.settle(p, p.CostBasis, p.EntryPrice, ts, reason), true
}

func (l *Ledger) settle(p *domain.OpenPosition, proceeds, exitPrice float64, ts int64, reason domain.ExitReason) domain.ClosedPosition {
	pnl := proceeds - p.CostBasis
	l.cash += proceeds
	l.realizedPnL += pnl
	l.tradeCount++
	if pnl > 0 {
		l.winCount++
	}
	delete(l.open, p.Key)
	l.closedKeys[p.Key] = struct{}{}

	rec := domain.ClosedPosition{
		Key:            p.Key,
		TraderID:       p.TraderID,
		MarketKey:      p.MarketKey,
		CostBasis:      p.CostBasis,
		Shares:         p.Shares,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      exitPrice,
		EntryTimestamp: p.EntryTimestamp,
		ExitTimestamp:  ts,
		Proceeds:       proceeds,
		PnL:            pnl,
		Reason:         reason,
	}
	l.closedLog = append(l.closedLog, rec)
	return rec
}

func sharesFor(amount, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return amount / price
}
