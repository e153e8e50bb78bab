package normalization

import (
	"math"
	"sort"

	"shadow-index-lab/internal/domain"
)

// AggregatedPosition is one trader's round trip in one market.
type AggregatedPosition struct {
	TraderID       string
	MarketKey      string
	MarketTitle    string
	OutcomeLabel   string
	BoughtUSDC     float64
	SoldUSDC       float64 // sells plus redemptions
	BoughtShares   float64
	SoldShares     float64 // sells only
	AvgEntryPrice  float64 // size-weighted
	AvgExitPrice   float64 // size-weighted over sells and redemptions
	FirstTimestamp int64
	LastTimestamp  int64
	TradeCount     int
	Redeemed       bool
	Closed         bool
	PnL            float64 // sold - bought
}

// Return is the per-position return used by trader statistics.
func (p *AggregatedPosition) Return() float64 {
	if p.AvgEntryPrice <= 0 {
		return 0
	}
	return (p.AvgExitPrice - p.AvgEntryPrice) / p.AvgEntryPrice
}

type aggregateAcc struct {
	pos           AggregatedPosition
	entryWeighted float64
	exitWeighted  float64
	exitShares    float64
}

// AggregatePositions groups events into per (trader, market) round trips.
// A round trip is closed if redeemed or if sold size reaches 90% of bought size.
// Results are ordered by |pnl| descending, then by trader and market.
func AggregatePositions(events []domain.PositionEvent) []AggregatedPosition {
	accs := make(map[string]*aggregateAcc)

	for i := range events {
		ev := &events[i]
		key := ev.PositionKey()
		acc, ok := accs[key]
		if !ok {
			acc = &aggregateAcc{pos: AggregatedPosition{TraderID: ev.TraderID, MarketKey: ev.MarketKey}}
			accs[key] = acc
		}
		p := &acc.pos
		if ev.MarketTitle != "" {
			p.MarketTitle = ev.MarketTitle
		}
		if ev.OutcomeLabel != "" {
			p.OutcomeLabel = ev.OutcomeLabel
		}
		if p.FirstTimestamp == 0 || ev.Timestamp < p.FirstTimestamp {
			p.FirstTimestamp = ev.Timestamp
		}
		if ev.Timestamp > p.LastTimestamp {
			p.LastTimestamp = ev.Timestamp
		}
		p.TradeCount++

		switch ev.Kind {
		case domain.EventKindEntry:
			p.BoughtUSDC += ev.TraderNotional
			p.BoughtShares += ev.Shares
			acc.entryWeighted += ev.Price * ev.Shares
		case domain.EventKindExitSell:
			p.SoldUSDC += ev.TraderNotional
			p.SoldShares += ev.Shares
			acc.exitWeighted += ev.Price * ev.Shares
			acc.exitShares += ev.Shares
		case domain.EventKindExitRedeem:
			p.SoldUSDC += ev.TraderNotional
			p.Redeemed = true
			acc.exitWeighted += ev.Price * ev.Shares
			acc.exitShares += ev.Shares
		}
	}

	out := make([]AggregatedPosition, 0, len(accs))
	for _, acc := range accs {
		p := acc.pos
		if p.BoughtShares > 0 {
			p.AvgEntryPrice = acc.entryWeighted / p.BoughtShares
		}
		if acc.exitShares > 0 {
			p.AvgExitPrice = acc.exitWeighted / acc.exitShares
		}
		p.Closed = p.Redeemed || (p.BoughtShares > 0 && p.SoldShares >= p.BoughtShares*domain.TraderExitFraction)
		p.PnL = p.SoldUSDC - p.BoughtUSDC
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].PnL), math.Abs(out[j].PnL)
		if ai != aj {
			return ai > aj
		}
		if out[i].TraderID != out[j].TraderID {
			return out[i].TraderID < out[j].TraderID
		}
		return out[i].MarketKey < out[j].MarketKey
	})
	return out
}

// ClosedOnly filters aggregated positions down to closed round trips.
func ClosedOnly(positions []AggregatedPosition) []AggregatedPosition {
	out := make([]AggregatedPosition, 0, len(positions))
	for _, p := range positions {
		if p.Closed {
			out = append(out, p)
		}
	}
	return out
}
