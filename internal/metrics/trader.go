package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/normalization"
	"shadow-index-lab/internal/sizing"
)

// TraderStats summarizes one trader's closed round trips inside a timeframe.
type TraderStats struct {
	Trades     int
	WinRate    float64 // fraction of round trips with positive return
	AvgReturn  float64 // mean per-position return
	Volatility float64 // population std of returns
	Sharpe     float64 // per-position, not annualized
	TotalPnL   float64
}

// ComputeTraderStats groups closed round trips by trader and timeframe.
// A position belongs to a window when its last activity is at or after the
// window baseline.
func ComputeTraderStats(positions []normalization.AggregatedPosition, timeframes []domain.Timeframe) map[string]map[string]TraderStats {
	byTrader := make(map[string][]normalization.AggregatedPosition)
	for _, p := range positions {
		if !p.Closed {
			continue
		}
		byTrader[p.TraderID] = append(byTrader[p.TraderID], p)
	}

	out := make(map[string]map[string]TraderStats, len(byTrader))
	for trader, ps := range byTrader {
		out[trader] = make(map[string]TraderStats, len(timeframes))
		for _, tf := range timeframes {
			var returns []float64
			pnl := 0.0
			for i := range ps {
				if !tf.Includes(ps[i].LastTimestamp) {
					continue
				}
				returns = append(returns, ps[i].Return())
				pnl += ps[i].PnL
			}
			st := positionStats(returns)
			st.TotalPnL = pnl
			out[trader][tf.Name] = st
		}
	}
	return out
}

// positionStats uses the population std. With no dispersion a positive
// mean scores sharpe 1.
func positionStats(returns []float64) TraderStats {
	n := len(returns)
	if n == 0 {
		return TraderStats{}
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	mean, std := stat.PopMeanStdDev(returns, nil)
	if n == 1 {
		std = 0
	}

	sharpe := 0.0
	switch {
	case std > 0:
		sharpe = mean / std
	case mean > 0:
		sharpe = 1.0
	}
	return TraderStats{
		Trades:     n,
		WinRate:    float64(wins) / float64(n),
		AvgReturn:  mean,
		Volatility: std,
		Sharpe:     sharpe,
	}
}

// BuildTraderBook merges computed stats into profiles: blended sharpe and the tier it maps to.
// Profiles in base keep their insider risk, cluster and username.
func BuildTraderBook(base domain.TraderBook, stats map[string]map[string]TraderStats) domain.TraderBook {
	book := make(domain.TraderBook, len(base)+len(stats))
	for id, p := range base {
		book[id] = p
	}

	traders := make([]string, 0, len(stats))
	for id := range stats {
		traders = append(traders, id)
	}
	sort.Strings(traders)

	for _, id := range traders {
		tf := stats[id]
		blended := sizing.BlendedSharpe(tf[domain.Timeframe3M].Sharpe, tf[domain.Timeframe6M].Sharpe, tf[domain.Timeframe1Y].Sharpe)
		p, ok := book.Lookup(id)
		if !ok {
			p = domain.TraderProfile{TraderID: id}
		}
		p.Sharpe = blended
		p.Tier = domain.TierForSharpe(blended)
		book[p.TraderID] = p
	}
	return book
}

// RankedTrader is one row of a timeframe leaderboard.
type RankedTrader struct {
	TraderID string
	Stats    TraderStats
}

// RankTraders orders traders with trades in a timeframe by sharpe, best first.
func RankTraders(stats map[string]map[string]TraderStats, timeframe string, limit int) []RankedTrader {
	var out []RankedTrader
	for id, tf := range stats {
		if s := tf[timeframe]; s.Trades > 0 {
			out = append(out, RankedTrader{TraderID: id, Stats: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stats.Sharpe != out[j].Stats.Sharpe {
			return out[i].Stats.Sharpe > out[j].Stats.Sharpe
		}
		return out[i].TraderID < out[j].TraderID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
