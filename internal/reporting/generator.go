package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/metrics"
	"shadow-index-lab/internal/storage"
)

// DefaultLeaderboardSize bounds each trader leaderboard.
const DefaultLeaderboardSize = 20

// Generator produces reports from run results or stored run stats.
type Generator struct {
	statsStore  storage.RunStatsStore
	traderStats map[string]map[string]metrics.TraderStats
	book        domain.TraderBook
	timeframes  []string
	topN        int
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a report generator. statsStore may be nil when only
// FromResults is used.
func NewGenerator(statsStore storage.RunStatsStore) *Generator {
	return &Generator{
		statsStore: statsStore,
		timeframes: []string{
			domain.Timeframe3M, domain.Timeframe6M, domain.Timeframe1Y, domain.TimeframeYTD, domain.TimeframeAll,
		},
		topN: DefaultLeaderboardSize,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithTimeframes sets the timeframe display order. Unlisted timeframes sort last by name.
func (g *Generator) WithTimeframes(names []string) *Generator {
	g.timeframes = names
	return g
}

// WithTraders adds trader leaderboards and the tier distribution.
func (g *Generator) WithTraders(stats map[string]map[string]metrics.TraderStats, book domain.TraderBook, topN int) *Generator {
	g.traderStats = stats
	g.book = book
	if topN > 0 {
		g.topN = topN
	}
	return g
}

// Generate builds a report from every stored run.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	if g.statsStore == nil {
		return nil, fmt.Errorf("generate report: no stats store")
	}
	all, err := g.statsStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]domain.RunStats, len(all))
	for i, s := range all {
		stats[i] = *s
	}
	return g.build(stats, nil), nil
}

// FromResults builds a report from in-memory run results.
func (g *Generator) FromResults(results []domain.RunResult) *Report {
	stats := make([]domain.RunStats, 0, len(results))
	var failures []string
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, fmt.Sprintf("%s/%s: %v", res.StrategyID, res.Timeframe, res.Err))
			continue
		}
		stats = append(stats, res.Stats)
	}
	return g.build(stats, failures)
}

func (g *Generator) build(stats []domain.RunStats, failures []string) *Report {
	rows := make([]StrategyRow, len(stats))
	strategySet := make(map[string]struct{})
	timeframeSet := make(map[string]struct{})
	capital := decimal.Zero
	for i := range stats {
		rows[i] = strategyRow(&stats[i])
		strategySet[stats[i].StrategyID] = struct{}{}
		timeframeSet[stats[i].Timeframe] = struct{}{}
		capital = money(stats[i].StartingCapital)
	}

	rank := g.timeframeRank()
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if ra, rb := rank(a.Timeframe), rank(b.Timeframe); ra != rb {
			return ra < rb
		}
		if a.Timeframe != b.Timeframe {
			return a.Timeframe < b.Timeframe
		}
		if c := a.TotalReturnPct.Cmp(b.TotalReturnPct); c != 0 {
			return c > 0
		}
		return a.StrategyID < b.StrategyID
	})

	// Rows are sorted best first within each timeframe.
	var best []StrategyRow
	for i, row := range rows {
		if i == 0 || rows[i-1].Timeframe != row.Timeframe {
			best = append(best, row)
		}
	}

	return &Report{
		GeneratedAt:     g.now(),
		StartingCapital: capital,
		StrategyCount:   len(strategySet),
		TimeframeCount:  len(timeframeSet),
		Rows:            rows,
		Best:            best,
		Leaderboards:    g.leaderboards(),
		TierCounts:      g.tierCounts(),
		Failures:        failures,
	}
}

func (g *Generator) timeframeRank() func(string) int {
	order := make(map[string]int, len(g.timeframes))
	for i, name := range g.timeframes {
		order[name] = i
	}
	return func(name string) int {
		if i, ok := order[name]; ok {
			return i
		}
		return len(order)
	}
}

func (g *Generator) leaderboards() []Leaderboard {
	if g.traderStats == nil {
		return nil
	}
	var out []Leaderboard
	for _, tf := range g.timeframes {
		ranked := metrics.RankTraders(g.traderStats, tf, g.topN)
		if len(ranked) == 0 {
			continue
		}
		board := Leaderboard{Timeframe: tf, Traders: make([]TraderRow, len(ranked))}
		for i, r := range ranked {
			p, _ := g.book.Lookup(r.TraderID)
			board.Traders[i] = TraderRow{
				Rank:         i + 1,
				TraderID:     r.TraderID,
				Username:     p.Username,
				Sharpe:       ratio(r.Stats.Sharpe),
				Trades:       r.Stats.Trades,
				WinRatePct:   percent(r.Stats.WinRate),
				AvgReturnPct: percent(r.Stats.AvgReturn),
				TotalPnL:     money(r.Stats.TotalPnL),
				InsiderRisk:  string(p.InsiderRisk),
				Cluster:      p.Cluster,
			}
		}
		out = append(out, board)
	}
	return out
}

func (g *Generator) tierCounts() []TierCount {
	if len(g.book) == 0 {
		return nil
	}
	counts := make(map[domain.Tier]int)
	for _, p := range g.book {
		counts[p.Tier]++
	}
	tiers := []domain.Tier{domain.TierS, domain.TierA, domain.TierB, domain.TierC, domain.TierD}
	out := make([]TierCount, len(tiers))
	for i, t := range tiers {
		out[i] = TierCount{Tier: string(t), Count: counts[t]}
	}
	return out
}

func strategyRow(s *domain.RunStats) StrategyRow {
	forced := 0
	for _, n := range s.ForcedExits {
		forced += n
	}
	return StrategyRow{
		StrategyID:     s.StrategyID,
		Timeframe:      s.Timeframe,
		FinalValue:     money(s.FinalValue),
		RealizedPnL:    money(s.RealizedPnL),
		TotalReturnPct: round(s.TotalReturnPct, 2),
		MaxDrawdownPct: percent(s.MaxDrawdown),
		Sharpe:         ratio(s.Sharpe),
		WinRatePct:     percent(s.WinRate),
		IdleCashPct:    percent(s.IdleCashRatio),
		AvgHoldingDays: round(s.AvgHoldingDays, 1),
		Trades:         s.TradeCount,
		OpenPositions:  s.OpenPositions,
		Entered:        s.Entered,
		Skipped:        s.SkippedTotal(),
		ForcedExits:    forced,
	}
}

// money rounds a currency amount to cents.
func money(v float64) decimal.Decimal {
	return round(v, 2)
}

// percent converts a fraction to a percentage with two decimals.
func percent(v float64) decimal.Decimal {
	return round(v, 4).Mul(decimal.NewFromInt(100)).Round(2)
}

func ratio(v float64) decimal.Decimal {
	return round(v, 2)
}

// round maps NaN and infinities to zero; decimal cannot represent them.
func round(v float64, places int32) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(places)
}
