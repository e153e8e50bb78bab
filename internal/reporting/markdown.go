package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Shadow Index Strategy Comparison\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Strategies: %d | Timeframes: %d | Starting capital: $%s\n\n",
		r.StrategyCount, r.TimeframeCount, r.StartingCapital.StringFixed(2)))

	// Best per timeframe
	sb.WriteString("## Best Strategy per Timeframe\n\n")
	if len(r.Best) > 0 {
		sb.WriteString("| Timeframe | Strategy | Return | Final Value | Sharpe | Max DD |\n")
		sb.WriteString("|-----------|----------|--------|-------------|--------|--------|\n")
		for _, b := range r.Best {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s%% | $%s | %s | %s%% |\n",
				b.Timeframe, b.StrategyID, b.TotalReturnPct.StringFixed(2), b.FinalValue.StringFixed(2),
				b.Sharpe.StringFixed(2), b.MaxDrawdownPct.StringFixed(2)))
		}
	} else {
		sb.WriteString("No completed runs.\n")
	}
	sb.WriteString("\n")

	// Strategy metrics
	sb.WriteString("## Strategy Metrics\n\n")
	if len(r.Rows) > 0 {
		sb.WriteString("| Timeframe | Strategy | Return | Final Value | Realized P&L | Sharpe | Max DD | Win Rate | Trades | Open | Skipped | Forced | Idle Cash | Avg Hold (d) |\n")
		sb.WriteString("|-----------|----------|--------|-------------|--------------|--------|--------|----------|--------|------|---------|--------|-----------|--------------|\n")
		for _, m := range r.Rows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s%% | $%s | $%s | %s | %s%% | %s%% | %d | %d | %d | %d | %s%% | %s |\n",
				m.Timeframe, m.StrategyID,
				m.TotalReturnPct.StringFixed(2), m.FinalValue.StringFixed(2), m.RealizedPnL.StringFixed(2),
				m.Sharpe.StringFixed(2), m.MaxDrawdownPct.StringFixed(2), m.WinRatePct.StringFixed(2),
				m.Trades, m.OpenPositions, m.Skipped, m.ForcedExits,
				m.IdleCashPct.StringFixed(2), m.AvgHoldingDays.StringFixed(1)))
		}
	} else {
		sb.WriteString("No strategy metrics available.\n")
	}
	sb.WriteString("\n")

	// Failures
	if len(r.Failures) > 0 {
		sb.WriteString("## Failed Runs\n\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("- %s\n", f))
		}
		sb.WriteString("\n")
	}

	// Trader leaderboards
	for _, board := range r.Leaderboards {
		sb.WriteString(fmt.Sprintf("## Top Traders by Sharpe (%s)\n\n", board.Timeframe))
		sb.WriteString("| # | Trader | Sharpe | Trades | Win Rate | Avg Return | P&L | Insider | Cluster |\n")
		sb.WriteString("|---|--------|--------|--------|----------|------------|-----|---------|---------|\n")
		for _, t := range board.Traders {
			name := t.Username
			if name == "" {
				name = t.TraderID
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %s%% | %s%% | $%s | %s | %s |\n",
				t.Rank, name, t.Sharpe.StringFixed(2), t.Trades, t.WinRatePct.StringFixed(2),
				t.AvgReturnPct.StringFixed(2), t.TotalPnL.StringFixed(0), dash(t.InsiderRisk), dash(t.Cluster)))
		}
		sb.WriteString("\n")
	}

	// Tiers
	if len(r.TierCounts) > 0 {
		sb.WriteString("## Tier Distribution\n\n")
		for _, tc := range r.TierCounts {
			sb.WriteString(fmt.Sprintf("- **%s**: %d traders\n", tc.Tier, tc.Count))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
