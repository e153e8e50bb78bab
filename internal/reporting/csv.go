package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders strategy rows as CSV string.
func RenderCSV(rows []StrategyRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("strategy_id,timeframe,final_value,realized_pnl,total_return_pct,max_drawdown_pct,sharpe,")
	sb.WriteString("win_rate_pct,idle_cash_pct,avg_holding_days,trades,open_positions,entered,skipped,forced_exits\n")

	// Rows
	for _, m := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%d,%d,%d,%d,%d\n",
			m.StrategyID,
			m.Timeframe,
			m.FinalValue.StringFixed(2),
			m.RealizedPnL.StringFixed(2),
			m.TotalReturnPct.StringFixed(2),
			m.MaxDrawdownPct.StringFixed(2),
			m.Sharpe.StringFixed(2),
			m.WinRatePct.StringFixed(2),
			m.IdleCashPct.StringFixed(2),
			m.AvgHoldingDays.StringFixed(1),
			m.Trades,
			m.OpenPositions,
			m.Entered,
			m.Skipped,
			m.ForcedExits,
		))
	}

	return sb.String()
}
