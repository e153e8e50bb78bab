package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"shadow-index-lab/internal/domain"
)

// TradingDaysPerYear annualizes daily sharpe. Prediction markets trade every day.
const TradingDaysPerYear = 365

const secondsPerDay = 86400

// ComputeRunStats derives the performance fields of RunStats from a capital
// curve and the closed-position log. Diagnostic counters are left to the caller.
func ComputeRunStats(curve []domain.CurvePoint, closed []domain.ClosedPosition, startingCapital float64, includeIdleDays bool) domain.RunStats {
	s := domain.RunStats{
		StartingCapital: startingCapital,
		FinalValue:      startingCapital,
		FinalCash:       startingCapital,
	}
	if n := len(curve); n > 0 {
		s.FinalValue = curve[n-1].Value
		s.FinalCash = curve[n-1].Cash
	}

	s.TotalReturnPct = TotalReturnPct(s.FinalValue, startingCapital)
	s.MaxDrawdown = MaxDrawdown(curve)
	s.Sharpe = Sharpe(DailyReturns(curve, includeIdleDays))
	s.IdleCashRatio = IdleCashRatio(curve)

	s.TradeCount = len(closed)
	for i := range closed {
		if closed[i].IsWin() {
			s.Wins++
		}
		s.RealizedPnL += closed[i].PnL
	}
	s.WinRate = computeWinRate(s.Wins, s.TradeCount)
	s.AvgHoldingDays = AvgHoldingDays(closed)
	return s
}

// TotalReturnPct is (final/start - 1) x 100.
func TotalReturnPct(finalValue, startingCapital float64) float64 {
	if startingCapital == 0 {
		return 0
	}
	return (finalValue/startingCapital - 1) * 100
}

// MaxDrawdown is the largest (peak - value)/peak over the curve, as a fraction.
func MaxDrawdown(curve []domain.CurvePoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (peak - p.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// DailyReturns computes tick-to-tick returns of the curve.
// Zero returns from idle ticks are dropped unless includeIdle is set.
func DailyReturns(curve []domain.CurvePoint, includeIdle bool) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev <= 0 {
			continue
		}
		r := curve[i].Value/prev - 1
		if r == 0 && !includeIdle {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sharpe is mean/popStd x sqrt(365). Zero when fewer than two returns or no dispersion.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// IdleCashRatio is the mean of cash/value over curve samples with positive value.
func IdleCashRatio(curve []domain.CurvePoint) float64 {
	ratios := make([]float64, 0, len(curve))
	for _, p := range curve {
		if p.Value > 0 {
			ratios = append(ratios, p.Cash/p.Value)
		}
	}
	if len(ratios) == 0 {
		return 0
	}
	return stat.Mean(ratios, nil)
}

// AvgHoldingDays is the mean holding period of closed positions in days.
func AvgHoldingDays(closed []domain.ClosedPosition) float64 {
	if len(closed) == 0 {
		return 0
	}
	days := make([]float64, len(closed))
	for i := range closed {
		days[i] = float64(closed[i].HoldingSeconds()) / secondsPerDay
	}
	return stat.Mean(days, nil)
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}
