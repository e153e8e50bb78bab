package strategy

import (
	"errors"
	"fmt"

	"shadow-index-lab/internal/domain"
)

// Factory errors
var (
	ErrInvalidTimeLimit  = errors.New("time limit must be positive days")
	ErrInvalidPriceLevel = errors.New("price level must be in [0,1]")
	ErrInvalidTrailPct   = errors.New("trailing stop pct must be in (0,1]")
	ErrFloorAboveCeiling = errors.New("price floor must be below price ceiling")
)

const secondsPerDay = 86400

// Decision is a rule's verdict on one position.
type Decision struct {
	Close  bool
	Price  float64 // exit price when closing at a quote
	AtCost bool    // close as a wash at cost basis
}

// Rule force-closes open positions independent of the trader.
type Rule interface {
	// Reason returns the exit reason recorded when the rule fires.
	Reason() domain.ExitReason

	// NeedsQuote reports whether Check requires a market quote.
	NeedsQuote() bool

	// Check evaluates pos at tick time now. quote is valid only when hasQuote.
	Check(pos *domain.OpenPosition, now int64, quote float64, hasQuote bool) Decision
}

// TimeLimit closes positions held for at least Days.
// Exits at the quote when one is available, otherwise at cost.
type TimeLimit struct {
	Days int
}

func (r TimeLimit) Reason() domain.ExitReason { return domain.ExitReasonTimeLimit }
func (r TimeLimit) NeedsQuote() bool          { return false }

// Expired reports whether pos has reached the limit at now.
func (r TimeLimit) Expired(pos *domain.OpenPosition, now int64) bool {
	return now-pos.EntryTimestamp >= int64(r.Days)*secondsPerDay
}

func (r TimeLimit) Check(pos *domain.OpenPosition, now int64, quote float64, hasQuote bool) Decision {
	if !r.Expired(pos, now) {
		return Decision{}
	}
	if hasQuote {
		return Decision{Close: true, Price: quote}
	}
	return Decision{Close: true, AtCost: true}
}

// PriceCeiling takes profit once the quote reaches Level.
type PriceCeiling struct {
	Level float64
}

func (r PriceCeiling) Reason() domain.ExitReason { return domain.ExitReasonPriceCeiling }
func (r PriceCeiling) NeedsQuote() bool          { return true }

func (r PriceCeiling) Check(_ *domain.OpenPosition, _ int64, quote float64, hasQuote bool) Decision {
	if hasQuote && quote >= r.Level {
		return Decision{Close: true, Price: quote}
	}
	return Decision{}
}

// PriceFloor cuts losses once the quote falls to Level.
type PriceFloor struct {
	Level float64
}

func (r PriceFloor) Reason() domain.ExitReason { return domain.ExitReasonPriceFloor }
func (r PriceFloor) NeedsQuote() bool          { return true }

func (r PriceFloor) Check(_ *domain.OpenPosition, _ int64, quote float64, hasQuote bool) Decision {
	if hasQuote && quote <= r.Level {
		return Decision{Close: true, Price: quote}
	}
	return Decision{}
}

// TrailingStop closes once the quote retreats Pct from the peak observed since entry.
// The caller folds the quote into the peak before Check.
type TrailingStop struct {
	Pct float64
}

func (r TrailingStop) Reason() domain.ExitReason { return domain.ExitReasonTrailingStop }
func (r TrailingStop) NeedsQuote() bool          { return true }

func (r TrailingStop) Check(pos *domain.OpenPosition, _ int64, quote float64, hasQuote bool) Decision {
	if !hasQuote || pos.PeakPrice <= 0 {
		return Decision{}
	}
	if (pos.PeakPrice-quote)/pos.PeakPrice >= r.Pct {
		return Decision{Close: true, Price: quote}
	}
	return Decision{}
}

// FromConfig builds rules in evaluation order: time limit, ceiling, floor, trailing stop.
// Returns clear errors for invalid params.
func FromConfig(cfg domain.ExitConfig) ([]Rule, error) {
	var rules []Rule

	if cfg.TimeLimitDays != nil {
		if *cfg.TimeLimitDays <= 0 {
			return nil, ErrInvalidTimeLimit
		}
		rules = append(rules, TimeLimit{Days: *cfg.TimeLimitDays})
	}
	if cfg.PriceCeiling != nil {
		if !unit(*cfg.PriceCeiling) {
			return nil, fmt.Errorf("ceiling: %w", ErrInvalidPriceLevel)
		}
		rules = append(rules, PriceCeiling{Level: *cfg.PriceCeiling})
	}
	if cfg.PriceFloor != nil {
		if !unit(*cfg.PriceFloor) {
			return nil, fmt.Errorf("floor: %w", ErrInvalidPriceLevel)
		}
		if cfg.PriceCeiling != nil && *cfg.PriceFloor >= *cfg.PriceCeiling {
			return nil, ErrFloorAboveCeiling
		}
		rules = append(rules, PriceFloor{Level: *cfg.PriceFloor})
	}
	if cfg.TrailingStopPct != nil {
		pct := *cfg.TrailingStopPct
		if pct <= 0 || pct > 1 {
			return nil, ErrInvalidTrailPct
		}
		rules = append(rules, TrailingStop{Pct: pct})
	}

	return rules, nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
