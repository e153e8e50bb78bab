package domain

import "math"

// SizingMode selects how a bet amount is computed.
type SizingMode string

// Sizing modes.
const (
	SizingFixed        SizingMode = "fixed"
	SizingProportional SizingMode = "proportional"
	SizingTiered       SizingMode = "tiered"
	SizingCompounding  SizingMode = "compounding"
	SizingScored       SizingMode = "scored"
)

// EntryRule controls admission when a position is already open.
type EntryRule string

// Entry rules.
const (
	EntryRuleFirstBuy EntryRule = "first-buy"
	EntryRuleEveryBuy EntryRule = "every-buy"
)

// Valuation controls how open positions are marked in the capital curve.
type Valuation string

// Valuations.
const (
	ValuationAtCost    Valuation = "at-cost"
	ValuationLastPrice Valuation = "last-price"
)

// Defaults applied by WithDefaults.
const (
	DefaultMaxEntryPrice          = 0.90
	DefaultStalePriceThreshold    = 0.10
	DefaultMaxQuoteLookupsPerTick = 50
	DefaultScoredMaxFraction      = 0.10
)

// SizingConfig parameterizes the sizing policy.
type SizingConfig struct {
	Mode    SizingMode         `mapstructure:"mode" json:"mode"`
	Amount  float64            `mapstructure:"amount" json:"amount,omitempty"`   // fixed bet, compounding base, scored base
	Percent float64            `mapstructure:"percent" json:"percent,omitempty"` // proportional fraction in (0,1]
	Tiers   map[string]float64 `mapstructure:"tiers" json:"tiers,omitempty"`     // tier letter -> amount

	// Compounding parameters
	StepMultiplier float64 `mapstructure:"step_multiplier" json:"step_multiplier,omitempty"` // bet multiplier per crossed threshold
	FirstThreshold float64 `mapstructure:"first_threshold" json:"first_threshold,omitempty"` // portfolio value of the first step

	// Scored parameters
	MaxFraction float64 `mapstructure:"max_fraction" json:"max_fraction,omitempty"` // cap as a fraction of portfolio value
}

// ExitConfig holds the optional exit rules. Nil disables a rule.
type ExitConfig struct {
	TimeLimitDays   *int     `mapstructure:"time_limit_days" json:"time_limit_days,omitempty"`
	PriceCeiling    *float64 `mapstructure:"price_ceiling" json:"price_ceiling,omitempty"`
	PriceFloor      *float64 `mapstructure:"price_floor" json:"price_floor,omitempty"`
	TrailingStopPct *float64 `mapstructure:"trailing_stop_pct" json:"trailing_stop_pct,omitempty"`
}

// Empty reports whether no exit rule is configured.
func (e ExitConfig) Empty() bool {
	return e.TimeLimitDays == nil && e.PriceCeiling == nil && e.PriceFloor == nil && e.TrailingStopPct == nil
}

// StrategyConfig is an immutable description of one sizing and exit policy.
type StrategyConfig struct {
	ID                     string       `mapstructure:"id" json:"id"`
	Sizing                 SizingConfig `mapstructure:"sizing" json:"sizing"`
	EntryRule              EntryRule    `mapstructure:"entry_rule" json:"entry_rule"`
	AllowReentry           bool         `mapstructure:"allow_reentry" json:"allow_reentry"`                   // reopen keys closed earlier in the run
	MaxEntryPrice          float64      `mapstructure:"max_entry_price" json:"max_entry_price"`               // entries at or above are rejected
	CapToTraderNotional    bool         `mapstructure:"cap_to_trader_notional" json:"cap_to_trader_notional"` // always cap at the origin notional
	StalePriceThreshold    float64      `mapstructure:"stale_price_threshold" json:"stale_price_threshold"`   // relative fill vs quote gap
	Exit                   ExitConfig   `mapstructure:"exit" json:"exit"`
	MaxQuoteLookupsPerTick int          `mapstructure:"max_quote_lookups_per_tick" json:"max_quote_lookups_per_tick"` // 0 uses DefaultMaxQuoteLookupsPerTick
	Valuation              Valuation    `mapstructure:"valuation" json:"valuation"`
	SharpeIncludeIdleDays  bool         `mapstructure:"sharpe_include_idle_days" json:"sharpe_include_idle_days"`
}

// WithDefaults returns a copy with zero fields replaced by their defaults.
func (c StrategyConfig) WithDefaults() StrategyConfig {
	if c.EntryRule == "" {
		c.EntryRule = EntryRuleFirstBuy
	}
	if c.MaxEntryPrice == 0 {
		c.MaxEntryPrice = DefaultMaxEntryPrice
	}
	if c.StalePriceThreshold == 0 {
		c.StalePriceThreshold = DefaultStalePriceThreshold
	}
	if c.MaxQuoteLookupsPerTick == 0 {
		c.MaxQuoteLookupsPerTick = DefaultMaxQuoteLookupsPerTick
	}
	if c.Valuation == "" {
		c.Valuation = ValuationAtCost
	}
	if c.Sizing.Mode == SizingScored && c.Sizing.MaxFraction == 0 {
		c.Sizing.MaxFraction = DefaultScoredMaxFraction
	}
	return c
}

// Validate rejects configurations that cannot produce a meaningful run.
// Call after WithDefaults. Errors wrap ErrInvalidConfig.
func (c StrategyConfig) Validate() error {
	if c.ID == "" {
		return invalidConfig("missing id")
	}
	switch c.EntryRule {
	case EntryRuleFirstBuy, EntryRuleEveryBuy:
	default:
		return invalidConfig("%s: unknown entry rule %q", c.ID, c.EntryRule)
	}
	switch c.Valuation {
	case ValuationAtCost, ValuationLastPrice:
	default:
		return invalidConfig("%s: unknown valuation %q", c.ID, c.Valuation)
	}
	if !unitRange(c.MaxEntryPrice) || c.MaxEntryPrice == 0 {
		return invalidConfig("%s: max_entry_price must be in (0,1]", c.ID)
	}
	if !(c.StalePriceThreshold > 0) || math.IsInf(c.StalePriceThreshold, 0) {
		return invalidConfig("%s: stale_price_threshold must be positive", c.ID)
	}
	if c.MaxQuoteLookupsPerTick < 0 {
		return invalidConfig("%s: max_quote_lookups_per_tick must not be negative", c.ID)
	}
	if err := c.Sizing.validate(c.ID); err != nil {
		return err
	}
	return c.Exit.validate(c.ID)
}

func (s SizingConfig) validate(id string) error {
	switch s.Mode {
	case SizingFixed:
		if !positive(s.Amount) {
			return invalidConfig("%s: fixed sizing requires a positive amount", id)
		}
	case SizingProportional:
		if !positive(s.Percent) || s.Percent > 1 {
			return invalidConfig("%s: proportional sizing requires percent in (0,1]", id)
		}
	case SizingTiered:
		if len(s.Tiers) == 0 {
			return invalidConfig("%s: tiered sizing requires tier amounts", id)
		}
		for tier, amount := range s.Tiers {
			if amount < 0 || math.IsNaN(amount) {
				return invalidConfig("%s: tier %s amount must not be negative", id, tier)
			}
		}
	case SizingCompounding:
		if !positive(s.Amount) {
			return invalidConfig("%s: compounding sizing requires a positive amount", id)
		}
		if !(s.StepMultiplier >= 1) {
			return invalidConfig("%s: compounding step_multiplier must be >= 1", id)
		}
		if !positive(s.FirstThreshold) {
			return invalidConfig("%s: compounding first_threshold must be positive", id)
		}
	case SizingScored:
		if !positive(s.Amount) {
			return invalidConfig("%s: scored sizing requires a positive base amount", id)
		}
		if !positive(s.MaxFraction) || s.MaxFraction > 1 {
			return invalidConfig("%s: scored max_fraction must be in (0,1]", id)
		}
	default:
		return invalidConfig("%s: unknown sizing mode %q", id, s.Mode)
	}
	return nil
}

func (e ExitConfig) validate(id string) error {
	if e.TimeLimitDays != nil && *e.TimeLimitDays <= 0 {
		return invalidConfig("%s: time_limit_days must be positive", id)
	}
	if e.PriceCeiling != nil && !unitRange(*e.PriceCeiling) {
		return invalidConfig("%s: price_ceiling must be in [0,1]", id)
	}
	if e.PriceFloor != nil && !unitRange(*e.PriceFloor) {
		return invalidConfig("%s: price_floor must be in [0,1]", id)
	}
	if e.PriceCeiling != nil && e.PriceFloor != nil && *e.PriceFloor >= *e.PriceCeiling {
		return invalidConfig("%s: price_floor must be below price_ceiling", id)
	}
	if e.TrailingStopPct != nil && (!positive(*e.TrailingStopPct) || *e.TrailingStopPct > 1) {
		return invalidConfig("%s: trailing_stop_pct must be in (0,1]", id)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func unitRange(v float64) bool {
	return v >= 0 && v <= 1
}
