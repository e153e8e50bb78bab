package sizing

import (
	"fmt"
	"math"

	"shadow-index-lab/internal/domain"
)

// Input is what the policy sees for one entry.
type Input struct {
	Event          *domain.PositionEvent
	Cash           float64 // available cash
	PortfolioValue float64 // cash + open cost basis
}

// State is the persistent policy state carried across entries of one run.
type State struct {
	Bet       float64 `msgpack:"bet"`       // current compounding bet
	Threshold float64 `msgpack:"threshold"` // next compounding step
	Steps     int     `msgpack:"steps"`     // steps taken so far
}

// Policy computes candidate bet sizes for one strategy.
type Policy struct {
	cfg    domain.SizingConfig
	book   domain.TraderBook
	scorer *Scorer
}

// New creates a policy. scorer may be nil, in which case DefaultScorer is used.
func New(cfg domain.SizingConfig, book domain.TraderBook, scorer *Scorer) (*Policy, error) {
	switch cfg.Mode {
	case domain.SizingFixed, domain.SizingProportional, domain.SizingTiered,
		domain.SizingCompounding, domain.SizingScored:
	default:
		return nil, fmt.Errorf("%w: unknown sizing mode %q", domain.ErrInvalidConfig, cfg.Mode)
	}
	if scorer == nil {
		scorer = DefaultScorer()
	}
	return &Policy{cfg: cfg, book: book, scorer: scorer}, nil
}

// InitialState returns the state a run starts with.
func (p *Policy) InitialState() State {
	if p.cfg.Mode != domain.SizingCompounding {
		return State{}
	}
	return State{Bet: p.cfg.Amount, Threshold: p.cfg.FirstThreshold}
}

// Size returns the candidate amount before cash and liquidity caps,
// along with the updated policy state.
func (p *Policy) Size(in Input, st State) (float64, State) {
	switch p.cfg.Mode {
	case domain.SizingFixed:
		return p.cfg.Amount, st

	case domain.SizingProportional:
		return in.PortfolioValue * p.cfg.Percent, st

	case domain.SizingTiered:
		tier := p.book.TierOf(in.Event.TraderID)
		return p.cfg.Tiers[string(tier)], st

	case domain.SizingCompounding:
		st = Compound(st, in.PortfolioValue, p.cfg.StepMultiplier)
		return st.Bet, st

	case domain.SizingScored:
		profile, known := p.book.Lookup(in.Event.TraderID)
		score := p.scorer.Score(profile, known)
		return math.Min(p.cfg.Amount*score, in.PortfolioValue*p.cfg.MaxFraction), st
	}
	return 0, st
}

// Compound steps the bet up by multiplier each time portfolioValue reaches
// the threshold. The threshold doubles after each step.
func Compound(st State, portfolioValue, multiplier float64) State {
	if st.Threshold <= 0 {
		return st
	}
	for portfolioValue >= st.Threshold {
		st.Bet *= multiplier
		st.Threshold *= 2
		st.Steps++
	}
	return st
}
