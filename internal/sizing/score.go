package sizing

import (
	"math"
	"strings"

	"shadow-index-lab/internal/domain"
)

// Component is one named multiplicative factor of a trader score.
type Component interface {
	Name() string
	Weight(profile domain.TraderProfile, known bool) float64
}

// ComponentScore is one factor of a score breakdown.
type ComponentScore struct {
	Name   string
	Weight float64
}

// Scorer multiplies its components into a single trader weight.
type Scorer struct {
	components []Component
}

// NewScorer creates a scorer from components applied in order.
func NewScorer(components ...Component) *Scorer {
	return &Scorer{components: components}
}

// DefaultScorer is sharpe weight x insider multiplier x cluster boost.
func DefaultScorer() *Scorer {
	return NewScorer(
		SharpeWeight{Min: 0.1, Max: 3, Untracked: 1},
		DefaultInsiderMultiplier(),
		DefaultClusterBoost(),
	)
}

// Score returns the product of all component weights.
func (s *Scorer) Score(profile domain.TraderProfile, known bool) float64 {
	score := 1.0
	for _, c := range s.components {
		score *= c.Weight(profile, known)
	}
	return score
}

// Breakdown returns each component's weight.
func (s *Scorer) Breakdown(profile domain.TraderProfile, known bool) []ComponentScore {
	out := make([]ComponentScore, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, ComponentScore{Name: c.Name(), Weight: c.Weight(profile, known)})
	}
	return out
}

// SharpeWeight uses the trader's sharpe clamped to [Min, Max].
// Non-positive sharpe maps to Min; untracked traders get Untracked.
type SharpeWeight struct {
	Min       float64
	Max       float64
	Untracked float64
}

func (w SharpeWeight) Name() string { return "sharpe" }

func (w SharpeWeight) Weight(p domain.TraderProfile, known bool) float64 {
	if !known {
		return w.Untracked
	}
	if p.Sharpe <= 0 {
		return w.Min
	}
	return math.Min(math.Max(p.Sharpe, w.Min), w.Max)
}

// InsiderMultiplier maps insider risk to a weight.
type InsiderMultiplier struct {
	Weights map[domain.InsiderRisk]float64
	Default float64
}

// DefaultInsiderMultiplier is EXTREME 2.5, HIGH 2, MEDIUM 1, LOW 0.5.
func DefaultInsiderMultiplier() InsiderMultiplier {
	return InsiderMultiplier{
		Weights: map[domain.InsiderRisk]float64{
			domain.InsiderRiskExtreme: 2.5,
			domain.InsiderRiskHigh:    2,
			domain.InsiderRiskMedium:  1,
			domain.InsiderRiskLow:     0.5,
		},
		Default: 0.5,
	}
}

func (m InsiderMultiplier) Name() string { return "insider" }

func (m InsiderMultiplier) Weight(p domain.TraderProfile, _ bool) float64 {
	if w, ok := m.Weights[domain.InsiderRisk(strings.ToUpper(string(p.InsiderRisk)))]; ok {
		return w
	}
	return m.Default
}

// ClusterBoost rewards traders in active topic clusters and discounts
// clusters whose catalyst has passed.
type ClusterBoost struct {
	Active          map[string]struct{}
	PlayedOut       map[string]struct{}
	ActiveWeight    float64
	PlayedOutWeight float64
}

// DefaultClusterBoost boosts active clusters 1.5x and cuts played-out ones to 0.3x.
func DefaultClusterBoost() ClusterBoost {
	return ClusterBoost{
		Active:          setOf("iran", "fed", "geopolitics", "politics", "crypto", "tech", "sports", "ufc", "mma"),
		PlayedOut:       setOf("election-2024", "election"),
		ActiveWeight:    1.5,
		PlayedOutWeight: 0.3,
	}
}

func (b ClusterBoost) Name() string { return "cluster" }

func (b ClusterBoost) Weight(p domain.TraderProfile, _ bool) float64 {
	c := strings.ToLower(p.Cluster)
	if c == "" {
		return 1
	}
	if _, ok := b.PlayedOut[c]; ok {
		return b.PlayedOutWeight
	}
	if _, ok := b.Active[c]; ok {
		return b.ActiveWeight
	}
	return 1
}

// BlendedSharpe weights recent windows more: 0.5 x 3M + 0.3 x 6M + 0.2 x 1Y.
func BlendedSharpe(s3m, s6m, s1y float64) float64 {
	return 0.5*s3m + 0.3*s6m + 0.2*s1y
}

func setOf(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
