package domain

import "strings"

// Tier is a trader quality grade.
type Tier string

// Tiers from best to worst.
const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// InsiderRisk grades the likelihood a trader trades on non-public information.
type InsiderRisk string

// Insider risk grades.
const (
	InsiderRiskLow     InsiderRisk = "LOW"
	InsiderRiskMedium  InsiderRisk = "MEDIUM"
	InsiderRiskHigh    InsiderRisk = "HIGH"
	InsiderRiskExtreme InsiderRisk = "EXTREME"
)

// TraderProfile describes one tracked trader.
type TraderProfile struct {
	TraderID    string      `mapstructure:"trader_id" json:"trader_id"`
	Username    string      `mapstructure:"username" json:"username,omitempty"`
	Tier        Tier        `mapstructure:"tier" json:"tier,omitempty"`
	InsiderRisk InsiderRisk `mapstructure:"insider_risk" json:"insider_risk,omitempty"`
	Cluster     string      `mapstructure:"cluster" json:"cluster,omitempty"` // topic cluster, e.g. fed or election-2024
	Sharpe      float64     `mapstructure:"sharpe" json:"sharpe,omitempty"`   // blended sharpe used by the scorer
}

// TraderBook maps trader id to profile. It is an input to each run and is not mutated.
type TraderBook map[string]TraderProfile

// Lookup returns the profile for a trader, matching ids case-insensitively.
func (b TraderBook) Lookup(traderID string) (TraderProfile, bool) {
	if p, ok := b[traderID]; ok {
		return p, true
	}
	p, ok := b[strings.ToLower(traderID)]
	return p, ok
}

// TierOf returns the trader's tier, or TierC when untracked.
func (b TraderBook) TierOf(traderID string) Tier {
	p, ok := b.Lookup(traderID)
	if !ok || p.Tier == "" {
		return TierC
	}
	return p.Tier
}

// TierForSharpe maps a blended sharpe value to a tier.
func TierForSharpe(sharpe float64) Tier {
	switch {
	case sharpe >= 1.5:
		return TierS
	case sharpe >= 1.0:
		return TierA
	case sharpe >= 0.5:
		return TierB
	case sharpe >= 0:
		return TierC
	default:
		return TierD
	}
}
