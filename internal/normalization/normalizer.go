package normalization

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/idhash"
)

// DefaultNoisePattern matches ultra-short-horizon up/down contracts.
const DefaultNoisePattern = `(?i)Up or Down.*\d+:\d+(AM|PM)`

// millisecondThreshold separates second from millisecond timestamps.
const millisecondThreshold = 1_000_000_000_000

// NormalizeStats counts what happened to each raw row.
type NormalizeStats struct {
	Total            int
	Accepted         int
	Noise            int
	Duplicates       int
	MissingTimestamp int
	MissingPrice     int
	MissingMarket    int
	Unsupported      int // activity types other than trades and redemptions
}

// Dropped returns the number of rows that did not become events.
func (s NormalizeStats) Dropped() int {
	return s.Total - s.Accepted
}

// DropReasons returns dropped row counts keyed by reason.
func (s NormalizeStats) DropReasons() map[string]int {
	return map[string]int{
		"noise":             s.Noise,
		"duplicate":         s.Duplicates,
		"missing_timestamp": s.MissingTimestamp,
		"missing_price":     s.MissingPrice,
		"missing_market":    s.MissingMarket,
		"unsupported":       s.Unsupported,
	}
}

// Add accumulates another pass into s.
func (s *NormalizeStats) Add(o NormalizeStats) {
	s.Total += o.Total
	s.Accepted += o.Accepted
	s.Noise += o.Noise
	s.Duplicates += o.Duplicates
	s.MissingTimestamp += o.MissingTimestamp
	s.MissingPrice += o.MissingPrice
	s.MissingMarket += o.MissingMarket
	s.Unsupported += o.Unsupported
}

// Normalizer converts raw activity rows into PositionEvents.
// The seen set persists across calls so repeated polling passes never
// admit the same event identity twice. Not safe for concurrent use.
type Normalizer struct {
	noise []*regexp.Regexp
	seen  map[string]struct{}
}

// NewNormalizer creates a normalizer with the default noise pattern plus extras.
func NewNormalizer(extraNoise ...string) (*Normalizer, error) {
	patterns := append([]string{DefaultNoisePattern}, extraNoise...)
	n := &Normalizer{seen: make(map[string]struct{})}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile noise pattern %q: %w", p, err)
		}
		n.noise = append(n.noise, re)
	}
	return n, nil
}

// IsNoise reports whether a market title matches a noise pattern.
func (n *Normalizer) IsNoise(title string) bool {
	for _, re := range n.noise {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// MarkSeen adds previously processed ids to the seen set.
func (n *Normalizer) MarkSeen(ids ...string) {
	for _, id := range ids {
		n.seen[id] = struct{}{}
	}
}

// SeenIDs returns the seen set in sorted order.
func (n *Normalizer) SeenIDs() []string {
	ids := make([]string, 0, len(n.seen))
	for id := range n.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Normalize parses a JSON array of activity rows for one wallet.
// Only an unparseable payload is an error; defective rows are dropped and counted.
func (n *Normalizer) Normalize(wallet string, payload []byte) ([]domain.PositionEvent, NormalizeStats, error) {
	if !gjson.ValidBytes(payload) {
		return nil, NormalizeStats{}, fmt.Errorf("activity payload for %s: invalid json", wallet)
	}
	root := gjson.ParseBytes(payload)
	if !root.IsArray() {
		return nil, NormalizeStats{}, fmt.Errorf("activity payload for %s: expected array", wallet)
	}
	events, stats := n.NormalizeRows(wallet, root.Array())
	return events, stats, nil
}

// NormalizeRows converts already-parsed rows.
func (n *Normalizer) NormalizeRows(wallet string, rows []gjson.Result) ([]domain.PositionEvent, NormalizeStats) {
	var stats NormalizeStats
	events := make([]domain.PositionEvent, 0, len(rows))

	for _, row := range rows {
		stats.Total++
		ev, reason := n.convert(wallet, row)
		switch reason {
		case dropNone:
		case dropNoise:
			stats.Noise++
			continue
		case dropTimestamp:
			stats.MissingTimestamp++
			continue
		case dropPrice:
			stats.MissingPrice++
			continue
		case dropMarket:
			stats.MissingMarket++
			continue
		case dropUnsupported:
			stats.Unsupported++
			continue
		}

		if _, dup := n.seen[ev.ID]; dup {
			stats.Duplicates++
			continue
		}
		n.seen[ev.ID] = struct{}{}
		events = append(events, ev)
		stats.Accepted++
	}

	return events, stats
}

type dropReason int

const (
	dropNone dropReason = iota
	dropNoise
	dropTimestamp
	dropPrice
	dropMarket
	dropUnsupported
)

func (n *Normalizer) convert(wallet string, row gjson.Result) (domain.PositionEvent, dropReason) {
	var kind domain.EventKind
	switch strings.ToUpper(row.Get("type").String()) {
	case "TRADE", "":
		switch strings.ToUpper(row.Get("side").String()) {
		case "BUY":
			kind = domain.EventKindEntry
		case "SELL":
			kind = domain.EventKindExitSell
		default:
			return domain.PositionEvent{}, dropUnsupported
		}
	case "REDEMPTION", "REDEEM":
		kind = domain.EventKindExitRedeem
	default:
		return domain.PositionEvent{}, dropUnsupported
	}

	title := row.Get("title").String()
	if title == "" {
		title = row.Get("question").String()
	}
	if n.IsNoise(title) {
		return domain.PositionEvent{}, dropNoise
	}

	ts := NormalizeTimestamp(row.Get("timestamp").Int())
	if ts <= 0 {
		return domain.PositionEvent{}, dropTimestamp
	}

	market := row.Get("conditionId").String()
	if market == "" {
		market = row.Get("slug").String()
	}
	if market == "" {
		return domain.PositionEvent{}, dropMarket
	}
	outcome := row.Get("outcome").String()

	size := row.Get("size").Float()
	usdc := row.Get("usdcSize")

	var price float64
	if kind == domain.EventKindExitRedeem {
		price = RedemptionPrice(usdc.Exists(), usdc.Float(), size)
	} else {
		p := row.Get("price")
		if !p.Exists() || p.Type == gjson.Null {
			return domain.PositionEvent{}, dropPrice
		}
		price = p.Float()
		if price < 0 || price > 1 {
			return domain.PositionEvent{}, dropPrice
		}
	}

	notional := usdc.Float()
	if !usdc.Exists() {
		notional = price * size
	}

	trader := row.Get("proxyWallet").String()
	if trader == "" {
		trader = wallet
	}
	trader = strings.ToLower(trader)
	marketKey := market + "|" + outcome
	txHash := row.Get("transactionHash").String()

	var id string
	if txHash != "" {
		id = idhash.ComputeEventID(trader, txHash)
	} else {
		id = idhash.ComputeFallbackEventID(trader, marketKey, kind, ts, price, notional)
	}

	return domain.PositionEvent{
		ID:             id,
		Kind:           kind,
		TraderID:       trader,
		MarketKey:      marketKey,
		TokenID:        row.Get("asset").String(),
		Timestamp:      ts,
		Price:          price,
		TraderNotional: notional,
		Shares:         size,
		MarketTitle:    title,
		OutcomeLabel:   outcome,
		TxHash:         txHash,
	}, dropNone
}

// NormalizeTimestamp scales millisecond timestamps to seconds.
func NormalizeTimestamp(ts int64) int64 {
	if ts >= millisecondThreshold {
		return ts / 1000
	}
	return ts
}

// RedemptionPrice derives the per-share payout of a redemption.
// It is usdc/size clamped to [0,1] when both are known, otherwise 1.0.
func RedemptionPrice(hasUSDC bool, usdc, size float64) float64 {
	if !hasUSDC || size <= 0 {
		return 1.0
	}
	return domain.ClampUnit(usdc / size)
}

// FilterSince keeps events at or after baseline. A zero baseline keeps everything.
func FilterSince(events []domain.PositionEvent, baseline int64) []domain.PositionEvent {
	if baseline <= 0 {
		return events
	}
	out := make([]domain.PositionEvent, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp >= baseline {
			out = append(out, ev)
		}
	}
	return out
}
