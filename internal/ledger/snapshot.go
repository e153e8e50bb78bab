package ledger

import (
	"sort"

	"shadow-index-lab/internal/domain"
)

// State is the serializable form of a Ledger.
// Slices are kept sorted so equal ledgers encode to equal bytes.
type State struct {
	Cash        float64                 `msgpack:"cash"`
	RealizedPnL float64                 `msgpack:"realized_pnl"`
	TradeCount  int                     `msgpack:"trade_count"`
	WinCount    int                     `msgpack:"win_count"`
	Open        []domain.OpenPosition   `msgpack:"open"`        // ordered by key
	ClosedKeys  []string                `msgpack:"closed_keys"` // ascending
	ClosedLog   []domain.ClosedPosition `msgpack:"closed_log"`  // close order
}

// Export captures the ledger state.
func (l *Ledger) Export() State {
	closed := make([]string, 0, len(l.closedKeys))
	for k := range l.closedKeys {
		closed = append(closed, k)
	}
	sort.Strings(closed)
	return State{
		Cash:        l.cash,
		RealizedPnL: l.realizedPnL,
		TradeCount:  l.tradeCount,
		WinCount:    l.winCount,
		Open:        l.Positions(),
		ClosedKeys:  closed,
		ClosedLog:   l.ClosedLog(),
	}
}

// FromState rebuilds a ledger from an exported state.
func FromState(s State) *Ledger {
	l := New(s.Cash)
	l.realizedPnL = s.RealizedPnL
	l.tradeCount = s.TradeCount
	l.winCount = s.WinCount
	for i := range s.Open {
		p := s.Open[i]
		l.open[p.Key] = &p
	}
	for _, k := range s.ClosedKeys {
		l.closedKeys[k] = struct{}{}
	}
	if len(s.ClosedLog) > 0 {
		l.closedLog = make([]domain.ClosedPosition, len(s.ClosedLog))
		copy(l.closedLog, s.ClosedLog)
	}
	return l
}
