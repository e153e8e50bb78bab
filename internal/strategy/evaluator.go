package strategy

import (
	"context"
	"sort"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/ledger"
	"shadow-index-lab/internal/quotes"
)

// TickReport summarizes one evaluation pass.
type TickReport struct {
	Closed   []domain.ClosedPosition
	Lookups  int // quote lookups performed
	Deferred int // positions whose quote rules were skipped for lack of budget
}

// Evaluator runs exit rules over a ledger once per tick.
//
// Quote lookups are bounded per tick. Positions beyond the bound keep their
// quote-based rules unchecked until a later tick; the scan starts from the
// first deferred key next time so every position is eventually reached.
// A stop can therefore fire a few ticks late under a tight budget.
type Evaluator struct {
	rules      []Rule
	timeLimit  *TimeLimit
	quoteRules []Rule
	source     quotes.Source
	budget     *quotes.Budget
	cursor     string // first key to check next tick; empty starts at the lowest key
}

// NewEvaluator creates an evaluator. source may be nil when no quotes exist.
func NewEvaluator(rules []Rule, source quotes.Source, maxLookupsPerTick int) *Evaluator {
	if source == nil {
		source = quotes.None
	}
	e := &Evaluator{
		rules:  rules,
		source: source,
		budget: quotes.NewBudget(maxLookupsPerTick),
	}
	for _, r := range rules {
		if tl, ok := r.(TimeLimit); ok {
			e.timeLimit = &tl
			continue
		}
		if r.NeedsQuote() {
			e.quoteRules = append(e.quoteRules, r)
		}
	}
	return e
}

// Empty reports whether no rule is configured.
func (e *Evaluator) Empty() bool { return len(e.rules) == 0 }

// Cursor returns the key the next scan starts from.
func (e *Evaluator) Cursor() string { return e.cursor }

// SetCursor restores a cursor captured with Cursor.
func (e *Evaluator) SetCursor(key string) { e.cursor = key }

// Evaluate checks every open position at tick now and force-closes those that trip a rule.
func (e *Evaluator) Evaluate(ctx context.Context, l *ledger.Ledger, now int64) TickReport {
	var report TickReport
	if e.Empty() || l.Len() == 0 {
		return report
	}

	e.budget.Reset()
	date := quotes.DateOf(now)
	keys := rotate(l.Keys(), e.cursor)
	firstDeferred := ""

	for _, key := range keys {
		pos, ok := l.Get(key)
		if !ok {
			continue
		}

		if e.timeLimit != nil && e.timeLimit.Expired(pos, now) {
			quote, hasQuote := e.lookup(ctx, pos, date, &report)
			d := e.timeLimit.Check(pos, now, quote, hasQuote)
			report.Closed = append(report.Closed, e.close(l, key, d, now, e.timeLimit.Reason()))
			continue
		}

		if len(e.quoteRules) == 0 {
			continue
		}
		if e.budget.Remaining() <= 0 {
			report.Deferred++
			if firstDeferred == "" {
				firstDeferred = key
			}
			continue
		}

		quote, hasQuote := e.lookup(ctx, pos, date, &report)
		if !hasQuote {
			continue
		}
		pos.ObservePrice(quote)

		for _, r := range e.quoteRules {
			if d := r.Check(pos, now, quote, true); d.Close {
				report.Closed = append(report.Closed, e.close(l, key, d, now, r.Reason()))
				break
			}
		}
	}

	e.cursor = firstDeferred
	return report
}

func (e *Evaluator) lookup(ctx context.Context, pos *domain.OpenPosition, date string, report *TickReport) (float64, bool) {
	if pos.TokenID == "" || !e.budget.Take() {
		return 0, false
	}
	report.Lookups++
	q, ok := e.source.PriceAt(ctx, pos.TokenID, date)
	if !ok {
		return 0, false
	}
	return domain.ClampUnit(q), true
}

func (e *Evaluator) close(l *ledger.Ledger, key string, d Decision, now int64, reason domain.ExitReason) domain.ClosedPosition {
	if d.AtCost {
		rec, _ := l.CloseAtCost(key, now, reason)
		return rec
	}
	rec, _ := l.Close(key, d.Price, now, reason)
	return rec
}

// rotate returns sorted keys starting at the first key >= start.
func rotate(keys []string, start string) []string {
	if start == "" {
		return keys
	}
	i := sort.SearchStrings(keys, start)
	if i == 0 || i == len(keys) {
		return keys
	}
	out := make([]string, 0, len(keys))
	out = append(out, keys[i:]...)
	return append(out, keys[:i]...)
}
