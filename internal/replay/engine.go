package replay

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/idhash"
	"shadow-index-lab/internal/ledger"
	"shadow-index-lab/internal/metrics"
	"shadow-index-lab/internal/normalization"
	"shadow-index-lab/internal/quotes"
	"shadow-index-lab/internal/sizing"
	"shadow-index-lab/internal/strategy"
)

const day = int64(86400)

// minBet is the smallest amount worth committing; anything below counts as no bet.
const minBet = 0.01

// Options configures one strategy x timeframe run.
type Options struct {
	Strategy        domain.StrategyConfig
	Timeframe       domain.Timeframe
	StartingCapital float64
	Traders         domain.TraderBook // read-only
	Quotes          quotes.Source     // optional
	Scorer          *sizing.Scorer    // optional, scored sizing only
	EndTimestamp    int64             // optional; ticks continue to this day
}

// Engine replays PositionEvents for one run. Single-threaded and deterministic:
// the same options and events always produce the same curve and stats.
type Engine struct {
	cfg   domain.StrategyConfig
	opts  Options
	runID string

	ledger      *ledger.Ledger
	policy      *sizing.Policy
	policyState sizing.State
	evaluator   *strategy.Evaluator
	quotes      quotes.Source

	processed map[string]uint64 // event id -> content fingerprint

	started     bool
	tick        int64 // day start of the current tick
	curve       []domain.CurvePoint
	peakValue   float64
	maxDrawdown float64

	diag Diagnostics
}

// Diagnostics counts what happened during the run.
type Diagnostics struct {
	Entered         int            `msgpack:"entered"`
	ScaledIn        int            `msgpack:"scaled_in"`
	Skipped         map[string]int `msgpack:"skipped"`
	ForcedExits     map[string]int `msgpack:"forced_exits"`
	MalformedEvents int            `msgpack:"malformed"`
	LateEvents      int            `msgpack:"late"`
	DuplicateEvents int            `msgpack:"duplicates"`
	QuoteLookups    int            `msgpack:"quote_lookups"`
	DeferredChecks  int            `msgpack:"deferred_checks"`
	PartialSells    int            `msgpack:"partial_sells"`
}

// New validates the configuration and creates an engine.
// Configuration errors are returned before any event is processed.
func New(opts Options) (*Engine, error) {
	cfg := opts.Strategy.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !(opts.StartingCapital > 0) || math.IsInf(opts.StartingCapital, 0) {
		return nil, ErrInvalidCapital
	}

	policy, err := sizing.New(cfg.Sizing, opts.Traders, opts.Scorer)
	if err != nil {
		return nil, err
	}
	rules, err := strategy.FromConfig(cfg.Exit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, cfg.ID, err)
	}

	src := opts.Quotes
	if src == nil {
		src = quotes.None
	}

	return &Engine{
		cfg:         cfg,
		opts:        opts,
		runID:       idhash.ComputeRunID(cfg.ID, opts.Timeframe.Name, opts.Timeframe.Baseline, opts.StartingCapital),
		ledger:      ledger.New(opts.StartingCapital),
		policy:      policy,
		policyState: policy.InitialState(),
		evaluator:   strategy.NewEvaluator(rules, src, cfg.MaxQuoteLookupsPerTick),
		quotes:      src,
		processed:   make(map[string]uint64),
		diag: Diagnostics{
			Skipped:     make(map[string]int),
			ForcedExits: make(map[string]int),
		},
	}, nil
}

// RunID returns the deterministic run identifier.
func (e *Engine) RunID() string { return e.runID }

// Config returns the effective strategy configuration.
func (e *Engine) Config() domain.StrategyConfig { return e.cfg }

// Ledger exposes the run's ledger for inspection.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// ProcessedIDs returns the number of admitted event ids.
func (e *Engine) ProcessedIDs() int { return len(e.processed) }

// Processed reports whether an event id has been fed, including ids outside
// the timeframe.
func (e *Engine) Processed(id string) bool {
	_, ok := e.processed[id]
	return ok
}

// Feed applies a batch of events. Batches may arrive across polling passes;
// ids already processed are skipped, and events older than the current tick
// are applied at the current tick and counted as late.
// Returns ErrCorruptStream when an id reappears with different content.
func (e *Engine) Feed(ctx context.Context, events []domain.PositionEvent) error {
	batch := make([]domain.PositionEvent, 0, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			e.diag.MalformedEvents++
			continue
		}
		if ev.ID == "" {
			ev.ID = idhash.ComputeFallbackEventID(ev.TraderID, ev.MarketKey, ev.Kind, ev.Timestamp, ev.Price, ev.TraderNotional)
		}
		batch = append(batch, ev)
	}
	normalization.SortEvents(batch)

	for i := range batch {
		ev := &batch[i]

		fp := fingerprint(ev)
		if prev, seen := e.processed[ev.ID]; seen {
			if prev != fp {
				return fmt.Errorf("%w: event %s", ErrCorruptStream, ev.ID)
			}
			e.diag.DuplicateEvents++
			continue
		}
		e.processed[ev.ID] = fp

		if !e.opts.Timeframe.Includes(ev.Timestamp) {
			if ev.Kind == domain.EventKindEntry {
				e.diag.Skipped[domain.SkipBeforeBaseline]++
			}
			continue
		}

		evDay := quotes.DayStart(ev.Timestamp)
		if !e.started {
			e.start(ctx, evDay)
		}
		if evDay > e.tick {
			e.advance(ctx, evDay)
		} else if evDay < e.tick {
			e.diag.LateEvents++
		}

		e.apply(ctx, ev)
	}
	return nil
}

// AdvanceTo runs ticks up to and including the day containing ts.
func (e *Engine) AdvanceTo(ctx context.Context, ts int64) {
	target := quotes.DayStart(ts)
	if !e.started {
		e.start(ctx, target)
	}
	if target > e.tick {
		e.advance(ctx, target)
	}
}

// start opens the first tick at the baseline day, or at first when there is no baseline.
func (e *Engine) start(ctx context.Context, first int64) {
	startDay := first
	if b := e.opts.Timeframe.Baseline; b > 0 {
		startDay = quotes.DayStart(b)
	}
	e.started = true
	e.tick = startDay
	e.runTick(ctx, startDay)
	if first > startDay {
		e.advance(ctx, first)
	}
}

// advance runs every tick after the current one up to target.
func (e *Engine) advance(ctx context.Context, target int64) {
	for d := e.tick + day; d <= target; d += day {
		e.tick = d
		e.runTick(ctx, d)
	}
}

// runTick evaluates exit rules, then records the day's capital curve point.
func (e *Engine) runTick(ctx context.Context, dayStart int64) {
	report := e.evaluator.Evaluate(ctx, e.ledger, dayStart)
	for _, rec := range report.Closed {
		e.diag.ForcedExits[string(rec.Reason)]++
	}
	e.diag.QuoteLookups += report.Lookups
	e.diag.DeferredChecks += report.Deferred
	e.snapshot(dayStart)
}

func (e *Engine) snapshot(dayStart int64) {
	value := e.ledger.PortfolioValue(e.cfg.Valuation)
	e.curve = append(e.curve, domain.CurvePoint{
		Date:      quotes.DateOf(dayStart),
		Timestamp: dayStart,
		Value:     value,
		Cash:      e.ledger.Cash(),
	})
	if value > e.peakValue {
		e.peakValue = value
	}
	if e.peakValue > 0 {
		if dd := (e.peakValue - value) / e.peakValue; dd > e.maxDrawdown {
			e.maxDrawdown = dd
		}
	}
}

func (e *Engine) apply(ctx context.Context, ev *domain.PositionEvent) {
	switch ev.Kind {
	case domain.EventKindEntry:
		e.admit(ctx, ev)
	case domain.EventKindExitSell:
		key := ev.PositionKey()
		pos, ok := e.ledger.Get(key)
		if !ok {
			return
		}
		pos.ObservePrice(ev.Price)
		// Trims leave the position open until the trader is mostly out.
		if !pos.RecordTraderSell(ev.Shares) {
			e.diag.PartialSells++
			return
		}
		e.ledger.Close(key, ev.Price, ev.Timestamp, domain.ExitReasonSell)
	case domain.EventKindExitRedeem:
		e.ledger.Close(ev.PositionKey(), domain.ClampUnit(ev.Price), ev.Timestamp, domain.ExitReasonRedeem)
	}
}

// PeakValue returns the running peak of the capital curve.
func (e *Engine) PeakValue() float64 { return e.peakValue }

// Curve returns a copy of the capital curve so far.
func (e *Engine) Curve() []domain.CurvePoint {
	out := make([]domain.CurvePoint, len(e.curve))
	copy(out, e.curve)
	return out
}

// Result computes the run result without mutating the engine.
// The curve gets one closing point on the day after the last tick, with no
// rules evaluated. A run that saw no ticks yields a flat single-point curve.
func (e *Engine) Result() domain.RunResult {
	curve := e.Curve()
	if !e.started {
		ts := quotes.DayStart(e.opts.Timeframe.Baseline)
		if e.opts.EndTimestamp > 0 {
			ts = quotes.DayStart(e.opts.EndTimestamp)
		}
		curve = append(curve, domain.CurvePoint{
			Date:      quotes.DateOf(ts),
			Timestamp: ts,
			Value:     e.opts.StartingCapital,
			Cash:      e.opts.StartingCapital,
		})
	} else {
		closing := e.tick + day
		curve = append(curve, domain.CurvePoint{
			Date:      quotes.DateOf(closing),
			Timestamp: closing,
			Value:     e.ledger.PortfolioValue(e.cfg.Valuation),
			Cash:      e.ledger.Cash(),
		})
	}

	closed := e.ledger.ClosedLog()
	for i := range closed {
		closed[i].RunID = e.runID
	}

	stats := metrics.ComputeRunStats(curve, closed, e.opts.StartingCapital, e.cfg.SharpeIncludeIdleDays)
	stats.RunID = e.runID
	stats.StrategyID = e.cfg.ID
	stats.Timeframe = e.opts.Timeframe.Name
	stats.FinalCash = e.ledger.Cash()
	stats.RealizedPnL = e.ledger.RealizedPnL()
	stats.OpenPositions = e.ledger.Len()
	stats.OpenCostBasis = e.ledger.OpenCostBasis()
	stats.Entered = e.diag.Entered
	stats.ScaledIn = e.diag.ScaledIn
	stats.Skipped = copyCounts(e.diag.Skipped)
	stats.ForcedExits = copyCounts(e.diag.ForcedExits)
	stats.MalformedEvents = e.diag.MalformedEvents
	stats.LateEvents = e.diag.LateEvents
	stats.DuplicateEvents = e.diag.DuplicateEvents
	stats.QuoteLookups = e.diag.QuoteLookups
	stats.DeferredChecks = e.diag.DeferredChecks
	stats.PartialSells = e.diag.PartialSells

	return domain.RunResult{
		StrategyID: e.cfg.ID,
		Timeframe:  e.opts.Timeframe.Name,
		Curve:      curve,
		Stats:      stats,
		Closed:     closed,
		Open:       e.ledger.Positions(),
	}
}

// Run replays events through a fresh engine and returns the result.
func Run(ctx context.Context, opts Options, events []domain.PositionEvent) (domain.RunResult, error) {
	e, err := New(opts)
	if err != nil {
		return domain.RunResult{StrategyID: opts.Strategy.ID, Timeframe: opts.Timeframe.Name, Err: err}, err
	}
	if err := e.Feed(ctx, events); err != nil {
		return domain.RunResult{StrategyID: e.cfg.ID, Timeframe: opts.Timeframe.Name, Err: err}, err
	}
	if opts.EndTimestamp > 0 {
		e.AdvanceTo(ctx, opts.EndTimestamp)
	}
	return e.Result(), nil
}

// fingerprint hashes the fields that define an event's content.
func fingerprint(ev *domain.PositionEvent) uint64 {
	h := fnv.New64a()
	for _, s := range []string{
		string(ev.Kind),
		ev.TraderID,
		ev.MarketKey,
		ev.TokenID,
		strconv.FormatInt(ev.Timestamp, 10),
		strconv.FormatFloat(ev.Price, 'g', -1, 64),
		strconv.FormatFloat(ev.TraderNotional, 'g', -1, 64),
	} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
