package verification

import (
	"context"
	"errors"
	"math"
	"testing"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/replay"
	"shadow-index-lab/internal/storage/memory"
)

const (
	t0  = int64(1704067200) // 2024-01-01 00:00 UTC
	day = int64(86400)
)

var allTime = domain.Timeframe{Name: domain.TimeframeAll}

func fixed(id string, amount float64) domain.StrategyConfig {
	return domain.StrategyConfig{
		ID:     id,
		Sizing: domain.SizingConfig{Mode: domain.SizingFixed, Amount: amount},
	}
}

func events() []domain.PositionEvent {
	return []domain.PositionEvent{
		{ID: "b1", Kind: domain.EventKindEntry, TraderID: "alice", MarketKey: "m1", Timestamp: t0 + 60, Price: 0.4, TraderNotional: 500},
		{ID: "b2", Kind: domain.EventKindEntry, TraderID: "bob", MarketKey: "m2", Timestamp: t0 + day, Price: 0.5, TraderNotional: 500},
		{ID: "s1", Kind: domain.EventKindExitSell, TraderID: "bob", MarketKey: "m2", Timestamp: t0 + 2*day, Price: 0.25},
		{ID: "r1", Kind: domain.EventKindExitRedeem, TraderID: "alice", MarketKey: "m1", Timestamp: t0 + 3*day, Price: 1},
	}
}

type fixture struct {
	events *memory.EventStore
	stats  *memory.RunStatsStore
	closed *memory.ClosedPositionStore
	curves *memory.CurveStore
	runID  string
}

// newFixture stores a run the way the poller does: ticks only, no closing point.
func newFixture(t *testing.T, cfg domain.StrategyConfig) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		events: memory.NewEventStore(),
		stats:  memory.NewRunStatsStore(),
		closed: memory.NewClosedPositionStore(),
		curves: memory.NewCurveStore(),
	}
	if _, err := f.events.InsertNew(ctx, events()); err != nil {
		t.Fatalf("InsertNew: %v", err)
	}

	res, err := replay.Run(ctx, replay.Options{
		Strategy:        cfg,
		Timeframe:       allTime,
		StartingCapital: 10000,
		EndTimestamp:    t0 + 5*day,
	}, events())
	if err != nil {
		t.Fatalf("replay.Run: %v", err)
	}
	f.runID = res.Stats.RunID

	stats := res.Stats
	if err := f.stats.Upsert(ctx, &stats); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := f.closed.InsertBulk(ctx, res.Closed); err != nil {
		t.Fatalf("InsertBulk closed: %v", err)
	}
	if err := f.curves.InsertBulk(ctx, f.runID, res.Curve[:len(res.Curve)-1]); err != nil {
		t.Fatalf("InsertBulk curve: %v", err)
	}
	return f
}

func (f *fixture) verifier(strategies ...domain.StrategyConfig) *ReplayVerifier {
	return NewReplayVerifier(ReplayVerifierOptions{
		EventStore:          f.events,
		RunStatsStore:       f.stats,
		ClosedPositionStore: f.closed,
		CurveStore:          f.curves,
		Strategies:          strategies,
		Timeframes:          []domain.Timeframe{allTime},
	})
}

func TestVerifyRun_Match(t *testing.T) {
	cfg := fixed("fixed-100", 100)
	f := newFixture(t, cfg)

	result, err := f.verifier(cfg).VerifyRun(context.Background(), f.runID)
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}
	if !result.Match {
		t.Fatalf("Expected match, got divergences %+v", result.Divergences)
	}
	if result.StoredReturn != result.ReplayedReturn {
		t.Errorf("Returns differ: %v vs %v", result.StoredReturn, result.ReplayedReturn)
	}
}

func TestVerifyRun_DetectsTamperedStats(t *testing.T) {
	cfg := fixed("fixed-100", 100)
	f := newFixture(t, cfg)
	ctx := context.Background()

	stored, err := f.stats.GetByRun(ctx, f.runID)
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	stored.FinalValue += 1
	stored.TradeCount++
	if err := f.stats.Upsert(ctx, stored); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	result, err := f.verifier(cfg).VerifyRun(ctx, f.runID)
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}
	if result.Match {
		t.Fatal("Expected divergence")
	}
	fields := map[string]bool{}
	for _, d := range result.Divergences {
		fields[d.Field] = true
	}
	if !fields["stats.final_value"] || !fields["stats.trade_count"] {
		t.Errorf("Expected final_value and trade_count divergences, got %+v", result.Divergences)
	}
}

func TestVerifyRun_DetectsChangedConfig(t *testing.T) {
	f := newFixture(t, fixed("fixed-100", 100))

	// Same id, different sizing: the replay produces different trades.
	result, err := f.verifier(fixed("fixed-100", 200)).VerifyRun(context.Background(), f.runID)
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}
	if result.Match {
		t.Fatal("Expected divergence for changed sizing")
	}
}

func TestVerifyRun_Errors(t *testing.T) {
	f := newFixture(t, fixed("fixed-100", 100))
	ctx := context.Background()

	if _, err := f.verifier(fixed("fixed-100", 100)).VerifyRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if _, err := f.verifier().VerifyRun(ctx, f.runID); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Expected ErrUnknownStrategy, got %v", err)
	}
}

func TestVerifyAll(t *testing.T) {
	cfg := fixed("fixed-100", 100)
	f := newFixture(t, cfg)

	report, err := f.verifier(cfg).VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if report.TotalRuns != 1 || report.MatchedRuns != 1 || report.DivergentRuns != 0 {
		t.Errorf("Unexpected report %+v", report)
	}

	// Unknown strategy is recorded as a divergent run, not an error.
	report, err = f.verifier().VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if report.DivergentRuns != 1 || report.Results[0].Divergences[0].Field != "error" {
		t.Errorf("Expected error divergence, got %+v", report.Results)
	}
}

func TestCompareClosedPositions(t *testing.T) {
	a := []domain.ClosedPosition{{Key: "k1", PnL: 10, Reason: domain.ExitReasonSell, ExitTimestamp: 5}}
	b := []domain.ClosedPosition{{Key: "k1", PnL: 10 + 1e-9, Reason: domain.ExitReasonSell, ExitTimestamp: 5}}
	if d := CompareClosedPositions(a, b); len(d) != 0 {
		t.Errorf("Expected match within tolerance, got %+v", d)
	}

	b[0].Reason = domain.ExitReasonRedeem
	if d := CompareClosedPositions(a, b); len(d) != 1 || d[0].Field != "closed[0].reason" {
		t.Errorf("Expected reason divergence, got %+v", d)
	}

	if d := CompareClosedPositions(a, nil); len(d) != 1 || d[0].Field != "closed.len" {
		t.Errorf("Expected length divergence, got %+v", d)
	}
}

func TestCompareCurves(t *testing.T) {
	a := []domain.CurvePoint{{Timestamp: t0, Value: 100, Cash: 100}}
	b := []domain.CurvePoint{{Timestamp: t0, Value: 101, Cash: 100}}
	d := CompareCurves(a, b)
	if len(d) != 1 || d[0].Field != "curve[0].value" {
		t.Errorf("Expected value divergence, got %+v", d)
	}
}

func TestFloatEquals(t *testing.T) {
	if !floatEquals(math.NaN(), math.NaN()) {
		t.Error("NaN should equal NaN")
	}
	if floatEquals(1, math.NaN()) {
		t.Error("1 should not equal NaN")
	}
	if !floatEquals(1, 1+FloatTolerance/2) {
		t.Error("Values within tolerance should match")
	}
}
