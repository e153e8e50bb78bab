package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/quotes"
	"shadow-index-lab/internal/replay"
	"shadow-index-lab/internal/sizing"
	"shadow-index-lab/internal/storage"
)

var (
	// ErrRunNotFound is returned when no stats are stored for the run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownStrategy is returned when a stored run names an unconfigured strategy.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrUnknownTimeframe is returned when a stored run names an unconfigured timeframe.
	ErrUnknownTimeframe = errors.New("unknown timeframe")
)

// ReplayVerifier implements Verifier by replaying the stored event log.
type ReplayVerifier struct {
	eventStore  storage.EventStore
	statsStore  storage.RunStatsStore
	closedStore storage.ClosedPositionStore
	curveStore  storage.CurveStore

	// strategies and timeframes must hold every configuration a stored run may name.
	strategies map[string]domain.StrategyConfig
	timeframes map[string]domain.Timeframe

	traders domain.TraderBook
	quotes  quotes.Source
	scorer  *sizing.Scorer
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	EventStore          storage.EventStore
	RunStatsStore       storage.RunStatsStore
	ClosedPositionStore storage.ClosedPositionStore
	CurveStore          storage.CurveStore
	Strategies          []domain.StrategyConfig
	Timeframes          []domain.Timeframe
	Traders             domain.TraderBook
	Quotes              quotes.Source
	Scorer              *sizing.Scorer
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	v := &ReplayVerifier{
		eventStore:  opts.EventStore,
		statsStore:  opts.RunStatsStore,
		closedStore: opts.ClosedPositionStore,
		curveStore:  opts.CurveStore,
		strategies:  make(map[string]domain.StrategyConfig, len(opts.Strategies)),
		timeframes:  make(map[string]domain.Timeframe, len(opts.Timeframes)),
		traders:     opts.Traders,
		quotes:      opts.Quotes,
		scorer:      opts.Scorer,
	}
	for _, s := range opts.Strategies {
		v.strategies[s.ID] = s
	}
	for _, tf := range opts.Timeframes {
		v.timeframes[tf.Name] = tf
	}
	return v
}

// Compile-time interface check.
var _ Verifier = (*ReplayVerifier)(nil)

// VerifyRun replays one stored run and compares it with the stored outputs.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationResult, error) {
	// 1. Load stored outputs
	stored, err := v.statsStore.GetByRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	closed, err := v.closedStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	curve, err := v.curveStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 2. Replay
	replayed, err := v.replayRun(ctx, stored, curve)
	if err != nil {
		return nil, err
	}

	// 3. Compare in store order. The replayed curve carries a closing point that is never stored.
	replayedCurve := replayed.Curve
	if len(replayedCurve) > len(curve) && len(replayedCurve) > 0 {
		replayedCurve = replayedCurve[:len(replayedCurve)-1]
	}
	sort.SliceStable(replayed.Closed, func(i, j int) bool {
		a, b := replayed.Closed[i], replayed.Closed[j]
		if a.ExitTimestamp != b.ExitTimestamp {
			return a.ExitTimestamp < b.ExitTimestamp
		}
		return a.Key < b.Key
	})
	var divergences []FieldDivergence
	divergences = append(divergences, CompareRunStats(stored, &replayed.Stats)...)
	divergences = append(divergences, CompareClosedPositions(closed, replayed.Closed)...)
	divergences = append(divergences, CompareCurves(curve, replayedCurve)...)

	return &VerificationResult{
		RunID:          runID,
		StrategyID:     stored.StrategyID,
		Timeframe:      stored.Timeframe,
		Match:          len(divergences) == 0,
		Divergences:    divergences,
		StoredReturn:   stored.TotalReturnPct,
		ReplayedReturn: replayed.Stats.TotalReturnPct,
	}, nil
}

// VerifyAll verifies all stored runs.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	runs, err := v.statsStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalRuns: len(runs),
		Results:   make([]VerificationResult, 0, len(runs)),
	}

	for _, run := range runs {
		result, err := v.VerifyRun(ctx, run.RunID)
		if err != nil {
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				RunID:        run.RunID,
				StrategyID:   run.StrategyID,
				Timeframe:    run.Timeframe,
				StoredReturn: run.TotalReturnPct,
				Divergences: []FieldDivergence{
					{Field: "error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentRuns++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	return report, nil
}

// replayRun re-executes a run over the full event log, ticking up to the
// last stored curve point.
func (v *ReplayVerifier) replayRun(ctx context.Context, stored *domain.RunStats, curve []domain.CurvePoint) (domain.RunResult, error) {
	cfg, ok := v.strategies[stored.StrategyID]
	if !ok {
		return domain.RunResult{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, stored.StrategyID)
	}
	tf, ok := v.timeframes[stored.Timeframe]
	if !ok {
		return domain.RunResult{}, fmt.Errorf("%w: %s", ErrUnknownTimeframe, stored.Timeframe)
	}

	events, err := v.eventStore.GetAll(ctx)
	if err != nil {
		return domain.RunResult{}, err
	}

	opts := replay.Options{
		Strategy:        cfg,
		Timeframe:       tf,
		StartingCapital: stored.StartingCapital,
		Traders:         v.traders,
		Quotes:          v.quotes,
		Scorer:          v.scorer,
	}
	if n := len(curve); n > 0 {
		opts.EndTimestamp = curve[n-1].Timestamp
	}
	return replay.Run(ctx, opts, events)
}
