package simulation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/observability"
	"shadow-index-lab/internal/quotes"
	"shadow-index-lab/internal/replay"
	"shadow-index-lab/internal/sizing"
)

// DefaultWorkers bounds concurrent runs when RunnerOptions.Workers is unset.
const DefaultWorkers = 4

// Runner executes every strategy x timeframe combination over one event stream.
type Runner struct {
	strategies      []domain.StrategyConfig
	timeframes      []domain.Timeframe
	startingCapital float64
	traders         domain.TraderBook
	scorer          *sizing.Scorer
	cache           *quotes.Cache
	workers         int
	endTimestamp    int64
	metrics         *observability.Metrics
	log             zerolog.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Strategies      []domain.StrategyConfig
	Timeframes      []domain.Timeframe
	StartingCapital float64
	Traders         domain.TraderBook
	Scorer          *sizing.Scorer
	Quotes          quotes.Source // optional; wrapped in a shared cache
	CacheSize       int
	Workers         int
	EndTimestamp    int64 // optional; every run ticks up to this day
	Metrics         *observability.Metrics
	Logger          zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(opts RunnerOptions) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	r := &Runner{
		strategies:      opts.Strategies,
		timeframes:      opts.Timeframes,
		startingCapital: opts.StartingCapital,
		traders:         opts.Traders,
		scorer:          opts.Scorer,
		workers:         workers,
		endTimestamp:    opts.EndTimestamp,
		metrics:         opts.Metrics,
		log:             opts.Logger,
	}
	if opts.Quotes != nil {
		r.cache = quotes.NewCache(opts.Quotes, opts.CacheSize)
	}
	return r
}

// Options returns the engine options for one combination.
func (r *Runner) Options(cfg domain.StrategyConfig, tf domain.Timeframe) replay.Options {
	opts := replay.Options{
		Strategy:        cfg,
		Timeframe:       tf,
		StartingCapital: r.startingCapital,
		Traders:         r.traders,
		Scorer:          r.scorer,
		EndTimestamp:    r.endTimestamp,
	}
	if r.cache != nil {
		opts.Quotes = r.cache
	}
	return opts
}

// ResetQuotes drops cached quote lookups so the next runs see quotes added
// to the source since. A no-op without a quote source.
func (r *Runner) ResetQuotes() {
	if r.cache != nil {
		r.cache.Reset()
	}
}

// Run replays events for every combination, at most Workers at a time.
// Results come back ordered by strategy, then timeframe, as configured.
// A failing run carries its error in RunResult.Err and does not stop the others.
func (r *Runner) Run(ctx context.Context, events []domain.PositionEvent) []domain.RunResult {
	results := make([]domain.RunResult, len(r.strategies)*len(r.timeframes))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for si, cfg := range r.strategies {
		for ti, tf := range r.timeframes {
			idx := si*len(r.timeframes) + ti
			opts := r.Options(cfg, tf)
			g.Go(func() error {
				results[idx] = r.runOne(ctx, opts, events)
				return nil
			})
		}
	}
	_ = g.Wait()

	if r.cache != nil {
		hits, misses := r.cache.Stats()
		r.metrics.RecordQuoteCache(uint64(hits), uint64(misses), r.cache.Len())
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, opts replay.Options, events []domain.PositionEvent) domain.RunResult {
	if err := ctx.Err(); err != nil {
		return domain.RunResult{StrategyID: opts.Strategy.ID, Timeframe: opts.Timeframe.Name, Err: err}
	}

	start := time.Now()
	res, err := replay.Run(ctx, opts, events)
	elapsed := time.Since(start)
	r.metrics.RecordRun(res, elapsed)

	if err != nil {
		r.log.Error().Err(err).
			Str("strategy", opts.Strategy.ID).
			Str("timeframe", opts.Timeframe.Name).
			Msg("run failed")
		return res
	}
	r.log.Debug().
		Str("strategy", res.StrategyID).
		Str("timeframe", res.Timeframe).
		Float64("return_pct", res.Stats.TotalReturnPct).
		Int("trades", res.Stats.TradeCount).
		Dur("elapsed", elapsed).
		Msg("run finished")
	return res
}
