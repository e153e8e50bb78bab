// Command backtest replays every configured strategy and timeframe over the
// stored event log and writes a comparison report.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"shadow-index-lab/internal/config"
	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/logger"
	"shadow-index-lab/internal/metrics"
	"shadow-index-lab/internal/normalization"
	"shadow-index-lab/internal/polymarket"
	"shadow-index-lab/internal/quotes"
	"shadow-index-lab/internal/reporting"
	"shadow-index-lab/internal/simulation"
	"shadow-index-lab/internal/sizing"
	"shadow-index-lab/internal/storage"
	"shadow-index-lab/internal/storage/backend"
	"shadow-index-lab/internal/verification"
)

func main() {
	app := &cli.App{
		Name:  "backtest",
		Usage: "replay stored trader activity through every strategy and timeframe",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config",
				EnvVars: []string{"SHADOW_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "out",
				Value: "reports",
				Usage: "directory for report.md and report.csv",
			},
			&cli.StringFlag{
				Name:  "as-of",
				Usage: "anchor day for the timeframes (YYYY-MM-DD, default today UTC)",
			},
			&cli.IntFlag{
				Name:  "top",
				Value: reporting.DefaultLeaderboardSize,
				Usage: "traders per timeframe leaderboard",
			},
			&cli.BoolFlag{
				Name:  "persist",
				Usage: "store closed positions, curves, stats and fetched quotes",
			},
			&cli.BoolFlag{
				Name:  "fetch-quotes",
				Usage: "fetch missing price histories from the CLOB API",
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "re-run stored runs and report divergences",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "apply database migrations first",
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
}

func run(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	l := logger.New(cfg.Log).With().Str("cmd", "backtest").Logger()
	logger.SetGlobalLogger(l)

	anchor, err := parseAnchor(c.String("as-of"))
	if err != nil {
		return err
	}

	stores, err := backend.Open(ctx, cfg.Storage, c.Bool("migrate"), l)
	if err != nil {
		return err
	}
	defer stores.Close()

	// 1. Load events
	events, err := stores.Events.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return errors.New("no stored events, run fetch first")
	}
	timeframes := cfg.ResolveTimeframes(anchor)

	// 2. Score traders from their own closed positions
	traderStats := metrics.ComputeTraderStats(normalization.AggregatePositions(events), timeframes)
	book := metrics.BuildTraderBook(cfg.TraderBook(), traderStats)

	// 3. Quotes
	table, err := storage.LoadQuoteTable(ctx, stores.Quotes)
	if err != nil {
		return err
	}
	var src quotes.Source = table
	if c.Bool("fetch-quotes") {
		client := polymarket.NewClientFromConfig(cfg.Polymarket, l)
		src = quotes.NewHTTPSource(client, table, cfg.Quotes.HistoryTimeout, l)
	}

	// 4. Replay
	scorer := sizing.DefaultScorer()
	runner := simulation.NewRunner(simulation.RunnerOptions{
		Strategies:      cfg.Strategies,
		Timeframes:      timeframes,
		StartingCapital: cfg.StartingCapital,
		Traders:         book,
		Scorer:          scorer,
		Quotes:          src,
		CacheSize:       cfg.Quotes.CacheSize,
		Workers:         cfg.Workers,
		EndTimestamp:    anchor.Unix(),
		Logger:          l,
	})
	started := time.Now()
	results := runner.Run(ctx, events)
	l.Info().
		Int("events", len(events)).
		Int("runs", len(results)).
		Dur("elapsed", time.Since(started)).
		Msg("replay finished")

	if c.Bool("persist") {
		if err := persist(ctx, stores, results); err != nil {
			return err
		}
		if err := storage.SaveQuoteTable(ctx, stores.Quotes, table); err != nil {
			return err
		}
	}

	// 5. Report
	report := reporting.NewGenerator(stores.Stats).
		WithTimeframes(cfg.Timeframes).
		WithTraders(traderStats, book, c.Int("top")).
		FromResults(results)
	if err := writeReport(c.String("out"), report); err != nil {
		return err
	}
	l.Info().Str("dir", c.String("out")).Int("failures", len(report.Failures)).Msg("report written")

	if c.Bool("verify") {
		if !c.Bool("persist") {
			l.Warn().Msg("verifying runs stored by earlier passes, this run was not persisted")
		}
		return verify(ctx, cfg, stores, timeframes, book, src, scorer, l)
	}
	return nil
}

// parseAnchor returns the timeframe anchor: the given day, or today, at 00:00 UTC.
func parseAnchor(s string) (time.Time, error) {
	if s == "" {
		return time.Unix(quotes.DayStart(time.Now().Unix()), 0).UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --as-of: %w", err)
	}
	return t.UTC(), nil
}

// persist stores each successful run. Curves are stored without the closing
// point, matching what the poller writes.
func persist(ctx context.Context, stores *backend.Stores, results []domain.RunResult) error {
	for i := range results {
		res := &results[i]
		if res.Err != nil {
			continue
		}
		if len(res.Closed) > 0 {
			if err := stores.Closed.InsertBulk(ctx, res.Closed); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("store closed positions: %w", err)
			}
		}
		if n := len(res.Curve); n > 1 {
			if err := stores.Curves.InsertBulk(ctx, res.Stats.RunID, res.Curve[:n-1]); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("store curve: %w", err)
			}
		}
		stats := res.Stats
		if err := stores.Stats.Upsert(ctx, &stats); err != nil {
			return fmt.Errorf("store stats: %w", err)
		}
	}
	return nil
}

func writeReport(dir string, report *reporting.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.csv"), []byte(reporting.RenderCSV(report.Rows)), 0o644); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func verify(ctx context.Context, cfg *config.Config, stores *backend.Stores, timeframes []domain.Timeframe,
	book domain.TraderBook, src quotes.Source, scorer *sizing.Scorer, l zerolog.Logger) error {
	v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		EventStore:          stores.Events,
		RunStatsStore:       stores.Stats,
		ClosedPositionStore: stores.Closed,
		CurveStore:          stores.Curves,
		Strategies:          cfg.Strategies,
		Timeframes:          timeframes,
		Traders:             book,
		Quotes:              src,
		Scorer:              scorer,
	})
	rep, err := v.VerifyAll(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	for _, r := range rep.Results {
		if r.Match {
			continue
		}
		for _, d := range r.Divergences {
			l.Warn().
				Str("run_id", r.RunID).
				Str("field", d.Field).
				Interface("expected", d.Expected).
				Interface("actual", d.Actual).
				Msg("divergence")
		}
	}
	l.Info().
		Int("total", rep.TotalRuns).
		Int("matched", rep.MatchedRuns).
		Int("divergent", rep.DivergentRuns).
		Msg("verification finished")
	if rep.DivergentRuns > 0 {
		return fmt.Errorf("%d of %d runs diverged", rep.DivergentRuns, rep.TotalRuns)
	}
	return nil
}
