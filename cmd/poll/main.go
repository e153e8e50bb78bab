// Command poll keeps the shadow portfolios current: it fetches new trader
// activity on a schedule, advances every run from its snapshot and serves
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"shadow-index-lab/internal/config"
	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/logger"
	"shadow-index-lab/internal/normalization"
	"shadow-index-lab/internal/observability"
	"shadow-index-lab/internal/polymarket"
	"shadow-index-lab/internal/quotes"
	"shadow-index-lab/internal/simulation"
	"shadow-index-lab/internal/sizing"
	"shadow-index-lab/internal/storage"
	"shadow-index-lab/internal/storage/backend"
)

func main() {
	app := &cli.App{
		Name:  "poll",
		Usage: "poll trader activity and advance every shadow portfolio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config",
				EnvVars: []string{"SHADOW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "cron spec overriding poll.schedule",
				EnvVars: []string{"SHADOW_POLL_SCHEDULE"},
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "listen address overriding poll.metrics_addr, empty disables",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "run a single pass and exit",
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
		log.Fatal().Err(err).Msg("poll failed")
	}
}

func run(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if s := c.String("schedule"); s != "" {
		cfg.Poll.Schedule = s
	}
	if c.IsSet("metrics-addr") {
		cfg.Poll.MetricsAddr = c.String("metrics-addr")
	}
	l := logger.New(cfg.Log).With().Str("cmd", "poll").Logger()
	logger.SetGlobalLogger(l)

	if len(cfg.Traders) == 0 {
		return errors.New("no traders configured")
	}

	stores, err := backend.Open(ctx, cfg.Storage, c.Bool("migrate"), l)
	if err != nil {
		return err
	}
	defer stores.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("", reg)
	var srv *http.Server
	if addr := cfg.Poll.MetricsAddr; addr != "" && !c.Bool("once") {
		srv = serveMetrics(addr, reg, l)
	}

	// Quotes: stored table, lazily extended from the CLOB history API
	client := polymarket.NewClientFromConfig(cfg.Polymarket, l)
	table, err := storage.LoadQuoteTable(ctx, stores.Quotes)
	if err != nil {
		return err
	}
	src := quotes.NewHTTPSource(client, table, cfg.Quotes.HistoryTimeout, l)

	if cfg.Quotes.LiveFeed && !c.Bool("once") {
		feed, err := startFeed(ctx, cfg, stores, table, m, l)
		if err != nil {
			l.Warn().Err(err).Msg("live feed unavailable, using price history only")
		} else {
			defer feed.Close()
		}
	}

	normalizer, err := normalization.NewNormalizer(cfg.Normalizer.ExtraNoisePatterns...)
	if err != nil {
		return err
	}

	// Timeframes are anchored once per process; run ids follow the anchor.
	timeframes := cfg.ResolveTimeframes(time.Now().UTC())
	runner := simulation.NewRunner(simulation.RunnerOptions{
		Strategies:      cfg.Strategies,
		Timeframes:      timeframes,
		StartingCapital: cfg.StartingCapital,
		Traders:         cfg.TraderBook(),
		Scorer:          sizing.DefaultScorer(),
		Quotes:          src,
		CacheSize:       cfg.Quotes.CacheSize,
		Workers:         cfg.Workers,
		Metrics:         m,
		Logger:          l,
	})

	wallets := make([]string, len(cfg.Traders))
	for i, t := range cfg.Traders {
		wallets[i] = t.TraderID
	}
	poller, err := simulation.NewPoller(simulation.PollerOptions{
		Runner:              runner,
		Wallets:             wallets,
		Fetcher:             client,
		MaxActivity:         cfg.Polymarket.MaxActivity,
		Normalizer:          normalizer,
		EventStore:          stores.Events,
		SnapshotStore:       stores.Snapshots,
		ClosedPositionStore: stores.Closed,
		CurveStore:          stores.Curves,
		RunStatsStore:       stores.Stats,
		Metrics:             m,
		Logger:              l,
	})
	if err != nil {
		return err
	}

	// First pass runs immediately.
	res, err := poller.Pass(ctx)
	if err != nil {
		return err
	}
	if err := storage.SaveQuoteTable(ctx, stores.Quotes, table); err != nil {
		l.Warn().Err(err).Msg("quote table not saved")
	}
	if c.Bool("once") {
		for _, e := range res.Errors {
			l.Warn().Str("pass_id", res.PassID).Msg(e)
		}
		return nil
	}

	sched, err := poller.Start(ctx, cfg.Poll.Schedule)
	if err != nil {
		return err
	}
	l.Info().Str("schedule", cfg.Poll.Schedule).Int("wallets", len(wallets)).Msg("polling started")

	<-ctx.Done()
	l.Info().Msg("shutting down")

	// Wait for a running pass, then persist quotes learned since startup.
	<-sched.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := storage.SaveQuoteTable(shutdownCtx, stores.Quotes, table); err != nil {
		l.Warn().Err(err).Msg("quote table not saved")
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, l zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.HandlerFor(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	l.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}

// startFeed subscribes the live market channel to every token seen in stored events.
func startFeed(ctx context.Context, cfg *config.Config, stores *backend.Stores, table *quotes.Table,
	m *observability.Metrics, l zerolog.Logger) (*quotes.Feed, error) {
	events, err := stores.Events.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	feed, err := quotes.NewFeed(ctx, cfg.Quotes.FeedURL, table, nil, l, func(quotes.PriceUpdate) {
		m.RecordFeedUpdate()
	})
	if err != nil {
		return nil, err
	}
	if err := feed.Subscribe(tokenIDs(events)...); err != nil {
		_ = feed.Close()
		return nil, err
	}
	return feed, nil
}

func tokenIDs(events []domain.PositionEvent) []string {
	seen := make(map[string]struct{})
	for i := range events {
		if id := events[i].TokenID; id != "" {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
