// Command fetch downloads trader activity into the event store and,
// optionally, daily price histories for every traded token.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"shadow-index-lab/internal/config"
	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/logger"
	"shadow-index-lab/internal/normalization"
	"shadow-index-lab/internal/polymarket"
	"shadow-index-lab/internal/storage/backend"
)

func main() {
	app := &cli.App{
		Name:  "fetch",
		Usage: "fetch trader activity and price histories into storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config",
				EnvVars: []string{"SHADOW_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "wallet to fetch, repeatable (default: configured traders)",
			},
			&cli.IntFlag{
				Name:  "max",
				Usage: "maximum activity rows per wallet (default: polymarket.max_activity)",
			},
			&cli.BoolFlag{
				Name:  "history",
				Usage: "also fetch daily price history for every stored token",
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
		log.Fatal().Err(err).Msg("fetch failed")
	}
}

func run(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	l := logger.New(cfg.Log).With().Str("cmd", "fetch").Logger()
	logger.SetGlobalLogger(l)

	wallets := c.StringSlice("wallet")
	if len(wallets) == 0 {
		for _, t := range cfg.Traders {
			wallets = append(wallets, t.TraderID)
		}
	}
	if len(wallets) == 0 {
		return errors.New("no wallets given and no traders configured")
	}
	limit := cfg.Polymarket.MaxActivity
	if c.IsSet("max") {
		limit = c.Int("max")
	}

	stores, err := backend.Open(ctx, cfg.Storage, c.Bool("migrate"), l)
	if err != nil {
		return err
	}
	defer stores.Close()

	client := polymarket.NewClientFromConfig(cfg.Polymarket, l)
	normalizer, err := normalization.NewNormalizer(cfg.Normalizer.ExtraNoisePatterns...)
	if err != nil {
		return err
	}

	// 1. Seed dedup with stored ids
	stored, err := stores.Events.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	for i := range stored {
		normalizer.MarkSeen(stored[i].ID)
	}

	// 2. Fetch, normalize and store per wallet
	var failed int
	for _, wallet := range wallets {
		rows, err := client.FetchActivity(ctx, wallet, limit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			l.Warn().Err(err).Str("wallet", wallet).Msg("activity fetch failed")
			continue
		}
		events, stats := normalizer.NormalizeRows(wallet, rows)
		n, err := stores.Events.InsertNew(ctx, events)
		if err != nil {
			return fmt.Errorf("store events for %s: %w", wallet, err)
		}
		stored = append(stored, events...)
		l.Info().
			Str("wallet", wallet).
			Int("rows", len(rows)).
			Int("new", n).
			Int("dropped", stats.Dropped()).
			Msg("wallet fetched")
	}

	// 3. Price histories
	if c.Bool("history") {
		if err := fetchHistories(ctx, client, stores, stored, l); err != nil {
			return err
		}
	}

	if failed == len(wallets) {
		return fmt.Errorf("all %d wallet fetches failed", failed)
	}
	return nil
}

func fetchHistories(ctx context.Context, client *polymarket.Client, stores *backend.Stores, events []domain.PositionEvent, l zerolog.Logger) error {
	tokens := make(map[string]struct{})
	for i := range events {
		if id := events[i].TokenID; id != "" {
			tokens[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := 0
	for _, id := range ids {
		points, err := client.PriceHistory(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.Warn().Err(err).Str("token_id", id).Msg("price history fetch failed")
			continue
		}
		batch := make([]domain.QuotePoint, len(points))
		for i, p := range points {
			batch[i] = domain.QuotePoint{TokenID: id, Date: p.Date, Price: p.Price}
		}
		if len(batch) == 0 {
			continue
		}
		if err := stores.Quotes.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("store quotes for %s: %w", id, err)
		}
		total += len(batch)
	}
	l.Info().Int("tokens", len(ids)).Int("quotes", total).Msg("price histories fetched")
	return nil
}
