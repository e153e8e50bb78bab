// Package backend selects store implementations from configuration:
// PostgreSQL for events, snapshots and closed positions, ClickHouse for
// curves, run stats and quotes, memory for whatever has no DSN.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"shadow-index-lab/internal/config"
	"shadow-index-lab/internal/storage"
	chstore "shadow-index-lab/internal/storage/clickhouse"
	"shadow-index-lab/internal/storage/memory"
	"shadow-index-lab/internal/storage/migrations"
	pgstore "shadow-index-lab/internal/storage/postgres"
)

// Stores bundles every store the commands use.
type Stores struct {
	Events    storage.EventStore
	Snapshots storage.SnapshotStore
	Closed    storage.ClosedPositionStore
	Curves    storage.CurveStore
	Stats     storage.RunStatsStore
	Quotes    storage.QuoteStore

	closers []func()
}

// Memory returns in-memory stores.
func Memory() *Stores {
	return &Stores{
		Events:    memory.NewEventStore(),
		Snapshots: memory.NewSnapshotStore(),
		Closed:    memory.NewClosedPositionStore(),
		Curves:    memory.NewCurveStore(),
		Stats:     memory.NewRunStatsStore(),
		Quotes:    memory.NewQuoteStore(),
	}
}

// Open connects the configured databases. With migrate set, embedded
// migrations are applied first. Call Close when done.
func Open(ctx context.Context, cfg config.StorageConfig, migrate bool, log zerolog.Logger) (*Stores, error) {
	s := Memory()

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
				s.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		s.Events = pgstore.NewEventStore(pool)
		s.Snapshots = pgstore.NewSnapshotStore(pool)
		s.Closed = pgstore.NewClosedPositionStore(pool)
		log.Info().Msg("using postgres for events, snapshots and closed positions")
	}

	if cfg.ClickhouseDSN != "" {
		var (
			conn *chstore.Conn
			err  error
		)
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, log)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.Curves = chstore.NewCurveStore(conn)
		s.Stats = chstore.NewRunStatsStore(conn)
		s.Quotes = chstore.NewQuoteStore(conn)
		log.Info().Msg("using clickhouse for curves, run stats and quotes")
	}

	return s, nil
}

// Close releases database connections in reverse order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
