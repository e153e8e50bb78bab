package migrations

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"shadow-index-lab/internal/storage/postgres"
)

// RunPostgresMigrations creates the event, snapshot and closed position
// tables. pgx runs a whole file as one simple-protocol batch.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, log zerolog.Logger) error {
	files, err := load(postgresDir)
	if err != nil {
		return err
	}
	for _, m := range files {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		log.Debug().Str("file", m.name).Msg("postgres migration applied")
	}
	log.Info().Int("files", len(files)).Msg("postgres schema up to date")
	return nil
}
