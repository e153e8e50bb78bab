package clickhouse

import (
	"context"
	"fmt"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// QuoteStore implements storage.QuoteStore using ClickHouse.
type QuoteStore struct {
	conn *Conn
}

// NewQuoteStore creates a new QuoteStore.
func NewQuoteStore(conn *Conn) *QuoteStore {
	return &QuoteStore{conn: conn}
}

// Compile-time interface check.
var _ storage.QuoteStore = (*QuoteStore)(nil)

// Upsert stores points. ReplacingMergeTree keeps the latest row per (token_id, date).
func (s *QuoteStore) Upsert(ctx context.Context, points []domain.QuotePoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.TokenID == "" || p.Date == "" {
			return storage.Invalid("quote without token or date")
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO token_quotes (token_id, date, price)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(p.TokenID, p.Date, p.Price); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByToken retrieves quotes for a token ordered by date.
func (s *QuoteStore) GetByToken(ctx context.Context, tokenID string) ([]domain.QuotePoint, error) {
	return s.query(ctx, `
		SELECT token_id, date, price
		FROM token_quotes FINAL
		WHERE token_id = ?
		ORDER BY date ASC
	`, tokenID)
}

// GetAll retrieves all quotes ordered by token, then date.
func (s *QuoteStore) GetAll(ctx context.Context) ([]domain.QuotePoint, error) {
	return s.query(ctx, `
		SELECT token_id, date, price
		FROM token_quotes FINAL
		ORDER BY token_id ASC, date ASC
	`)
}

func (s *QuoteStore) query(ctx context.Context, query string, args ...any) ([]domain.QuotePoint, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query token quotes: %w", err)
	}
	defer rows.Close()

	var out []domain.QuotePoint
	for rows.Next() {
		var p domain.QuotePoint
		if err := rows.Scan(&p.TokenID, &p.Date, &p.Price); err != nil {
			return nil, fmt.Errorf("scan token quote row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token quote rows: %w", err)
	}
	return out, nil
}
