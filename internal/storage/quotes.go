package storage

import (
	"context"
	"fmt"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/quotes"
)

// LoadQuoteTable reads every stored quote into a lookup table.
func LoadQuoteTable(ctx context.Context, store QuoteStore) (*quotes.Table, error) {
	points, err := store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load quotes: %w", err)
	}
	tbl := quotes.NewTable()
	for _, p := range points {
		tbl.Set(p.TokenID, p.Date, p.Price)
	}
	return tbl, nil
}

// SaveQuoteTable upserts every point of a table.
func SaveQuoteTable(ctx context.Context, store QuoteStore, tbl *quotes.Table) error {
	var points []domain.QuotePoint
	for _, token := range tbl.Tokens() {
		for _, p := range tbl.Points(token) {
			points = append(points, domain.QuotePoint{TokenID: token, Date: p.Date, Price: p.Price})
		}
	}
	if len(points) == 0 {
		return nil
	}
	if err := store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("save quotes: %w", err)
	}
	return nil
}
