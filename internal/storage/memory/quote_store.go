package memory

import (
	"context"
	"sort"
	"sync"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

// QuoteStore is an in-memory implementation of storage.QuoteStore.
type QuoteStore struct {
	mu   sync.RWMutex
	data map[string]map[string]float64 // token_id -> date -> price
}

// NewQuoteStore creates a new in-memory quote store.
func NewQuoteStore() *QuoteStore {
	return &QuoteStore{
		data: make(map[string]map[string]float64),
	}
}

// Compile-time interface check.
var _ storage.QuoteStore = (*QuoteStore)(nil)

// Upsert stores points, replacing existing (token_id, date) rows.
func (s *QuoteStore) Upsert(_ context.Context, points []domain.QuotePoint) error {
	for _, p := range points {
		if p.TokenID == "" || p.Date == "" {
			return storage.Invalid("quote without token or date")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		byDate := s.data[p.TokenID]
		if byDate == nil {
			byDate = make(map[string]float64)
			s.data[p.TokenID] = byDate
		}
		byDate[p.Date] = p.Price
	}
	return nil
}

// GetByToken retrieves quotes for a token ordered by date.
func (s *QuoteStore) GetByToken(_ context.Context, tokenID string) ([]domain.QuotePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return pointsOf(tokenID, s.data[tokenID]), nil
}

// GetAll retrieves all quotes ordered by token, then date.
func (s *QuoteStore) GetAll(_ context.Context) ([]domain.QuotePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]string, 0, len(s.data))
	for tok := range s.data {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	var out []domain.QuotePoint
	for _, tok := range tokens {
		out = append(out, pointsOf(tok, s.data[tok])...)
	}
	return out, nil
}

func pointsOf(tokenID string, byDate map[string]float64) []domain.QuotePoint {
	out := make([]domain.QuotePoint, 0, len(byDate))
	for date, price := range byDate {
		out = append(out, domain.QuotePoint{TokenID: tokenID, Date: date, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
