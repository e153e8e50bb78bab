package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// HistoryFetcher loads the daily price history of one token.
type HistoryFetcher interface {
	PriceHistory(ctx context.Context, tokenID string) ([]Point, error)
}

// HTTPSource serves quotes from token histories fetched on first use.
// Each token is fetched at most once; concurrent first lookups share one request.
// A failed fetch is remembered so the token degrades to "no quote".
type HTTPSource struct {
	fetcher HistoryFetcher
	table   *Table
	timeout time.Duration
	log     zerolog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	loaded map[string]struct{}
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source backed by fetcher. Fetched points are stored in table.
func NewHTTPSource(fetcher HistoryFetcher, table *Table, timeout time.Duration, log zerolog.Logger) *HTTPSource {
	if table == nil {
		table = NewTable()
	}
	return &HTTPSource{
		fetcher: fetcher,
		table:   table,
		timeout: timeout,
		log:     log,
		loaded:  make(map[string]struct{}),
	}
}

// PriceAt implements Source.
func (s *HTTPSource) PriceAt(ctx context.Context, tokenID, date string) (float64, bool) {
	if tokenID == "" {
		return 0, false
	}
	s.ensure(ctx, tokenID)
	return s.table.PriceAt(ctx, tokenID, date)
}

// Table returns the backing table.
func (s *HTTPSource) Table() *Table { return s.table }

func (s *HTTPSource) ensure(ctx context.Context, tokenID string) {
	if s.isLoaded(tokenID) {
		return
	}

	_, _, _ = s.group.Do(tokenID, func() (any, error) {
		if s.isLoaded(tokenID) {
			return nil, nil
		}
		fetchCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		points, err := s.fetcher.PriceHistory(fetchCtx, tokenID)
		if err != nil {
			s.log.Warn().Err(err).Str("token_id", tokenID).Msg("price history unavailable")
		}
		for _, p := range points {
			s.table.Set(tokenID, p.Date, p.Price)
		}

		s.mu.Lock()
		s.loaded[tokenID] = struct{}{}
		s.mu.Unlock()
		return nil, nil
	})
}

func (s *HTTPSource) isLoaded(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loaded[tokenID]
	return ok
}
