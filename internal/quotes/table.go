package quotes

import (
	"context"
	"sort"
	"sync"
)

// Point is one dated quote.
type Point struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Table is an in-memory quote table keyed by token and day.
// PriceAt returns the quote for the day or the closest earlier day.
// Safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	tokens map[string][]Point // sorted by date
}

var _ Source = (*Table)(nil)

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{tokens: make(map[string][]Point)}
}

// Set stores the price for a token on a day, replacing any existing quote.
func (t *Table) Set(tokenID, date string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pts := t.tokens[tokenID]
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Date >= date })
	if i < len(pts) && pts[i].Date == date {
		pts[i].Price = price
		return
	}
	pts = append(pts, Point{})
	copy(pts[i+1:], pts[i:])
	pts[i] = Point{Date: date, Price: price}
	t.tokens[tokenID] = pts
}

// SetAt stores a price observed at a unix timestamp.
func (t *Table) SetAt(tokenID string, ts int64, price float64) {
	t.Set(tokenID, DateOf(ts), price)
}

// PriceAt implements Source.
func (t *Table) PriceAt(_ context.Context, tokenID, date string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pts := t.tokens[tokenID]
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Date > date })
	if i == 0 {
		return 0, false
	}
	return pts[i-1].Price, true
}

// Tokens returns the token ids in the table, sorted.
func (t *Table) Tokens() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.tokens))
	for id := range t.tokens {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Points returns a copy of the quotes for a token.
func (t *Table) Points(tokenID string) []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	src := t.tokens[tokenID]
	out := make([]Point, len(src))
	copy(out, src)
	return out
}

// Len returns the number of stored quotes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, pts := range t.tokens {
		n += len(pts)
	}
	return n
}
