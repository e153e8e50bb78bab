package quotes

import (
	"context"
	"time"
)

// DateLayout is the calendar-day key used for quote lookups.
const DateLayout = "2006-01-02"

// Source returns the price of an outcome token on a UTC calendar day.
// ok is false when no quote is available; callers degrade rather than fail.
type Source interface {
	PriceAt(ctx context.Context, tokenID, date string) (price float64, ok bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, tokenID, date string) (float64, bool)

// PriceAt calls f.
func (f SourceFunc) PriceAt(ctx context.Context, tokenID, date string) (float64, bool) {
	return f(ctx, tokenID, date)
}

// None is a Source that never has a quote.
var None Source = SourceFunc(func(context.Context, string, string) (float64, bool) { return 0, false })

// DateOf formats a unix timestamp as a UTC calendar day.
func DateOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(DateLayout)
}

// DayStart truncates a non-negative unix timestamp to 00:00 UTC.
func DayStart(ts int64) int64 {
	return ts - ts%86400
}
