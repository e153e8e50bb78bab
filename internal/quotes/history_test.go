package quotes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeFetcher struct {
	calls  atomic.Int64
	points map[string][]Point
	err    error
}

func (f *fakeFetcher) PriceHistory(_ context.Context, tokenID string) ([]Point, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.points[tokenID], nil
}

func TestHTTPSource_FetchesOnce(t *testing.T) {
	f := &fakeFetcher{points: map[string][]Point{
		"tok": {{Date: "2024-01-01", Price: 0.2}, {Date: "2024-01-05", Price: 0.6}},
	}}
	src := NewHTTPSource(f, nil, time.Second, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src.PriceAt(ctx, "tok", "2024-01-03")
		}()
	}
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Errorf("Expected one fetch, got %d", f.calls.Load())
	}
	p, ok := src.PriceAt(ctx, "tok", "2024-01-03")
	if !ok || p != 0.2 {
		t.Errorf("Expected 0.2, got %v (%v)", p, ok)
	}
}

func TestHTTPSource_FailureDegrades(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	src := NewHTTPSource(f, NewTable(), time.Second, zerolog.Nop())
	ctx := context.Background()

	if _, ok := src.PriceAt(ctx, "tok", "2024-01-03"); ok {
		t.Error("Expected no quote after fetch failure")
	}
	src.PriceAt(ctx, "tok", "2024-01-04")
	if f.calls.Load() != 1 {
		t.Errorf("Failed token should not be refetched, got %d calls", f.calls.Load())
	}
	if _, ok := src.PriceAt(ctx, "", "2024-01-04"); ok {
		t.Error("Empty token id should have no quote")
	}
}
