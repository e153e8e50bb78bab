package quotes

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func countingSource(calls *atomic.Int64) Source {
	return SourceFunc(func(_ context.Context, tokenID, date string) (float64, bool) {
		calls.Add(1)
		if tokenID == "missing" {
			return 0, false
		}
		return 0.5, true
	})
}

func TestCache_MemoizesHitsAndMisses(t *testing.T) {
	var calls atomic.Int64
	c := NewCache(countingSource(&calls), 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if p, ok := c.PriceAt(ctx, "tok", "2024-01-01"); !ok || p != 0.5 {
			t.Fatalf("Unexpected quote %v %v", p, ok)
		}
		if _, ok := c.PriceAt(ctx, "missing", "2024-01-01"); ok {
			t.Fatal("Expected miss")
		}
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 underlying calls, got %d", calls.Load())
	}
	hits, misses := c.Stats()
	if hits != 4 || misses != 2 {
		t.Errorf("Expected 4 hits 2 misses, got %d/%d", hits, misses)
	}
}

func TestCache_BoundedFIFO(t *testing.T) {
	var calls atomic.Int64
	c := NewCache(countingSource(&calls), 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.PriceAt(ctx, fmt.Sprintf("t%d", i), "d")
	}
	if c.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", c.Len())
	}

	// t0 and t1 were evicted; t4 is cached.
	before := calls.Load()
	c.PriceAt(ctx, "t4", "d")
	if calls.Load() != before {
		t.Error("t4 should be cached")
	}
	c.PriceAt(ctx, "t0", "d")
	if calls.Load() != before+1 {
		t.Error("t0 should have been evicted")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	var calls atomic.Int64
	c := NewCache(countingSource(&calls), 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.PriceAt(ctx, fmt.Sprintf("t%d", (i+w)%100), "d")
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Cache exceeded bound: %d", c.Len())
	}
}

func TestCache_ResetSeesTableUpdates(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()
	c := NewCache(tbl, 10)

	if _, ok := c.PriceAt(ctx, "tok", "2024-01-02"); ok {
		t.Fatal("Expected miss on empty table")
	}
	tbl.Set("tok", "2024-01-02", 0.42)
	if _, ok := c.PriceAt(ctx, "tok", "2024-01-02"); ok {
		t.Fatal("Expected the cached miss before Reset")
	}

	c.Reset()
	if c.Len() != 0 {
		t.Fatalf("Expected empty cache after Reset, got %d", c.Len())
	}
	if p, ok := c.PriceAt(ctx, "tok", "2024-01-02"); !ok || p != 0.42 {
		t.Fatalf("Expected 0.42 after Reset, got %v %v", p, ok)
	}

	tbl.Set("tok", "2024-01-02", 0.20)
	c.Reset()
	if p, ok := c.PriceAt(ctx, "tok", "2024-01-02"); !ok || p != 0.20 {
		t.Errorf("Expected 0.20 after second Reset, got %v %v", p, ok)
	}
	if _, misses := c.Stats(); misses != 4 {
		t.Errorf("Expected 4 misses kept across resets, got %d", misses)
	}
}
