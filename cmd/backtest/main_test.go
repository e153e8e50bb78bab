package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/reporting"
	"shadow-index-lab/internal/storage/backend"
)

func TestParseAnchor(t *testing.T) {
	got, err := parseAnchor("2024-03-15")
	if err != nil {
		t.Fatalf("parseAnchor: %v", err)
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if _, err := parseAnchor("15/03/2024"); err == nil {
		t.Error("Expected error for malformed date")
	}

	now, err := parseAnchor("")
	if err != nil {
		t.Fatalf("parseAnchor empty: %v", err)
	}
	if now.Unix()%86400 != 0 {
		t.Errorf("Expected day start, got %v", now)
	}
}

func TestPersist_StoresTicksOnly(t *testing.T) {
	ctx := context.Background()
	stores := backend.Memory()

	results := []domain.RunResult{
		{
			StrategyID: "fixed",
			Timeframe:  "ALL",
			Curve: []domain.CurvePoint{
				{Date: "2024-01-01", Timestamp: 1704067200, Value: 100},
				{Date: "2024-01-02", Timestamp: 1704153600, Value: 110},
				{Date: "2024-01-03", Timestamp: 1704240000, Value: 110},
			},
			Stats: domain.RunStats{RunID: "run-a", StrategyID: "fixed", Timeframe: "ALL"},
			Closed: []domain.ClosedPosition{
				{RunID: "run-a", Key: "k1", ExitTimestamp: 1704153600, PnL: 10},
			},
		},
		{StrategyID: "broken", Timeframe: "ALL", Err: domain.ErrInvalidConfig},
	}

	if err := persist(ctx, stores, results); err != nil {
		t.Fatalf("persist: %v", err)
	}
	// Persisting twice is safe.
	if err := persist(ctx, stores, results); err != nil {
		t.Fatalf("persist again: %v", err)
	}

	curve, _ := stores.Curves.GetByRun(ctx, "run-a")
	if len(curve) != 2 {
		t.Errorf("Expected 2 stored curve points, got %d", len(curve))
	}
	closed, _ := stores.Closed.GetByRun(ctx, "run-a")
	if len(closed) != 1 {
		t.Errorf("Expected 1 closed position, got %d", len(closed))
	}
	all, _ := stores.Stats.GetAll(ctx)
	if len(all) != 1 {
		t.Errorf("Expected failed run to be skipped, got %d stats", len(all))
	}
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	report := reporting.NewGenerator(backend.Memory().Stats).FromResults(nil)

	if err := writeReport(dir, report); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	md, err := os.ReadFile(filepath.Join(dir, "report.md"))
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if !strings.HasPrefix(string(md), "# Shadow Index Strategy Comparison") {
		t.Errorf("Unexpected markdown: %q", string(md))
	}
	if _, err := os.Stat(filepath.Join(dir, "report.csv")); err != nil {
		t.Errorf("Expected csv: %v", err)
	}
}
