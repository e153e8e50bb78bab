package quotes

import (
	"context"
	"testing"
)

func TestTable_PriceAtClosestEarlier(t *testing.T) {
	tbl := NewTable()
	tbl.Set("tok", "2024-01-03", 0.3)
	tbl.Set("tok", "2024-01-01", 0.1)
	tbl.Set("tok", "2024-01-02", 0.2)
	tbl.Set("tok", "2024-01-02", 0.25) // replace

	ctx := context.Background()
	tests := []struct {
		date   string
		want   float64
		wantOK bool
	}{
		{"2023-12-31", 0, false},
		{"2024-01-01", 0.1, true},
		{"2024-01-02", 0.25, true},
		{"2024-01-10", 0.3, true},
	}
	for _, tt := range tests {
		got, ok := tbl.PriceAt(ctx, "tok", tt.date)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("PriceAt(%s) = (%v, %v), want (%v, %v)", tt.date, got, ok, tt.want, tt.wantOK)
		}
	}
	if _, ok := tbl.PriceAt(ctx, "other", "2024-01-02"); ok {
		t.Error("Unknown token should have no quote")
	}
	if tbl.Len() != 3 {
		t.Errorf("Expected 3 points, got %d", tbl.Len())
	}
	pts := tbl.Points("tok")
	if pts[0].Date != "2024-01-01" || pts[2].Date != "2024-01-03" {
		t.Errorf("Points not sorted: %+v", pts)
	}
}

func TestTable_SetAt(t *testing.T) {
	tbl := NewTable()
	tbl.SetAt("tok", 1704153600+3600, 0.42) // 2024-01-02 01:00 UTC
	got, ok := tbl.PriceAt(context.Background(), "tok", "2024-01-02")
	if !ok || got != 0.42 {
		t.Errorf("Expected 0.42 on 2024-01-02, got %v (%v)", got, ok)
	}
	if toks := tbl.Tokens(); len(toks) != 1 || toks[0] != "tok" {
		t.Errorf("Unexpected tokens %v", toks)
	}
}

func TestDateHelpers(t *testing.T) {
	if got := DateOf(1704153600); got != "2024-01-02" {
		t.Errorf("DateOf() = %s", got)
	}
	if got := DayStart(1704153600 + 7200); got != 1704153600 {
		t.Errorf("DayStart() = %d", got)
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(2)
	if !b.Take() || !b.Take() {
		t.Fatal("Expected two lookups")
	}
	if b.Take() {
		t.Error("Third lookup should be refused")
	}
	if b.Used() != 2 || b.Remaining() != 0 {
		t.Errorf("Unexpected counters used=%d remaining=%d", b.Used(), b.Remaining())
	}
	b.Reset()
	if !b.Take() {
		t.Error("Reset should restore budget")
	}
}
