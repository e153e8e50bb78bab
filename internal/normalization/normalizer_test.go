package normalization

import (
	"math"
	"testing"

	"shadow-index-lab/internal/domain"
)

const wallet = "0xTRADER"

func TestNormalize_BuySellRedeem(t *testing.T) {
	payload := []byte(`[
		{"type":"TRADE","side":"BUY","price":0.4,"usdcSize":400,"size":1000,"timestamp":1700000000,
		 "title":"Will it rain?","conditionId":"0xc1","outcome":"Yes","asset":"tok1","transactionHash":"0xa1"},
		{"type":"TRADE","side":"SELL","price":"0.55","usdcSize":"275","size":"500","timestamp":1700086400,
		 "title":"Will it rain?","conditionId":"0xc1","outcome":"Yes","asset":"tok1","transactionHash":"0xa2"},
		{"type":"REDEMPTION","usdcSize":500,"size":500,"timestamp":1700172800,
		 "title":"Will it rain?","conditionId":"0xc1","outcome":"Yes","transactionHash":"0xa3"}
	]`)

	n, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	events, stats, err := n.Normalize(wallet, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(events) != 3 || stats.Accepted != 3 {
		t.Fatalf("Expected 3 events, got %d (stats %+v)", len(events), stats)
	}

	buy := events[0]
	if buy.Kind != domain.EventKindEntry {
		t.Errorf("Event 0: expected ENTRY, got %s", buy.Kind)
	}
	if buy.TraderID != "0xtrader" {
		t.Errorf("Expected lower-cased trader id, got %s", buy.TraderID)
	}
	if buy.MarketKey != "0xc1|Yes" {
		t.Errorf("Expected market key 0xc1|Yes, got %s", buy.MarketKey)
	}
	if buy.TokenID != "tok1" || buy.TraderNotional != 400 || buy.Shares != 1000 {
		t.Errorf("Unexpected buy fields: %+v", buy)
	}

	sell := events[1]
	if sell.Kind != domain.EventKindExitSell || sell.Price != 0.55 || sell.TraderNotional != 275 {
		t.Errorf("Numbers-as-strings not parsed: %+v", sell)
	}

	redeem := events[2]
	if redeem.Kind != domain.EventKindExitRedeem {
		t.Errorf("Event 2: expected EXIT_REDEEM, got %s", redeem.Kind)
	}
	if redeem.Price != 1.0 {
		t.Errorf("Expected redemption price 1.0, got %v", redeem.Price)
	}
}

func TestNormalize_DropsDefectiveRows(t *testing.T) {
	payload := []byte(`[
		{"type":"TRADE","side":"BUY","price":0.4,"size":10,"conditionId":"0xc1","outcome":"Yes","transactionHash":"0x1"},
		{"type":"TRADE","side":"BUY","size":10,"timestamp":1700000000,"conditionId":"0xc1","outcome":"Yes","transactionHash":"0x2"},
		{"type":"TRADE","side":"BUY","price":0.4,"size":10,"timestamp":1700000000,"outcome":"Yes","transactionHash":"0x3"},
		{"type":"TRADE","side":"BUY","price":1.7,"size":10,"timestamp":1700000000,"conditionId":"0xc1","transactionHash":"0x4"},
		{"type":"REWARD","usdcSize":5,"timestamp":1700000000,"conditionId":"0xc1","transactionHash":"0x5"},
		{"type":"TRADE","side":"BUY","price":0.5,"size":10,"timestamp":1700000000,"title":"Bitcoin Up or Down - March 3, 4:15PM-4:30PM ET","conditionId":"0xc2","transactionHash":"0x6"}
	]`)

	n, err := NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	events, stats, err := n.Normalize(wallet, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("Expected all rows dropped, got %d events", len(events))
	}
	want := NormalizeStats{Total: 6, MissingTimestamp: 1, MissingPrice: 2, MissingMarket: 1, Unsupported: 1, Noise: 1}
	if stats != want {
		t.Errorf("Stats mismatch:\n got  %+v\n want %+v", stats, want)
	}
	if stats.Dropped() != 6 {
		t.Errorf("Expected 6 dropped, got %d", stats.Dropped())
	}
}

func TestNormalize_InvalidPayload(t *testing.T) {
	n, _ := NewNormalizer()
	if _, _, err := n.Normalize(wallet, []byte(`{not json`)); err == nil {
		t.Error("Expected error for invalid json")
	}
	if _, _, err := n.Normalize(wallet, []byte(`{"a":1}`)); err == nil {
		t.Error("Expected error for non-array payload")
	}
}

func TestNormalize_DedupeAcrossPasses(t *testing.T) {
	payload := []byte(`[
		{"type":"TRADE","side":"BUY","price":0.4,"usdcSize":40,"size":100,"timestamp":1700000000,"conditionId":"0xc1","outcome":"Yes","transactionHash":"0xaa"},
		{"type":"TRADE","side":"BUY","price":0.4,"usdcSize":40,"size":100,"timestamp":1700000000,"conditionId":"0xc1","outcome":"Yes","transactionHash":"0xAA"}
	]`)

	n, _ := NewNormalizer()
	first, stats, err := n.Normalize(wallet, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(first) != 1 || stats.Duplicates != 1 {
		t.Fatalf("Pass 1: expected 1 event and 1 duplicate, got %d / %d", len(first), stats.Duplicates)
	}

	second, stats, err := n.Normalize(wallet, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(second) != 0 || stats.Duplicates != 2 {
		t.Errorf("Pass 2: expected 0 events and 2 duplicates, got %d / %d", len(second), stats.Duplicates)
	}

	// A fresh normalizer restored from the persisted seen set behaves the same.
	restored, _ := NewNormalizer()
	restored.MarkSeen(n.SeenIDs()...)
	third, _, _ := restored.Normalize(wallet, payload)
	if len(third) != 0 {
		t.Errorf("Restored normalizer admitted %d duplicate events", len(third))
	}
}

func TestNormalize_ExtraNoisePattern(t *testing.T) {
	n, err := NewNormalizer(`(?i)^ETH above`)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	if !n.IsNoise("ETH above $4000 on Friday?") {
		t.Error("Expected extra pattern to match")
	}
	if !n.IsNoise("xrp up or down - june 1, 9:00am et") {
		t.Error("Expected default pattern to match case-insensitively")
	}
	if n.IsNoise("Will the Fed cut rates in March?") {
		t.Error("Unexpected noise match")
	}

	if _, err := NewNormalizer(`([`); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{1700000000, 1700000000},
		{1700000000123, 1700000000},
		{0, 0},
	}
	for _, tt := range tests {
		if got := NormalizeTimestamp(tt.in); got != tt.want {
			t.Errorf("NormalizeTimestamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRedemptionPrice(t *testing.T) {
	tests := []struct {
		name    string
		hasUSDC bool
		usdc    float64
		size    float64
		want    float64
	}{
		{"winning side", true, 100, 100, 1.0},
		{"losing side", true, 0, 100, 0},
		{"overpaid clamps", true, 150, 100, 1.0},
		{"partial", true, 50, 100, 0.5},
		{"missing usdc", false, 0, 100, 1.0},
		{"missing size", true, 100, 0, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedemptionPrice(tt.hasUSDC, tt.usdc, tt.size)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RedemptionPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterSince(t *testing.T) {
	events := []domain.PositionEvent{{Timestamp: 100}, {Timestamp: 200}, {Timestamp: 300}}
	if got := FilterSince(events, 0); len(got) != 3 {
		t.Errorf("Zero baseline: expected 3, got %d", len(got))
	}
	got := FilterSince(events, 200)
	if len(got) != 2 || got[0].Timestamp != 200 {
		t.Errorf("Baseline 200: unexpected result %+v", got)
	}
}
