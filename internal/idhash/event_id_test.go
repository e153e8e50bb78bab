package idhash

import (
	"strings"
	"testing"

	"shadow-index-lab/internal/domain"
)

func TestComputeEventID(t *testing.T) {
	tests := []struct {
		name     string
		traderID string
		txHash   string
	}{
		{name: "typical", traderID: "0xabc123", txHash: "0xdeadbeef"},
		{name: "empty hash", traderID: "0xabc123", txHash: ""},
		{name: "long hash", traderID: "0x1", txHash: strings.Repeat("f", 66)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEventID(tt.traderID, tt.txHash)
			if len(got) != 64 {
				t.Errorf("ComputeEventID() length = %d, want 64", len(got))
			}
			if got2 := ComputeEventID(tt.traderID, tt.txHash); got != got2 {
				t.Errorf("ComputeEventID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeEventID_CaseInsensitive(t *testing.T) {
	a := ComputeEventID("0xABC", "0xDEAD")
	b := ComputeEventID("0xabc", "0xdead")
	if a != b {
		t.Errorf("expected case-insensitive ids, got %s and %s", a, b)
	}
}

func TestComputeEventID_DifferentInputs(t *testing.T) {
	base := ComputeEventID("0xabc", "0x01")
	if base == ComputeEventID("0xabd", "0x01") {
		t.Error("different trader should produce different id")
	}
	if base == ComputeEventID("0xabc", "0x02") {
		t.Error("different tx hash should produce different id")
	}
}

func TestComputeFallbackEventID(t *testing.T) {
	id := ComputeFallbackEventID("0xabc", "cond|Yes", domain.EventKindEntry, 1700000000, 0.4, 100)
	if !strings.HasPrefix(id, "nohash:") {
		t.Fatalf("fallback id missing prefix: %s", id)
	}
	if id != ComputeFallbackEventID("0xabc", "cond|Yes", domain.EventKindEntry, 1700000000, 0.4, 100) {
		t.Error("fallback id not deterministic")
	}
	if id == ComputeFallbackEventID("0xabc", "cond|Yes", domain.EventKindExitSell, 1700000000, 0.4, 100) {
		t.Error("kind should change fallback id")
	}
	if id == ComputeEventID("0xabc", "") {
		t.Error("fallback id must not collide with hash-based id")
	}
}

func TestComputeRunID(t *testing.T) {
	a := ComputeRunID("fixed_1k", "3M", 1700000000, 10000)
	if len(a) != 64 {
		t.Fatalf("ComputeRunID() length = %d, want 64", len(a))
	}
	for i := 0; i < 10; i++ {
		if got := ComputeRunID("fixed_1k", "3M", 1700000000, 10000); got != a {
			t.Fatalf("Run %d: ComputeRunID() not deterministic", i)
		}
	}
	if a == ComputeRunID("fixed_1k", "6M", 1700000000, 10000) {
		t.Error("timeframe should change run id")
	}
}
