package strategy

import (
	"errors"
	"testing"

	"shadow-index-lab/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.ExitConfig
		want    []domain.ExitReason
		wantErr error
	}{
		{name: "none", cfg: domain.ExitConfig{}},
		{
			name: "all in order",
			cfg: domain.ExitConfig{
				TrailingStopPct: floatPtr(0.2),
				PriceFloor:      floatPtr(0.1),
				PriceCeiling:    floatPtr(0.95),
				TimeLimitDays:   intPtr(30),
			},
			want: []domain.ExitReason{
				domain.ExitReasonTimeLimit,
				domain.ExitReasonPriceCeiling,
				domain.ExitReasonPriceFloor,
				domain.ExitReasonTrailingStop,
			},
		},
		{name: "zero days", cfg: domain.ExitConfig{TimeLimitDays: intPtr(0)}, wantErr: ErrInvalidTimeLimit},
		{name: "ceiling above one", cfg: domain.ExitConfig{PriceCeiling: floatPtr(1.2)}, wantErr: ErrInvalidPriceLevel},
		{name: "floor negative", cfg: domain.ExitConfig{PriceFloor: floatPtr(-0.1)}, wantErr: ErrInvalidPriceLevel},
		{name: "floor above ceiling", cfg: domain.ExitConfig{PriceCeiling: floatPtr(0.5), PriceFloor: floatPtr(0.6)}, wantErr: ErrFloorAboveCeiling},
		{name: "trail zero", cfg: domain.ExitConfig{TrailingStopPct: floatPtr(0)}, wantErr: ErrInvalidTrailPct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := FromConfig(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromConfig: %v", err)
			}
			if len(rules) != len(tt.want) {
				t.Fatalf("Expected %d rules, got %d", len(tt.want), len(rules))
			}
			for i, r := range rules {
				if r.Reason() != tt.want[i] {
					t.Errorf("Rule %d: expected %s, got %s", i, tt.want[i], r.Reason())
				}
			}
		})
	}
}

func TestTimeLimit_Check(t *testing.T) {
	r := TimeLimit{Days: 30}
	pos := &domain.OpenPosition{EntryTimestamp: 1_000_000}
	boundary := int64(1_000_000 + 30*86400)

	if d := r.Check(pos, boundary-1, 0, false); d.Close {
		t.Error("Should not close before the limit")
	}
	d := r.Check(pos, boundary, 0, false)
	if !d.Close || !d.AtCost {
		t.Errorf("Expected wash close at boundary, got %+v", d)
	}
	d = r.Check(pos, boundary, 0.7, true)
	if !d.Close || d.AtCost || d.Price != 0.7 {
		t.Errorf("Expected close at quote, got %+v", d)
	}
}

func TestPriceBand_Check(t *testing.T) {
	pos := &domain.OpenPosition{}
	ceiling := PriceCeiling{Level: 0.95}
	floor := PriceFloor{Level: 0.10}

	if d := ceiling.Check(pos, 0, 0.95, true); !d.Close || d.Price != 0.95 {
		t.Errorf("Ceiling should fire at level, got %+v", d)
	}
	if d := ceiling.Check(pos, 0, 0.94, true); d.Close {
		t.Error("Ceiling fired below level")
	}
	if d := floor.Check(pos, 0, 0.10, true); !d.Close {
		t.Error("Floor should fire at level")
	}
	if d := floor.Check(pos, 0, 0.05, false); d.Close {
		t.Error("Floor must not fire without a quote")
	}
}

func TestTrailingStop_Check(t *testing.T) {
	r := TrailingStop{Pct: 0.20}
	pos := &domain.OpenPosition{PeakPrice: 0.80}

	if d := r.Check(pos, 0, 0.65, true); d.Close {
		t.Error("18.75% drop should not trigger 20% stop")
	}
	d := r.Check(pos, 0, 0.60, true)
	if !d.Close || d.Price != 0.60 {
		t.Errorf("25%% drop should trigger at 0.60, got %+v", d)
	}
	if d := r.Check(&domain.OpenPosition{}, 0, 0.1, true); d.Close {
		t.Error("Zero peak must not trigger")
	}
}
