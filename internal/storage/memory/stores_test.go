package memory

import (
	"context"
	"errors"
	"testing"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/quotes"
	"shadow-index-lab/internal/storage"
)

func TestSnapshotStore_SaveReplaces(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "run1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	data := []byte{1, 2, 3}
	if err := store.Save(ctx, &domain.RunSnapshot{RunID: "run1", Tick: 10, Data: data}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data[0] = 9 // caller's buffer must not alias the stored copy

	if err := store.Save(ctx, &domain.RunSnapshot{RunID: "run1", Tick: 20, Data: []byte{4}}); err != nil {
		t.Fatalf("Second save: %v", err)
	}
	got, err := store.Load(ctx, "run1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Tick != 20 || len(got.Data) != 1 || got.Data[0] != 4 {
		t.Errorf("Expected latest snapshot, got %+v", got)
	}

	_ = store.Delete(ctx, "run1")
	if _, err := store.Load(ctx, "run1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestSnapshotStore_InvalidInput(t *testing.T) {
	store := NewSnapshotStore()
	err := store.Save(context.Background(), &domain.RunSnapshot{RunID: "run1"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput for empty data, got %v", err)
	}
	if want := "invalid input: snapshot without run id or data"; err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestClosedPositionStore_InsertAndGet(t *testing.T) {
	store := NewClosedPositionStore()
	ctx := context.Background()

	records := []domain.ClosedPosition{
		{RunID: "run1", Key: "t1|m2", ExitTimestamp: 200, PnL: 5},
		{RunID: "run1", Key: "t1|m1", ExitTimestamp: 200, PnL: -1},
		{RunID: "run1", Key: "t1|m1", ExitTimestamp: 100, PnL: 2},
		{RunID: "run2", Key: "t1|m1", ExitTimestamp: 100},
	}
	if err := store.InsertBulk(ctx, records); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	got, _ := store.GetByRun(ctx, "run1")
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	if got[0].ExitTimestamp != 100 || got[1].Key != "t1|m1" || got[2].Key != "t1|m2" {
		t.Errorf("Unexpected order: %+v", got)
	}
}

func TestClosedPositionStore_DuplicateKey(t *testing.T) {
	store := NewClosedPositionStore()
	ctx := context.Background()
	rec := domain.ClosedPosition{RunID: "run1", Key: "t1|m1", ExitTimestamp: 100}

	if err := store.InsertBulk(ctx, []domain.ClosedPosition{rec}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.InsertBulk(ctx, []domain.ClosedPosition{rec}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	other := domain.ClosedPosition{RunID: "run1", Key: "t1|m9", ExitTimestamp: 100}
	if err := store.InsertBulk(ctx, []domain.ClosedPosition{other, other}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
	got, _ := store.GetByRun(ctx, "run1")
	if len(got) != 1 {
		t.Errorf("Failed batch must not insert partially, got %d records", len(got))
	}
}

func TestCurveStore_InsertAndGet(t *testing.T) {
	store := NewCurveStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, "run1", []domain.CurvePoint{
		{Date: "2024-01-02", Timestamp: 200, Value: 110},
		{Date: "2024-01-01", Timestamp: 100, Value: 100},
	}); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}
	if err := store.InsertBulk(ctx, "run1", []domain.CurvePoint{{Timestamp: 100}}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByRun(ctx, "run1")
	if len(got) != 2 || got[0].Timestamp != 100 || got[1].Value != 110 {
		t.Errorf("Unexpected curve %+v", got)
	}
}

func TestRunStatsStore_Upsert(t *testing.T) {
	store := NewRunStatsStore()
	ctx := context.Background()

	stats := &domain.RunStats{RunID: "r1", StrategyID: "b", Timeframe: "3M", Skipped: map[string]int{"zero_size": 1}}
	_ = store.Upsert(ctx, stats)
	stats.Skipped["zero_size"] = 99
	_ = store.Upsert(ctx, &domain.RunStats{RunID: "r2", StrategyID: "a", Timeframe: "ALL"})

	got, err := store.GetByRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if got.Skipped["zero_size"] != 1 {
		t.Errorf("Stored stats should not alias caller maps, got %v", got.Skipped)
	}

	_ = store.Upsert(ctx, &domain.RunStats{RunID: "r1", StrategyID: "b", Timeframe: "3M", TradeCount: 7})
	all, _ := store.GetAll(ctx)
	if len(all) != 2 || all[0].StrategyID != "a" || all[1].TradeCount != 7 {
		t.Errorf("Unexpected stats %+v", all)
	}

	if _, err := store.GetByRun(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestQuoteStore_UpsertAndLoadTable(t *testing.T) {
	store := NewQuoteStore()
	ctx := context.Background()

	_ = store.Upsert(ctx, []domain.QuotePoint{
		{TokenID: "tok", Date: "2024-01-02", Price: 0.6},
		{TokenID: "tok", Date: "2024-01-01", Price: 0.5},
	})
	_ = store.Upsert(ctx, []domain.QuotePoint{{TokenID: "tok", Date: "2024-01-02", Price: 0.7}})

	got, _ := store.GetByToken(ctx, "tok")
	if len(got) != 2 || got[0].Price != 0.5 || got[1].Price != 0.7 {
		t.Fatalf("Unexpected quotes %+v", got)
	}

	tbl, err := storage.LoadQuoteTable(ctx, store)
	if err != nil {
		t.Fatalf("LoadQuoteTable: %v", err)
	}
	if p, ok := tbl.PriceAt(ctx, "tok", "2024-01-05"); !ok || p != 0.7 {
		t.Errorf("Expected carried-forward 0.7, got %v %v", p, ok)
	}
}

func TestSaveQuoteTable(t *testing.T) {
	store := NewQuoteStore()
	ctx := context.Background()

	tbl := quotes.NewTable()
	tbl.Set("a", "2024-01-01", 0.2)
	tbl.Set("a", "2024-01-03", 0.4)
	tbl.Set("b", "2024-01-02", 0.9)

	if err := storage.SaveQuoteTable(ctx, store, tbl); err != nil {
		t.Fatalf("SaveQuoteTable: %v", err)
	}
	all, _ := store.GetAll(ctx)
	if len(all) != 3 {
		t.Fatalf("Expected 3 stored quotes, got %d", len(all))
	}
	if all[2].TokenID != "b" || all[2].Price != 0.9 {
		t.Errorf("Unexpected last quote %+v", all[2])
	}

	if err := storage.SaveQuoteTable(ctx, store, quotes.NewTable()); err != nil {
		t.Errorf("Empty table should be a no-op, got %v", err)
	}
}
