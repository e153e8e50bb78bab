package memory

import (
	"context"
	"errors"
	"testing"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/storage"
)

func testEvent(id, trader string, ts int64) domain.PositionEvent {
	return domain.PositionEvent{
		ID:        id,
		Kind:      domain.EventKindEntry,
		TraderID:  trader,
		MarketKey: "m1|Yes",
		Timestamp: ts,
		Price:     0.5,
	}
}

func TestEventStore_InsertNewSkipsExisting(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	n, err := store.InsertNew(ctx, []domain.PositionEvent{testEvent("a", "t1", 200), testEvent("b", "t1", 100)})
	if err != nil || n != 2 {
		t.Fatalf("InsertNew: n=%d err=%v", n, err)
	}

	changed := testEvent("a", "t9", 1)
	n, err = store.InsertNew(ctx, []domain.PositionEvent{changed, testEvent("c", "t2", 150)})
	if err != nil || n != 1 {
		t.Fatalf("Second InsertNew: n=%d err=%v", n, err)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(all))
	}
	if all[0].ID != "b" || all[1].ID != "c" || all[2].ID != "a" {
		t.Errorf("Events not in timestamp order: %s %s %s", all[0].ID, all[1].ID, all[2].ID)
	}
	if all[2].TraderID != "t1" {
		t.Errorf("Existing event was overwritten: %+v", all[2])
	}
}

func TestEventStore_Queries(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()
	_, _ = store.InsertNew(ctx, []domain.PositionEvent{
		testEvent("a", "t1", 100),
		testEvent("b", "t2", 200),
		testEvent("c", "t1", 300),
	})

	got, _ := store.GetByTimeRange(ctx, 100, 200)
	if len(got) != 2 {
		t.Errorf("GetByTimeRange: expected 2, got %d", len(got))
	}
	got, _ = store.GetByTrader(ctx, "t1")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("GetByTrader: unexpected %+v", got)
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	_, err := store.InsertNew(context.Background(), []domain.PositionEvent{testEvent("", "t1", 1)})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
