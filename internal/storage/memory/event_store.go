package memory

import (
	"context"
	"sync"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/normalization"
	"shadow-index-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]domain.PositionEvent // keyed by event id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]domain.PositionEvent),
	}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertNew adds events whose ID is not stored yet.
func (s *EventStore) InsertNew(_ context.Context, events []domain.PositionEvent) (int, error) {
	for i := range events {
		if events[i].ID == "" {
			return 0, storage.Invalid("event without id")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, ev := range events {
		if _, exists := s.data[ev.ID]; exists {
			continue
		}
		s.data[ev.ID] = ev
		added++
	}
	return added, nil
}

// GetAll retrieves all events in replay order.
func (s *EventStore) GetAll(_ context.Context) ([]domain.PositionEvent, error) {
	return s.filter(func(domain.PositionEvent) bool { return true }), nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]domain.PositionEvent, error) {
	return s.filter(func(ev domain.PositionEvent) bool {
		return ev.Timestamp >= start && ev.Timestamp <= end
	}), nil
}

// GetByTrader retrieves all events for one trader.
func (s *EventStore) GetByTrader(_ context.Context, traderID string) ([]domain.PositionEvent, error) {
	return s.filter(func(ev domain.PositionEvent) bool { return ev.TraderID == traderID }), nil
}

func (s *EventStore) filter(keep func(domain.PositionEvent) bool) []domain.PositionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PositionEvent
	for _, ev := range s.data {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	normalization.SortEvents(out)
	return out
}
