package normalization

import (
	"sort"

	"shadow-index-lab/internal/domain"
)

// SortEvents orders events by (timestamp ASC, exits before entries, trader, market, id).
// Exits sort first on ties so freed capital is available to same-second entries.
func SortEvents(events []domain.PositionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return CompareEvents(&events[i], &events[j]) < 0
	})
}

// CompareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func CompareEvents(a, b *domain.PositionEvent) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	if ra, rb := kindRank(a.Kind), kindRank(b.Kind); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if c := compareString(a.TraderID, b.TraderID); c != 0 {
		return c
	}
	if c := compareString(a.MarketKey, b.MarketKey); c != 0 {
		return c
	}
	return compareString(a.ID, b.ID)
}

func kindRank(k domain.EventKind) int {
	if k.IsExit() {
		return 0
	}
	return 1
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
