package quotes

// Budget bounds quote lookups within one tick.
type Budget struct {
	limit int
	used  int
}

// NewBudget creates a budget allowing limit lookups per tick.
func NewBudget(limit int) *Budget {
	return &Budget{limit: limit}
}

// Take consumes one lookup, reporting false when the tick is exhausted.
func (b *Budget) Take() bool {
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// Reset starts a new tick.
func (b *Budget) Reset() { b.used = 0 }

// Used returns lookups taken this tick.
func (b *Budget) Used() int { return b.used }

// Remaining returns lookups left this tick.
func (b *Budget) Remaining() int { return b.limit - b.used }
