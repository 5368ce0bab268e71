package deepanalysis

import (
	"sync"
	"time"
)

// Budget tracks per-tenant daily deep-analysis allowances. Counters
// reset on the UTC day boundary.
type Budget struct {
	mu         sync.Mutex
	dailyLimit int
	counts     map[string]int
	day        string
	now        func() time.Time
}

// NewBudget creates a budget tracker; limit <= 0 means unlimited
func NewBudget(dailyLimit int) *Budget {
	return &Budget{
		dailyLimit: dailyLimit,
		counts:     make(map[string]int),
		now:        time.Now,
	}
}

// TryConsume reserves one analysis slot for the tenant, reporting false
// when the daily allowance is exhausted
func (b *Budget) TryConsume(tenantID string) bool {
	if b.dailyLimit <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	today := b.now().UTC().Format("2006-01-02")
	if today != b.day {
		b.day = today
		b.counts = make(map[string]int)
	}
	if b.counts[tenantID] >= b.dailyLimit {
		return false
	}
	b.counts[tenantID]++
	return true
}

// Remaining reports how many analyses the tenant has left today
func (b *Budget) Remaining(tenantID string) int {
	if b.dailyLimit <= 0 {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.now().UTC().Format("2006-01-02") != b.day {
		return b.dailyLimit
	}
	remaining := b.dailyLimit - b.counts[tenantID]
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
