package deepanalysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBudget_PerTenantLimits(t *testing.T) {
	b := NewBudget(2)

	assert.True(t, b.TryConsume("acme"))
	assert.True(t, b.TryConsume("acme"))
	assert.False(t, b.TryConsume("acme"))

	// other tenants have their own allowance
	assert.True(t, b.TryConsume("globex"))
	assert.Equal(t, 0, b.Remaining("acme"))
	assert.Equal(t, 1, b.Remaining("globex"))
}

func TestBudget_UnlimitedWhenZero(t *testing.T) {
	b := NewBudget(0)

	for i := 0; i < 1000; i++ {
		assert.True(t, b.TryConsume("acme"))
	}
	assert.Equal(t, -1, b.Remaining("acme"))
}

func TestBudget_ResetsOnUTCDayBoundary(t *testing.T) {
	b := NewBudget(1)

	current := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	b.now = func() time.Time { return current }

	assert.True(t, b.TryConsume("acme"))
	assert.False(t, b.TryConsume("acme"))

	// an hour later it is March 3rd in UTC
	current = current.Add(time.Hour)
	assert.Equal(t, 1, b.Remaining("acme"))
	assert.True(t, b.TryConsume("acme"))
	assert.False(t, b.TryConsume("acme"))
}

func TestBudget_LocalTimeDoesNotLeak(t *testing.T) {
	b := NewBudget(1)

	// 23:30 in UTC+10 is still 13:30 UTC, same day
	loc := time.FixedZone("UTC+10", 10*3600)
	current := time.Date(2026, 3, 2, 23, 30, 0, 0, loc)
	b.now = func() time.Time { return current }

	assert.True(t, b.TryConsume("acme"))

	// crossing the local midnight does not reset the counter
	current = current.Add(time.Hour)
	assert.False(t, b.TryConsume("acme"))
}
