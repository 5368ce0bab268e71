package baselinestore

import (
	"context"
	"sync"
	"testing"

	"github.com/mikey/mailsentry/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedBaseline(tenant, sender string) *core.UserBaseline {
	return &core.UserBaseline{
		TenantID:           tenant,
		SenderEmail:        sender,
		RecipientFrequency: make(map[string]int),
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())

	b, err := s.Get(context.Background(), "acme", "ghost@acme.com")
	assert.Nil(t, b)
	assert.ErrorIs(t, err, core.ErrBaselineNotFound)
}

func TestMemoryStore_UpdateCreatesFromSeed(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	err := s.Update(ctx, "acme", "alice@acme.com", seedBaseline("acme", "alice@acme.com"), func(b *core.UserBaseline) {
		b.DailySendVolume.DataPoints = 1
	})
	require.NoError(t, err)

	b, err := s.Get(ctx, "acme", "alice@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "acme", b.TenantID)
	assert.Equal(t, 1, b.DailySendVolume.DataPoints)
}

func TestMemoryStore_TenantsAreIsolated(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "acme", "alice@acme.com", seedBaseline("acme", "alice@acme.com"), func(b *core.UserBaseline) {
		b.DailySendVolume.DataPoints = 5
	}))

	_, err := s.Get(ctx, "globex", "alice@acme.com")
	assert.ErrorIs(t, err, core.ErrBaselineNotFound)
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "acme", "alice@acme.com", seedBaseline("acme", "alice@acme.com"), func(b *core.UserBaseline) {
		b.RecipientFrequency["bob@acme.com"] = 3
		b.DailySendVolume.Samples = []float64{1, 2, 3}
	}))

	snapshot, err := s.Get(ctx, "acme", "alice@acme.com")
	require.NoError(t, err)

	// mutating the snapshot must not leak into the store
	snapshot.RecipientFrequency["mallory@evil.net"] = 99
	snapshot.DailySendVolume.Samples[0] = 1000

	fresh, err := s.Get(ctx, "acme", "alice@acme.com")
	require.NoError(t, err)
	assert.NotContains(t, fresh.RecipientFrequency, "mallory@evil.net")
	assert.Equal(t, 1.0, fresh.DailySendVolume.Samples[0])
}

func TestMemoryStore_ConcurrentUpdatesLoseNothing(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	const (
		workers = 16
		rounds  = 50
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				err := s.Update(ctx, "acme", "alice@acme.com", seedBaseline("acme", "alice@acme.com"), func(b *core.UserBaseline) {
					b.DailySendVolume.DataPoints++
					b.RecipientFrequency["bob@acme.com"]++
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	b, err := s.Get(ctx, "acme", "alice@acme.com")
	require.NoError(t, err)
	assert.Equal(t, workers*rounds, b.DailySendVolume.DataPoints)
	assert.Equal(t, workers*rounds, b.RecipientFrequency["bob@acme.com"])
}

func TestMemoryStore_Close(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	assert.NoError(t, s.Close())
}
