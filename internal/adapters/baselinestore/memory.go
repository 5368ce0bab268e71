// Package baselinestore provides BaselineStore implementations. The
// store keeps one behavioral baseline per (tenant, sender) pair; every
// backend serializes read-modify-write cycles per key so concurrent
// observations never lose updates.
package baselinestore

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

const lockStripes = 64

// MemoryStore is an in-memory implementation of the BaselineStore
// interface, suitable for tests and single-node deployments.
type MemoryStore struct {
	baselines map[string]*core.UserBaseline
	mu        sync.RWMutex
	stripes   [lockStripes]sync.Mutex
	logger    *zap.Logger
}

// NewMemoryStore creates a new in-memory baseline store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		baselines: make(map[string]*core.UserBaseline),
		logger:    logger,
	}
}

func storeKey(tenantID, senderEmail string) string {
	return tenantID + "|" + senderEmail
}

func stripeFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

// Get retrieves the baseline for a sender within a tenant
func (s *MemoryStore) Get(ctx context.Context, tenantID, senderEmail string) (*core.UserBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	baseline, ok := s.baselines[storeKey(tenantID, senderEmail)]
	if !ok {
		return nil, core.ErrBaselineNotFound
	}
	return baseline.Clone(), nil
}

// Update applies merge to the stored baseline, seeding a fresh one on
// first observation. Updates to the same key are serialized; updates to
// distinct keys proceed concurrently on separate lock stripes.
func (s *MemoryStore) Update(ctx context.Context, tenantID, senderEmail string, seed *core.UserBaseline, merge core.MergeFunc) error {
	key := storeKey(tenantID, senderEmail)
	stripe := &s.stripes[stripeFor(key)]
	stripe.Lock()
	defer stripe.Unlock()

	s.mu.RLock()
	baseline, ok := s.baselines[key]
	s.mu.RUnlock()

	var working *core.UserBaseline
	if ok {
		working = baseline.Clone()
	} else {
		working = seed.Clone()
	}
	merge(working)

	s.mu.Lock()
	s.baselines[key] = working
	s.mu.Unlock()
	return nil
}

// Close releases nothing; it exists to satisfy the interface
func (s *MemoryStore) Close() error {
	return nil
}
