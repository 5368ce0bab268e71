// Package dns provides the DNSResolver implementation used for policy
// record lookups. Results are cached with a TTL so repeated lookups for
// busy domains do not hammer the resolver.
package dns

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config contains resolver configuration
type Config struct {
	Timeout       time.Duration
	CacheSize     int
	CacheTTL      time.Duration
	EnableCaching bool
}

// DefaultConfig returns the standard resolver tuning
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		CacheSize:     1000,
		CacheTTL:      30 * time.Minute,
		EnableCaching: true,
	}
}

// Stats tracks resolver cache performance
type Stats struct {
	Hits      int64
	Misses    int64
	Errors    int64
	Evictions int64
}

type cacheEntry struct {
	records   []string
	expiresAt time.Time
}

// CachingResolver wraps net.Resolver with a TTL cache for TXT lookups
type CachingResolver struct {
	resolver *net.Resolver
	cache    map[string]*cacheEntry
	mu       sync.RWMutex
	cfg      Config
	stats    Stats
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCachingResolver creates a new caching DNS resolver
func NewCachingResolver(cfg Config, logger *zap.Logger) *CachingResolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 1000
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Minute
	}

	r := &CachingResolver{
		resolver: &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := net.Dialer{Timeout: cfg.Timeout}
				return d.DialContext(ctx, network, address)
			},
		},
		cache:  make(map[string]*cacheEntry),
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if cfg.EnableCaching {
		go r.cleanupRoutine()
	}
	return r
}

// ResolveTXT performs a TXT record lookup with caching
func (r *CachingResolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	if r.cfg.EnableCaching {
		if records, ok := r.getCached(name); ok {
			r.mu.Lock()
			r.stats.Hits++
			r.mu.Unlock()
			return records, nil
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	records, err := r.resolver.LookupTXT(lookupCtx, name)

	r.mu.Lock()
	if err != nil {
		r.stats.Errors++
		r.mu.Unlock()
		return nil, err
	}
	r.stats.Misses++
	r.mu.Unlock()

	if r.cfg.EnableCaching {
		r.setCached(name, records)
	}
	return records, nil
}

// Stats returns a snapshot of cache performance counters
func (r *CachingResolver) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Stop terminates the background cleanup routine
func (r *CachingResolver) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *CachingResolver) getCached(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[name]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.records, true
}

func (r *CachingResolver) setCached(name string, records []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cache) >= r.cfg.CacheSize {
		r.evictOldest()
	}
	r.cache[name] = &cacheEntry{
		records:   records,
		expiresAt: time.Now().Add(r.cfg.CacheTTL),
	}
}

// evictOldest removes the entry closest to expiry. Caller holds mu.
func (r *CachingResolver) evictOldest() {
	var oldestKey string
	var oldestExpiry time.Time
	for key, entry := range r.cache {
		if oldestKey == "" || entry.expiresAt.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(r.cache, oldestKey)
		r.stats.Evictions++
	}
}

func (r *CachingResolver) cleanupRoutine() {
	ticker := time.NewTicker(r.cfg.CacheTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

func (r *CachingResolver) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	expired := 0
	for key, entry := range r.cache {
		if now.After(entry.expiresAt) {
			delete(r.cache, key)
			expired++
		}
	}
	if expired > 0 {
		r.logger.Debug("Expired DNS cache entries removed", zap.Int("count", expired))
	}
}
