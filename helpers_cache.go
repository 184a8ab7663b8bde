// scriptcomplete/helpers_cache.go
// Contains the in-memory cache (Ristretto) and the generic memoization helper.
package scriptcomplete

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ============================================================================
// Memory Cache
// ============================================================================

// MemoryCache is a thread-safe wrapper around a ristretto cache. A nil
// *MemoryCache behaves as a disabled cache.
type MemoryCache struct {
	mu     sync.RWMutex
	cache  *ristretto.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewMemoryCache creates a ristretto-backed cache with the given default TTL.
func NewMemoryCache(ttl time.Duration, logger *slog.Logger) (*MemoryCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     64 << 20, // 64MB
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating ristretto cache: %w", ErrCache, err)
	}
	return &MemoryCache{cache: c, ttl: ttl, logger: logger.With("component", "MemoryCache")}, nil
}

// Enabled reports whether the cache can store values.
func (m *MemoryCache) Enabled() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache != nil
}

// Get returns a cached value.
func (m *MemoryCache) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	c := m.cache
	m.mu.RUnlock()
	if c == nil {
		return nil, false
	}
	return c.Get(key)
}

// Set stores value with cost, using the cache's default TTL when ttl is zero.
func (m *MemoryCache) Set(key string, value any, cost int64, ttl time.Duration) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	c := m.cache
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.mu.RUnlock()
	if c == nil {
		return false
	}
	ok := c.SetWithTTL(key, value, cost, ttl)
	if ok {
		c.Wait() // Make the value visible to the next Get.
	}
	return ok
}

// SetTTL changes the default TTL for future entries.
func (m *MemoryCache) SetTTL(ttl time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ttl = ttl
	m.mu.Unlock()
}

// Clear drops every entry.
func (m *MemoryCache) Clear() {
	if m == nil {
		return
	}
	m.mu.RLock()
	c := m.cache
	m.mu.RUnlock()
	if c != nil {
		m.logger.Debug("Clearing memory cache")
		c.Clear()
	}
}

// Metrics returns ristretto's counters, or nil when disabled.
func (m *MemoryCache) Metrics() *ristretto.Metrics {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cache == nil {
		return nil
	}
	return m.cache.Metrics
}

// Close releases the cache. Further calls behave as a disabled cache.
func (m *MemoryCache) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache != nil {
		m.cache.Close()
		m.cache = nil
	}
}

// ============================================================================
// Memoization Helper
// ============================================================================

// withMemoryCache wraps a function call with caching logic.
// Tries to fetch from cache using cacheKey. If miss, calls computeFn,
// stores the result with cost and ttl, and returns it.
// Returns the result (cached or computed), a boolean indicating cache hit, and any error from computeFn.
func withMemoryCache[T any](
	cache *MemoryCache,
	cacheKey string,
	cost int64,
	ttl time.Duration,
	computeFn func() (T, error),
	logger *slog.Logger,
) (T, bool, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}
	cacheLogger := logger.With("cache_key", cacheKey)

	if !cache.Enabled() {
		result, err := computeFn()
		return result, false, err
	}

	if cached, found := cache.Get(cacheKey); found {
		if typed, ok := cached.(T); ok {
			cacheLogger.Debug("Memory cache hit")
			return typed, true, nil
		}
		cacheLogger.Error("Memory cache type assertion failed", "expected_type", fmt.Sprintf("%T", zero), "actual_type", fmt.Sprintf("%T", cached))
	} else {
		cacheLogger.Debug("Memory cache miss")
	}

	computed, err := computeFn()
	if err != nil {
		// Errors are never cached.
		return zero, false, err
	}

	if cost <= 0 {
		cost = 1 // Ristretto cost must be positive
	}
	if !cache.Set(cacheKey, computed, cost, ttl) {
		cacheLogger.Warn("Memory cache Set failed, item not cached", "cost", cost, "ttl", ttl)
	}
	return computed, false, nil
}
