package throttle

import (
	"context"
	"sync"
	"time"
)

type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

// HeadCache caches the latest sealed height so that commands, health checks
// and the watcher share one access node call per TTL.
type HeadCache struct {
	source HeightSource
	ttl    time.Duration

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(source HeightSource, ttl time.Duration) *HeadCache {
	return &HeadCache{
		source: source,
		ttl:    ttl,
	}
}

// LatestHeight returns the cached head if within TTL, otherwise fetches fresh.
func (c *HeadCache) LatestHeight(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.source.LatestHeight(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	// Never move backwards when a slower call lands after a newer one.
	if head > c.cached {
		c.cached = head
	}
	c.cachedAt = time.Now()
	head = c.cached
	c.mu.Unlock()

	return head, nil
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
