package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryDedup is an in-process Dedup bounded by size and ttl. It forgets
// everything on restart.
type MemoryDedup struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

func NewMemoryDedup(size int, ttl time.Duration) *MemoryDedup {
	return &MemoryDedup{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (d *MemoryDedup) MarkNotified(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache.Contains(key) {
		return false, nil
	}
	d.cache.Add(key, struct{}{})
	return true, nil
}

func (d *MemoryDedup) ForgetNotified(_ context.Context, key string) error {
	d.cache.Remove(key)
	return nil
}
