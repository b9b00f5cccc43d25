package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

type MemoryStorage struct {
	links   map[string]*domain.WalletLink
	cursors map[string]*domain.Cursor
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		links:   make(map[string]*domain.WalletLink),
		cursors: make(map[string]*domain.Cursor),
	}
}

// -----------------------------------------------------------------------------
// Link Repository
// -----------------------------------------------------------------------------

type LinkRepo struct {
	store *MemoryStorage
}

func NewLinkRepo(store *MemoryStorage) *LinkRepo {
	return &LinkRepo{store: store}
}

func (r *LinkRepo) LoadAll(ctx context.Context) ([]*domain.WalletLink, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	links := make([]*domain.WalletLink, 0, len(r.store.links))
	for _, l := range r.store.links {
		links = append(links, l.Clone())
	}
	return links, nil
}

func (r *LinkRepo) Commit(ctx context.Context, change storage.LinkChange) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, addr := range change.Delete {
		delete(r.store.links, addr)
	}
	if change.Upsert != nil {
		r.store.links[change.Upsert.Address] = change.Upsert.Clone()
	}
	return nil
}

func (r *LinkRepo) Close() error { return nil }

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, chainID string) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if c, ok := r.store.cursors[chainID]; ok {
		// Return copy
		copy := *c
		return &copy, nil
	}
	return nil, storage.ErrCursorNotFound
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *cursor
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	r.store.cursors[cursor.ChainID] = &c
	return nil
}
