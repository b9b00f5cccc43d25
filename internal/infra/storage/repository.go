package storage

import (
	"context"
	"errors"

	"github.com/vietddude/planbridge/internal/core/domain"
)

var (
	// ErrCursorNotFound is returned when a cursor doesn't exist
	ErrCursorNotFound = errors.New("cursor not found")
)

// LinkChange is one mutation of the wallet link table. Deletes are applied
// before the upsert and the whole change commits atomically.
type LinkChange struct {
	Upsert *domain.WalletLink
	Delete []string // normalized addresses
}

// LinkRepository persists wallet links.
type LinkRepository interface {
	// LoadAll returns every stored link
	LoadAll(ctx context.Context) ([]*domain.WalletLink, error)

	// Commit applies a change in a single transaction
	Commit(ctx context.Context, change LinkChange) error

	// Close releases the underlying connection
	Close() error
}

// CursorRepository handles watcher cursor storage
type CursorRepository interface {
	// Get retrieves the cursor for a chain
	Get(ctx context.Context, chainID string) (*domain.Cursor, error)

	// Save saves/updates the cursor
	Save(ctx context.Context, cursor *domain.Cursor) error
}
