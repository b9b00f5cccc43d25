package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Save saves a cursor to the database.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	updatedAt := cursor.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watch_cursors (chain_id, height, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET
			height = EXCLUDED.height,
			updated_at = EXCLUDED.updated_at`,
		cursor.ChainID, int64(cursor.Height), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Get retrieves a cursor by chain ID.
func (r *CursorRepo) Get(ctx context.Context, chainID string) (*domain.Cursor, error) {
	var row struct {
		ChainID   string    `db:"chain_id"`
		Height    int64     `db:"height"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT chain_id, height, updated_at FROM watch_cursors WHERE chain_id = $1`, chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &domain.Cursor{
		ChainID:   row.ChainID,
		Height:    uint64(row.Height),
		UpdatedAt: row.UpdatedAt,
	}, nil
}
