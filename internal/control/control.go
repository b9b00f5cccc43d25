// Package control assembles the bridge from configuration and manages its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vietddude/planbridge/internal/core/config"
	"github.com/vietddude/planbridge/internal/infra/storage"
	"github.com/vietddude/planbridge/internal/infra/storage/memory"
	"github.com/vietddude/planbridge/internal/infra/storage/postgres"
	"github.com/vietddude/planbridge/internal/infra/storage/sqlite"
)

// Storage bundles the repositories of the configured backend.
type Storage struct {
	Links   storage.LinkRepository
	Cursors storage.CursorRepository
	// DB is set only for the postgres driver.
	DB *postgres.DB
}

// Close releases the backend. The link repository owns the connection.
func (s *Storage) Close() error {
	return s.Links.Close()
}

// OpenStorage opens the backend selected by cfg.Driver. Postgres schemas are
// migrated when migrate is true.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, migrate bool) (*Storage, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		slog.Info("Using PostgreSQL storage")
		return &Storage{
			Links:   postgres.NewLinkRepo(db),
			Cursors: postgres.NewCursorRepo(db),
			DB:      db,
		}, nil

	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.Path, cfg.LockPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Using SQLite storage", "path", cfg.Path)
		return &Storage{
			Links:   sqlite.NewLinkRepo(store),
			Cursors: sqlite.NewCursorRepo(store),
		}, nil

	case "memory":
		store := memory.NewMemoryStorage()
		slog.Warn("Using memory storage, links are lost on restart")
		return &Storage{
			Links:   memory.NewLinkRepo(store),
			Cursors: memory.NewCursorRepo(store),
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
