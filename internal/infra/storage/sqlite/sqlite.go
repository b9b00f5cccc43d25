// Package sqlite stores wallet links and watcher cursors in a local SQLite
// file. Writes take a cross-process file lock so two bridge processes sharing
// the same file never interleave a commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

const lockTimeout = 5 * time.Second

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// One writer connection keeps BEGIN/COMMIT on the same handle.
	db.SetMaxOpenConns(1)

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS wallet_links (
			address TEXT PRIMARY KEY,
			subscriber_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			linked_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS watch_cursors (
			chain_id TEXT PRIMARY KEY,
			height INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init store schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// LinkRepo implements storage.LinkRepository.
type LinkRepo struct {
	store *Store
}

func NewLinkRepo(store *Store) *LinkRepo {
	return &LinkRepo{store: store}
}

func (r *LinkRepo) LoadAll(ctx context.Context) ([]*domain.WalletLink, error) {
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT address, subscriber_id, display_name, linked_at FROM wallet_links ORDER BY address")
	if err != nil {
		return nil, fmt.Errorf("list wallet links: %w", err)
	}
	defer rows.Close()

	links := make([]*domain.WalletLink, 0)
	for rows.Next() {
		var (
			link     domain.WalletLink
			linkedAt string
		)
		if err := rows.Scan(&link.Address, &link.SubscriberID, &link.DisplayName, &linkedAt); err != nil {
			return nil, fmt.Errorf("scan wallet link row: %w", err)
		}
		if link.LinkedAt, err = time.Parse(time.RFC3339Nano, linkedAt); err != nil {
			return nil, fmt.Errorf("decode linked_at for %s: %w", link.Address, err)
		}
		links = append(links, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet link rows: %w", err)
	}
	return links, nil
}

func (r *LinkRepo) Commit(ctx context.Context, change storage.LinkChange) error {
	return r.store.withLock(ctx, func() error {
		tx, err := r.store.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin link commit: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, addr := range change.Delete {
			if _, err := tx.ExecContext(ctx, "DELETE FROM wallet_links WHERE address = ?", addr); err != nil {
				return fmt.Errorf("delete wallet link: %w", err)
			}
		}
		if l := change.Upsert; l != nil {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM wallet_links WHERE subscriber_id = ? AND address <> ?",
				l.SubscriberID, l.Address,
			); err != nil {
				return fmt.Errorf("clear previous link: %w", err)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO wallet_links (address, subscriber_id, display_name, linked_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(address) DO UPDATE SET
					subscriber_id=excluded.subscriber_id,
					display_name=excluded.display_name,
					linked_at=excluded.linked_at
			`, l.Address, l.SubscriberID, l.DisplayName, l.LinkedAt.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("upsert wallet link: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit wallet links: %w", err)
		}
		return nil
	})
}

func (r *LinkRepo) Close() error {
	return r.store.Close()
}

// CursorRepo implements storage.CursorRepository.
type CursorRepo struct {
	store *Store
}

func NewCursorRepo(store *Store) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, chainID string) (*domain.Cursor, error) {
	var (
		height    int64
		updatedAt string
	)
	err := r.store.db.QueryRowContext(ctx,
		"SELECT height, updated_at FROM watch_cursors WHERE chain_id = ?", chainID,
	).Scan(&height, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, updatedAt)
	return &domain.Cursor{ChainID: chainID, Height: uint64(height), UpdatedAt: ts}, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	updatedAt := cursor.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return r.store.withLock(ctx, func() error {
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO watch_cursors (chain_id, height, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(chain_id) DO UPDATE SET
				height=excluded.height,
				updated_at=excluded.updated_at
		`, cursor.ChainID, int64(cursor.Height), updatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
		return nil
	})
}
