package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

// LinkRepo implements storage.LinkRepository using PostgreSQL.
type LinkRepo struct {
	db *DB
}

// NewLinkRepo creates a new PostgreSQL wallet link repository.
func NewLinkRepo(db *DB) *LinkRepo {
	return &LinkRepo{db: db}
}

// LoadAll retrieves all wallet links.
func (r *LinkRepo) LoadAll(ctx context.Context) ([]*domain.WalletLink, error) {
	var links []*domain.WalletLink
	err := r.db.SelectContext(ctx, &links,
		`SELECT address, subscriber_id, display_name, linked_at FROM wallet_links ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet links: %w", err)
	}
	return links, nil
}

// Commit applies the change inside one transaction.
func (r *LinkRepo) Commit(ctx context.Context, change storage.LinkChange) error {
	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback() }()

	if err := uow.DeleteLinks(ctx, change.Delete); err != nil {
		return err
	}
	if change.Upsert != nil {
		if err := uow.UpsertLink(ctx, change.Upsert); err != nil {
			return err
		}
	}
	return uow.Commit()
}

// Close closes the database connection.
func (r *LinkRepo) Close() error {
	return r.db.Close()
}
