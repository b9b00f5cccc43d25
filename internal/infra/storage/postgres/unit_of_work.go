package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/planbridge/internal/core/domain"
)

// UnitOfWork bundles persistence operations into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// DeleteLinks removes links by normalized address.
func (u *UnitOfWork) DeleteLinks(ctx context.Context, addresses []string) error {
	for _, addr := range addresses {
		if _, err := u.tx.ExecContext(ctx, `DELETE FROM wallet_links WHERE address = $1`, addr); err != nil {
			return fmt.Errorf("failed to delete wallet link %s: %w", addr, err)
		}
	}
	return nil
}

// UpsertLink inserts or replaces the link stored for link.Address.
func (u *UnitOfWork) UpsertLink(ctx context.Context, link *domain.WalletLink) error {
	// A subscriber owns at most one row; clear any other row it holds first
	// so the unique constraint cannot fire mid-transaction.
	if _, err := u.tx.ExecContext(ctx,
		`DELETE FROM wallet_links WHERE subscriber_id = $1 AND address <> $2`,
		link.SubscriberID, link.Address,
	); err != nil {
		return fmt.Errorf("failed to clear previous link: %w", err)
	}

	_, err := u.tx.NamedExecContext(ctx, `
		INSERT INTO wallet_links (address, subscriber_id, display_name, linked_at)
		VALUES (:address, :subscriber_id, :display_name, :linked_at)
		ON CONFLICT (address) DO UPDATE SET
			subscriber_id = EXCLUDED.subscriber_id,
			display_name  = EXCLUDED.display_name,
			linked_at     = EXCLUDED.linked_at`, link)
	if err != nil {
		return fmt.Errorf("failed to upsert wallet link: %w", err)
	}
	return nil
}
