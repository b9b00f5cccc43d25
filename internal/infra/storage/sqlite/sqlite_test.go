package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "links.db"), filepath.Join(dir, "links.lock"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLinkRepo_CommitAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewLinkRepo(openTestStore(t))
	linkedAt := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	err := repo.Commit(ctx, storage.LinkChange{Upsert: &domain.WalletLink{
		Address:      "0x0123456789abcdef",
		SubscriberID: "42",
		DisplayName:  "alice",
		LinkedAt:     linkedAt,
	}})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	links, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].SubscriberID != "42" || links[0].DisplayName != "alice" || !links[0].LinkedAt.Equal(linkedAt) {
		t.Errorf("unexpected link: %+v", links[0])
	}
}

func TestLinkRepo_MoveSubscriber(t *testing.T) {
	ctx := context.Background()
	repo := NewLinkRepo(openTestStore(t))

	first := &domain.WalletLink{Address: "0x0123456789abcdef", SubscriberID: "42", LinkedAt: time.Now()}
	second := &domain.WalletLink{Address: "0xfedcba9876543210", SubscriberID: "42", LinkedAt: time.Now()}

	if err := repo.Commit(ctx, storage.LinkChange{Upsert: first}); err != nil {
		t.Fatalf("commit first: %v", err)
	}
	if err := repo.Commit(ctx, storage.LinkChange{Upsert: second}); err != nil {
		t.Fatalf("commit second: %v", err)
	}

	links, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(links) != 1 || links[0].Address != second.Address {
		t.Fatalf("expected only %s, got %+v", second.Address, links)
	}

	if err := repo.Commit(ctx, storage.LinkChange{Delete: []string{second.Address}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	links, _ = repo.LoadAll(ctx)
	if len(links) != 0 {
		t.Errorf("expected empty table, got %d", len(links))
	}
}

func TestCursorRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewCursorRepo(openTestStore(t))

	if _, err := repo.Get(ctx, "testnet"); !errors.Is(err, storage.ErrCursorNotFound) {
		t.Fatalf("expected ErrCursorNotFound, got %v", err)
	}

	if err := repo.Save(ctx, &domain.Cursor{ChainID: "testnet", Height: 1000}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, &domain.Cursor{ChainID: "testnet", Height: 1250}); err != nil {
		t.Fatalf("save: %v", err)
	}

	c, err := repo.Get(ctx, "testnet")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Height != 1250 {
		t.Errorf("expected height 1250, got %d", c.Height)
	}
}
