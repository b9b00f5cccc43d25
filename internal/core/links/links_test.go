package links

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/infra/storage"
	"github.com/vietddude/planbridge/internal/infra/storage/memory"
)

const (
	addrA = "0x0123456789abcdef"
	addrB = "0xfedcba9876543210"
)

// flakyRepo wraps the memory repository and fails commits on demand.
type flakyRepo struct {
	*memory.LinkRepo
	fail    bool
	commits int
}

func (r *flakyRepo) Commit(ctx context.Context, change storage.LinkChange) error {
	r.commits++
	if r.fail {
		return errors.New("disk full")
	}
	return r.LinkRepo.Commit(ctx, change)
}

func newStore(t *testing.T) (*Store, *flakyRepo) {
	t.Helper()
	repo := &flakyRepo{LinkRepo: memory.NewLinkRepo(memory.NewMemoryStorage())}
	s, err := Open(context.Background(), repo)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, repo
}

func TestLink_Validation(t *testing.T) {
	s, repo := newStore(t)
	ctx := context.Background()

	err := s.Link(ctx, "0x123", "42", "alice")
	if !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if repo.commits != 0 {
		t.Errorf("invalid address must not write, got %d commits", repo.commits)
	}
	if s.Count() != 0 {
		t.Errorf("expected empty store")
	}

	if err := s.Link(ctx, addrA, "42", "alice"); err != nil {
		t.Fatalf("link: %v", err)
	}
}

func TestLink_NormalizesAndIsIdempotent(t *testing.T) {
	s, repo := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for i := 0; i < 2; i++ {
		if err := s.Link(ctx, "0x0123456789ABCDEF", "42", "alice"); err != nil {
			t.Fatalf("link #%d: %v", i, err)
		}
	}
	if s.Count() != 1 {
		t.Fatalf("expected 1 link, got %d", s.Count())
	}

	second := base.Add(2 * time.Minute)
	l, ok := s.LookupByAddress(addrA)
	if !ok || l.SubscriberID != "42" {
		t.Fatalf("lookup by address: %+v ok=%v", l, ok)
	}
	if !l.LinkedAt.Equal(second) {
		t.Errorf("LinkedAt = %v, want %v from the second link", l.LinkedAt, second)
	}
	l, ok = s.LookupBySubscriber("42")
	if !ok || l.Address != addrA {
		t.Fatalf("lookup by subscriber: %+v ok=%v", l, ok)
	}

	stored, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || !stored[0].LinkedAt.Equal(second) {
		t.Errorf("persisted links = %+v, want one row linked at %v", stored, second)
	}
}

func TestUnlink(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	if _, err := s.Unlink(ctx, "42"); !errors.Is(err, domain.ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}

	if err := s.Link(ctx, addrA, "42", ""); err != nil {
		t.Fatal(err)
	}
	removed, err := s.Unlink(ctx, "42")
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if removed.Address != addrA {
		t.Errorf("unexpected removed link %+v", removed)
	}
	if _, ok := s.LookupBySubscriber("42"); ok {
		t.Error("subscriber lookup should fail after unlink")
	}
	if _, ok := s.LookupByAddress(addrA); ok {
		t.Error("address lookup should fail after unlink")
	}
}

func TestLink_MovesSubscriber(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	if err := s.Link(ctx, addrA, "42", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Link(ctx, addrB, "42", ""); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.LookupByAddress(addrA); ok {
		t.Error("old address should be released")
	}
	l, ok := s.LookupBySubscriber("42")
	if !ok || l.Address != addrB {
		t.Errorf("expected subscriber on %s, got %+v", addrB, l)
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 link, got %d", s.Count())
	}
}

func TestLink_TransfersAddress(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	if err := s.Link(ctx, addrA, "42", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Link(ctx, addrA, "43", ""); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.LookupBySubscriber("42"); ok {
		t.Error("previous owner should no longer resolve")
	}
	l, _ := s.LookupByAddress(addrA)
	if l.SubscriberID != "43" {
		t.Errorf("expected subscriber 43, got %s", l.SubscriberID)
	}
}

func TestLink_FailedCommitKeepsState(t *testing.T) {
	s, repo := newStore(t)
	ctx := context.Background()

	if err := s.Link(ctx, addrA, "42", ""); err != nil {
		t.Fatal(err)
	}

	repo.fail = true
	if err := s.Link(ctx, addrB, "42", ""); err == nil {
		t.Fatal("expected commit failure")
	}
	if _, err := s.Unlink(ctx, "42"); err == nil {
		t.Fatal("expected commit failure on unlink")
	}

	l, ok := s.LookupBySubscriber("42")
	if !ok || l.Address != addrA {
		t.Errorf("state changed after failed commit: %+v", l)
	}
}

func TestOpen_LoadsPersistedLinks(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewMemoryStorage()
	repo := memory.NewLinkRepo(mem)

	first, err := Open(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Link(ctx, addrA, "42", "alice"); err != nil {
		t.Fatal(err)
	}

	second, err := Open(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	l, ok := second.LookupBySubscriber("42")
	if !ok || l.DisplayName != "alice" {
		t.Errorf("expected reloaded link, got %+v", l)
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Link(context.Background(), addrA, "42", "alice"); err != nil {
		t.Fatal(err)
	}
	l, _ := s.LookupBySubscriber("42")
	l.DisplayName = "mallory"

	again, _ := s.LookupBySubscriber("42")
	if again.DisplayName != "alice" {
		t.Error("lookup result must not alias store memory")
	}
}

func TestLink_Concurrent(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := addrA
			if i%2 == 1 {
				addr = addrB
			}
			_ = s.Link(ctx, addr, "42", "")
			_, _ = s.LookupBySubscriber("42")
		}(i)
	}
	wg.Wait()

	if s.Count() != 1 {
		t.Errorf("expected exactly one link for the subscriber, got %d", s.Count())
	}
}
