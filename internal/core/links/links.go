// Package links holds the table binding chain addresses to subscribers.
//
// The table lives in memory behind a single mutex and is mirrored to a
// storage.LinkRepository. Every mutation is persisted before the in-memory
// maps are replaced, so a failed write leaves readers on the previous table.
package links

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/metrics"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

type Store struct {
	mu           sync.RWMutex
	byAddress    map[string]*domain.WalletLink
	bySubscriber map[string]string
	repo         storage.LinkRepository
	now          func() time.Time
	log          *slog.Logger
}

// Open loads every persisted link from repo.
func Open(ctx context.Context, repo storage.LinkRepository) (*Store, error) {
	rows, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wallet links: %w", err)
	}

	s := &Store{
		byAddress:    make(map[string]*domain.WalletLink, len(rows)),
		bySubscriber: make(map[string]string, len(rows)),
		repo:         repo,
		now:          time.Now,
		log:          slog.Default().With("component", "links"),
	}
	for _, l := range rows {
		addr, err := domain.NormalizeAddress(l.Address)
		if err != nil {
			s.log.Warn("Skipping stored link with invalid address", "address", l.Address)
			continue
		}
		l.Address = addr
		if prev, ok := s.bySubscriber[l.SubscriberID]; ok {
			// Older rows may predate the one-link rule; keep the newest.
			if s.byAddress[prev].LinkedAt.After(l.LinkedAt) {
				continue
			}
			delete(s.byAddress, prev)
		}
		s.byAddress[addr] = l
		s.bySubscriber[l.SubscriberID] = addr
	}
	metrics.LinkedWallets.Set(float64(len(s.byAddress)))
	s.log.Info("Wallet links loaded", "count", len(s.byAddress))
	return s, nil
}

// Link binds address to subscriberID. A subscriber's previous address is
// released, and an address held by another subscriber is transferred.
func (s *Store) Link(ctx context.Context, address, subscriberID, displayName string) error {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return err
	}
	if subscriberID == "" {
		return fmt.Errorf("empty subscriber id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	link := &domain.WalletLink{
		Address:      addr,
		SubscriberID: subscriberID,
		DisplayName:  displayName,
		LinkedAt:     s.now(),
	}

	change := storage.LinkChange{Upsert: link}
	prevAddr, hadPrev := s.bySubscriber[subscriberID]
	if hadPrev && prevAddr != addr {
		change.Delete = append(change.Delete, prevAddr)
	}
	if err := s.repo.Commit(ctx, change); err != nil {
		return fmt.Errorf("persist link: %w", err)
	}

	if hadPrev && prevAddr != addr {
		delete(s.byAddress, prevAddr)
	}
	if owner, ok := s.byAddress[addr]; ok && owner.SubscriberID != subscriberID {
		delete(s.bySubscriber, owner.SubscriberID)
		s.log.Info("Address transferred", "address", addr, "from", owner.SubscriberID, "to", subscriberID)
	}
	s.byAddress[addr] = link
	s.bySubscriber[subscriberID] = addr
	metrics.LinkedWallets.Set(float64(len(s.byAddress)))

	s.log.Debug("Wallet linked", "address", addr, "subscriber", subscriberID)
	return nil
}

// Unlink removes the subscriber's link and returns it.
func (s *Store) Unlink(ctx context.Context, subscriberID string) (*domain.WalletLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.bySubscriber[subscriberID]
	if !ok {
		return nil, domain.ErrNotLinked
	}
	if err := s.repo.Commit(ctx, storage.LinkChange{Delete: []string{addr}}); err != nil {
		return nil, fmt.Errorf("persist unlink: %w", err)
	}

	link := s.byAddress[addr]
	delete(s.byAddress, addr)
	delete(s.bySubscriber, subscriberID)
	metrics.LinkedWallets.Set(float64(len(s.byAddress)))
	return link, nil
}

func (s *Store) LookupBySubscriber(subscriberID string) (*domain.WalletLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.bySubscriber[subscriberID]
	if !ok {
		return nil, false
	}
	return s.byAddress[addr].Clone(), true
}

// LookupByAddress matches address case-insensitively. Malformed input is
// simply not found.
func (s *Store) LookupByAddress(address string) (*domain.WalletLink, bool) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.byAddress[addr]
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAddress)
}

// List returns a copy of every link ordered by address.
func (s *Store) List() []*domain.WalletLink {
	s.mu.RLock()
	out := make([]*domain.WalletLink, 0, len(s.byAddress))
	for _, l := range s.byAddress {
		out = append(out, l.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Close releases the underlying repository.
func (s *Store) Close() error {
	return s.repo.Close()
}
