package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/openmall/marketcore/internal/domain/cart"
)

type CartStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.Entry
	seq     int
}

func NewCartStore() *CartStore {
	return &CartStore{entries: make(map[string]*domain.Entry)}
}

func (s *CartStore) Merge(ctx context.Context, userID, productID string, qty int) (*domain.Entry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.UserID == userID && e.ProductID == productID {
			e.Quantity += qty
			e.UpdatedAt = time.Now().UTC()
			return e.Clone(), nil
		}
	}
	s.seq++
	e := &domain.Entry{
		ID:        fmt.Sprintf("cart-%d", s.seq),
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		UpdatedAt: time.Now().UTC(),
	}
	s.entries[e.ID] = e
	return e.Clone(), nil
}

func (s *CartStore) Get(ctx context.Context, userID string, ids []string) ([]*domain.Entry, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok && e.UserID == userID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *CartStore) List(ctx context.Context, userID string) ([]*domain.Entry, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Entry, 0)
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *CartStore) Remove(ctx context.Context, userID string, ids []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.entries[id]; ok && e.UserID == userID {
			delete(s.entries, id)
		}
	}
	return nil
}
