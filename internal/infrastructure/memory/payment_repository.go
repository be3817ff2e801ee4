package memory

import (
	"context"
	"sync"

	domain "github.com/openmall/marketcore/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[string]*domain.Payment)}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil {
		return domain.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil {
		return domain.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.payments[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	// transitions start from PENDING; a terminal row may only be rewritten
	// in place (refund bookkeeping). A writer holding a stale status loses.
	if stored.Status != domain.StatusPending && stored.Status != p.Status {
		return domain.ErrNotPending
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) ListPending(ctx context.Context) ([]*domain.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Payment, 0)
	for _, p := range r.payments {
		if p.Status == domain.StatusPending {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}
