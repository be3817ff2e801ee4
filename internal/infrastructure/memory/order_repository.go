package memory

import (
	"context"
	"sync"

	domain "github.com/openmall/marketcore/internal/domain/order"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	byNo   map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
		byNo:   make(map[string]string),
	}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil {
		return domain.ErrInvalidItem
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return domain.ErrInvalidItem
	}
	r.orders[o.ID] = o.Clone()
	r.byNo[o.OrderNo] = o.ID
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) GetByNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNo[orderNo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.orders[id].Clone(), nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil {
		return domain.ErrInvalidItem
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	r.orders[o.ID] = o.Clone()
	return nil
}
