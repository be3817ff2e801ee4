package memory

import (
	"context"
	"sync"

	domain "github.com/openmall/marketcore/internal/domain/inventory"
)

// InventoryRepository keeps ledger records in process. Update enforces the
// version guard the same way the SQL implementation does, so the retry path
// is exercised identically in tests and local runs.
type InventoryRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Record
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{records: make(map[string]*domain.Record)}
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *InventoryRepository) Create(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	if rec == nil {
		return domain.ErrInvalidOperation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ProductID]; ok {
		return domain.ErrInvalidOperation
	}
	r.records[rec.ProductID] = rec.Clone()
	return nil
}

func (r *InventoryRepository) Update(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	if rec == nil {
		return domain.ErrInvalidOperation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[rec.ProductID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != rec.Version {
		return domain.ErrVersionConflict
	}
	next := rec.Clone()
	next.Version++
	r.records[rec.ProductID] = next
	return nil
}
