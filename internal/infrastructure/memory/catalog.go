package memory

import (
	"context"
	"sync"

	domain "github.com/openmall/marketcore/internal/domain/catalog"
	"github.com/openmall/marketcore/internal/domain/money"
)

type catalogProduct struct {
	price    money.Amount
	storeID  string
	sellable bool
	soldOut  bool
	sales    int
}

// Catalog is an in-process stand-in for the product catalog service.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]*catalogProduct
}

func NewCatalog() *Catalog {
	return &Catalog{products: make(map[string]*catalogProduct)}
}

// AddProduct registers a product listing. Intended for seeding local runs
// and tests.
func (c *Catalog) AddProduct(productID, storeID string, price money.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID] = &catalogProduct{price: price, storeID: storeID, sellable: true}
}

func (c *Catalog) SetSellable(productID string, sellable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[productID]; ok {
		p.sellable = sellable
	}
}

func (c *Catalog) UnitPrice(ctx context.Context, productID string) (money.Amount, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return money.Zero(), domain.ErrNotFound
	}
	return p.price, nil
}

func (c *Catalog) IsSellable(ctx context.Context, productID string) (bool, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return false, domain.ErrNotFound
	}
	return p.sellable && !p.soldOut, nil
}

func (c *Catalog) StoreOf(ctx context.Context, productID string) (string, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return p.storeID, nil
}

func (c *Catalog) MarkSoldOut(ctx context.Context, productID string, soldOut bool) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	p.soldOut = soldOut
	return nil
}

func (c *Catalog) IncrementSales(ctx context.Context, productID string, qty int) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	p.sales += qty
	return nil
}

// Sales reports the accumulated sales counter, for tests and seeding checks.
func (c *Catalog) Sales(productID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.products[productID]; ok {
		return p.sales
	}
	return 0
}
