// Package catalog defines the narrow contract against the external product
// catalog. The core never owns product data; it reads prices and sellability
// and pushes back stock visibility and sales counters.
package catalog

import (
	"context"
	"errors"

	"github.com/openmall/marketcore/internal/domain/money"
)

var ErrNotFound = errors.New("catalog: product not found")

type Catalog interface {
	UnitPrice(ctx context.Context, productID string) (money.Amount, error)
	IsSellable(ctx context.Context, productID string) (bool, error)
	// StoreOf resolves the store currently selling the product.
	StoreOf(ctx context.Context, productID string) (string, error)
	MarkSoldOut(ctx context.Context, productID string, soldOut bool) error
	IncrementSales(ctx context.Context, productID string, qty int) error
}
