package inventory

import (
	"context"

	dominv "github.com/openmall/marketcore/internal/domain/inventory"
)

// Usecase is the inventory ledger facade consumed by the order workflow and
// the HTTP layer.
type Usecase interface {
	// Lock reserves qty units of a product without reducing on-hand stock.
	Lock(ctx context.Context, productID string, qty int) error
	// Unlock releases a previously taken reservation.
	Unlock(ctx context.Context, productID string, qty int) error
	// Consume converts a reservation into a permanent stock decrement.
	Consume(ctx context.Context, productID string, qty int) error
	// Restore reverses a consumption, re-creating the reservation.
	Restore(ctx context.Context, productID string, qty int) error
	// SetStock overwrites on-hand quantity, leaving reservations untouched.
	SetStock(ctx context.Context, productID string, qty int) error
	// SetThreshold adjusts the low-stock warning threshold.
	SetThreshold(ctx context.Context, productID string, threshold int) error
	// Check reports whether qty units are currently available.
	Check(ctx context.Context, productID string, qty int) (bool, error)
	// Get returns a snapshot of the ledger record.
	Get(ctx context.Context, productID string) (*dominv.Record, error)
	// Init creates a ledger record for a newly listed product.
	Init(ctx context.Context, productID string, quantity int) (*dominv.Record, error)
}
