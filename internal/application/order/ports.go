package order

import "context"

// Ledger is the slice of the inventory ledger the order workflow needs.
type Ledger interface {
	Lock(ctx context.Context, productID string, qty int) error
	Unlock(ctx context.Context, productID string, qty int) error
	Consume(ctx context.Context, productID string, qty int) error
	Restore(ctx context.Context, productID string, qty int) error
	Check(ctx context.Context, productID string, qty int) (bool, error)
}

// Permission answers whether a user may act for a store. Staff management
// itself lives outside the core.
type Permission interface {
	CanManageStore(ctx context.Context, userID, storeID string) (bool, error)
}

// IDGenerator produces entity identifiers.
type IDGenerator interface {
	NewID() string
}

// Notifier delivers user-facing notices about order progress.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string) error
}
