package cart

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("cart: entry not found")

// Entry is one product line in a user's cart. When an order is cancelled the
// quantities flow back here via Merge.
type Entry struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	UpdatedAt time.Time
}

func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

type Store interface {
	// Merge adds qty to an existing entry for (userID, productID) or creates
	// a new one.
	Merge(ctx context.Context, userID, productID string, qty int) (*Entry, error)
	Get(ctx context.Context, userID string, ids []string) ([]*Entry, error)
	List(ctx context.Context, userID string) ([]*Entry, error)
	Remove(ctx context.Context, userID string, ids []string) error
}
