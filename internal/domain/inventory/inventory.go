package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidOperation  = errors.New("inventory: invalid operation")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrVersionConflict is returned by repositories when a version-guarded
	// update loses against a concurrent writer.
	ErrVersionConflict = errors.New("inventory: version conflict")
)

const defaultThreshold = 5

// Record is the per-product stock ledger entry. Quantity is on-hand stock,
// Locked is reserved-but-not-consumed stock. Both counters live in one value
// so that a single version-guarded read observes a consistent pair.
//
// Invariant: 0 <= Locked <= Quantity.
type Record struct {
	ProductID string
	Quantity  int
	Locked    int
	Threshold int
	Version   int64
	UpdatedAt time.Time
}

func NewRecord(productID string, quantity int) (*Record, error) {
	if productID == "" {
		return nil, ErrInvalidOperation
	}
	if quantity < 0 {
		return nil, ErrInvalidOperation
	}
	return &Record{
		ProductID: productID,
		Quantity:  quantity,
		Threshold: defaultThreshold,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Available is on-hand stock minus reservations.
func (r *Record) Available() int { return r.Quantity - r.Locked }

// Lock reserves qty units without reducing on-hand stock.
func (r *Record) Lock(qty int) error {
	if qty <= 0 {
		return ErrInvalidOperation
	}
	if r.Available() < qty {
		return ErrInsufficientStock
	}
	r.Locked += qty
	r.touch()
	return nil
}

// Unlock releases a reservation.
func (r *Record) Unlock(qty int) error {
	if qty <= 0 || r.Locked < qty {
		return ErrInvalidOperation
	}
	r.Locked -= qty
	r.touch()
	return nil
}

// Consume converts a reservation into a permanent stock decrement.
func (r *Record) Consume(qty int) error {
	if qty <= 0 {
		return ErrInvalidOperation
	}
	if r.Locked < qty {
		return ErrInsufficientStock
	}
	r.Quantity -= qty
	r.Locked -= qty
	r.touch()
	return nil
}

// Restore reverses a consumption: the units return to on-hand stock still
// reserved, as if Consume had never run.
func (r *Record) Restore(qty int) error {
	if qty <= 0 {
		return ErrInvalidOperation
	}
	r.Quantity += qty
	r.Locked += qty
	r.touch()
	return nil
}

// SetStock overwrites on-hand quantity. Reservations are untouched, so the
// new quantity must still cover them.
func (r *Record) SetStock(qty int) error {
	if qty < 0 || qty < r.Locked {
		return ErrInvalidOperation
	}
	r.Quantity = qty
	r.touch()
	return nil
}

func (r *Record) SetThreshold(threshold int) error {
	if threshold < 0 {
		return ErrInvalidOperation
	}
	r.Threshold = threshold
	r.touch()
	return nil
}

// LowStock reports whether on-hand stock has dropped to the warning threshold.
func (r *Record) LowStock() bool { return r.Quantity <= r.Threshold }

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

func (r *Record) touch() { r.UpdatedAt = time.Now().UTC() }
