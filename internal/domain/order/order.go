package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/openmall/marketcore/internal/domain/money"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrInvalidItem       = errors.New("order: invalid order item")
	ErrInvalidTransition = errors.New("order: invalid state transition")
	ErrPermissionDenied  = errors.New("order: permission denied")
)

// Item is a price-snapshotted line item. UnitPrice is fixed at reservation
// time; order totals never track later catalog price changes.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice money.Amount
}

func (it Item) Subtotal() money.Amount {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Log is one immutable audit entry; exactly one row per state transition.
type Log struct {
	Event       Event
	AfterStatus Status
	Message     string
	ActorID     string
	At          time.Time
}

// Order is a purchase scoped to a single store. Items and TotalAmount are
// fixed at creation; Logs is append-only.
type Order struct {
	ID          string
	OrderNo     string
	UserID      string
	StoreID     string
	Items       []Item
	TotalAmount money.Amount
	Status      Status
	Remark      string
	PaymentID   string
	CreatedAt   time.Time
	Logs        []Log
}

func New(id, userID, storeID, remark string, items []Item) (*Order, error) {
	if id == "" || userID == "" || storeID == "" {
		return nil, ErrInvalidItem
	}
	if len(items) == 0 {
		return nil, ErrInvalidItem
	}
	total := money.Zero()
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			return nil, ErrInvalidItem
		}
		total = total.Add(it.Subtotal())
	}

	now := time.Now().UTC()
	o := &Order{
		ID:          id,
		OrderNo:     uuid.NewString(),
		UserID:      userID,
		StoreID:     storeID,
		Items:       append([]Item(nil), items...),
		TotalAmount: money.Normalize(total),
		Status:      StatusAwaitingPayment,
		Remark:      remark,
		CreatedAt:   now,
	}
	o.Logs = append(o.Logs, Log{
		Event:       EventCreate,
		AfterStatus: StatusAwaitingPayment,
		Message:     "order created",
		ActorID:     userID,
		At:          now,
	})
	return o, nil
}

// Apply transitions the order and appends the log entry for the transition
// in one step, so status and audit trail never diverge.
func (o *Order) Apply(ev Event, to Status, actorID, message string) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidTransition
	}
	o.Status = to
	o.Logs = append(o.Logs, Log{
		Event:       ev,
		AfterStatus: to,
		Message:     message,
		ActorID:     actorID,
		At:          time.Now().UTC(),
	})
	return nil
}

func (o *Order) AttachPayment(paymentID string) { o.PaymentID = paymentID }

func (o *Order) DetachPayment() { o.PaymentID = "" }

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	clone.Logs = append([]Log(nil), o.Logs...)
	return &clone
}
