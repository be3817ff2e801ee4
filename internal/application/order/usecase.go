package order

import (
	"context"

	domain "github.com/openmall/marketcore/internal/domain/order"
	"github.com/openmall/marketcore/internal/domain/payment"
)

// CheckoutInput selects cart entries to turn into orders. Entries are grouped
// by store, one order per store, all covered by a single payment.
type CheckoutInput struct {
	UserID       string
	CartEntryIDs []string
	Remark       string
}

// PurchaseInput buys a single product directly, skipping the cart.
type PurchaseInput struct {
	UserID    string
	ProductID string
	Quantity  int
	Remark    string
}

// CheckoutResult reports the created orders and the payment that covers them.
type CheckoutResult struct {
	Orders  []*domain.Order
	Payment *payment.Payment
}

type Usecase interface {
	Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	Purchase(ctx context.Context, in PurchaseInput) (*CheckoutResult, error)
	Get(ctx context.Context, userID, orderID string) (*domain.Order, error)
	// Cancel is the customer-side abort of a paid, not-yet-shipped order.
	Cancel(ctx context.Context, userID, orderID, reason string) error
	// ConfirmReceipt completes the order once the customer has the goods.
	ConfirmReceipt(ctx context.Context, userID, orderID string) error
	// RequestRefund re-raises the refund request for an order already in
	// refund processing.
	RequestRefund(ctx context.Context, userID, orderID, reason string) error

	// Merchant-side operations; the actor must manage the order's store.
	Confirm(ctx context.Context, actorID, orderID string) error
	Refuse(ctx context.Context, actorID, orderID, reason string) error
	Ship(ctx context.Context, actorID, orderID, carrier, trackingNo string) error

	// Deliver is reported by the shipping collaborator when the goods arrive.
	Deliver(ctx context.Context, orderID, location string) error
}
