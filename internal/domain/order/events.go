package order

import (
	"time"

	"github.com/openmall/marketcore/internal/domain/money"
)

// RefundRequestedEvent asks the payment side to refund one order. Raised on
// customer cancel and merchant refuse once the order is already paid.
type RefundRequestedEvent struct {
	OrderID    string
	OrderNo    string
	PaymentID  string
	UserID     string
	Amount     money.Amount
	Reason     string
	OccurredAt time.Time
}

func (RefundRequestedEvent) EventName() string { return "order.refund_requested" }

func NewRefundRequestedEvent(o *Order, reason string) RefundRequestedEvent {
	return RefundRequestedEvent{
		OrderID:    o.ID,
		OrderNo:    o.OrderNo,
		PaymentID:  o.PaymentID,
		UserID:     o.UserID,
		Amount:     o.TotalAmount,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// ConfirmedEvent is emitted when a merchant confirms an order.
type ConfirmedEvent struct {
	OrderID    string
	OrderNo    string
	UserID     string
	OccurredAt time.Time
}

func (ConfirmedEvent) EventName() string { return "order.confirmed" }

func NewConfirmedEvent(o *Order) ConfirmedEvent {
	return ConfirmedEvent{OrderID: o.ID, OrderNo: o.OrderNo, UserID: o.UserID, OccurredAt: time.Now().UTC()}
}

// ShippedEvent is emitted when a merchant hands the order to a carrier.
type ShippedEvent struct {
	OrderID    string
	OrderNo    string
	UserID     string
	Carrier    string
	TrackingNo string
	OccurredAt time.Time
}

func (ShippedEvent) EventName() string { return "order.shipped" }

func NewShippedEvent(o *Order, carrier, trackingNo string) ShippedEvent {
	return ShippedEvent{
		OrderID:    o.ID,
		OrderNo:    o.OrderNo,
		UserID:     o.UserID,
		Carrier:    carrier,
		TrackingNo: trackingNo,
		OccurredAt: time.Now().UTC(),
	}
}

// DeliveredEvent is emitted when the shipping collaborator reports arrival.
type DeliveredEvent struct {
	OrderID    string
	OrderNo    string
	UserID     string
	Location   string
	OccurredAt time.Time
}

func (DeliveredEvent) EventName() string { return "order.delivered" }

func NewDeliveredEvent(o *Order, location string) DeliveredEvent {
	return DeliveredEvent{OrderID: o.ID, OrderNo: o.OrderNo, UserID: o.UserID, Location: location, OccurredAt: time.Now().UTC()}
}
