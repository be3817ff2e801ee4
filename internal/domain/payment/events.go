package payment

import (
	"time"

	"github.com/openmall/marketcore/internal/domain/money"
)

// CreatedEvent is published when a payment is created together with its
// orders. No subscriber acts on it today; it is a hook for analytics.
type CreatedEvent struct {
	PaymentID  string
	UserID     string
	Amount     money.Amount
	OccurredAt time.Time
}

func (CreatedEvent) EventName() string { return "payment.created" }

func NewCreatedEvent(p *Payment) CreatedEvent {
	return CreatedEvent{PaymentID: p.ID, UserID: p.UserID, Amount: p.Amount, OccurredAt: time.Now().UTC()}
}

// SucceededEvent moves every linked order to PROCESSING.
type SucceededEvent struct {
	PaymentID  string
	UserID     string
	OrderIDs   []string
	TradeNo    string
	OccurredAt time.Time
}

func (SucceededEvent) EventName() string { return "payment.succeeded" }

func NewSucceededEvent(p *Payment) SucceededEvent {
	return SucceededEvent{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		OrderIDs:   append([]string(nil), p.OrderIDs...),
		TradeNo:    p.TradeNo,
		OccurredAt: time.Now().UTC(),
	}
}

// CancelledEvent is raised when a payment is cancelled, times out, or fails;
// linked orders release their reservations and cancel.
type CancelledEvent struct {
	PaymentID  string
	UserID     string
	OrderIDs   []string
	Reason     string
	OccurredAt time.Time
}

func (CancelledEvent) EventName() string { return "payment.cancelled" }

func NewCancelledEvent(p *Payment, reason string) CancelledEvent {
	return CancelledEvent{
		PaymentID:  p.ID,
		UserID:     p.UserID,
		OrderIDs:   append([]string(nil), p.OrderIDs...),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// RefundSucceededEvent cancels the refunded order with the gateway trade
// reference in its log.
type RefundSucceededEvent struct {
	OrderID    string
	PaymentID  string
	Amount     money.Amount
	TradeNo    string
	OccurredAt time.Time
}

func (RefundSucceededEvent) EventName() string { return "payment.refund_succeeded" }

// RefundFailedEvent is raised after the refund retry budget is exhausted or
// the gateway rejects the refund outright.
type RefundFailedEvent struct {
	OrderID    string
	PaymentID  string
	Amount     money.Amount
	Reason     string
	OccurredAt time.Time
}

func (RefundFailedEvent) EventName() string { return "payment.refund_failed" }
