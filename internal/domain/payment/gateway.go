package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/openmall/marketcore/internal/domain/money"
)

// TradeStatus is the gateway's authoritative view of a trade.
type TradeStatus string

const (
	TradeStatusUnknown    TradeStatus = "UNKNOWN"
	TradeStatusWaitingPay TradeStatus = "WAIT_BUYER_PAY"
	TradeStatusSuccess    TradeStatus = "TRADE_SUCCESS"
	TradeStatusClosed     TradeStatus = "TRADE_CLOSED"
)

// Notification carries the verified fields of an asynchronous gateway
// callback. Wire format is gateway-specific and stays behind
// Gateway.VerifyNotification.
type Notification struct {
	PaymentID string
	TradeNo   string
	Amount    money.Amount
	Status    TradeStatus
}

type RefundRequest struct {
	PaymentNo string
	OrderNo   string
	Amount    money.Amount
	Reason    string
}

type RefundResult struct {
	RefundedAmount money.Amount
	TradeNo        string
}

// GatewayError is a classified gateway failure. Transient (system-class)
// errors may be retried; validation-class rejections must not be.
type GatewayError struct {
	Code      string
	Message   string
	Transient bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// IsTransient reports whether err is a retryable gateway failure.
func IsTransient(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return false
}

// CodeTradeFinished is the gateway rejection code for operations on a trade
// that has already been paid.
const CodeTradeFinished = "TRADE_FINISHED"

// IsTradeFinished reports whether err is a gateway rejection because the
// trade was paid before the operation reached it.
func IsTradeFinished(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Code == CodeTradeFinished
}

// Gateway is the capability set one payment method implementation provides.
type Gateway interface {
	Method() Method
	// OpenTrade starts a trade for the payment and returns the redirect the
	// client uses to complete it.
	OpenTrade(ctx context.Context, p *Payment) (string, error)
	CloseTrade(ctx context.Context, p *Payment) error
	QueryTrade(ctx context.Context, paymentNo string) (TradeStatus, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	QueryRefund(ctx context.Context, paymentNo, orderNo string) (*RefundResult, error)
	// VerifyNotification authenticates a raw asynchronous callback and
	// extracts its semantic fields.
	VerifyNotification(params map[string]string) (*Notification, error)
}

// Registry dispatches to the gateway registered for a payment method.
type Registry struct {
	gateways map[Method]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Method]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Method()] = g
	}
	return r
}

func (r *Registry) Resolve(method Method) (Gateway, error) {
	g, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrPaymentFail, method)
	}
	return g, nil
}
