package payment

import (
	"context"

	"github.com/openmall/marketcore/internal/domain/money"
	domain "github.com/openmall/marketcore/internal/domain/payment"
)

// RefundInput identifies the order slice of a successful payment to refund.
type RefundInput struct {
	OrderID   string
	OrderNo   string
	PaymentID string
	Amount    money.Amount
	Reason    string
}

type Usecase interface {
	Get(ctx context.Context, userID, paymentID string) (*domain.Payment, error)
	// Pay starts a payment attempt with the chosen method and returns the
	// redirect the client uses to complete it.
	Pay(ctx context.Context, userID, paymentID string, method domain.Method) (string, error)
	// Cancel aborts a pending payment before it completes.
	Cancel(ctx context.Context, userID, paymentID string) error
	// HandleNotification processes a raw asynchronous gateway callback and
	// returns the acknowledgement body expected by the gateway.
	HandleNotification(ctx context.Context, method domain.Method, params map[string]string) (string, error)
	// Refund pushes money back through the gateway for one order of a
	// successful payment.
	Refund(ctx context.Context, in RefundInput) error
	// QueryTrade asks the gateway for the authoritative state of the trade.
	QueryTrade(ctx context.Context, userID, paymentID string) (domain.TradeStatus, error)
	// QueryRefund asks the gateway how much of one order has been refunded.
	QueryRefund(ctx context.Context, userID, paymentID, orderNo string) (*domain.RefundResult, error)
}
