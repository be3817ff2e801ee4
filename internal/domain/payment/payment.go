package payment

import (
	"errors"
	"time"

	"github.com/openmall/marketcore/internal/domain/money"
)

var (
	ErrNotFound         = errors.New("payment: not found")
	ErrNotPending       = errors.New("payment: status does not allow this operation")
	ErrPaymentFail      = errors.New("payment: gateway rejected the request")
	ErrRefundFail       = errors.New("payment: refund failed")
	ErrPermissionDenied = errors.New("payment: permission denied")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusCancelled Status = "CANCELLED"
	StatusTimeout   Status = "TIMEOUT"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status admits no further transition. Only
// PENDING is non-terminal.
func (s Status) Terminal() bool { return s != StatusPending }

type Method string

const (
	MethodAlipay   Method = "ALIPAY"
	MethodWechat   Method = "WECHAT_PAY"
	MethodUnionPay Method = "UNION_PAY"
)

// Payment is the money owed for one or more orders created together. It is
// created atomically with its orders and becomes immutable once SUCCESS,
// except for the refund annotation.
type Payment struct {
	ID             string
	PaymentNo      string
	UserID         string
	OrderIDs       []string
	Amount         money.Amount
	Status         Status
	Method         Method
	CreatedAt      time.Time
	RequestedAt    time.Time
	TransactedAt   time.Time
	TradeNo        string
	RefundedAmount money.Amount
}

func New(id, userID string, orderIDs []string, amount money.Amount) (*Payment, error) {
	if id == "" || userID == "" || len(orderIDs) == 0 {
		return nil, ErrNotPending
	}
	return &Payment{
		ID:             id,
		UserID:         userID,
		OrderIDs:       append([]string(nil), orderIDs...),
		Amount:         money.Normalize(amount),
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		RefundedAmount: money.Zero(),
	}, nil
}

// BeginRequest records a fresh payment attempt: new payment number, chosen
// method, and request time. Legal only while PENDING.
func (p *Payment) BeginRequest(paymentNo string, method Method, at time.Time) error {
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.PaymentNo = paymentNo
	p.Method = method
	p.RequestedAt = at
	return nil
}

func (p *Payment) MarkSuccess(tradeNo string, at time.Time) error {
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.Status = StatusSuccess
	p.TradeNo = tradeNo
	p.TransactedAt = at
	return nil
}

func (p *Payment) MarkCancelled() error {
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.Status = StatusCancelled
	p.PaymentNo = ""
	return nil
}

func (p *Payment) MarkTimeout() error {
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.Status = StatusTimeout
	return nil
}

func (p *Payment) MarkFailed() error {
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.Status = StatusFailed
	return nil
}

// AddRefund accumulates the refund annotation on a successful payment.
func (p *Payment) AddRefund(amount money.Amount) error {
	if p.Status != StatusSuccess {
		return ErrRefundFail
	}
	p.RefundedAmount = money.Normalize(p.RefundedAmount.Add(amount))
	return nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	clone.OrderIDs = append([]string(nil), p.OrderIDs...)
	return &clone
}
