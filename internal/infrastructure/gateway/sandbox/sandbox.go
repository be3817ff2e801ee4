// Package sandbox implements an in-process payment gateway with the same
// contract as a real provider: opened trades, asynchronous signed
// notifications, and refunds. It backs local runs and tests.
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openmall/marketcore/internal/domain/money"
	domain "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/shopspring/decimal"
)

const (
	paramPaymentID = "payment_id"
	paramTradeNo   = "trade_no"
	paramAmount    = "amount"
	paramStatus    = "status"
	paramSign      = "sign"
)

type trade struct {
	paymentID string
	amount    money.Amount
	status    domain.TradeStatus
	tradeNo   string
	refunded  money.Amount
}

type Gateway struct {
	mu     sync.Mutex
	method domain.Method
	secret []byte
	trades map[string]*trade
	seq    int

	// transientRefundFailures makes the next N refunds fail with a
	// retryable error; used to exercise the retry path.
	transientRefundFailures int
	rejectRefunds           bool
}

func New(method domain.Method, secret string) *Gateway {
	return &Gateway{
		method: method,
		secret: []byte(secret),
		trades: make(map[string]*trade),
	}
}

func (g *Gateway) Method() domain.Method { return g.method }

func (g *Gateway) OpenTrade(ctx context.Context, p *domain.Payment) (string, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trades[p.PaymentNo] = &trade{
		paymentID: p.ID,
		amount:    p.Amount,
		status:    domain.TradeStatusWaitingPay,
		refunded:  money.Zero(),
	}
	return fmt.Sprintf("https://sandbox.pay.invalid/trade/%s", p.PaymentNo), nil
}

func (g *Gateway) CloseTrade(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trades[p.PaymentNo]
	if !ok {
		return nil
	}
	if t.status == domain.TradeStatusSuccess {
		return &domain.GatewayError{Code: domain.CodeTradeFinished, Message: "trade already paid"}
	}
	t.status = domain.TradeStatusClosed
	return nil
}

func (g *Gateway) QueryTrade(ctx context.Context, paymentNo string) (domain.TradeStatus, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trades[paymentNo]
	if !ok {
		return domain.TradeStatusUnknown, &domain.GatewayError{Code: "TRADE_NOT_FOUND", Message: paymentNo}
	}
	return t.status, nil
}

func (g *Gateway) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.transientRefundFailures > 0 {
		g.transientRefundFailures--
		return nil, &domain.GatewayError{Code: "SYSTEM_ERROR", Message: "sandbox transient failure", Transient: true}
	}
	if g.rejectRefunds {
		return nil, &domain.GatewayError{Code: "REFUND_REJECTED", Message: "sandbox refund rejection"}
	}
	t, ok := g.trades[req.PaymentNo]
	if !ok {
		return nil, &domain.GatewayError{Code: "TRADE_NOT_FOUND", Message: req.PaymentNo}
	}
	if t.status != domain.TradeStatusSuccess {
		return nil, &domain.GatewayError{Code: "TRADE_NOT_PAID", Message: "cannot refund an unpaid trade"}
	}
	remaining := t.amount.Sub(t.refunded)
	if req.Amount.GreaterThan(remaining) {
		return nil, &domain.GatewayError{Code: "REFUND_EXCEEDS_BALANCE", Message: "refund exceeds remaining balance"}
	}
	t.refunded = t.refunded.Add(req.Amount)
	return &domain.RefundResult{
		RefundedAmount: req.Amount,
		TradeNo:        t.tradeNo,
	}, nil
}

func (g *Gateway) QueryRefund(ctx context.Context, paymentNo, orderNo string) (*domain.RefundResult, error) {
	_ = ctx
	_ = orderNo
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trades[paymentNo]
	if !ok {
		return nil, &domain.GatewayError{Code: "TRADE_NOT_FOUND", Message: paymentNo}
	}
	return &domain.RefundResult{RefundedAmount: t.refunded, TradeNo: t.tradeNo}, nil
}

func (g *Gateway) VerifyNotification(params map[string]string) (*domain.Notification, error) {
	sign, ok := params[paramSign]
	if !ok || !hmac.Equal([]byte(sign), []byte(g.sign(params))) {
		return nil, &domain.GatewayError{Code: "BAD_SIGNATURE", Message: "notification signature mismatch"}
	}
	amount, err := decimal.NewFromString(params[paramAmount])
	if err != nil {
		return nil, &domain.GatewayError{Code: "BAD_AMOUNT", Message: params[paramAmount]}
	}
	return &domain.Notification{
		PaymentID: params[paramPaymentID],
		TradeNo:   params[paramTradeNo],
		Amount:    amount,
		Status:    domain.TradeStatus(params[paramStatus]),
	}, nil
}

// Complete marks the trade paid and returns the signed notification params a
// real gateway would post back.
func (g *Gateway) Complete(paymentNo string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trades[paymentNo]
	if !ok {
		return nil, &domain.GatewayError{Code: "TRADE_NOT_FOUND", Message: paymentNo}
	}
	if t.status == domain.TradeStatusClosed {
		return nil, &domain.GatewayError{Code: "TRADE_CLOSED", Message: "trade already closed"}
	}
	if t.tradeNo == "" {
		g.seq++
		t.tradeNo = fmt.Sprintf("SBX%08d", g.seq)
	}
	t.status = domain.TradeStatusSuccess
	return g.signedParams(t, domain.TradeStatusSuccess), nil
}

// Abort closes the trade and returns the signed closed-trade notification.
func (g *Gateway) Abort(paymentNo string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trades[paymentNo]
	if !ok {
		return nil, &domain.GatewayError{Code: "TRADE_NOT_FOUND", Message: paymentNo}
	}
	if t.status == domain.TradeStatusSuccess {
		return nil, &domain.GatewayError{Code: domain.CodeTradeFinished, Message: "trade already paid"}
	}
	t.status = domain.TradeStatusClosed
	return g.signedParams(t, domain.TradeStatusClosed), nil
}

// FailRefunds injects n transient refund failures.
func (g *Gateway) FailRefunds(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transientRefundFailures = n
}

// RejectRefunds toggles permanent refund rejection.
func (g *Gateway) RejectRefunds(reject bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectRefunds = reject
}

func (g *Gateway) signedParams(t *trade, status domain.TradeStatus) map[string]string {
	params := map[string]string{
		paramPaymentID: t.paymentID,
		paramTradeNo:   t.tradeNo,
		paramAmount:    t.amount.StringFixed(2),
		paramStatus:    string(status),
	}
	params[paramSign] = g.sign(params)
	return params
}

// sign computes an HMAC-SHA256 over the sorted key=value pairs, excluding the
// signature field itself.
func (g *Gateway) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == paramSign {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}
