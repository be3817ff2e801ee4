package sandbox

import (
	"context"
	"errors"
	"testing"

	domain "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/shopspring/decimal"
)

func openTrade(t *testing.T, g *Gateway) *domain.Payment {
	t.Helper()
	p, err := domain.New("pay-1", "u1", []string{"o1"}, decimal.RequireFromString("50.00"))
	if err != nil {
		t.Fatalf("new payment: %v", err)
	}
	if err := p.BeginRequest("no-1", g.Method(), p.CreatedAt); err != nil {
		t.Fatalf("begin request: %v", err)
	}
	if _, err := g.OpenTrade(context.Background(), p); err != nil {
		t.Fatalf("open trade: %v", err)
	}
	return p
}

func TestCompleteProducesVerifiableNotification(t *testing.T) {
	g := New(domain.MethodAlipay, "secret")
	openTrade(t, g)

	params, err := g.Complete("no-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	n, err := g.VerifyNotification(params)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n.PaymentID != "pay-1" || n.Status != domain.TradeStatusSuccess {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if !n.Amount.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("unexpected amount %s", n.Amount)
	}

	status, err := g.QueryTrade(context.Background(), "no-1")
	if err != nil || status != domain.TradeStatusSuccess {
		t.Fatalf("query status=%s err=%v", status, err)
	}
}

func TestVerifyRejectsTamperedParams(t *testing.T) {
	g := New(domain.MethodAlipay, "secret")
	openTrade(t, g)
	params, err := g.Complete("no-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	params["amount"] = "0.01"

	if _, err := g.VerifyNotification(params); err == nil {
		t.Fatalf("tampered notification must fail verification")
	}
}

func TestCloseTradeThenCompleteFails(t *testing.T) {
	g := New(domain.MethodAlipay, "secret")
	p := openTrade(t, g)

	if err := g.CloseTrade(context.Background(), p); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := g.Complete("no-1"); err == nil {
		t.Fatalf("completing a closed trade must fail")
	}
}

func TestRefundBookkeeping(t *testing.T) {
	g := New(domain.MethodAlipay, "secret")
	openTrade(t, g)
	if _, err := g.Complete("no-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err := g.Refund(context.Background(), domain.RefundRequest{
		PaymentNo: "no-1",
		OrderNo:   "on-1",
		Amount:    decimal.RequireFromString("20.00"),
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !res.RefundedAmount.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("unexpected refunded amount %s", res.RefundedAmount)
	}

	// over-refund of the remainder
	_, err = g.Refund(context.Background(), domain.RefundRequest{
		PaymentNo: "no-1",
		Amount:    decimal.RequireFromString("40.00"),
	})
	var ge *domain.GatewayError
	if !errors.As(err, &ge) || ge.Code != "REFUND_EXCEEDS_BALANCE" {
		t.Fatalf("expected REFUND_EXCEEDS_BALANCE, got %v", err)
	}
}

func TestRefundOnUnpaidTrade(t *testing.T) {
	g := New(domain.MethodAlipay, "secret")
	openTrade(t, g)

	_, err := g.Refund(context.Background(), domain.RefundRequest{
		PaymentNo: "no-1",
		Amount:    decimal.RequireFromString("10.00"),
	})
	var ge *domain.GatewayError
	if !errors.As(err, &ge) || ge.Code != "TRADE_NOT_PAID" {
		t.Fatalf("expected TRADE_NOT_PAID, got %v", err)
	}
}

func TestInjectedTransientFailures(t *testing.T) {
	g := New(domain.MethodAlipay, "secret")
	openTrade(t, g)
	if _, err := g.Complete("no-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	g.FailRefunds(1)

	_, err := g.Refund(context.Background(), domain.RefundRequest{
		PaymentNo: "no-1",
		Amount:    decimal.RequireFromString("10.00"),
	})
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if _, err := g.Refund(context.Background(), domain.RefundRequest{
		PaymentNo: "no-1",
		Amount:    decimal.RequireFromString("10.00"),
	}); err != nil {
		t.Fatalf("second refund should succeed: %v", err)
	}
}
