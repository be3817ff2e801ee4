package payment

import (
	"context"
	"testing"

	domorder "github.com/openmall/marketcore/internal/domain/order"
	"github.com/shopspring/decimal"
)

func TestWorkerRefundRequested(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	markSuccess(t, f)
	w := NewWorker(f.svc, nil)

	evt := domorder.RefundRequestedEvent{
		OrderID:   "o1",
		OrderNo:   "on-1",
		PaymentID: "pay-1",
		Amount:    decimal.RequireFromString("42.00"),
		Reason:    "customer cancelled",
	}
	if err := w.handleRefundRequested(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.pub.count("payment.refund_succeeded") != 1 {
		t.Fatalf("expected refund_succeeded event, got %v", f.pub.names())
	}
}

func TestWorkerIgnoresForeignEvents(t *testing.T) {
	f := newFixture(t)
	w := NewWorker(f.svc, nil)

	if err := w.handleRefundRequested(context.Background(), domorder.ConfirmedEvent{OrderID: "o1"}); err != nil {
		t.Fatalf("foreign event must be ignored: %v", err)
	}
	if f.gw.refundCalls != 0 {
		t.Fatalf("gateway must not be called")
	}
}
