package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func amount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func newOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New("o-1", "u-1", "store-1", "", []Item{
		{ProductID: "p-1", Quantity: 2, UnitPrice: amount(t, "19.90")},
		{ProductID: "p-2", Quantity: 1, UnitPrice: amount(t, "5.005")},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNewComputesNormalizedTotal(t *testing.T) {
	o := newOrder(t)

	// 2*19.90 + 5.005 = 44.805, rounded half up to 44.81
	if got := o.TotalAmount.StringFixed(2); got != "44.81" {
		t.Fatalf("total = %s, want 44.81", got)
	}
	if o.Status != StatusAwaitingPayment {
		t.Fatalf("status = %s, want %s", o.Status, StatusAwaitingPayment)
	}
	if len(o.Logs) != 1 || o.Logs[0].Event != EventCreate {
		t.Fatalf("expected a single CREATE log, got %v", o.Logs)
	}
	if o.OrderNo == "" {
		t.Fatal("order number not assigned")
	}
}

func TestNewRejectsInvalidItems(t *testing.T) {
	cases := []struct {
		name  string
		items []Item
	}{
		{"no items", nil},
		{"zero quantity", []Item{{ProductID: "p-1", Quantity: 0, UnitPrice: amount(t, "1.00")}}},
		{"negative price", []Item{{ProductID: "p-1", Quantity: 1, UnitPrice: amount(t, "-1.00")}}},
		{"empty product", []Item{{ProductID: "", Quantity: 1, UnitPrice: amount(t, "1.00")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New("o-1", "u-1", "store-1", "", tc.items); !errors.Is(err, ErrInvalidItem) {
				t.Fatalf("New = %v, want ErrInvalidItem", err)
			}
		})
	}
}

func TestApplyAppendsLog(t *testing.T) {
	o := newOrder(t)

	if err := o.Apply(EventPay, StatusProcessing, "system", "payment confirmed"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if o.Status != StatusProcessing {
		t.Fatalf("status = %s, want %s", o.Status, StatusProcessing)
	}
	last := o.Logs[len(o.Logs)-1]
	if last.Event != EventPay || last.AfterStatus != StatusProcessing || last.ActorID != "system" {
		t.Fatalf("unexpected log entry: %+v", last)
	}
}

func TestApplyRejectsInvalidTransition(t *testing.T) {
	o := newOrder(t)

	err := o.Apply(EventShip, StatusInTransit, "m-1", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Apply = %v, want ErrInvalidTransition", err)
	}
	if o.Status != StatusAwaitingPayment || len(o.Logs) != 1 {
		t.Fatal("rejected transition mutated the order")
	}
}

func TestStatusGraph(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusAwaitingPayment, StatusProcessing},
		{StatusAwaitingPayment, StatusCancelled},
		{StatusProcessing, StatusAwaitingShipment},
		{StatusProcessing, StatusRefundProcessing},
		{StatusAwaitingShipment, StatusInTransit},
		{StatusAwaitingShipment, StatusRefundProcessing},
		{StatusInTransit, StatusAwaitingReceipt},
		{StatusAwaitingReceipt, StatusCompleted},
		{StatusRefundProcessing, StatusCancelled},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusAwaitingPayment, StatusAwaitingShipment},
		{StatusInTransit, StatusRefundProcessing},
		{StatusCompleted, StatusRefundProcessing},
		{StatusCancelled, StatusProcessing},
		{StatusAwaitingReceipt, StatusCancelled},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be rejected", tr.from, tr.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusAwaitingPayment, StatusProcessing, StatusRefundProcessing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
