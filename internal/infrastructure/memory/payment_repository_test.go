package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/shopspring/decimal"
)

func seedPayment(t *testing.T, repo *PaymentRepository) *domain.Payment {
	t.Helper()
	p, err := domain.New("pay-1", "u1", []string{"o1"}, decimal.RequireFromString("10.00"))
	if err != nil {
		t.Fatalf("new payment: %v", err)
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestPaymentUpdateStatusGuard(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	seedPayment(t, repo)

	winner, _ := repo.Get(ctx, "pay-1")
	loser, _ := repo.Get(ctx, "pay-1")

	if err := winner.MarkSuccess("T1", time.Now()); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	if err := repo.Update(ctx, winner); err != nil {
		t.Fatalf("first update: %v", err)
	}

	if err := loser.MarkTimeout(); err != nil {
		t.Fatalf("mark timeout: %v", err)
	}
	if err := repo.Update(ctx, loser); !errors.Is(err, domain.ErrNotPending) {
		t.Fatalf("expected ErrNotPending for stale writer, got %v", err)
	}

	fresh, _ := repo.Get(ctx, "pay-1")
	if fresh.Status != domain.StatusSuccess {
		t.Fatalf("stale write must not apply, status=%s", fresh.Status)
	}
}

func TestPaymentUpdateAllowsRefundBookkeeping(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	seedPayment(t, repo)

	p, _ := repo.Get(ctx, "pay-1")
	if err := p.MarkSuccess("T1", time.Now()); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	settled, _ := repo.Get(ctx, "pay-1")
	if err := settled.AddRefund(decimal.RequireFromString("4.00")); err != nil {
		t.Fatalf("add refund: %v", err)
	}
	if err := repo.Update(ctx, settled); err != nil {
		t.Fatalf("refund update on settled payment: %v", err)
	}

	fresh, _ := repo.Get(ctx, "pay-1")
	if fresh.RefundedAmount.StringFixed(2) != "4.00" {
		t.Fatalf("expected refunded amount recorded, got %s", fresh.RefundedAmount)
	}
}

func TestPaymentUpdateMissing(t *testing.T) {
	repo := NewPaymentRepository()
	p, err := domain.New("pay-x", "u1", []string{"o1"}, decimal.RequireFromString("1.00"))
	if err != nil {
		t.Fatalf("new payment: %v", err)
	}
	if err := repo.Update(context.Background(), p); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
