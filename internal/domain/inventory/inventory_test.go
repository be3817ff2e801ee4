package inventory

import (
	"errors"
	"testing"
)

func newRecord(t *testing.T, qty int) *Record {
	t.Helper()
	rec, err := NewRecord("prod-1", qty)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return rec
}

func TestLockReservesWithoutConsuming(t *testing.T) {
	rec := newRecord(t, 10)

	if err := rec.Lock(4); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if rec.Quantity != 10 {
		t.Fatalf("quantity changed on lock: %d", rec.Quantity)
	}
	if rec.Locked != 4 || rec.Available() != 6 {
		t.Fatalf("locked=%d available=%d, want 4/6", rec.Locked, rec.Available())
	}
}

func TestLockBeyondAvailable(t *testing.T) {
	rec := newRecord(t, 10)
	if err := rec.Lock(7); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := rec.Lock(4); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("Lock over available = %v, want ErrInsufficientStock", err)
	}
	if rec.Locked != 7 {
		t.Fatalf("failed lock mutated record: locked=%d", rec.Locked)
	}
}

func TestConsumeDecrementsBothCounters(t *testing.T) {
	rec := newRecord(t, 10)
	if err := rec.Lock(5); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := rec.Consume(3); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if rec.Quantity != 7 || rec.Locked != 2 {
		t.Fatalf("quantity=%d locked=%d, want 7/2", rec.Quantity, rec.Locked)
	}
}

func TestConsumeMoreThanLocked(t *testing.T) {
	rec := newRecord(t, 10)
	if err := rec.Lock(2); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := rec.Consume(3); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("Consume beyond reservation = %v, want ErrInsufficientStock", err)
	}
}

func TestRestoreReversesConsume(t *testing.T) {
	rec := newRecord(t, 10)
	if err := rec.Lock(5); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := rec.Consume(3); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := rec.Restore(3); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if rec.Quantity != 10 || rec.Locked != 5 {
		t.Fatalf("quantity=%d locked=%d, want 10/5", rec.Quantity, rec.Locked)
	}
	if err := rec.Restore(0); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("Restore(0) = %v, want ErrInvalidOperation", err)
	}
}

func TestUnlockRequiresReservation(t *testing.T) {
	rec := newRecord(t, 10)
	if err := rec.Unlock(1); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("Unlock without lock = %v, want ErrInvalidOperation", err)
	}
}

func TestSetStockMustCoverReservations(t *testing.T) {
	rec := newRecord(t, 10)
	if err := rec.Lock(6); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := rec.SetStock(5); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("SetStock below locked = %v, want ErrInvalidOperation", err)
	}
	if err := rec.SetStock(6); err != nil {
		t.Fatalf("SetStock at locked: %v", err)
	}
	if rec.Available() != 0 {
		t.Fatalf("available=%d, want 0", rec.Available())
	}
}

func TestLowStockThreshold(t *testing.T) {
	rec := newRecord(t, 10)
	if err := rec.SetThreshold(3); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if rec.LowStock() {
		t.Fatal("low stock at quantity 10 with threshold 3")
	}
	if err := rec.Lock(7); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := rec.Consume(7); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !rec.LowStock() {
		t.Fatalf("quantity %d at threshold %d not reported low", rec.Quantity, rec.Threshold)
	}
}

func TestNewRecordValidation(t *testing.T) {
	if _, err := NewRecord("", 1); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("empty product id = %v, want ErrInvalidOperation", err)
	}
	if _, err := NewRecord("prod-1", -1); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("negative quantity = %v, want ErrInvalidOperation", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rec := newRecord(t, 10)
	clone := rec.Clone()
	if err := clone.Lock(5); err != nil {
		t.Fatalf("Lock on clone: %v", err)
	}
	if rec.Locked != 0 {
		t.Fatalf("mutating clone touched original: locked=%d", rec.Locked)
	}
}
