package inventory

import "time"

// LowStockEvent is emitted after a consumption drives on-hand stock to or
// below the warning threshold.
type LowStockEvent struct {
	ProductID  string
	Remaining  int
	Threshold  int
	OccurredAt time.Time
}

func (LowStockEvent) EventName() string { return "inventory.low_stock" }

func NewLowStockEvent(rec *Record) LowStockEvent {
	return LowStockEvent{
		ProductID:  rec.ProductID,
		Remaining:  rec.Quantity,
		Threshold:  rec.Threshold,
		OccurredAt: time.Now().UTC(),
	}
}
