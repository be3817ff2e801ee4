package order

// Status is the order lifecycle state.
type Status string

const (
	StatusAwaitingPayment  Status = "AWAITING_PAYMENT"
	StatusProcessing       Status = "PROCESSING"
	StatusAwaitingShipment Status = "AWAITING_SHIPMENT"
	StatusInTransit        Status = "IN_TRANSIT"
	StatusAwaitingReceipt  Status = "AWAITING_RECEIPT"
	StatusRefundProcessing Status = "REFUND_PROCESSING"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelled        Status = "CANCELLED"
)

// Event names the action that produced a transition; it is recorded in the
// order log alongside the resulting status.
type Event string

const (
	EventCreate         Event = "CREATE"
	EventPay            Event = "PAY"
	EventExpire         Event = "EXPIRE"
	EventConfirm        Event = "CONFIRM"
	EventRefuse         Event = "REFUSE"
	EventShip           Event = "SHIP"
	EventDeliver        Event = "DELIVER"
	EventConfirmReceipt Event = "CONFIRM_RECEIPT"
	EventCancel         Event = "CANCEL"
	EventClose          Event = "CLOSE"
	EventRefund         Event = "REFUND"
)

var validNext = map[Status]map[Status]bool{
	StatusAwaitingPayment:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:       {StatusAwaitingShipment: true, StatusRefundProcessing: true},
	StatusAwaitingShipment: {StatusInTransit: true, StatusRefundProcessing: true},
	StatusInTransit:        {StatusAwaitingReceipt: true},
	StatusAwaitingReceipt:  {StatusCompleted: true},
	StatusRefundProcessing: {StatusCancelled: true},
	StatusCompleted:        {},
	StatusCancelled:        {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}
