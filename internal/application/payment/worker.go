package payment

import (
	"context"
	"fmt"

	domorder "github.com/openmall/marketcore/internal/domain/order"
	"github.com/openmall/marketcore/internal/domain/outbox"
	"github.com/openmall/marketcore/internal/observability"
)

// Worker executes refund requests raised on the order side.
type Worker struct {
	svc     Usecase
	tel     observability.Telemetry
	handled observability.Counter
}

func NewWorker(svc Usecase, tel observability.Telemetry) *Worker {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Worker{
		svc:     svc,
		tel:     tel,
		handled: tel.Counter(observability.MetricEventsHandled),
	}
}

func (w *Worker) Start(sub outbox.Subscriber) {
	sub.Subscribe(domorder.RefundRequestedEvent{}.EventName(), w.handleRefundRequested)
}

func (w *Worker) handleRefundRequested(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(domorder.RefundRequestedEvent)
	if !ok {
		return nil
	}
	ctx, span := w.tel.Tracer().Start(ctx, "payment.worker.refund_requested")
	defer span.End()

	err := w.svc.Refund(ctx, RefundInput{
		OrderID:   evt.OrderID,
		OrderNo:   evt.OrderNo,
		PaymentID: evt.PaymentID,
		Amount:    evt.Amount,
		Reason:    evt.Reason,
	})
	if err != nil {
		return fmt.Errorf("payment worker: refund order %s: %w", evt.OrderID, err)
	}
	w.handled.Add(1, observability.L("event", e.EventName()))
	return nil
}
