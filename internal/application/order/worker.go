package order

import (
	"context"
	"fmt"

	domain "github.com/openmall/marketcore/internal/domain/order"
	"github.com/openmall/marketcore/internal/domain/outbox"
	dompay "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/openmall/marketcore/internal/observability"
	"github.com/openmall/marketcore/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
)

// Worker applies payment outcomes to orders. Handlers are idempotent: events
// may be redelivered and orders may already be past the target state.
type Worker struct {
	repo    domain.Repository
	ledger  Ledger
	tel     observability.Telemetry
	log     observability.Logger
	handled observability.Counter
}

func NewWorker(repo domain.Repository, ledger Ledger, tel observability.Telemetry) *Worker {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Worker{
		repo:    repo,
		ledger:  ledger,
		tel:     tel,
		log:     tel.Logger().With(observability.F("component", "order_worker")),
		handled: tel.Counter(observability.MetricEventsHandled),
	}
}

func (w *Worker) Start(sub outbox.Subscriber) {
	sub.Subscribe(dompay.SucceededEvent{}.EventName(), w.handlePaymentSucceeded)
	sub.Subscribe(dompay.CancelledEvent{}.EventName(), w.handlePaymentCancelled)
	sub.Subscribe(dompay.RefundSucceededEvent{}.EventName(), w.handleRefundSucceeded)
}

// handlePaymentSucceeded moves every order covered by the payment from
// awaiting-payment to processing.
func (w *Worker) handlePaymentSucceeded(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(dompay.SucceededEvent)
	if !ok {
		return nil
	}
	ctx, span := w.tel.Tracer().Start(ctx, "order.worker.payment_succeeded",
		attribute.String("payment_id", evt.PaymentID),
	)
	defer span.End()
	logger := logctx.FromOr(ctx, w.log)

	for _, orderID := range evt.OrderIDs {
		o, err := w.repo.Get(ctx, orderID)
		if err != nil {
			return fmt.Errorf("order worker: load %s: %w", orderID, err)
		}
		if o.Status != domain.StatusAwaitingPayment {
			logger.Info("payment_succeeded_skip",
				observability.F("order_id", orderID),
				observability.F("status", string(o.Status)),
			)
			continue
		}
		msg := fmt.Sprintf("payment confirmed, trade %s", evt.TradeNo)
		if err := o.Apply(domain.EventPay, domain.StatusProcessing, systemActor, msg); err != nil {
			return fmt.Errorf("order worker: pay transition %s: %w", orderID, err)
		}
		if err := w.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("order worker: update %s: %w", orderID, err)
		}
	}
	w.handled.Add(1, observability.L("event", e.EventName()))
	return nil
}

// handlePaymentCancelled closes unpaid orders when their payment is
// cancelled, times out, or fails, and releases their reservations.
func (w *Worker) handlePaymentCancelled(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(dompay.CancelledEvent)
	if !ok {
		return nil
	}
	ctx, span := w.tel.Tracer().Start(ctx, "order.worker.payment_cancelled",
		attribute.String("payment_id", evt.PaymentID),
	)
	defer span.End()
	logger := logctx.FromOr(ctx, w.log)

	for _, orderID := range evt.OrderIDs {
		o, err := w.repo.Get(ctx, orderID)
		if err != nil {
			return fmt.Errorf("order worker: load %s: %w", orderID, err)
		}
		if o.Status != domain.StatusAwaitingPayment {
			continue
		}
		for _, it := range o.Items {
			if err := w.ledger.Unlock(ctx, it.ProductID, it.Quantity); err != nil {
				logger.Warn("reservation_release_failed",
					observability.F("order_id", orderID),
					observability.F("product_id", it.ProductID),
					observability.F("error", err.Error()),
				)
			}
		}
		o.DetachPayment()
		msg := "payment closed"
		if evt.Reason != "" {
			msg = "payment closed: " + evt.Reason
		}
		if err := o.Apply(domain.EventClose, domain.StatusCancelled, systemActor, msg); err != nil {
			return fmt.Errorf("order worker: close transition %s: %w", orderID, err)
		}
		if err := w.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("order worker: update %s: %w", orderID, err)
		}
	}
	w.handled.Add(1, observability.L("event", e.EventName()))
	return nil
}

// handleRefundSucceeded cancels the refunded order, recording the gateway
// trade reference in its log.
func (w *Worker) handleRefundSucceeded(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(dompay.RefundSucceededEvent)
	if !ok {
		return nil
	}
	ctx, span := w.tel.Tracer().Start(ctx, "order.worker.refund_succeeded",
		attribute.String("order_id", evt.OrderID),
	)
	defer span.End()

	o, err := w.repo.Get(ctx, evt.OrderID)
	if err != nil {
		return fmt.Errorf("order worker: load %s: %w", evt.OrderID, err)
	}
	if o.Status == domain.StatusCancelled {
		return nil
	}
	msg := fmt.Sprintf("refund of %s completed, trade %s", evt.Amount.StringFixed(2), evt.TradeNo)
	if err := o.Apply(domain.EventRefund, domain.StatusCancelled, systemActor, msg); err != nil {
		return fmt.Errorf("order worker: refund transition %s: %w", evt.OrderID, err)
	}
	if err := w.repo.Update(ctx, o); err != nil {
		return fmt.Errorf("order worker: update %s: %w", evt.OrderID, err)
	}
	w.handled.Add(1, observability.L("event", e.EventName()))
	return nil
}

// NotifyWorker pushes order progress notices to the customer. Notification
// failures are logged only; delivery is best effort.
type NotifyWorker struct {
	notifier Notifier
	log      observability.Logger
}

func NewNotifyWorker(notifier Notifier, tel observability.Telemetry) *NotifyWorker {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &NotifyWorker{
		notifier: notifier,
		log:      tel.Logger().With(observability.F("component", "order_notify_worker")),
	}
}

func (w *NotifyWorker) Start(sub outbox.Subscriber) {
	sub.Subscribe(domain.ConfirmedEvent{}.EventName(), w.handle)
	sub.Subscribe(domain.ShippedEvent{}.EventName(), w.handle)
	sub.Subscribe(domain.DeliveredEvent{}.EventName(), w.handle)
}

func (w *NotifyWorker) handle(ctx context.Context, e outbox.Event) error {
	if w.notifier == nil {
		return nil
	}
	var userID, title, body string
	switch evt := e.(type) {
	case domain.ConfirmedEvent:
		userID = evt.UserID
		title = "Order confirmed"
		body = fmt.Sprintf("Order %s has been confirmed by the store.", evt.OrderNo)
	case domain.ShippedEvent:
		userID = evt.UserID
		title = "Order shipped"
		body = fmt.Sprintf("Order %s is on its way.", evt.OrderNo)
		if evt.TrackingNo != "" {
			body = fmt.Sprintf("Order %s is on its way via %s, tracking %s.", evt.OrderNo, evt.Carrier, evt.TrackingNo)
		}
	case domain.DeliveredEvent:
		userID = evt.UserID
		title = "Order delivered"
		body = fmt.Sprintf("Order %s has been delivered.", evt.OrderNo)
	default:
		return nil
	}
	if err := w.notifier.Notify(ctx, userID, title, body); err != nil {
		logctx.FromOr(ctx, w.log).Warn("notify_failed",
			observability.F("user_id", userID),
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
	return nil
}
