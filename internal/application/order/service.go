package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/openmall/marketcore/internal/domain/cart"
	"github.com/openmall/marketcore/internal/domain/catalog"
	"github.com/openmall/marketcore/internal/domain/money"
	domain "github.com/openmall/marketcore/internal/domain/order"
	"github.com/openmall/marketcore/internal/domain/outbox"
	"github.com/openmall/marketcore/internal/domain/payment"
	"github.com/openmall/marketcore/internal/observability"
	"github.com/openmall/marketcore/internal/observability/logctx"
)

var ErrProductNotSellable = errors.New("order: product is not sellable")

const systemActor = "system"

type Service struct {
	orders    domain.Repository
	payments  payment.Repository
	carts     cart.Store
	catalog   catalog.Catalog
	ledger    Ledger
	perms     Permission
	idgen     IDGenerator
	publisher outbox.Publisher
	logger    observability.Logger
	tel       observability.Telemetry
}

func NewService(
	orders domain.Repository,
	payments payment.Repository,
	carts cart.Store,
	cat catalog.Catalog,
	ledger Ledger,
	perms Permission,
	idgen IDGenerator,
	publisher outbox.Publisher,
	tel observability.Telemetry,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		orders:    orders,
		payments:  payments,
		carts:     carts,
		catalog:   cat,
		ledger:    ledger,
		perms:     perms,
		idgen:     idgen,
		publisher: publisher,
		logger:    tel.Logger().With(observability.F("component", "order_service")),
		tel:       tel,
	}
}

var _ Usecase = (*Service)(nil)

type stagedItem struct {
	item    domain.Item
	storeID string
	entryID string
}

func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.UserID == "" || len(in.CartEntryIDs) == 0 {
		return nil, domain.ErrInvalidItem
	}
	entries, err := s.carts.Get(ctx, in.UserID, in.CartEntryIDs)
	if err != nil {
		return nil, fmt.Errorf("order: load cart entries: %w", err)
	}
	if len(entries) != len(in.CartEntryIDs) {
		return nil, fmt.Errorf("%w: cart entry missing", domain.ErrInvalidItem)
	}

	staged := make([]stagedItem, 0, len(entries))
	for _, e := range entries {
		staged = append(staged, stagedItem{
			item:    domain.Item{ProductID: e.ProductID, Quantity: e.Quantity},
			entryID: e.ID,
		})
	}

	result, err := s.placeOrders(ctx, in.UserID, in.Remark, staged)
	if err != nil {
		return nil, err
	}

	if err := s.carts.Remove(ctx, in.UserID, in.CartEntryIDs); err != nil {
		logctx.FromOr(ctx, s.logger).Warn("cart_cleanup_failed",
			observability.F("user_id", in.UserID),
			observability.F("error", err.Error()),
		)
	}
	return result, nil
}

func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (*CheckoutResult, error) {
	if in.UserID == "" || in.ProductID == "" || in.Quantity <= 0 {
		return nil, domain.ErrInvalidItem
	}
	staged := []stagedItem{{item: domain.Item{ProductID: in.ProductID, Quantity: in.Quantity}}}
	return s.placeOrders(ctx, in.UserID, in.Remark, staged)
}

// placeOrders prices and reserves every staged item, then creates one order
// per store and a single payment covering them all. Reservations taken before
// a failure are released again.
func (s *Service) placeOrders(ctx context.Context, userID, remark string, staged []stagedItem) (*CheckoutResult, error) {
	logger := logctx.FromOr(ctx, s.logger)

	for i := range staged {
		pid := staged[i].item.ProductID
		sellable, err := s.catalog.IsSellable(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("order: catalog lookup %s: %w", pid, err)
		}
		if !sellable {
			return nil, fmt.Errorf("%w: %s", ErrProductNotSellable, pid)
		}
		price, err := s.catalog.UnitPrice(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("order: price lookup %s: %w", pid, err)
		}
		storeID, err := s.catalog.StoreOf(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("order: store lookup %s: %w", pid, err)
		}
		staged[i].item.UnitPrice = price
		staged[i].storeID = storeID
	}

	locked := make([]stagedItem, 0, len(staged))
	rollback := func() {
		for _, st := range locked {
			if err := s.ledger.Unlock(ctx, st.item.ProductID, st.item.Quantity); err != nil {
				logger.Error("reservation_rollback_failed",
					observability.F("product_id", st.item.ProductID),
					observability.F("qty", st.item.Quantity),
					observability.F("error", err.Error()),
				)
			}
		}
	}
	for _, st := range staged {
		if err := s.ledger.Lock(ctx, st.item.ProductID, st.item.Quantity); err != nil {
			rollback()
			return nil, fmt.Errorf("order: reserve %s: %w", st.item.ProductID, err)
		}
		locked = append(locked, st)
	}

	byStore := make(map[string][]domain.Item)
	storeOrder := make([]string, 0)
	for _, st := range staged {
		if _, ok := byStore[st.storeID]; !ok {
			storeOrder = append(storeOrder, st.storeID)
		}
		byStore[st.storeID] = append(byStore[st.storeID], st.item)
	}

	orders := make([]*domain.Order, 0, len(byStore))
	orderIDs := make([]string, 0, len(byStore))
	totals := make([]money.Amount, 0, len(byStore))
	for _, storeID := range storeOrder {
		o, err := domain.New(s.idgen.NewID(), userID, storeID, remark, byStore[storeID])
		if err != nil {
			rollback()
			return nil, err
		}
		orders = append(orders, o)
		orderIDs = append(orderIDs, o.ID)
		totals = append(totals, o.TotalAmount)
	}

	pay, err := payment.New(s.idgen.NewID(), userID, orderIDs, money.Sum(totals...))
	if err != nil {
		rollback()
		return nil, err
	}
	for _, o := range orders {
		o.AttachPayment(pay.ID)
	}

	for _, o := range orders {
		if err := s.orders.Create(ctx, o); err != nil {
			rollback()
			return nil, fmt.Errorf("order: create: %w", err)
		}
	}
	if err := s.payments.Create(ctx, pay); err != nil {
		rollback()
		return nil, fmt.Errorf("order: create payment: %w", err)
	}

	s.publish(ctx, payment.NewCreatedEvent(pay))
	s.tel.Counter(observability.MetricOrdersCreated).Add(float64(len(orders)))
	logger.Info("orders_created",
		observability.F("user_id", userID),
		observability.F("order_count", len(orders)),
		observability.F("payment_id", pay.ID),
		observability.F("amount", pay.Amount.String()),
	)

	return &CheckoutResult{Orders: orders, Payment: pay}, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == userID {
		return o, nil
	}
	ok, err := s.perms.CanManageStore(ctx, userID, o.StoreID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrPermissionDenied
	}
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, userID, orderID, reason string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return domain.ErrPermissionDenied
	}
	if o.Status == domain.StatusCancelled {
		return nil
	}
	return s.abort(ctx, o, domain.EventCancel, userID, reason)
}

func (s *Service) Refuse(ctx context.Context, actorID, orderID, reason string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.requireStoreActor(ctx, actorID, o.StoreID); err != nil {
		return err
	}
	if o.Status != domain.StatusProcessing {
		return domain.ErrInvalidTransition
	}
	return s.abort(ctx, o, domain.EventRefuse, actorID, reason)
}

// abort moves a paid order into refund processing, releasing reservations and
// returning the goods to the customer's cart. Once the order was confirmed
// the reservation is already consumed, so only pre-confirmation aborts touch
// the ledger.
func (s *Service) abort(ctx context.Context, o *domain.Order, ev domain.Event, actorID, reason string) error {
	logger := logctx.FromOr(ctx, s.logger)
	reserved := o.Status == domain.StatusProcessing
	if err := o.Apply(ev, domain.StatusRefundProcessing, actorID, reason); err != nil {
		return err
	}

	for _, it := range o.Items {
		if reserved {
			if err := s.ledger.Unlock(ctx, it.ProductID, it.Quantity); err != nil {
				logger.Warn("reservation_release_failed",
					observability.F("order_id", o.ID),
					observability.F("product_id", it.ProductID),
					observability.F("error", err.Error()),
				)
			}
		}
		if _, err := s.carts.Merge(ctx, o.UserID, it.ProductID, it.Quantity); err != nil {
			logger.Warn("cart_restore_failed",
				observability.F("order_id", o.ID),
				observability.F("product_id", it.ProductID),
				observability.F("error", err.Error()),
			)
		}
	}

	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("order: update: %w", err)
	}
	s.transitionMetric(ev)
	s.publish(ctx, domain.NewRefundRequestedEvent(o, reason))
	return nil
}

func (s *Service) Confirm(ctx context.Context, actorID, orderID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.requireStoreActor(ctx, actorID, o.StoreID); err != nil {
		return err
	}
	if err := o.Apply(domain.EventConfirm, domain.StatusAwaitingShipment, actorID, "order confirmed"); err != nil {
		return err
	}
	consumed := make([]domain.Item, 0, len(o.Items))
	for _, it := range o.Items {
		if err := s.ledger.Consume(ctx, it.ProductID, it.Quantity); err != nil {
			s.restoreConsumed(ctx, o.ID, consumed)
			return fmt.Errorf("order: consume %s: %w", it.ProductID, err)
		}
		consumed = append(consumed, it)
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("order: update: %w", err)
	}
	s.transitionMetric(domain.EventConfirm)
	s.publish(ctx, domain.NewConfirmedEvent(o))
	return nil
}

// restoreConsumed re-reserves items already consumed when a later item of the
// same order failed, so the order stays PROCESSING and a retried confirm
// starts from intact reservations.
func (s *Service) restoreConsumed(ctx context.Context, orderID string, items []domain.Item) {
	logger := logctx.FromOr(ctx, s.logger)
	for _, it := range items {
		if err := s.ledger.Restore(ctx, it.ProductID, it.Quantity); err != nil {
			logger.Error("consume_rollback_failed",
				observability.F("order_id", orderID),
				observability.F("product_id", it.ProductID),
				observability.F("qty", it.Quantity),
				observability.F("error", err.Error()),
			)
		}
	}
}

func (s *Service) Ship(ctx context.Context, actorID, orderID, carrier, trackingNo string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.requireStoreActor(ctx, actorID, o.StoreID); err != nil {
		return err
	}
	msg := "order shipped"
	if trackingNo != "" {
		msg = fmt.Sprintf("order shipped via %s, tracking %s", carrier, trackingNo)
	}
	if err := o.Apply(domain.EventShip, domain.StatusInTransit, actorID, msg); err != nil {
		return err
	}
	for _, it := range o.Items {
		if err := s.catalog.IncrementSales(ctx, it.ProductID, it.Quantity); err != nil {
			logctx.FromOr(ctx, s.logger).Warn("sales_counter_failed",
				observability.F("product_id", it.ProductID),
				observability.F("error", err.Error()),
			)
		}
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("order: update: %w", err)
	}
	s.transitionMetric(domain.EventShip)
	s.publish(ctx, domain.NewShippedEvent(o, carrier, trackingNo))
	return nil
}

func (s *Service) Deliver(ctx context.Context, orderID, location string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := o.Apply(domain.EventDeliver, domain.StatusAwaitingReceipt, systemActor, "package delivered"); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("order: update: %w", err)
	}
	s.transitionMetric(domain.EventDeliver)
	s.publish(ctx, domain.NewDeliveredEvent(o, location))
	return nil
}

func (s *Service) ConfirmReceipt(ctx context.Context, userID, orderID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return domain.ErrPermissionDenied
	}
	if err := o.Apply(domain.EventConfirmReceipt, domain.StatusCompleted, userID, "receipt confirmed"); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("order: update: %w", err)
	}
	s.transitionMetric(domain.EventConfirmReceipt)
	return nil
}

func (s *Service) RequestRefund(ctx context.Context, userID, orderID, reason string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return domain.ErrPermissionDenied
	}
	if o.Status != domain.StatusRefundProcessing {
		return domain.ErrInvalidTransition
	}
	s.publish(ctx, domain.NewRefundRequestedEvent(o, reason))
	return nil
}

func (s *Service) requireStoreActor(ctx context.Context, actorID, storeID string) error {
	ok, err := s.perms.CanManageStore(ctx, actorID, storeID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (s *Service) transitionMetric(ev domain.Event) {
	s.tel.Counter(observability.MetricOrderTransitions).Add(1, observability.L("event", string(ev)))
}

func (s *Service) publish(ctx context.Context, e outbox.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		logctx.FromOr(ctx, s.logger).Error("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}
