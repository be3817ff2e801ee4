package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmall/marketcore/internal/domain/money"
	"github.com/openmall/marketcore/internal/domain/outbox"
	domain "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/openmall/marketcore/internal/observability"
	"github.com/openmall/marketcore/internal/observability/logctx"
)

const (
	// AckSuccess and AckFail are the acknowledgement bodies gateways expect
	// in response to an asynchronous notification.
	AckSuccess = "success"
	AckFail    = "fail"

	defaultTimeout       = 5 * time.Minute
	defaultSweepInterval = time.Minute

	defaultRefundAttempts = 3
	defaultRefundDelay    = 2 * time.Second
)

type Service struct {
	payments  domain.Repository
	gateways  *domain.Registry
	timers    TimerService
	idgen     IDGenerator
	publisher outbox.Publisher
	logger    observability.Logger
	tel       observability.Telemetry

	timeout       time.Duration
	sweepInterval time.Duration

	refundAttempts int
	refundDelay    time.Duration

	now func() time.Time
}

type Option func(*Service)

// WithTimeout overrides how long a payment attempt may stay open.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSweepInterval overrides the reconciliation sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithRefundRetry overrides the refund retry budget and base delay. The delay
// grows linearly with the attempt number.
func WithRefundRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.refundAttempts = attempts
		}
		s.refundDelay = delay
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(
	payments domain.Repository,
	gateways *domain.Registry,
	timers TimerService,
	idgen IDGenerator,
	publisher outbox.Publisher,
	tel observability.Telemetry,
	opts ...Option,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	s := &Service{
		payments:       payments,
		gateways:       gateways,
		timers:         timers,
		idgen:          idgen,
		publisher:      publisher,
		logger:         tel.Logger().With(observability.F("component", "payment_service")),
		tel:            tel,
		timeout:        defaultTimeout,
		sweepInterval:  defaultSweepInterval,
		refundAttempts: defaultRefundAttempts,
		refundDelay:    defaultRefundDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Usecase = (*Service)(nil)

func (s *Service) Get(ctx context.Context, userID, paymentID string) (*domain.Payment, error) {
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrPermissionDenied
	}
	return p, nil
}

// Pay begins a payment attempt. Re-invoking with a different method closes
// the previous trade first; the gateway only ever sees one open trade per
// payment.
func (s *Service) Pay(ctx context.Context, userID, paymentID string, method domain.Method) (string, error) {
	logger := logctx.FromOr(ctx, s.logger)
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if p.UserID != userID {
		return "", domain.ErrPermissionDenied
	}
	if p.Status != domain.StatusPending {
		return "", domain.ErrNotPending
	}

	if p.Method != "" && p.PaymentNo != "" {
		if gw, err := s.gateways.Resolve(p.Method); err == nil {
			if err := gw.CloseTrade(ctx, p); err != nil {
				logger.Warn("stale_trade_close_failed",
					observability.F("payment_id", p.ID),
					observability.F("payment_no", p.PaymentNo),
					observability.F("error", err.Error()),
				)
			}
		}
	}

	gw, err := s.gateways.Resolve(method)
	if err != nil {
		return "", err
	}
	if err := p.BeginRequest(s.idgen.NewID(), method, s.now()); err != nil {
		return "", err
	}
	redirect, err := gw.OpenTrade(ctx, p)
	if err != nil {
		return "", fmt.Errorf("%w: open trade: %v", domain.ErrPaymentFail, err)
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return "", fmt.Errorf("payment: update: %w", err)
	}

	id := p.ID
	s.timers.Arm(id, s.timeout, func() {
		s.fireTimeout(context.Background(), id)
	})
	logger.Info("payment_requested",
		observability.F("payment_id", p.ID),
		observability.F("payment_no", p.PaymentNo),
		observability.F("method", string(method)),
		observability.F("amount", p.Amount.String()),
	)
	return redirect, nil
}

func (s *Service) Cancel(ctx context.Context, userID, paymentID string) error {
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return domain.ErrPermissionDenied
	}
	if p.Status == domain.StatusCancelled {
		return nil
	}
	if p.Status != domain.StatusPending {
		return domain.ErrNotPending
	}

	s.timers.Disarm(p.ID)
	if p.Method != "" && p.PaymentNo != "" {
		if gw, err := s.gateways.Resolve(p.Method); err == nil {
			if err := gw.CloseTrade(ctx, p); err != nil {
				logctx.FromOr(ctx, s.logger).Warn("trade_close_failed",
					observability.F("payment_id", p.ID),
					observability.F("error", err.Error()),
				)
			}
		}
	}
	if err := p.MarkCancelled(); err != nil {
		return err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return fmt.Errorf("payment: update: %w", err)
	}
	s.completed("cancelled")
	s.publish(ctx, domain.NewCancelledEvent(p, "cancelled by user"))
	return nil
}

// HandleNotification processes a verified gateway callback. The returned body
// acknowledges the notification; AckFail makes the gateway redeliver.
func (s *Service) HandleNotification(ctx context.Context, method domain.Method, params map[string]string) (string, error) {
	gw, err := s.gateways.Resolve(method)
	if err != nil {
		return AckFail, err
	}
	n, err := gw.VerifyNotification(params)
	if err != nil {
		return AckFail, fmt.Errorf("%w: verify notification: %v", domain.ErrPaymentFail, err)
	}
	p, err := s.payments.Get(ctx, n.PaymentID)
	if err != nil {
		return AckFail, err
	}

	switch n.Status {
	case domain.TradeStatusSuccess:
		return s.handleSuccess(ctx, p, n)
	case domain.TradeStatusClosed:
		if p.Status != domain.StatusPending {
			return AckSuccess, nil
		}
		s.timers.Disarm(p.ID)
		if err := p.MarkFailed(); err != nil {
			return AckFail, err
		}
		if err := s.payments.Update(ctx, p); err != nil {
			return AckFail, fmt.Errorf("payment: update: %w", err)
		}
		s.completed("failed")
		s.publish(ctx, domain.NewCancelledEvent(p, "trade closed by gateway"))
		return AckSuccess, nil
	default:
		// WAIT_BUYER_PAY and unknown interim states just get acknowledged.
		return AckSuccess, nil
	}
}

func (s *Service) handleSuccess(ctx context.Context, p *domain.Payment, n *domain.Notification) (string, error) {
	logger := logctx.FromOr(ctx, s.logger)
	if p.Status == domain.StatusSuccess {
		// redelivered notification for a completed payment
		return AckSuccess, nil
	}
	if p.Status != domain.StatusPending {
		logger.Warn("notification_for_terminal_payment",
			observability.F("payment_id", p.ID),
			observability.F("status", string(p.Status)),
		)
		return AckSuccess, nil
	}

	s.timers.Disarm(p.ID)

	if !money.Equal(n.Amount, p.Amount) {
		logger.Error("notification_amount_mismatch",
			observability.F("payment_id", p.ID),
			observability.F("expected", p.Amount.String()),
			observability.F("got", n.Amount.String()),
		)
		if err := p.MarkFailed(); err != nil {
			return AckFail, err
		}
		if err := s.payments.Update(ctx, p); err != nil {
			return AckFail, fmt.Errorf("payment: update: %w", err)
		}
		s.completed("failed")
		s.publish(ctx, domain.NewCancelledEvent(p, "notification amount mismatch"))
		return AckFail, domain.ErrPaymentFail
	}

	if err := p.MarkSuccess(n.TradeNo, s.now()); err != nil {
		return AckFail, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return AckFail, fmt.Errorf("payment: update: %w", err)
	}
	s.completed("success")
	s.publish(ctx, domain.NewSucceededEvent(p))
	logger.Info("payment_succeeded",
		observability.F("payment_id", p.ID),
		observability.F("trade_no", n.TradeNo),
	)
	return AckSuccess, nil
}

// fireTimeout expires a payment attempt. It re-reads the payment and, when a
// trade was opened, asks the gateway for the authoritative state before
// closing anything.
func (s *Service) fireTimeout(ctx context.Context, paymentID string) {
	logger := s.logger.With(observability.F("payment_id", paymentID))
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		logger.Error("timeout_load_failed", observability.F("error", err.Error()))
		return
	}
	if p.Status != domain.StatusPending {
		return
	}

	if p.Method != "" && p.PaymentNo != "" {
		gw, err := s.gateways.Resolve(p.Method)
		if err != nil {
			logger.Error("timeout_gateway_missing", observability.F("method", string(p.Method)))
			return
		}
		status, err := gw.QueryTrade(ctx, p.PaymentNo)
		if err != nil {
			// leave the payment pending; the sweep retries later
			logger.Warn("timeout_query_failed", observability.F("error", err.Error()))
			return
		}
		if status == domain.TradeStatusSuccess {
			// paid at the last moment; wait for the success notification
			logger.Info("timeout_trade_already_paid")
			return
		}
		if err := gw.CloseTrade(ctx, p); err != nil {
			if domain.IsTradeFinished(err) {
				// paid between the query and the close; the success
				// notification settles the payment
				logger.Info("timeout_trade_already_paid")
				return
			}
			logger.Warn("timeout_trade_close_failed", observability.F("error", err.Error()))
		}
	}

	if err := p.MarkTimeout(); err != nil {
		logger.Warn("timeout_mark_failed", observability.F("error", err.Error()))
		return
	}
	if err := s.payments.Update(ctx, p); err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			// a concurrent transition won the write; nothing to expire
			logger.Info("timeout_superseded")
			return
		}
		logger.Error("timeout_update_failed", observability.F("error", err.Error()))
		return
	}
	s.completed("timeout")
	s.publish(ctx, domain.NewCancelledEvent(p, "payment timeout"))
	logger.Info("payment_timed_out")
}

// StartSweep reconciles pending payments that outlived their timer, e.g.
// after a restart. It blocks until ctx is cancelled.
func (s *Service) StartSweep(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	pending, err := s.payments.ListPending(ctx)
	if err != nil {
		s.logger.Error("sweep_list_failed", observability.F("error", err.Error()))
		return
	}
	now := s.now()
	for _, p := range pending {
		anchor := p.RequestedAt
		if anchor.IsZero() {
			anchor = p.CreatedAt
		}
		if now.Before(anchor.Add(s.timeout)) {
			continue
		}
		if s.timers.Armed(p.ID) {
			continue
		}
		s.fireTimeout(ctx, p.ID)
	}
}

// Refund pushes the order's amount back through the gateway. Transient
// gateway failures are retried with a growing delay; rejections are final.
func (s *Service) Refund(ctx context.Context, in RefundInput) error {
	logger := logctx.FromOr(ctx, s.logger).With(
		observability.F("payment_id", in.PaymentID),
		observability.F("order_id", in.OrderID),
	)
	p, err := s.payments.Get(ctx, in.PaymentID)
	if err != nil {
		return err
	}
	if p.Status != domain.StatusSuccess {
		return fmt.Errorf("%w: payment status is %s", domain.ErrRefundFail, p.Status)
	}
	gw, err := s.gateways.Resolve(p.Method)
	if err != nil {
		return err
	}

	req := domain.RefundRequest{
		PaymentNo: p.PaymentNo,
		OrderNo:   in.OrderNo,
		Amount:    in.Amount,
		Reason:    in.Reason,
	}
	var lastErr error
	for attempt := 1; attempt <= s.refundAttempts; attempt++ {
		s.tel.Counter(observability.MetricRefundAttempts).Add(1)
		res, err := gw.Refund(ctx, req)
		if err == nil {
			if err := p.AddRefund(res.RefundedAmount); err != nil {
				return err
			}
			if err := s.payments.Update(ctx, p); err != nil {
				return fmt.Errorf("payment: update: %w", err)
			}
			s.publish(ctx, domain.RefundSucceededEvent{
				OrderID:    in.OrderID,
				PaymentID:  p.ID,
				Amount:     res.RefundedAmount,
				TradeNo:    res.TradeNo,
				OccurredAt: s.now(),
			})
			logger.Info("refund_succeeded",
				observability.F("amount", res.RefundedAmount.String()),
				observability.F("attempt", attempt),
			)
			return nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			logger.Error("refund_rejected", observability.F("error", err.Error()))
			break
		}
		logger.Warn("refund_attempt_failed",
			observability.F("attempt", attempt),
			observability.F("error", err.Error()),
		)
		if attempt < s.refundAttempts {
			if err := sleep(ctx, time.Duration(attempt)*s.refundDelay); err != nil {
				return err
			}
		}
	}

	s.publish(ctx, domain.RefundFailedEvent{
		OrderID:    in.OrderID,
		PaymentID:  p.ID,
		Amount:     in.Amount,
		Reason:     lastErr.Error(),
		OccurredAt: s.now(),
	})
	return fmt.Errorf("%w: %v", domain.ErrRefundFail, lastErr)
}

func (s *Service) QueryTrade(ctx context.Context, userID, paymentID string) (domain.TradeStatus, error) {
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.TradeStatusUnknown, err
	}
	if p.UserID != userID {
		return domain.TradeStatusUnknown, domain.ErrPermissionDenied
	}
	if p.Method == "" || p.PaymentNo == "" {
		return domain.TradeStatusUnknown, nil
	}
	gw, err := s.gateways.Resolve(p.Method)
	if err != nil {
		return domain.TradeStatusUnknown, err
	}
	return gw.QueryTrade(ctx, p.PaymentNo)
}

func (s *Service) QueryRefund(ctx context.Context, userID, paymentID, orderNo string) (*domain.RefundResult, error) {
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrPermissionDenied
	}
	if p.Method == "" || p.PaymentNo == "" {
		return nil, fmt.Errorf("%w: no trade opened", domain.ErrRefundFail)
	}
	gw, err := s.gateways.Resolve(p.Method)
	if err != nil {
		return nil, err
	}
	return gw.QueryRefund(ctx, p.PaymentNo, orderNo)
}

func (s *Service) completed(outcome string) {
	s.tel.Counter(observability.MetricPaymentsCompleted).Add(1, observability.L("outcome", outcome))
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

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
