package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/openmall/marketcore/internal/domain/money"
	"github.com/openmall/marketcore/internal/domain/outbox"
	domain "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type fakeRepo struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{payments: map[string]*domain.Payment{}}
}

func (f *fakeRepo) Create(_ context.Context, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = p.Clone()
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakeRepo) Update(_ context.Context, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.payments[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	// same guard as the real repositories: stale writers lose
	if stored.Status != domain.StatusPending && stored.Status != p.Status {
		return domain.ErrNotPending
	}
	f.payments[p.ID] = p.Clone()
	return nil
}

func (f *fakeRepo) ListPending(_ context.Context) ([]*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Payment, 0)
	for _, p := range f.payments {
		if p.Status == domain.StatusPending {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

type fakeGateway struct {
	mu           sync.Mutex
	method       domain.Method
	openErr      error
	closed       int
	closeErr     error
	onClose      func()
	queryStatus  domain.TradeStatus
	queryErr     error
	refundErrs   []error
	refundCalls  int
	notification *domain.Notification
	verifyErr    error
}

func (g *fakeGateway) Method() domain.Method { return g.method }

func (g *fakeGateway) OpenTrade(_ context.Context, p *domain.Payment) (string, error) {
	if g.openErr != nil {
		return "", g.openErr
	}
	return "https://pay.example.test/" + p.PaymentNo, nil
}

func (g *fakeGateway) CloseTrade(_ context.Context, _ *domain.Payment) error {
	g.mu.Lock()
	g.closed++
	hook := g.onClose
	err := g.closeErr
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (g *fakeGateway) QueryTrade(_ context.Context, _ string) (domain.TradeStatus, error) {
	if g.queryErr != nil {
		return domain.TradeStatusUnknown, g.queryErr
	}
	return g.queryStatus, nil
}

func (g *fakeGateway) Refund(_ context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if len(g.refundErrs) > 0 {
		err := g.refundErrs[0]
		g.refundErrs = g.refundErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.RefundResult{RefundedAmount: req.Amount, TradeNo: "RT1"}, nil
}

func (g *fakeGateway) QueryRefund(_ context.Context, _, _ string) (*domain.RefundResult, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) VerifyNotification(_ map[string]string) (*domain.Notification, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.notification, nil
}

type fakeTimers struct {
	mu    sync.Mutex
	armed map[string]func()
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{armed: map[string]func(){}}
}

func (t *fakeTimers) Arm(id string, _ time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed[id] = fire
}

func (t *fakeTimers) Disarm(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.armed, id)
}

func (t *fakeTimers) Armed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.armed[id]
	return ok
}

// fire runs the armed callback the way a real timer expiry would.
func (t *fakeTimers) fire(id string) {
	t.mu.Lock()
	fn := t.armed[id]
	delete(t.armed, id)
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("no-%d", g.n)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e outbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

func (p *capturingPublisher) count(name string) int {
	n := 0
	for _, en := range p.names() {
		if en == name {
			n++
		}
	}
	return n
}

type fixture struct {
	svc    *Service
	repo   *fakeRepo
	gw     *fakeGateway
	timers *fakeTimers
	pub    *capturingPublisher
	now    time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:   newFakeRepo(),
		gw:     &fakeGateway{method: domain.MethodAlipay},
		timers: newFakeTimers(),
		pub:    &capturingPublisher{},
		now:    time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	base := []Option{
		WithRefundRetry(3, 0),
		WithClock(func() time.Time { return f.now }),
	}
	f.svc = NewService(f.repo, domain.NewRegistry(f.gw), f.timers, &seqIDGen{}, f.pub, nil, append(base, opts...)...)
	return f
}

func (f *fixture) seed(t *testing.T, amount string) *domain.Payment {
	t.Helper()
	p, err := domain.New("pay-1", "u1", []string{"o1"}, decimal.RequireFromString(amount))
	if err != nil {
		t.Fatalf("new payment: %v", err)
	}
	if err := f.repo.Create(context.Background(), p); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func (f *fixture) pay(t *testing.T) *domain.Payment {
	t.Helper()
	if _, err := f.svc.Pay(context.Background(), "u1", "pay-1", domain.MethodAlipay); err != nil {
		t.Fatalf("pay: %v", err)
	}
	p, err := f.repo.Get(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	return p
}

func successParams(p *domain.Payment) map[string]string {
	return map[string]string{"payment_id": p.ID}
}

func TestPayOpensTradeAndArmsTimer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")

	redirect, err := f.svc.Pay(context.Background(), "u1", "pay-1", domain.MethodAlipay)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if redirect == "" {
		t.Fatalf("expected redirect URL")
	}
	p, _ := f.repo.Get(context.Background(), "pay-1")
	if p.Status != domain.StatusPending || p.Method != domain.MethodAlipay || p.PaymentNo == "" {
		t.Fatalf("unexpected payment state: %+v", p)
	}
	if !f.timers.Armed("pay-1") {
		t.Fatalf("expected expiry timer armed")
	}
}

func TestPayRequiresOwner(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	_, err := f.svc.Pay(context.Background(), "u2", "pay-1", domain.MethodAlipay)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestPayUnsupportedMethod(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	_, err := f.svc.Pay(context.Background(), "u1", "pay-1", domain.MethodWechat)
	if !errors.Is(err, domain.ErrPaymentFail) {
		t.Fatalf("expected ErrPaymentFail, got %v", err)
	}
}

func TestPayAgainClosesStaleTrade(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	f.pay(t)

	if _, err := f.svc.Pay(context.Background(), "u1", "pay-1", domain.MethodAlipay); err != nil {
		t.Fatalf("second pay: %v", err)
	}
	if f.gw.closed != 1 {
		t.Fatalf("expected stale trade closed once, got %d", f.gw.closed)
	}
}

func TestCancelPendingPayment(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	f.pay(t)

	if err := f.svc.Cancel(context.Background(), "u1", "pay-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	p, _ := f.repo.Get(context.Background(), "pay-1")
	if p.Status != domain.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", p.Status)
	}
	if f.timers.Armed("pay-1") {
		t.Fatalf("expected timer disarmed")
	}
	if f.pub.count("payment.cancelled") != 1 {
		t.Fatalf("expected one cancelled event, got %v", f.pub.names())
	}

	// idempotent
	if err := f.svc.Cancel(context.Background(), "u1", "pay-1"); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
}

func TestNotificationSuccess(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "42.00")
	f.pay(t)
	f.gw.notification = &domain.Notification{
		PaymentID: p.ID,
		TradeNo:   "T42",
		Amount:    decimal.RequireFromString("42.00"),
		Status:    domain.TradeStatusSuccess,
	}

	ack, err := f.svc.HandleNotification(context.Background(), domain.MethodAlipay, successParams(p))
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	if ack != AckSuccess {
		t.Fatalf("expected success ack, got %q", ack)
	}
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusSuccess || got.TradeNo != "T42" {
		t.Fatalf("unexpected payment state: %+v", got)
	}
	if f.timers.Armed("pay-1") {
		t.Fatalf("expected timer disarmed")
	}
	if f.pub.count("payment.succeeded") != 1 {
		t.Fatalf("expected one succeeded event, got %v", f.pub.names())
	}

	// redelivery acks without a second event
	ack, err = f.svc.HandleNotification(context.Background(), domain.MethodAlipay, successParams(p))
	if err != nil || ack != AckSuccess {
		t.Fatalf("redelivery: ack=%q err=%v", ack, err)
	}
	if f.pub.count("payment.succeeded") != 1 {
		t.Fatalf("redelivery must not publish again, got %v", f.pub.names())
	}
}

func TestNotificationAmountMismatch(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "42.00")
	f.pay(t)
	f.gw.notification = &domain.Notification{
		PaymentID: p.ID,
		TradeNo:   "T42",
		Amount:    decimal.RequireFromString("41.99"),
		Status:    domain.TradeStatusSuccess,
	}

	ack, err := f.svc.HandleNotification(context.Background(), domain.MethodAlipay, successParams(p))
	if ack != AckFail {
		t.Fatalf("expected fail ack, got %q (err=%v)", ack, err)
	}
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if f.pub.count("payment.cancelled") != 1 {
		t.Fatalf("expected cancelled event so orders release, got %v", f.pub.names())
	}
}

func TestNotificationTradeClosed(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "42.00")
	f.pay(t)
	f.gw.notification = &domain.Notification{PaymentID: p.ID, Status: domain.TradeStatusClosed}

	ack, err := f.svc.HandleNotification(context.Background(), domain.MethodAlipay, successParams(p))
	if err != nil || ack != AckSuccess {
		t.Fatalf("ack=%q err=%v", ack, err)
	}
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
}

func TestTimeoutWithoutTradeAttempt(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")

	f.svc.fireTimeout(context.Background(), "pay-1")
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusTimeout {
		t.Fatalf("expected TIMEOUT, got %s", got.Status)
	}
	if f.pub.count("payment.cancelled") != 1 {
		t.Fatalf("expected cancelled event, got %v", f.pub.names())
	}
}

func TestTimerExpiryClosesTrade(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	f.pay(t)
	f.gw.queryStatus = domain.TradeStatusWaitingPay

	f.timers.fire("pay-1")
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusTimeout {
		t.Fatalf("expected TIMEOUT, got %s", got.Status)
	}
	if f.gw.closed != 1 {
		t.Fatalf("expected trade closed, got %d", f.gw.closed)
	}
}

func TestTimeoutDefersToPaidTrade(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	f.pay(t)
	f.gw.queryStatus = domain.TradeStatusSuccess

	f.timers.fire("pay-1")
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusPending {
		t.Fatalf("paid trade must stay pending for the notification, got %s", got.Status)
	}
}

func TestTimeoutQueryErrorLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	f.pay(t)
	f.gw.queryErr = errors.New("gateway unreachable")

	f.timers.fire("pay-1")
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusPending {
		t.Fatalf("expected PENDING until the sweep retries, got %s", got.Status)
	}
}

func TestTimeoutYieldsWhenTradePaidDuringClose(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "42.00")
	f.pay(t)
	f.gw.queryStatus = domain.TradeStatusWaitingPay
	f.gw.notification = &domain.Notification{
		PaymentID: p.ID,
		TradeNo:   "T42",
		Amount:    decimal.RequireFromString("42.00"),
		Status:    domain.TradeStatusSuccess,
	}
	// the buyer pays while the trade is being closed: the gateway delivers
	// the success notification first, then rejects the close
	f.gw.closeErr = &domain.GatewayError{Code: domain.CodeTradeFinished, Message: "trade already paid"}
	f.gw.onClose = func() {
		if _, err := f.svc.HandleNotification(context.Background(), domain.MethodAlipay, successParams(p)); err != nil {
			t.Errorf("notification during close: %v", err)
		}
	}

	f.timers.fire("pay-1")
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS to stand, got %s", got.Status)
	}
	if f.pub.count("payment.succeeded") != 1 || f.pub.count("payment.cancelled") != 0 {
		t.Fatalf("unexpected events %v", f.pub.names())
	}
}

func TestTimeoutLosesUpdateRace(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "42.00")
	f.pay(t)
	f.gw.queryStatus = domain.TradeStatusWaitingPay
	f.gw.notification = &domain.Notification{
		PaymentID: p.ID,
		TradeNo:   "T42",
		Amount:    decimal.RequireFromString("42.00"),
		Status:    domain.TradeStatusSuccess,
	}
	// the close goes through, but the success notification lands before the
	// timeout writes its own status; the guarded update must reject it
	f.gw.onClose = func() {
		if _, err := f.svc.HandleNotification(context.Background(), domain.MethodAlipay, successParams(p)); err != nil {
			t.Errorf("notification during close: %v", err)
		}
	}

	f.timers.fire("pay-1")
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS to stand, got %s", got.Status)
	}
	if f.pub.count("payment.cancelled") != 0 {
		t.Fatalf("timeout must not publish after losing the race, got %v", f.pub.names())
	}
}

func TestSweepExpiresOverduePayments(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	f.pay(t)
	f.gw.queryStatus = domain.TradeStatusWaitingPay

	// simulate a restart: the armed timer is gone
	f.timers.Disarm("pay-1")
	f.now = f.now.Add(10 * time.Minute)

	f.svc.sweep(context.Background())
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusTimeout {
		t.Fatalf("expected TIMEOUT, got %s", got.Status)
	}
}

func TestSweepSkipsArmedAndFreshPayments(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	f.pay(t)

	f.svc.sweep(context.Background())
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if got.Status != domain.StatusPending {
		t.Fatalf("fresh armed payment must stay pending, got %s", got.Status)
	}
}

func markSuccess(t *testing.T, f *fixture) *domain.Payment {
	t.Helper()
	p := f.pay(t)
	if err := p.MarkSuccess("T42", f.now); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	if err := f.repo.Update(context.Background(), p); err != nil {
		t.Fatalf("update: %v", err)
	}
	return p
}

func refundInput(amount string) RefundInput {
	return RefundInput{
		OrderID:   "o1",
		OrderNo:   "on-1",
		PaymentID: "pay-1",
		Amount:    decimal.RequireFromString(amount),
		Reason:    "customer cancelled",
	}
}

func TestRefundFirstAttempt(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	markSuccess(t, f)

	if err := f.svc.Refund(context.Background(), refundInput("42.00")); err != nil {
		t.Fatalf("refund: %v", err)
	}
	got, _ := f.repo.Get(context.Background(), "pay-1")
	if !money.Equal(got.RefundedAmount, decimal.RequireFromString("42.00")) {
		t.Fatalf("expected refunded amount recorded, got %s", got.RefundedAmount)
	}
	if got.Status != domain.StatusSuccess {
		t.Fatalf("refund must not change payment status, got %s", got.Status)
	}
	if f.pub.count("payment.refund_succeeded") != 1 {
		t.Fatalf("expected refund_succeeded event, got %v", f.pub.names())
	}
}

func TestRefundRetriesTransientErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	markSuccess(t, f)
	transient := &domain.GatewayError{Code: "SYSTEM_ERROR", Message: "try later", Transient: true}
	f.gw.refundErrs = []error{transient, transient}

	if err := f.svc.Refund(context.Background(), refundInput("42.00")); err != nil {
		t.Fatalf("refund should succeed on third attempt: %v", err)
	}
	if f.gw.refundCalls != 3 {
		t.Fatalf("expected 3 refund calls, got %d", f.gw.refundCalls)
	}
}

func TestRefundRejectionIsFinal(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	markSuccess(t, f)
	f.gw.refundErrs = []error{&domain.GatewayError{Code: "INVALID_REQUEST", Message: "no such trade"}}

	err := f.svc.Refund(context.Background(), refundInput("42.00"))
	if !errors.Is(err, domain.ErrRefundFail) {
		t.Fatalf("expected ErrRefundFail, got %v", err)
	}
	if f.gw.refundCalls != 1 {
		t.Fatalf("rejection must not be retried, got %d calls", f.gw.refundCalls)
	}
	if f.pub.count("payment.refund_failed") != 1 {
		t.Fatalf("expected refund_failed event, got %v", f.pub.names())
	}
}

func TestRefundExhaustsRetries(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")
	markSuccess(t, f)
	transient := &domain.GatewayError{Code: "SYSTEM_ERROR", Message: "try later", Transient: true}
	f.gw.refundErrs = []error{transient, transient, transient}

	err := f.svc.Refund(context.Background(), refundInput("42.00"))
	if !errors.Is(err, domain.ErrRefundFail) {
		t.Fatalf("expected ErrRefundFail, got %v", err)
	}
	if f.gw.refundCalls != 3 {
		t.Fatalf("expected 3 refund calls, got %d", f.gw.refundCalls)
	}
	if f.pub.count("payment.refund_failed") != 1 {
		t.Fatalf("expected refund_failed event, got %v", f.pub.names())
	}
}

func TestRefundRequiresSuccessfulPayment(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42.00")

	err := f.svc.Refund(context.Background(), refundInput("42.00"))
	if !errors.Is(err, domain.ErrRefundFail) {
		t.Fatalf("expected ErrRefundFail for pending payment, got %v", err)
	}
	if f.gw.refundCalls != 0 {
		t.Fatalf("gateway must not be called, got %d", f.gw.refundCalls)
	}
}
