package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmall/marketcore/internal/domain/catalog"
	dominv "github.com/openmall/marketcore/internal/domain/inventory"
	"github.com/openmall/marketcore/internal/domain/outbox"
	"github.com/openmall/marketcore/internal/observability"
	"github.com/openmall/marketcore/internal/observability/logctx"
)

// ErrConcurrencyConflict is returned when a version-guarded mutation still
// loses after exhausting its retry budget.
var ErrConcurrencyConflict = errors.New("inventory: concurrent modification, please retry")

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

type Service struct {
	repo      dominv.Repository
	catalog   catalog.Catalog
	publisher outbox.Publisher
	logger    observability.Logger
	tel       observability.Telemetry

	attempts int
	backoff  time.Duration
}

type Option func(*Service)

// WithRetry overrides the version-conflict retry budget and backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.backoff = backoff
	}
}

func NewService(repo dominv.Repository, cat catalog.Catalog, publisher outbox.Publisher, tel observability.Telemetry, opts ...Option) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	s := &Service{
		repo:      repo,
		catalog:   cat,
		publisher: publisher,
		logger:    tel.Logger().With(observability.F("component", "inventory_service")),
		tel:       tel,
		attempts:  defaultAttempts,
		backoff:   defaultBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Usecase = (*Service)(nil)

func (s *Service) Init(ctx context.Context, productID string, quantity int) (*dominv.Record, error) {
	rec, err := dominv.NewRecord(productID, quantity)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("inventory: create: %w", err)
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, productID string) (*dominv.Record, error) {
	return s.repo.Get(ctx, productID)
}

func (s *Service) Check(ctx context.Context, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, dominv.ErrInvalidOperation
	}
	rec, err := s.repo.Get(ctx, productID)
	if err != nil {
		return false, err
	}
	return rec.Available() >= qty, nil
}

func (s *Service) Lock(ctx context.Context, productID string, qty int) error {
	rec, err := s.mutate(ctx, productID, "lock", func(r *dominv.Record) error {
		return r.Lock(qty)
	})
	if err != nil {
		return err
	}
	if rec.Available() == 0 {
		s.markSoldOut(ctx, productID, true)
	}
	return nil
}

func (s *Service) Unlock(ctx context.Context, productID string, qty int) error {
	rec, err := s.mutate(ctx, productID, "unlock", func(r *dominv.Record) error {
		return r.Unlock(qty)
	})
	if err != nil {
		return err
	}
	if rec.Available() > 0 {
		s.markSoldOut(ctx, productID, false)
	}
	return nil
}

func (s *Service) Consume(ctx context.Context, productID string, qty int) error {
	rec, err := s.mutate(ctx, productID, "consume", func(r *dominv.Record) error {
		return r.Consume(qty)
	})
	if err != nil {
		return err
	}
	if rec.LowStock() {
		s.publish(ctx, dominv.NewLowStockEvent(rec))
	}
	return nil
}

func (s *Service) Restore(ctx context.Context, productID string, qty int) error {
	_, err := s.mutate(ctx, productID, "restore", func(r *dominv.Record) error {
		return r.Restore(qty)
	})
	return err
}

func (s *Service) SetStock(ctx context.Context, productID string, qty int) error {
	rec, err := s.mutate(ctx, productID, "set_stock", func(r *dominv.Record) error {
		return r.SetStock(qty)
	})
	if err != nil {
		return err
	}
	s.markSoldOut(ctx, productID, rec.Available() == 0)
	return nil
}

func (s *Service) SetThreshold(ctx context.Context, productID string, threshold int) error {
	_, err := s.mutate(ctx, productID, "set_threshold", func(r *dominv.Record) error {
		return r.SetThreshold(threshold)
	})
	return err
}

// mutate runs a read-mutate-update cycle under optimistic concurrency. A
// version conflict triggers a fresh read and another attempt, up to the retry
// budget; domain errors abort immediately.
func (s *Service) mutate(ctx context.Context, productID, op string, fn func(*dominv.Record) error) (*dominv.Record, error) {
	logger := logctx.FromOr(ctx, s.logger)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		rec, err := s.repo.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		if err := fn(rec); err != nil {
			return nil, err
		}
		err = s.repo.Update(ctx, rec)
		if err == nil {
			s.tel.Counter(observability.MetricInventoryOps).Add(1, observability.L("op", op))
			return rec, nil
		}
		if !errors.Is(err, dominv.ErrVersionConflict) {
			return nil, fmt.Errorf("inventory: update: %w", err)
		}
		logger.Warn("inventory_version_conflict",
			observability.F("product_id", productID),
			observability.F("op", op),
			observability.F("attempt", attempt),
		)
		s.tel.Counter(observability.MetricInventoryConflicts).Add(1, observability.L("op", op))
		if attempt < s.attempts {
			if err := sleep(ctx, s.backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, ErrConcurrencyConflict
}

// markSoldOut syncs stock visibility back to the catalog. Failures are logged
// and swallowed; the ledger mutation has already committed.
func (s *Service) markSoldOut(ctx context.Context, productID string, soldOut bool) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.MarkSoldOut(ctx, productID, soldOut); err != nil {
		logctx.FromOr(ctx, s.logger).Warn("catalog_mark_sold_out_failed",
			observability.F("product_id", productID),
			observability.F("sold_out", soldOut),
			observability.F("error", err.Error()),
		)
	}
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
