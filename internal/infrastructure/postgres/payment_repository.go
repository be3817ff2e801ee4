package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payments (id, payment_no, user_id, order_ids, amount, status, method,
		                       created_at, requested_at, transacted_at, trade_no, refunded_amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.PaymentNo, p.UserID, p.OrderIDs, p.Amount.StringFixed(2), string(p.Status),
		string(p.Method), p.CreatedAt, nullTime(p.RequestedAt), nullTime(p.TransactedAt),
		p.TradeNo, p.RefundedAmount.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("postgres: create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, selectPayment+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

// Update is status-guarded: the row must still be PENDING, or already carry
// the written status (refund bookkeeping on a settled payment). A writer
// holding a stale status gets ErrNotPending.
func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments
		    SET payment_no = $2, status = $3, method = $4, requested_at = $5,
		        transacted_at = $6, trade_no = $7, refunded_amount = $8
		  WHERE id = $1 AND (status = $9 OR status = $3)`,
		p.ID, p.PaymentNo, string(p.Status), string(p.Method), nullTime(p.RequestedAt),
		nullTime(p.TransactedAt), p.TradeNo, p.RefundedAmount.StringFixed(2),
		string(domain.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("postgres: update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: update payment: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrNotPending
	}
	return nil
}

func (r *PaymentRepository) ListPending(ctx context.Context) ([]*domain.Payment, error) {
	rows, err := r.pool.Query(ctx, selectPayment+` WHERE status = $1`, string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const selectPayment = `SELECT id, payment_no, user_id, order_ids, amount::text, status, method,
       created_at, requested_at, transacted_at, trade_no, refunded_amount::text
  FROM payments`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p            domain.Payment
		amount       string
		refunded     string
		status       string
		method       string
		requestedAt  sql.NullTime
		transactedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.PaymentNo, &p.UserID, &p.OrderIDs, &amount, &status, &method,
		&p.CreatedAt, &requestedAt, &transactedAt, &p.TradeNo, &refunded)
	if err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	p.Method = domain.Method(method)
	if requestedAt.Valid {
		p.RequestedAt = requestedAt.Time
	}
	if transactedAt.Valid {
		p.TransactedAt = transactedAt.Time
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("postgres: parse amount: %w", err)
	}
	if p.RefundedAmount, err = decimal.NewFromString(refunded); err != nil {
		return nil, fmt.Errorf("postgres: parse refunded amount: %w", err)
	}
	return &p, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
