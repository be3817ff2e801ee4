package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/openmall/marketcore/internal/domain/order"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, order_no, user_id, store_id, total_amount, status, remark, payment_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.OrderNo, o.UserID, o.StoreID, o.TotalAmount.StringFixed(2),
		string(o.Status), o.Remark, o.PaymentID, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	for i, it := range o.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, idx, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i, it.ProductID, it.Quantity, it.UnitPrice.StringFixed(2),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert order item: %w", err)
		}
	}
	if err := insertLogs(ctx, tx, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *OrderRepository) GetByNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	return r.get(ctx, `order_no = $1`, orderNo)
}

func (r *OrderRepository) get(ctx context.Context, where string, arg any) (*domain.Order, error) {
	var (
		o      domain.Order
		total  string
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_no, user_id, store_id, total_amount::text, status, remark, payment_id, created_at
		   FROM orders WHERE `+where,
		arg,
	).Scan(&o.ID, &o.OrderNo, &o.UserID, &o.StoreID, &total, &status, &o.Remark, &o.PaymentID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order: %w", err)
	}
	o.Status = domain.Status(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("postgres: parse total: %w", err)
	}

	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	if o.Logs, err = r.logs(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) items(ctx context.Context, orderID string) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity, unit_price::text
		   FROM order_items WHERE order_id = $1 ORDER BY idx`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var (
			it    domain.Item
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("postgres: scan order item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse unit price: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *OrderRepository) logs(ctx context.Context, orderID string) ([]domain.Log, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event, after_status, message, actor_id, at
		   FROM order_logs WHERE order_id = $1 ORDER BY idx`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.Log
	for rows.Next() {
		var (
			l      domain.Log
			event  string
			status string
		)
		if err := rows.Scan(&event, &status, &l.Message, &l.ActorID, &l.At); err != nil {
			return nil, fmt.Errorf("postgres: scan order log: %w", err)
		}
		l.Event = domain.Event(event)
		l.AfterStatus = domain.Status(status)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Update rewrites the mutable columns and appends any new log rows. Log rows
// are keyed by their index, so a replayed update is harmless.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, payment_id = $3, remark = $4 WHERE id = $1`,
		o.ID, string(o.Status), o.PaymentID, o.Remark,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if err := insertLogs(ctx, tx, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func insertLogs(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	for i, l := range o.Logs {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_logs (order_id, idx, event, after_status, message, actor_id, at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (order_id, idx) DO NOTHING`,
			o.ID, i, string(l.Event), string(l.AfterStatus), l.Message, l.ActorID, l.At,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert order log: %w", err)
		}
	}
	return nil
}
