package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/openmall/marketcore/internal/domain/cart"
)

type CartStore struct {
	pool *pgxpool.Pool
}

func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

func (s *CartStore) Merge(ctx context.Context, userID, productID string, qty int) (*domain.Entry, error) {
	now := time.Now().UTC()
	e := domain.Entry{UserID: userID, ProductID: productID}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cart_entries (id, user_id, product_id, quantity, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET quantity = cart_entries.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		 RETURNING id, quantity, updated_at`,
		uuid.NewString(), userID, productID, qty, now,
	).Scan(&e.ID, &e.Quantity, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: merge cart entry: %w", err)
	}
	return &e, nil
}

func (s *CartStore) Get(ctx context.Context, userID string, ids []string) ([]*domain.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, product_id, quantity, updated_at
		   FROM cart_entries WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get cart entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *CartStore) List(ctx context.Context, userID string) ([]*domain.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, product_id, quantity, updated_at
		   FROM cart_entries WHERE user_id = $1 ORDER BY updated_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cart entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *CartStore) Remove(ctx context.Context, userID string, ids []string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM cart_entries WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids,
	)
	if err != nil {
		return fmt.Errorf("postgres: remove cart entries: %w", err)
	}
	return nil
}

func collectEntries(rows pgx.Rows) ([]*domain.Entry, error) {
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProductID, &e.Quantity, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan cart entry: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return out, nil
}
