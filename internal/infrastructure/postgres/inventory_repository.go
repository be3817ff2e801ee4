package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/openmall/marketcore/internal/domain/inventory"
)

type InventoryRepository struct {
	pool *pgxpool.Pool
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	rec := domain.Record{ProductID: productID}
	err := r.pool.QueryRow(ctx,
		`SELECT quantity, locked, threshold, version, updated_at
		   FROM inventory WHERE product_id = $1`,
		productID,
	).Scan(&rec.Quantity, &rec.Locked, &rec.Threshold, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get inventory: %w", err)
	}
	return &rec, nil
}

func (r *InventoryRepository) Create(ctx context.Context, rec *domain.Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO inventory (product_id, quantity, locked, threshold, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ProductID, rec.Quantity, rec.Locked, rec.Threshold, rec.Version, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create inventory: %w", err)
	}
	return nil
}

// Update writes the record only if the stored version still matches,
// incrementing it in the same statement. Zero affected rows means a
// concurrent writer won.
func (r *InventoryRepository) Update(ctx context.Context, rec *domain.Record) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE inventory
		    SET quantity = $2, locked = $3, threshold = $4, version = version + 1, updated_at = $5
		  WHERE product_id = $1 AND version = $6`,
		rec.ProductID, rec.Quantity, rec.Locked, rec.Threshold, rec.UpdatedAt, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: update inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}
