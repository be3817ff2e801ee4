package order

import "context"

type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByNo(ctx context.Context, orderNo string) (*Order, error)
	Update(ctx context.Context, o *Order) error
}
