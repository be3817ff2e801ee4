package payment

import "context"

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	// ListPending returns all payments still awaiting an outcome; used by the
	// reconciliation sweep.
	ListPending(ctx context.Context) ([]*Payment, error)
}
