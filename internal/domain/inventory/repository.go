package inventory

import "context"

type Repository interface {
	Get(ctx context.Context, productID string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	// Update persists the record guarded by rec.Version: it succeeds only if
	// the stored version still matches, bumping the version on success, and
	// returns ErrVersionConflict otherwise.
	Update(ctx context.Context, rec *Record) error
}
