package scrubreport

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the append-only report store. There is deliberately no
// update or delete: reports are immutable audit records.
type Repository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	ListByClaim(ctx context.Context, claimID uuid.UUID, limit, offset int) ([]*Report, int, error)
}
