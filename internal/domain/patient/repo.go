package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Patient, error)
	// ExistsMRID reports whether a live patient in the hospital already uses
	// the normalized mrid.
	ExistsMRID(ctx context.Context, hospitalID, mrid string) (bool, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, hospitalID string, id uuid.UUID, version int) error
	List(ctx context.Context, p query.Params, page pagination.Params) ([]*Patient, int, error)
}
