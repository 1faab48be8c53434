package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Booking, error)
	// Update writes b if its stored version still equals b.Version, then
	// bumps b.Version. A stale version yields apperrors.ErrConcurrentUpdate.
	Update(ctx context.Context, b *Booking) error
	NextToken(ctx context.Context, hospitalID string, date time.Time) (int, error)
	List(ctx context.Context, p query.Params, page pagination.Params) ([]*Booking, int, error)
	ListByDate(ctx context.Context, hospitalID string, date time.Time) ([]*Booking, error)
}
