package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/expiry"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, u *Unit) error
	GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Unit, error)
	// Update is a compare-and-swap on u.Version and the stored status.
	Update(ctx context.Context, u *Unit, expected Status) error
	// Consume applies a purchase of n units. It additionally requires the
	// stored units_count to still be at least n.
	Consume(ctx context.Context, u *Unit, n int) error
	Delete(ctx context.Context, hospitalID string, id uuid.UUID, version int) error
	List(ctx context.Context, p query.Params, page pagination.Params) ([]*Unit, int, error)
	ListExpiringBetween(ctx context.Context, hospitalID string, from, to time.Time) ([]*Unit, error)
	ExpireDue(ctx context.Context, hospitalID string, now time.Time) ([]expiry.Expired, error)
}
