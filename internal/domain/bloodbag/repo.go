package bloodbag

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/expiry"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type BagRepository interface {
	Create(ctx context.Context, b *Bag) error
	GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Bag, error)
	// Update is a compare-and-swap on b.Version.
	Update(ctx context.Context, b *Bag) error
	List(ctx context.Context, p query.Params, page pagination.Params) ([]*Bag, int, error)
	ExpireDue(ctx context.Context, hospitalID string, now time.Time) ([]expiry.Expired, error)
}

type ComponentRepository interface {
	Create(ctx context.Context, c *Component) error
	GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Component, error)
	Update(ctx context.Context, c *Component) error
	List(ctx context.Context, p query.Params, page pagination.Params) ([]*Component, int, error)
	ListByBag(ctx context.Context, hospitalID string, bagID uuid.UUID) ([]*Component, error)
	// ExistingSerials returns which of serials are already used by any
	// component in any hospital.
	ExistingSerials(ctx context.Context, serials []string) ([]string, error)
	// ListExpiringBetween returns usable components whose expiry falls in
	// (from, to].
	ListExpiringBetween(ctx context.Context, hospitalID string, from, to time.Time) ([]*Component, error)
	ExpireDue(ctx context.Context, hospitalID string, now time.Time) ([]expiry.Expired, error)
}
