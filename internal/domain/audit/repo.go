package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/pkg/pagination"
)

// Recorder appends events. Services call it inside the transaction that
// performs the write being recorded.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}

type Filter struct {
	EntityType string
	EntityID   *uuid.UUID
	Action     string
	Search     string
}

type Repository interface {
	Recorder
	List(ctx context.Context, hospitalID string, f Filter, page pagination.Params) ([]*Event, int, error)
}
