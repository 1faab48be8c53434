package audit

import (
	"context"

	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

var validEntityTypes = map[string]bool{
	EntityBooking: true, EntityBloodBag: true, EntityComponent: true,
	EntityInventory: true, EntityPatient: true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, sc scope.Scope, f Filter, page pagination.Params) ([]*Event, int, error) {
	if err := sc.Validate(); err != nil {
		return nil, 0, err
	}
	if f.EntityType != "" && !validEntityTypes[f.EntityType] {
		return nil, 0, apperrors.Validation("invalid entity_type: %s", f.EntityType)
	}
	if f.EntityID != nil && f.EntityType == "" {
		return nil, 0, apperrors.Validation("entity_id requires entity_type")
	}
	items, total, err := s.repo.List(ctx, sc.HospitalID, f, page)
	if err != nil {
		return nil, 0, apperrors.FromRepo(err, "audit event")
	}
	return items, total, nil
}
