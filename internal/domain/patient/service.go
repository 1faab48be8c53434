package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/domain/bloodgroup"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

const entityName = "patient"

type Service struct {
	repo  Repository
	audit audit.Recorder
	tx    db.TxRunner
}

func NewService(repo Repository, rec audit.Recorder, tx db.TxRunner) *Service {
	return &Service{repo: repo, audit: rec, tx: tx}
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func validateGroup(g *string) (*string, error) {
	if g = optional(g); g == nil {
		return nil, nil
	}
	n := bloodgroup.Normalize(*g)
	if !bloodgroup.Valid(n) {
		return nil, apperrors.Validation("invalid blood group: %s", n)
	}
	return &n, nil
}

func validateAge(age *int) error {
	if age != nil && (*age < 0 || *age > 150) {
		return apperrors.Validation("age must be between 0 and 150")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, sc scope.Scope, p *Patient) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	p.MRID = NormalizeMRID(p.MRID)
	if p.MRID == "" {
		return apperrors.Validation("mrid is required")
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperrors.Validation("name is required")
	}
	var err error
	if p.BloodGroup, err = validateGroup(p.BloodGroup); err != nil {
		return err
	}
	if err := validateAge(p.Age); err != nil {
		return err
	}
	if p.RequiredUnits < 0 {
		return apperrors.Validation("required units cannot be negative")
	}
	p.Gender = optional(p.Gender)
	p.Ward = optional(p.Ward)
	p.HospitalID = sc.HospitalID
	p.ReceivedUnits = 0
	p.CreatedBy = sc.Actor()
	p.UpdatedBy = sc.Actor()
	p.refresh()

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsMRID(ctx, sc.HospitalID, p.MRID)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.Conflict("patient with MRID %s already exists", p.MRID)
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityPatient, p.ID, "register",
			fmt.Sprintf("patient %s (%s) registered", p.Name, p.MRID),
			map[string]interface{}{"required_units": p.RequiredUnits}))
	})
	return apperrors.FromRepo(err, entityName)
}

func (s *Service) Get(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Patient, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, sc.HospitalID, id)
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, sc scope.Scope, p query.Params, page pagination.Params) ([]*Patient, int, error) {
	if err := sc.Validate(); err != nil {
		return nil, 0, err
	}
	p.HospitalID = sc.HospitalID
	items, total, err := s.repo.List(ctx, p, page)
	if err != nil {
		return nil, 0, apperrors.FromRepo(err, entityName)
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, sc scope.Scope, id uuid.UUID, ch Changes) (*Patient, error) {
	bg, err := validateGroup(ch.BloodGroup)
	if err != nil {
		return nil, err
	}
	if err := validateAge(ch.Age); err != nil {
		return nil, err
	}
	return s.save(ctx, sc, id, "update", func(p *Patient) (string, error) {
		if ch.Name != nil {
			name := strings.TrimSpace(*ch.Name)
			if name == "" {
				return "", apperrors.Validation("name cannot be empty")
			}
			p.Name = name
		}
		if ch.BloodGroup != nil {
			p.BloodGroup = bg
		}
		if ch.Age != nil {
			p.Age = ch.Age
		}
		if ch.Gender != nil {
			p.Gender = optional(ch.Gender)
		}
		if ch.Ward != nil {
			p.Ward = optional(ch.Ward)
		}
		if ch.RequiredUnits != nil {
			if *ch.RequiredUnits < 0 {
				return "", apperrors.Validation("required units cannot be negative")
			}
			p.RequiredUnits = *ch.RequiredUnits
		}
		return fmt.Sprintf("patient %s updated", p.MRID), nil
	})
}

// RecordTransfusion adds units to the received count.
func (s *Service) RecordTransfusion(ctx context.Context, sc scope.Scope, id uuid.UUID, units int) (*Patient, error) {
	if units < 1 {
		return nil, apperrors.Validation("units must be at least 1")
	}
	return s.save(ctx, sc, id, "transfusion", func(p *Patient) (string, error) {
		p.ReceivedUnits += units
		return fmt.Sprintf("patient %s received %d units (%d of %d)", p.MRID, units, p.ReceivedUnits, p.RequiredUnits), nil
	})
}

func (s *Service) Delete(ctx context.Context, sc scope.Scope, id uuid.UUID) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, sc.HospitalID, id, p.Version); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityPatient, p.ID, "delete",
			fmt.Sprintf("patient %s deleted", p.MRID), nil))
	})
	return apperrors.FromRepo(err, entityName)
}

func (s *Service) save(ctx context.Context, sc scope.Scope, id uuid.UUID, action string, mutate func(p *Patient) (string, error)) (*Patient, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	var out *Patient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		wasFulfilled := p.IsFulfilled
		msg, err := mutate(p)
		if err != nil {
			return err
		}
		p.refresh()
		p.UpdatedBy = sc.Actor()
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityPatient, p.ID, action, msg,
			map[string]interface{}{
				"received_units": p.ReceivedUnits,
				"required_units": p.RequiredUnits,
				"was_fulfilled":  wasFulfilled,
				"is_fulfilled":   p.IsFulfilled,
			}))
	})
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return out, nil
}
