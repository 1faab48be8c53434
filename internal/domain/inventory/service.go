package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/domain/bloodgroup"
	"github.com/bloodbank/bloodbank/internal/domain/shelflife"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

const entityName = "inventory unit"

type Service struct {
	repo  Repository
	audit audit.Recorder
	tx    db.TxRunner
	now   func() time.Time
}

func NewService(repo Repository, rec audit.Recorder, tx db.TxRunner) *Service {
	return &Service{repo: repo, audit: rec, tx: tx, now: time.Now}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) Create(ctx context.Context, sc scope.Scope, u *Unit) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	u.SerialNumber = strings.TrimSpace(u.SerialNumber)
	if u.SerialNumber == "" {
		return apperrors.Validation("serial number is required")
	}
	u.ItemName = trimmed(u.ItemName)
	if u.BloodGroup = trimmed(u.BloodGroup); u.BloodGroup != nil {
		g := bloodgroup.Normalize(*u.BloodGroup)
		if !bloodgroup.Valid(g) {
			return apperrors.Validation("invalid blood group: %s", g)
		}
		u.BloodGroup = &g
	}
	if u.BloodGroup == nil && u.ItemName == nil {
		return apperrors.Validation("blood group or item name is required")
	}
	if u.UnitsCount < 1 {
		return apperrors.Validation("units count must be at least 1")
	}
	if u.ExpiryDate == nil && u.BloodGroup != nil {
		ref := s.now().UTC()
		if u.CollectionDate != nil {
			ref = *u.CollectionDate
		}
		exp := shelflife.Expiry(shelflife.WholeBlood, ref)
		u.ExpiryDate = &exp
	}
	if u.ExpiryDate != nil && u.CollectionDate != nil && !u.ExpiryDate.After(*u.CollectionDate) {
		return apperrors.Validation("expiry date must be after collection date")
	}

	u.HospitalID = sc.HospitalID
	u.InitialUnits = u.UnitsCount
	u.Status = StatusAvailable
	u.AllocatedDepartment, u.AllocatedUserID, u.AllocatedAt = nil, nil, nil
	u.UsedBy, u.UsedAt = nil, nil
	u.BilledTo, u.BillPrice, u.BilledAt = nil, nil, nil
	u.CreatedBy = sc.Actor()
	u.UpdatedBy = sc.Actor()

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, u); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityInventory, u.ID, "create",
			fmt.Sprintf("inventory unit %s added with %d units", u.SerialNumber, u.UnitsCount),
			map[string]interface{}{"units_count": u.UnitsCount}))
	})
	return apperrors.FromRepo(err, entityName)
}

func (s *Service) Get(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Unit, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, sc.HospitalID, id)
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, sc scope.Scope, p query.Params, page pagination.Params) ([]*Unit, int, error) {
	if err := sc.Validate(); err != nil {
		return nil, 0, err
	}
	if p.Status != "" && !Status(p.Status).Valid() {
		return nil, 0, apperrors.Validation("invalid status: %s", p.Status)
	}
	p.HospitalID = sc.HospitalID
	items, total, err := s.repo.List(ctx, p, page)
	if err != nil {
		return nil, 0, apperrors.FromRepo(err, entityName)
	}
	return items, total, nil
}

func (s *Service) Delete(ctx context.Context, sc scope.Scope, id uuid.UUID) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, sc.HospitalID, id, u.Version); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityInventory, u.ID, "delete",
			fmt.Sprintf("inventory unit %s deleted", u.SerialNumber), nil))
	})
	return apperrors.FromRepo(err, entityName)
}

// ExpiringSoon returns usable units whose expiry falls inside the whole
// blood warning window.
func (s *Service) ExpiringSoon(ctx context.Context, sc scope.Scope) ([]*Unit, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	items, err := s.repo.ListExpiringBetween(ctx, sc.HospitalID, now, now.Add(shelflife.WarningWindow(shelflife.WholeBlood)))
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return items, nil
}

func (s *Service) Allocate(ctx context.Context, sc scope.Scope, id uuid.UUID, target AllocationTarget) (*Unit, error) {
	return s.mutate(ctx, sc, id, "allocate", func(u *Unit, now time.Time) (string, map[string]interface{}, error) {
		if err := u.Allocate(target, now); err != nil {
			return "", nil, err
		}
		to := target.Department
		if u.AllocatedUserID != nil {
			to = "user " + *u.AllocatedUserID
		}
		return fmt.Sprintf("inventory unit %s allocated to %s", u.SerialNumber, strings.TrimSpace(to)),
			map[string]interface{}{"department": target.Department, "user_id": target.UserID}, nil
	})
}

func (s *Service) Take(ctx context.Context, sc scope.Scope, id uuid.UUID, department, reason string) (*Unit, error) {
	return s.mutate(ctx, sc, id, "take", func(u *Unit, now time.Time) (string, map[string]interface{}, error) {
		units := u.UnitsCount
		if err := u.Take(department, reason, now); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("inventory unit %s taken by %s: %s", u.SerialNumber, *u.UsedBy, strings.TrimSpace(reason)),
			map[string]interface{}{"department": *u.UsedBy, "reason": strings.TrimSpace(reason), "units": units}, nil
	})
}

func (s *Service) Bill(ctx context.Context, sc scope.Scope, id uuid.UUID, patientName string, price decimal.Decimal) (*Unit, error) {
	return s.mutate(ctx, sc, id, "bill", func(u *Unit, now time.Time) (string, map[string]interface{}, error) {
		if err := u.Bill(patientName, price, now); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("inventory unit %s billed to %s for %s", u.SerialNumber, *u.BilledTo, u.BillPrice.StringFixed(2)),
			map[string]interface{}{"patient_name": *u.BilledTo, "price": u.BillPrice.StringFixed(2)}, nil
	})
}

// Purchase consumes units for a patient. The stored row must still hold at
// least units when the write lands.
func (s *Service) Purchase(ctx context.Context, sc scope.Scope, id uuid.UUID, units int, patientName string) (*Unit, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	var out *Unit
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		from := u.Status
		rng, err := u.Purchase(units, patientName, s.now().UTC())
		if err != nil {
			return err
		}
		u.UpdatedBy = sc.Actor()
		if err := s.repo.Consume(ctx, u, units); err != nil {
			return err
		}
		out = u
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityInventory, u.ID, "purchase",
			fmt.Sprintf("%d units (%s) purchased for %s, %d remaining", units, rng, strings.TrimSpace(patientName), u.UnitsCount),
			map[string]interface{}{
				"from": string(from), "to": string(u.Status),
				"units": units, "range": rng, "remaining": u.UnitsCount,
				"patient_name": strings.TrimSpace(patientName),
			}))
	})
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return out, nil
}

// mutate loads the unit, applies fn in memory, and writes it back guarded by
// version and the status read here.
func (s *Service) mutate(ctx context.Context, sc scope.Scope, id uuid.UUID, action string,
	fn func(u *Unit, now time.Time) (string, map[string]interface{}, error)) (*Unit, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	var out *Unit
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		from := u.Status
		msg, payload, err := fn(u, s.now().UTC())
		if err != nil {
			return err
		}
		u.UpdatedBy = sc.Actor()
		if err := s.repo.Update(ctx, u, from); err != nil {
			return err
		}
		out = u
		payload["from"] = string(from)
		payload["to"] = string(u.Status)
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityInventory, u.ID, action, msg, payload))
	})
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return out, nil
}
