package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloodbank/bloodbank/internal/domain/shelflife"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
)

type Status string

const (
	StatusAvailable  Status = "available"
	StatusReserved   Status = "reserved"
	StatusUsed       Status = "used"
	StatusExpired    Status = "expired"
	StatusQuarantine Status = "quarantine"
	StatusSold       Status = "sold"
)

var statuses = map[Status]bool{
	StatusAvailable:  true,
	StatusReserved:   true,
	StatusUsed:       true,
	StatusExpired:    true,
	StatusQuarantine: true,
	StatusSold:       true,
}

func (s Status) Valid() bool { return statuses[s] }

// Unit is one ledger line: a count of interchangeable units sharing a
// serial prefix.
type Unit struct {
	ID                  uuid.UUID        `db:"id" json:"id"`
	HospitalID          string           `db:"hospital_id" json:"hospital_id"`
	SerialNumber        string           `db:"serial_number" json:"serial_number"`
	BloodGroup          *string          `db:"blood_group" json:"blood_group,omitempty"`
	ItemName            *string          `db:"item_name" json:"item_name,omitempty"`
	UnitsCount          int              `db:"units_count" json:"units_count"`
	InitialUnits        int              `db:"initial_units" json:"initial_units"`
	CollectionDate      *time.Time       `db:"collection_date" json:"collection_date,omitempty"`
	ExpiryDate          *time.Time       `db:"expiry_date" json:"expiry_date,omitempty"`
	Status              Status           `db:"status" json:"status"`
	AllocatedDepartment *string          `db:"allocated_department" json:"allocated_department,omitempty"`
	AllocatedUserID     *string          `db:"allocated_user_id" json:"allocated_user_id,omitempty"`
	AllocatedAt         *time.Time       `db:"allocated_at" json:"allocated_at,omitempty"`
	UsedBy              *string          `db:"used_by" json:"used_by,omitempty"`
	UsedAt              *time.Time       `db:"used_at" json:"used_at,omitempty"`
	BilledTo            *string          `db:"billed_to" json:"billed_to,omitempty"`
	BillPrice           *decimal.Decimal `db:"bill_price" json:"bill_price,omitempty"`
	BilledAt            *time.Time       `db:"billed_at" json:"billed_at,omitempty"`
	CreatedBy           string           `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy           string           `db:"updated_by" json:"updated_by,omitempty"`
	Version             int              `db:"version" json:"version"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// AllocationTarget names exactly one of a department or a user.
type AllocationTarget struct {
	Department string `json:"department"`
	UserID     string `json:"user_id"`
}

func (u *Unit) requireStatus(op string, allowed ...Status) error {
	for _, s := range allowed {
		if u.Status == s {
			return nil
		}
	}
	return apperrors.Validation("cannot %s unit %s in status %s", op, u.SerialNumber, u.Status)
}

// requireUnexpired rejects units past their expiry date that the sweep has
// not reached yet.
func (u *Unit) requireUnexpired(op string, now time.Time) error {
	if u.ExpiryDate != nil && shelflife.IsExpired(*u.ExpiryDate, now) {
		return apperrors.Validation("cannot %s unit %s: expired on %s", op, u.SerialNumber, u.ExpiryDate.Format("2006-01-02"))
	}
	return nil
}

func (u *Unit) Allocate(target AllocationTarget, now time.Time) error {
	if err := u.requireStatus("allocate", StatusAvailable); err != nil {
		return err
	}
	if err := u.requireUnexpired("allocate", now); err != nil {
		return err
	}
	dept, user := strings.TrimSpace(target.Department), strings.TrimSpace(target.UserID)
	switch {
	case dept == "" && user == "":
		return apperrors.Validation("department or user_id is required")
	case dept != "" && user != "":
		return apperrors.Validation("allocate to a department or a user, not both")
	case dept != "":
		u.AllocatedDepartment = &dept
	default:
		u.AllocatedUserID = &user
	}
	u.AllocatedAt = &now
	u.Status = StatusReserved
	return nil
}

// Purchase consumes n units and returns the consumed serial sub-range,
// numbered from 1 against InitialUnits.
func (u *Unit) Purchase(n int, patientName string, now time.Time) (string, error) {
	if err := u.requireStatus("purchase from", StatusAvailable); err != nil {
		return "", err
	}
	if err := u.requireUnexpired("purchase from", now); err != nil {
		return "", err
	}
	patient := strings.TrimSpace(patientName)
	if patient == "" {
		return "", apperrors.Validation("patient name is required")
	}
	if n < 1 {
		return "", apperrors.Validation("units must be at least 1")
	}
	if n > u.UnitsCount {
		return "", apperrors.Validation("requested %d units but only %d available", n, u.UnitsCount)
	}
	consumed := u.InitialUnits - u.UnitsCount
	rng := fmt.Sprintf("%s/%d-%d", u.SerialNumber, consumed+1, consumed+n)

	u.UnitsCount -= n
	if u.UnitsCount == 0 {
		u.Status = StatusUsed
		u.UsedBy = &patient
		u.UsedAt = &now
	}
	return rng, nil
}

// Take removes the whole line for internal use, bypassing reservation.
func (u *Unit) Take(department, reason string, now time.Time) error {
	if err := u.requireStatus("take", StatusAvailable); err != nil {
		return err
	}
	department = strings.TrimSpace(department)
	if department == "" {
		return apperrors.Validation("department is required")
	}
	if strings.TrimSpace(reason) == "" {
		return apperrors.Validation("reason is required")
	}
	u.UnitsCount = 0
	u.Status = StatusUsed
	u.UsedBy = &department
	u.UsedAt = &now
	return nil
}

func (u *Unit) Bill(patientName string, price decimal.Decimal, now time.Time) error {
	if err := u.requireStatus("bill", StatusAvailable, StatusReserved); err != nil {
		return err
	}
	patient := strings.TrimSpace(patientName)
	if patient == "" {
		return apperrors.Validation("patient name is required")
	}
	if price.IsNegative() {
		return apperrors.Validation("price cannot be negative")
	}
	price = price.Round(2)
	u.BilledTo = &patient
	u.BillPrice = &price
	u.BilledAt = &now
	u.Status = StatusSold
	return nil
}
