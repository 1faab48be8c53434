package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID            uuid.UUID `db:"id" json:"id"`
	HospitalID    string    `db:"hospital_id" json:"hospital_id"`
	MRID          string    `db:"mrid" json:"mrid"`
	Name          string    `db:"name" json:"name"`
	BloodGroup    *string   `db:"blood_group" json:"blood_group,omitempty"`
	Age           *int      `db:"age" json:"age,omitempty"`
	Gender        *string   `db:"gender" json:"gender,omitempty"`
	Ward          *string   `db:"ward" json:"ward,omitempty"`
	RequiredUnits int       `db:"required_units" json:"required_units"`
	ReceivedUnits int       `db:"received_units" json:"received_units"`
	IsFulfilled   bool      `db:"is_fulfilled" json:"is_fulfilled"`
	CreatedBy     string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy     string    `db:"updated_by" json:"updated_by,omitempty"`
	Version       int       `db:"version" json:"version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizeMRID makes medical record ids comparable: "m1 " and "M1" are the
// same patient.
func NormalizeMRID(mrid string) string {
	return strings.ToUpper(strings.TrimSpace(mrid))
}

// refresh recomputes derived fields. Call before every save.
func (p *Patient) refresh() {
	p.IsFulfilled = p.ReceivedUnits >= p.RequiredUnits
}

// Changes is a partial update of demographics and required units. The MRID
// is not editable.
type Changes struct {
	Name          *string `json:"name"`
	BloodGroup    *string `json:"blood_group"`
	Age           *int    `json:"age"`
	Gender        *string `json:"gender"`
	Ward          *string `json:"ward"`
	RequiredUnits *int    `json:"required_units"`
}
