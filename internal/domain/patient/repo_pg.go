package patient

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, hospital_id, mrid, name, blood_group, age, gender, ward,
	required_units, received_units, is_fulfilled,
	COALESCE(created_by, ''), COALESCE(updated_by, ''), version, created_at, updated_at`

var patientsTable = query.Table{
	Name:             "patients",
	Columns:          patientCols,
	SearchColumns:    []string{"name", "mrid", "ward"},
	BloodGroupColumn: "blood_group",
	OrderBy:          []exp.OrderedExpression{goqu.I("created_at").Desc()},
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.HospitalID, &p.MRID, &p.Name, &p.BloodGroup, &p.Age, &p.Gender, &p.Ward,
		&p.RequiredUnits, &p.ReceivedUnits, &p.IsFulfilled,
		&p.CreatedBy, &p.UpdatedBy, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, hospital_id, mrid, name, blood_group, age, gender, ward,
			required_units, received_units, is_fulfilled, created_by, updated_by, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12,1)
		RETURNING created_at, updated_at`,
		p.ID, p.HospitalID, p.MRID, p.Name, p.BloodGroup, p.Age, p.Gender, p.Ward,
		p.RequiredUnits, p.ReceivedUnits, p.IsFulfilled, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patients_hospital_mrid_key") {
		return apperrors.Conflict("patient with MRID %s already exists", p.MRID)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND hospital_id = $2 AND deleted_at IS NULL`,
		id, hospitalID))
	if db.IsNoRows(err) {
		return nil, apperrors.ErrNotFound
	}
	return p, err
}

func (r *repoPG) ExistsMRID(ctx context.Context, hospitalID, mrid string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE hospital_id = $1 AND mrid = $2 AND deleted_at IS NULL)`,
		hospitalID, mrid).Scan(&exists)
	return exists, err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name=$4, blood_group=$5, age=$6, gender=$7, ward=$8,
			required_units=$9, received_units=$10, is_fulfilled=$11,
			updated_by=$12, version=version+1, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2 AND version = $3 AND deleted_at IS NULL`,
		p.ID, p.HospitalID, p.Version,
		p.Name, p.BloodGroup, p.Age, p.Gender, p.Ward,
		p.RequiredUnits, p.ReceivedUnits, p.IsFulfilled, p.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	p.Version++
	return nil
}

func (r *repoPG) Delete(ctx context.Context, hospitalID string, id uuid.UUID, version int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET deleted_at = NOW(), version = version + 1
		WHERE id = $1 AND hospital_id = $2 AND version = $3 AND deleted_at IS NULL`,
		id, hospitalID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, p query.Params, page pagination.Params) ([]*Patient, int, error) {
	return query.List(ctx, r.conn(ctx), patientsTable, p, page, scanPatient)
}
