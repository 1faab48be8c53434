package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bloodbank/bloodbank/internal/domain/expiry"
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

const unitCols = `id, hospital_id, serial_number, blood_group, item_name, units_count, initial_units,
	collection_date, expiry_date, status, allocated_department, allocated_user_id, allocated_at,
	used_by, used_at, billed_to, bill_price::text, billed_at,
	COALESCE(created_by, ''), COALESCE(updated_by, ''), version, created_at, updated_at`

var unitsTable = query.Table{
	Name:             "inventory_units",
	Columns:          unitCols,
	SearchColumns:    []string{"serial_number", "item_name", "blood_group", "allocated_department", "used_by"},
	StatusColumn:     "status",
	BloodGroupColumn: "blood_group",
	DateColumn:       "collection_date",
	OrderBy:          []exp.OrderedExpression{goqu.I("created_at").Desc()},
}

func scanUnit(row pgx.Row) (*Unit, error) {
	var u Unit
	var price *string
	err := row.Scan(&u.ID, &u.HospitalID, &u.SerialNumber, &u.BloodGroup, &u.ItemName, &u.UnitsCount, &u.InitialUnits,
		&u.CollectionDate, &u.ExpiryDate, &u.Status, &u.AllocatedDepartment, &u.AllocatedUserID, &u.AllocatedAt,
		&u.UsedBy, &u.UsedAt, &u.BilledTo, &price, &u.BilledAt,
		&u.CreatedBy, &u.UpdatedBy, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if price != nil {
		d, err := decimal.NewFromString(*price)
		if err != nil {
			return nil, fmt.Errorf("parse bill_price %q: %w", *price, err)
		}
		u.BillPrice = &d
	}
	return &u, nil
}

func priceArg(p *decimal.Decimal) *string {
	if p == nil {
		return nil
	}
	s := p.StringFixed(2)
	return &s
}

func (r *repoPG) Create(ctx context.Context, u *Unit) error {
	u.ID = uuid.New()
	u.Version = 1
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_units (id, hospital_id, serial_number, blood_group, item_name, units_count, initial_units,
			collection_date, expiry_date, status, created_by, updated_by, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11,1)
		RETURNING created_at, updated_at`,
		u.ID, u.HospitalID, u.SerialNumber, u.BloodGroup, u.ItemName, u.UnitsCount, u.InitialUnits,
		u.CollectionDate, u.ExpiryDate, u.Status, u.CreatedBy,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Unit, error) {
	u, err := scanUnit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+unitCols+` FROM inventory_units WHERE id = $1 AND hospital_id = $2 AND deleted_at IS NULL`,
		id, hospitalID))
	if db.IsNoRows(err) {
		return nil, apperrors.ErrNotFound
	}
	return u, err
}

func (r *repoPG) Update(ctx context.Context, u *Unit, expected Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_units SET units_count=$5, status=$6,
			allocated_department=$7, allocated_user_id=$8, allocated_at=$9,
			used_by=$10, used_at=$11, billed_to=$12, bill_price=$13::numeric, billed_at=$14,
			updated_by=$15, version=version+1, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2 AND version = $3 AND status = $4 AND deleted_at IS NULL`,
		u.ID, u.HospitalID, u.Version, expected,
		u.UnitsCount, u.Status,
		u.AllocatedDepartment, u.AllocatedUserID, u.AllocatedAt,
		u.UsedBy, u.UsedAt, u.BilledTo, priceArg(u.BillPrice), u.BilledAt,
		u.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	u.Version++
	return nil
}

func (r *repoPG) Consume(ctx context.Context, u *Unit, n int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_units SET units_count = units_count - $4, status=$5, used_by=$6, used_at=$7,
			updated_by=$8, version=version+1, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2 AND version = $3 AND status = 'available'
			AND units_count >= $4 AND deleted_at IS NULL`,
		u.ID, u.HospitalID, u.Version, n, u.Status, u.UsedBy, u.UsedAt, u.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	u.Version++
	return nil
}

func (r *repoPG) Delete(ctx context.Context, hospitalID string, id uuid.UUID, version int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_units SET deleted_at = NOW(), version = version + 1
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

func (r *repoPG) List(ctx context.Context, p query.Params, page pagination.Params) ([]*Unit, int, error) {
	return query.List(ctx, r.conn(ctx), unitsTable, p, page, scanUnit)
}

func (r *repoPG) ListExpiringBetween(ctx context.Context, hospitalID string, from, to time.Time) ([]*Unit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+unitCols+` FROM inventory_units
		WHERE hospital_id = $1 AND deleted_at IS NULL AND status IN ('available', 'reserved')
			AND expiry_date > $2 AND expiry_date <= $3
		ORDER BY expiry_date`,
		hospitalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

var expirableStatuses = []string{string(StatusAvailable), string(StatusReserved), string(StatusQuarantine)}

func (r *repoPG) ExpireDue(ctx context.Context, hospitalID string, now time.Time) ([]expiry.Expired, error) {
	return expiry.ExpireRows(ctx, r.conn(ctx), "inventory_units", expirableStatuses, hospitalID, now)
}
