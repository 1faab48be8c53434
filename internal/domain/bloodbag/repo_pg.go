package bloodbag

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodbank/bloodbank/internal/domain/expiry"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

// -- Bags --

type bagRepoPG struct{ pool *pgxpool.Pool }

func NewBagRepoPG(pool *pgxpool.Pool) BagRepository {
	return &bagRepoPG{pool: pool}
}

func (r *bagRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const bagCols = `id, hospital_id, serial_number, blood_group, collection_date, volume, status, expiry_date,
	donor_id, donor_name, separated_at, separated_by, separation_method, components_count,
	COALESCE(created_by, ''), COALESCE(updated_by, ''), version, created_at, updated_at`

var bagsTable = query.Table{
	Name:             "blood_bags",
	Columns:          bagCols,
	SearchColumns:    []string{"serial_number", "donor_name", "blood_group"},
	StatusColumn:     "status",
	BloodGroupColumn: "blood_group",
	DateColumn:       "collection_date",
	OrderBy:          []exp.OrderedExpression{goqu.I("collection_date").Desc()},
}

func scanBag(row pgx.Row) (*Bag, error) {
	var b Bag
	err := row.Scan(&b.ID, &b.HospitalID, &b.SerialNumber, &b.BloodGroup, &b.CollectionDate, &b.Volume, &b.Status, &b.ExpiryDate,
		&b.DonorID, &b.DonorName, &b.SeparatedAt, &b.SeparatedBy, &b.SeparationMethod, &b.ComponentsCount,
		&b.CreatedBy, &b.UpdatedBy, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *bagRepoPG) Create(ctx context.Context, b *Bag) error {
	b.ID = uuid.New()
	b.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_bags (id, hospital_id, serial_number, blood_group, collection_date, volume, status, expiry_date,
			donor_id, donor_name, components_count, created_by, updated_by, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$11,1)
		RETURNING created_at, updated_at`,
		b.ID, b.HospitalID, b.SerialNumber, b.BloodGroup, b.CollectionDate, b.Volume, b.Status, b.ExpiryDate,
		b.DonorID, b.DonorName, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err, "blood_bags_hospital_serial_key") {
		return apperrors.Conflict("blood bag serial number %s already exists", b.SerialNumber)
	}
	return err
}

func (r *bagRepoPG) GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Bag, error) {
	b, err := scanBag(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bagCols+` FROM blood_bags WHERE id = $1 AND hospital_id = $2 AND deleted_at IS NULL`,
		id, hospitalID))
	if db.IsNoRows(err) {
		return nil, apperrors.ErrNotFound
	}
	return b, err
}

func (r *bagRepoPG) Update(ctx context.Context, b *Bag) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_bags SET status=$4, separated_at=$5, separated_by=$6, separation_method=$7,
			components_count=$8, updated_by=$9, version=version+1, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2 AND version = $3 AND deleted_at IS NULL`,
		b.ID, b.HospitalID, b.Version,
		b.Status, b.SeparatedAt, b.SeparatedBy, b.SeparationMethod, b.ComponentsCount, b.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	b.Version++
	return nil
}

func (r *bagRepoPG) List(ctx context.Context, p query.Params, page pagination.Params) ([]*Bag, int, error) {
	return query.List(ctx, r.conn(ctx), bagsTable, p, page, scanBag)
}

var expirableBagStatuses = []string{string(BagReceived), string(BagProcessing), string(BagQuarantine)}

func (r *bagRepoPG) ExpireDue(ctx context.Context, hospitalID string, now time.Time) ([]expiry.Expired, error) {
	return expiry.ExpireRows(ctx, r.conn(ctx), "blood_bags", expirableBagStatuses, hospitalID, now)
}

// -- Components --

type componentRepoPG struct{ pool *pgxpool.Pool }

func NewComponentRepoPG(pool *pgxpool.Pool) ComponentRepository {
	return &componentRepoPG{pool: pool}
}

func (r *componentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const componentCols = `id, hospital_id, serial_number, type, original_bag_id, blood_group, volume,
	separation_date, expiry_date, status, notes,
	COALESCE(created_by, ''), COALESCE(updated_by, ''), version, created_at, updated_at`

var componentsTable = query.Table{
	Name:             "blood_components",
	Columns:          componentCols,
	SearchColumns:    []string{"serial_number", "type", "notes"},
	StatusColumn:     "status",
	BloodGroupColumn: "blood_group",
	DateColumn:       "separation_date",
	OrderBy:          []exp.OrderedExpression{goqu.I("expiry_date").Asc()},
}

func scanComponent(row pgx.Row) (*Component, error) {
	var c Component
	err := row.Scan(&c.ID, &c.HospitalID, &c.SerialNumber, &c.Type, &c.OriginalBagID, &c.BloodGroup, &c.Volume,
		&c.SeparationDate, &c.ExpiryDate, &c.Status, &c.Notes,
		&c.CreatedBy, &c.UpdatedBy, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *componentRepoPG) Create(ctx context.Context, c *Component) error {
	c.ID = uuid.New()
	c.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_components (id, hospital_id, serial_number, type, original_bag_id, blood_group, volume,
			separation_date, expiry_date, status, notes, created_by, updated_by, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12,1)
		RETURNING created_at, updated_at`,
		c.ID, c.HospitalID, c.SerialNumber, c.Type, c.OriginalBagID, c.BloodGroup, c.Volume,
		c.SeparationDate, c.ExpiryDate, c.Status, c.Notes, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err, "blood_components_serial_number_key") {
		return apperrors.Conflict("component serial number %s already exists", c.SerialNumber)
	}
	return err
}

func (r *componentRepoPG) GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Component, error) {
	c, err := scanComponent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+componentCols+` FROM blood_components WHERE id = $1 AND hospital_id = $2 AND deleted_at IS NULL`,
		id, hospitalID))
	if db.IsNoRows(err) {
		return nil, apperrors.ErrNotFound
	}
	return c, err
}

func (r *componentRepoPG) Update(ctx context.Context, c *Component) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_components SET status=$4, notes=$5, updated_by=$6, version=version+1, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2 AND version = $3 AND deleted_at IS NULL`,
		c.ID, c.HospitalID, c.Version, c.Status, c.Notes, c.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	c.Version++
	return nil
}

func (r *componentRepoPG) List(ctx context.Context, p query.Params, page pagination.Params) ([]*Component, int, error) {
	return query.List(ctx, r.conn(ctx), componentsTable, p, page, scanComponent)
}

func (r *componentRepoPG) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*Component, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *componentRepoPG) ListByBag(ctx context.Context, hospitalID string, bagID uuid.UUID) ([]*Component, error) {
	return r.queryMany(ctx,
		`SELECT `+componentCols+` FROM blood_components
		WHERE hospital_id = $1 AND original_bag_id = $2 AND deleted_at IS NULL
		ORDER BY created_at`,
		hospitalID, bagID)
}

// ExistingSerials deliberately ignores hospital_id: component serials are
// globally unique.
func (r *componentRepoPG) ExistingSerials(ctx context.Context, serials []string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT serial_number FROM blood_components WHERE serial_number = ANY($1::text[])`, serials)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		found = append(found, s)
	}
	return found, rows.Err()
}

func (r *componentRepoPG) ListExpiringBetween(ctx context.Context, hospitalID string, from, to time.Time) ([]*Component, error) {
	return r.queryMany(ctx,
		`SELECT `+componentCols+` FROM blood_components
		WHERE hospital_id = $1 AND deleted_at IS NULL AND status IN ('available', 'reserved')
			AND expiry_date > $2 AND expiry_date <= $3
		ORDER BY expiry_date`,
		hospitalID, from, to)
}

var expirableComponentStatuses = []string{string(ComponentAvailable), string(ComponentReserved), string(ComponentQuarantine)}

func (r *componentRepoPG) ExpireDue(ctx context.Context, hospitalID string, now time.Time) ([]expiry.Expired, error) {
	return expiry.ExpireRows(ctx, r.conn(ctx), "blood_components", expirableComponentStatuses, hospitalID, now)
}
