package booking

import (
	"context"
	"time"

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

const bookingCols = `id, booking_id, hospital_id, donor_id, donor_name, patient_name, patient_mrid,
	blood_group, date, time, status, token_number, arrived, arrival_time, completed_at, notes,
	COALESCE(created_by, ''), COALESCE(updated_by, ''), version, created_at, updated_at`

var bookingsTable = query.Table{
	Name:             "bookings",
	Columns:          bookingCols,
	SearchColumns:    []string{"donor_name", "patient_name", "patient_mrid", "booking_id"},
	StatusColumn:     "status",
	BloodGroupColumn: "blood_group",
	DateColumn:       "date",
	OrderBy: []exp.OrderedExpression{
		goqu.I("date").Desc(),
		goqu.I("token_number").Asc(),
	},
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.BookingID, &b.HospitalID, &b.DonorID, &b.DonorName, &b.PatientName, &b.PatientMRID,
		&b.BloodGroup, &b.Date, &b.Time, &b.Status, &b.TokenNumber, &b.Arrived, &b.ArrivalTime, &b.CompletedAt, &b.Notes,
		&b.CreatedBy, &b.UpdatedBy, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *repoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	b.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bookings (id, booking_id, hospital_id, donor_id, donor_name, patient_name, patient_mrid,
			blood_group, date, time, status, token_number, arrived, notes, created_by, updated_by, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15,1)
		RETURNING created_at, updated_at`,
		b.ID, b.BookingID, b.HospitalID, b.DonorID, b.DonorName, b.PatientName, b.PatientMRID,
		b.BloodGroup, b.Date, b.Time, b.Status, b.TokenNumber, b.Arrived, b.Notes, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err, "") {
		return apperrors.Conflict("token %d on %s was taken by a concurrent booking, retry", b.TokenNumber, b.Date.Format("2006-01-02"))
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, hospitalID string, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE id = $1 AND hospital_id = $2 AND deleted_at IS NULL`,
		id, hospitalID))
	if db.IsNoRows(err) {
		return nil, apperrors.ErrNotFound
	}
	return b, err
}

func (r *repoPG) Update(ctx context.Context, b *Booking) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bookings SET date=$4, time=$5, status=$6, arrived=$7, arrival_time=$8, completed_at=$9,
			notes=$10, updated_by=$11, token_number=$12, version=version+1, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2 AND version = $3 AND deleted_at IS NULL`,
		b.ID, b.HospitalID, b.Version,
		b.Date, b.Time, b.Status, b.Arrived, b.ArrivalTime, b.CompletedAt, b.Notes, b.UpdatedBy, b.TokenNumber)
	if db.IsUniqueViolation(err, "bookings_hospital_date_token_key") {
		return apperrors.Conflict("token %d on %s was taken by a concurrent booking, retry", b.TokenNumber, b.Date.Format("2006-01-02"))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	b.Version++
	return nil
}

// NextToken returns one past the highest token issued for the day. The
// unique (hospital_id, date, token_number) index rejects a racing duplicate.
func (r *repoPG) NextToken(ctx context.Context, hospitalID string, date time.Time) (int, error) {
	var next int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(token_number), 0) + 1 FROM bookings WHERE hospital_id = $1 AND date = $2`,
		hospitalID, date).Scan(&next)
	return next, err
}

func (r *repoPG) List(ctx context.Context, p query.Params, page pagination.Params) ([]*Booking, int, error) {
	return query.List(ctx, r.conn(ctx), bookingsTable, p, page, scanBooking)
}

func (r *repoPG) ListByDate(ctx context.Context, hospitalID string, date time.Time) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+bookingCols+` FROM bookings
		WHERE hospital_id = $1 AND date = $2 AND deleted_at IS NULL
		ORDER BY token_number`,
		hospitalID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
