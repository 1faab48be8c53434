package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) groupCounts(ctx context.Context, sql string, args ...interface{}) (map[string]int, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (r *repoPG) count(ctx context.Context, sql string, args ...interface{}) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (r *repoPG) Collect(ctx context.Context, d *Dashboard, now time.Time, windows []ExpiryWindow, unitUntil time.Time) error {
	h := d.HospitalID
	dayStart, dayEnd := query.DayRange(now)
	var err error

	if d.BookingsToday, err = r.groupCounts(ctx, `
		SELECT status, COUNT(*) FROM bookings
		WHERE hospital_id = $1 AND deleted_at IS NULL AND date >= $2 AND date < $3
		GROUP BY status`, h, dayStart, dayEnd); err != nil {
		return fmt.Errorf("bookings today: %w", err)
	}
	if d.BookingsTotal, err = r.groupCounts(ctx, `
		SELECT status, COUNT(*) FROM bookings
		WHERE hospital_id = $1 AND deleted_at IS NULL
		GROUP BY status`, h); err != nil {
		return fmt.Errorf("bookings total: %w", err)
	}
	if d.BagsByStatus, err = r.groupCounts(ctx, `
		SELECT status, COUNT(*) FROM blood_bags
		WHERE hospital_id = $1 AND deleted_at IS NULL
		GROUP BY status`, h); err != nil {
		return fmt.Errorf("bags: %w", err)
	}
	if d.AvailableComponents, err = r.groupCounts(ctx, `
		SELECT type, COUNT(*) FROM blood_components
		WHERE hospital_id = $1 AND deleted_at IS NULL AND status = 'available' AND expiry_date > $2
		GROUP BY type`, h, now); err != nil {
		return fmt.Errorf("components: %w", err)
	}
	if d.AvailableUnits, err = r.groupCounts(ctx, `
		SELECT COALESCE(blood_group, item_name), SUM(units_count)::int FROM inventory_units
		WHERE hospital_id = $1 AND deleted_at IS NULL AND status = 'available'
		GROUP BY 1`, h); err != nil {
		return fmt.Errorf("inventory: %w", err)
	}

	types := make([]string, len(windows))
	until := make([]time.Time, len(windows))
	for i, w := range windows {
		types[i], until[i] = w.Type, w.Until
	}
	if d.ExpiringComponents, err = r.count(ctx, `
		SELECT COUNT(*) FROM blood_components c
		JOIN unnest($2::text[], $3::timestamptz[]) AS w(type, until) ON c.type = w.type
		WHERE c.hospital_id = $1 AND c.deleted_at IS NULL AND c.status IN ('available', 'reserved')
			AND c.expiry_date > $4 AND c.expiry_date <= w.until`, h, types, until, now); err != nil {
		return fmt.Errorf("expiring components: %w", err)
	}
	if d.ExpiringUnits, err = r.count(ctx, `
		SELECT COUNT(*) FROM inventory_units
		WHERE hospital_id = $1 AND deleted_at IS NULL AND status IN ('available', 'reserved')
			AND expiry_date > $2 AND expiry_date <= $3`, h, now, unitUntil); err != nil {
		return fmt.Errorf("expiring units: %w", err)
	}
	if d.UnfulfilledPatients, err = r.count(ctx, `
		SELECT COUNT(*) FROM patients
		WHERE hospital_id = $1 AND deleted_at IS NULL AND NOT is_fulfilled`, h); err != nil {
		return fmt.Errorf("patients: %w", err)
	}
	return nil
}
