// Package expiry marks stock past its expiry date as expired. It is run as a
// one-shot command by an external scheduler.
package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
)

// Expired identifies one row moved to the expired status.
type Expired struct {
	ID           uuid.UUID
	HospitalID   string
	SerialNumber string
	FromStatus   string
}

// ExpireFunc marks every non-terminal row with expiry_date <= now as
// expired, optionally limited to one hospital, and returns the rows changed.
type ExpireFunc func(ctx context.Context, hospitalID string, now time.Time) ([]Expired, error)

type Target struct {
	EntityType string
	Expire     ExpireFunc
}

type Sweeper struct {
	targets []Target
	audit   audit.Recorder
	tx      db.TxRunner
	now     func() time.Time
}

func NewSweeper(rec audit.Recorder, tx db.TxRunner, targets ...Target) *Sweeper {
	return &Sweeper{targets: targets, audit: rec, tx: tx, now: time.Now}
}

// SystemActor stamps audit events written by the sweep.
const SystemActor = "expiry-sweep"

// Run sweeps each target in its own transaction and returns the number of
// rows expired per entity type. An empty hospitalID sweeps every hospital.
func (s *Sweeper) Run(ctx context.Context, hospitalID string) (map[string]int, error) {
	now := s.now().UTC()
	counts := make(map[string]int, len(s.targets))
	for _, t := range s.targets {
		err := s.tx.InTx(ctx, func(ctx context.Context) error {
			rows, err := t.Expire(ctx, hospitalID, now)
			if err != nil {
				return err
			}
			for _, r := range rows {
				sc := scope.Scope{HospitalID: r.HospitalID, ActorID: SystemActor, ActorName: SystemActor}
				msg := fmt.Sprintf("%s %s expired", t.EntityType, r.SerialNumber)
				payload := map[string]interface{}{"from": r.FromStatus, "to": "expired", "swept_at": now.Format(time.RFC3339)}
				if err := s.audit.Record(ctx, audit.NewEvent(sc, t.EntityType, r.ID, "expire", msg, payload)); err != nil {
					return err
				}
			}
			counts[t.EntityType] = len(rows)
			return nil
		})
		if err != nil {
			return counts, fmt.Errorf("expire %s: %w", t.EntityType, err)
		}
	}
	return counts, nil
}

// ExpireRows is the shared UPDATE behind each repository's ExpireFunc.
// table must be a trusted identifier; it is never taken from input.
func ExpireRows(ctx context.Context, q db.Querier, table string, from []string, hospitalID string, now time.Time) ([]Expired, error) {
	rows, err := q.Query(ctx, `
		WITH due AS (
			SELECT id, status FROM `+table+`
			WHERE expiry_date <= $1 AND status = ANY($2::text[]) AND deleted_at IS NULL
				AND ($3::text = '' OR hospital_id = $3::text)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE `+table+` t SET status = 'expired', version = t.version + 1, updated_by = $4, updated_at = NOW()
		FROM due WHERE t.id = due.id
		RETURNING t.id, t.hospital_id, t.serial_number, due.status`,
		now, from, hospitalID, SystemActor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expired
	for rows.Next() {
		var e Expired
		if err := rows.Scan(&e.ID, &e.HospitalID, &e.SerialNumber, &e.FromStatus); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
