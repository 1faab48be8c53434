package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const eventCols = `id, hospital_id, entity_type, entity_id, action, actor_id, actor_name, message, payload, created_at`

var eventsTable = query.Table{
	Name:          "audit_events",
	Columns:       eventCols,
	SearchColumns: []string{"message", "actor_name", "action"},
	DateColumn:    "created_at",
	OrderBy:       []exp.OrderedExpression{goqu.I("created_at").Desc()},
}

func (r *repoPG) Record(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var payload []byte
	if len(e.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("encode audit payload: %w", err)
		}
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO audit_events (id, hospital_id, entity_type, entity_id, action, actor_id, actor_name, message, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.HospitalID, e.EntityType, e.EntityID, e.Action, e.ActorID, e.ActorName, e.Message, payload, e.CreatedAt)
	return err
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var actorID, actorName *string
	var payload []byte
	if err := row.Scan(&e.ID, &e.HospitalID, &e.EntityType, &e.EntityID, &e.Action,
		&actorID, &actorName, &e.Message, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	if actorID != nil {
		e.ActorID = *actorID
	}
	if actorName != nil {
		e.ActorName = *actorName
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode audit payload: %w", err)
		}
	}
	return &e, nil
}

func (r *repoPG) List(ctx context.Context, hospitalID string, f Filter, page pagination.Params) ([]*Event, int, error) {
	p := query.Params{HospitalID: hospitalID, Search: f.Search, Extra: map[string]interface{}{}}
	if f.EntityType != "" {
		p.Extra["entity_type"] = f.EntityType
	}
	if f.EntityID != nil {
		p.Extra["entity_id"] = *f.EntityID
	}
	if f.Action != "" {
		p.Extra["action"] = f.Action
	}
	return query.List(ctx, db.Conn(ctx, r.pool), eventsTable, p, page, scanEvent)
}
