package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/platform/scope"
)

const (
	EntityBooking   = "booking"
	EntityBloodBag  = "blood_bag"
	EntityComponent = "blood_component"
	EntityInventory = "inventory_unit"
	EntityPatient   = "patient"
)

// Event is one append-only history record for an entity.
type Event struct {
	ID         uuid.UUID              `db:"id" json:"id"`
	HospitalID string                 `db:"hospital_id" json:"hospital_id"`
	EntityType string                 `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID              `db:"entity_id" json:"entity_id"`
	Action     string                 `db:"action" json:"action"`
	ActorID    string                 `db:"actor_id" json:"actor_id,omitempty"`
	ActorName  string                 `db:"actor_name" json:"actor_name,omitempty"`
	Message    string                 `db:"message" json:"message"`
	Payload    map[string]interface{} `db:"payload" json:"payload,omitempty"`
	CreatedAt  time.Time              `db:"created_at" json:"created_at"`
}

// NewEvent stamps the hospital and actor from sc.
func NewEvent(sc scope.Scope, entityType string, entityID uuid.UUID, action, message string, payload map[string]interface{}) *Event {
	return &Event{
		HospitalID: sc.HospitalID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    sc.ActorID,
		ActorName:  sc.Actor(),
		Message:    message,
		Payload:    payload,
	}
}
