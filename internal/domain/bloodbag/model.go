package bloodbag

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/shelflife"
)

const DefaultBagVolume = 450

type BagStatus string

const (
	BagReceived   BagStatus = "received"
	BagProcessing BagStatus = "processing"
	BagSeparated  BagStatus = "separated"
	BagExpired    BagStatus = "expired"
	BagQuarantine BagStatus = "quarantine"
	BagDiscarded  BagStatus = "discarded"
)

var bagTransitions = map[BagStatus]map[BagStatus]bool{
	BagReceived:   {BagProcessing: true, BagQuarantine: true, BagDiscarded: true, BagExpired: true, BagSeparated: true},
	BagProcessing: {BagQuarantine: true, BagDiscarded: true, BagExpired: true, BagSeparated: true},
	BagQuarantine: {BagReceived: true, BagDiscarded: true, BagExpired: true},
	BagSeparated:  {},
	BagExpired:    {},
	BagDiscarded:  {},
}

func (s BagStatus) Valid() bool {
	_, ok := bagTransitions[s]
	return ok
}

func (s BagStatus) CanTransitionTo(next BagStatus) bool {
	return bagTransitions[s][next]
}

// Separable reports whether a bag in s may be split into components.
func (s BagStatus) Separable() bool {
	return s.CanTransitionTo(BagSeparated)
}

type ComponentStatus string

const (
	ComponentAvailable  ComponentStatus = "available"
	ComponentReserved   ComponentStatus = "reserved"
	ComponentUsed       ComponentStatus = "used"
	ComponentExpired    ComponentStatus = "expired"
	ComponentQuarantine ComponentStatus = "quarantine"
	ComponentDiscarded  ComponentStatus = "discarded"
)

var componentTransitions = map[ComponentStatus]map[ComponentStatus]bool{
	ComponentAvailable:  {ComponentReserved: true, ComponentUsed: true, ComponentExpired: true, ComponentQuarantine: true, ComponentDiscarded: true},
	ComponentReserved:   {ComponentAvailable: true, ComponentUsed: true, ComponentExpired: true},
	ComponentQuarantine: {ComponentAvailable: true, ComponentDiscarded: true, ComponentExpired: true},
	ComponentUsed:       {},
	ComponentExpired:    {},
	ComponentDiscarded:  {},
}

func (s ComponentStatus) Valid() bool {
	_, ok := componentTransitions[s]
	return ok
}

func (s ComponentStatus) CanTransitionTo(next ComponentStatus) bool {
	return componentTransitions[s][next]
}

// Bag is one whole-blood collection.
type Bag struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	HospitalID       string     `db:"hospital_id" json:"hospital_id"`
	SerialNumber     string     `db:"serial_number" json:"serial_number"`
	BloodGroup       string     `db:"blood_group" json:"blood_group"`
	CollectionDate   time.Time  `db:"collection_date" json:"collection_date"`
	Volume           int        `db:"volume" json:"volume"`
	Status           BagStatus  `db:"status" json:"status"`
	ExpiryDate       time.Time  `db:"expiry_date" json:"expiry_date"`
	DonorID          *string    `db:"donor_id" json:"donor_id,omitempty"`
	DonorName        *string    `db:"donor_name" json:"donor_name,omitempty"`
	SeparatedAt      *time.Time `db:"separated_at" json:"separated_at,omitempty"`
	SeparatedBy      *string    `db:"separated_by" json:"separated_by,omitempty"`
	SeparationMethod *string    `db:"separation_method" json:"separation_method,omitempty"`
	ComponentsCount  int        `db:"components_count" json:"components_count"`
	CreatedBy        string     `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy        string     `db:"updated_by" json:"updated_by,omitempty"`
	Version          int        `db:"version" json:"version"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Component is a product separated from a Bag.
type Component struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	HospitalID     string          `db:"hospital_id" json:"hospital_id"`
	SerialNumber   string          `db:"serial_number" json:"serial_number"`
	Type           shelflife.Kind  `db:"type" json:"type"`
	OriginalBagID  uuid.UUID       `db:"original_bag_id" json:"original_bag_id"`
	BloodGroup     string          `db:"blood_group" json:"blood_group"`
	Volume         int             `db:"volume" json:"volume"`
	SeparationDate time.Time       `db:"separation_date" json:"separation_date"`
	ExpiryDate     time.Time       `db:"expiry_date" json:"expiry_date"`
	Status         ComponentStatus `db:"status" json:"status"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy      string          `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy      string          `db:"updated_by" json:"updated_by,omitempty"`
	Version        int             `db:"version" json:"version"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

type ComponentSpec struct {
	Type         shelflife.Kind `json:"type"`
	SerialNumber string         `json:"serial_number"`
	Volume       int            `json:"volume"`
	Notes        string         `json:"notes,omitempty"`
}

type SeparationRequest struct {
	Components     []ComponentSpec `json:"components"`
	SeparationDate time.Time       `json:"separation_date"`
	Technician     string          `json:"technician"`
	Method         string          `json:"method"`
}

// SeparationResult is the separated bag together with its new components.
type SeparationResult struct {
	Bag        *Bag         `json:"bag"`
	Components []*Component `json:"components"`
}
