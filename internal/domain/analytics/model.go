// Package analytics serves the per-hospital stock and workload dashboard.
package analytics

import "time"

type Dashboard struct {
	HospitalID          string         `json:"hospital_id"`
	GeneratedAt         time.Time      `json:"generated_at"`
	BookingsToday       map[string]int `json:"bookings_today"`
	BookingsTotal       map[string]int `json:"bookings_total"`
	BagsByStatus        map[string]int `json:"bags_by_status"`
	AvailableComponents map[string]int `json:"available_components"`
	AvailableUnits      map[string]int `json:"available_units"`
	ExpiringComponents  int            `json:"expiring_components"`
	ExpiringUnits       int            `json:"expiring_units"`
	UnfulfilledPatients int            `json:"unfulfilled_patients"`
	Cached              bool           `json:"cached"`
}

// ExpiryWindow bounds the expiring-soon count for one component type.
type ExpiryWindow struct {
	Type  string
	Until time.Time
}
