package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/pkg/apperrors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusRejected: true, StatusCancelled: true},
	StatusConfirmed: {StatusCompleted: true, StatusRejected: true},
	StatusCompleted: {},
	StatusRejected:  {},
	StatusCancelled: {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// TimeLayout is the wall-clock format of a booking slot.
const TimeLayout = "15:04"

// Booking is a donation appointment and its front-desk token.
type Booking struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	BookingID   string     `db:"booking_id" json:"booking_id"`
	HospitalID  string     `db:"hospital_id" json:"hospital_id"`
	DonorID     *string    `db:"donor_id" json:"donor_id,omitempty"`
	DonorName   string     `db:"donor_name" json:"donor_name"`
	PatientName *string    `db:"patient_name" json:"patient_name,omitempty"`
	PatientMRID *string    `db:"patient_mrid" json:"patient_mrid,omitempty"`
	BloodGroup  string     `db:"blood_group" json:"blood_group"`
	Date        time.Time  `db:"date" json:"date"`
	Time        string     `db:"time" json:"time"`
	Status      Status     `db:"status" json:"status"`
	TokenNumber int        `db:"token_number" json:"token_number"`
	Arrived     bool       `db:"arrived" json:"arrived"`
	ArrivalTime *time.Time `db:"arrival_time" json:"arrival_time,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy   string     `db:"updated_by" json:"updated_by,omitempty"`
	Version     int        `db:"version" json:"version"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func illegal(b *Booking, op string) error {
	return apperrors.Validation("cannot %s booking %s in status %s", op, b.BookingID, b.Status)
}

func (b *Booking) Confirm() error {
	if !b.Status.CanTransitionTo(StatusConfirmed) {
		return illegal(b, "confirm")
	}
	b.Status = StatusConfirmed
	return nil
}

// MarkArrived flags the donor as present. Status stays confirmed.
func (b *Booking) MarkArrived(now time.Time) error {
	if b.Status != StatusConfirmed {
		return illegal(b, "mark arrival for")
	}
	if b.Arrived {
		return apperrors.Validation("donor for booking %s already marked arrived", b.BookingID)
	}
	b.Arrived = true
	b.ArrivalTime = &now
	return nil
}

func (b *Booking) Reject(reason string) error {
	if !b.Status.CanTransitionTo(StatusRejected) {
		return illegal(b, "reject")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperrors.Validation("rejection reason is required")
	}
	b.Status = StatusRejected
	b.Notes = &reason
	return nil
}

func (b *Booking) Complete(now time.Time) error {
	if !b.Status.CanTransitionTo(StatusCompleted) {
		return illegal(b, "complete")
	}
	if !b.Arrived {
		return apperrors.Validation("cannot complete booking %s before the donor has arrived", b.BookingID)
	}
	b.Status = StatusCompleted
	b.CompletedAt = &now
	return nil
}

func (b *Booking) Cancel() error {
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return illegal(b, "cancel")
	}
	b.Status = StatusCancelled
	return nil
}

// Reschedule moves the slot. A confirmed booking keeps its status but the
// arrival flag is cleared since it referred to the old slot.
func (b *Booking) Reschedule(date time.Time, slot string) error {
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return illegal(b, "reschedule")
	}
	if date.IsZero() {
		return apperrors.Validation("date is required")
	}
	if err := validateSlot(slot); err != nil {
		return err
	}
	b.Date = truncateDay(date)
	b.Time = slot
	b.Arrived = false
	b.ArrivalTime = nil
	return nil
}

func validateSlot(slot string) error {
	if _, err := time.Parse(TimeLayout, slot); err != nil {
		return apperrors.Validation("time must be HH:MM")
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
