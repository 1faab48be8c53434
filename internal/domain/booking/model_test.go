package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/pkg/apperrors"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusRejected, StatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("arrived").Valid(), "arrived is a flag, not a status")
}

func TestStatus_Terminal(t *testing.T) {
	tests := map[Status]bool{
		StatusPending: false, StatusConfirmed: false,
		StatusCompleted: true, StatusRejected: true, StatusCancelled: true,
		Status("bogus"): false,
	}
	for s, want := range tests {
		assert.Equal(t, want, s.Terminal(), s)
	}
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusRejected, true},
		{StatusConfirmed, StatusCancelled, false},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusRejected, false},
		{StatusRejected, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestBooking_CompleteRequiresArrival(t *testing.T) {
	b := &Booking{Status: StatusPending}
	err := b.Complete(testNow)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "from pending: %v", err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Nil(t, b.CompletedAt)

	b.Status = StatusConfirmed
	require.Error(t, b.Complete(testNow), "completing before arrival")
	assert.Equal(t, StatusConfirmed, b.Status)

	require.NoError(t, b.MarkArrived(testNow))
	require.NoError(t, b.Complete(testNow))
	assert.Equal(t, StatusCompleted, b.Status)
	require.NotNil(t, b.CompletedAt)
	assert.True(t, b.CompletedAt.Equal(testNow))
}

func TestBooking_MarkArrived(t *testing.T) {
	b := &Booking{Status: StatusPending}
	assert.Error(t, b.MarkArrived(testNow), "arriving from pending")

	b.Status = StatusConfirmed
	require.NoError(t, b.MarkArrived(testNow))
	assert.True(t, b.Arrived)
	assert.NotNil(t, b.ArrivalTime)
	assert.Equal(t, StatusConfirmed, b.Status)

	assert.Error(t, b.MarkArrived(testNow), "second arrival")
}

func TestBooking_RejectTwiceFails(t *testing.T) {
	b := &Booking{Status: StatusConfirmed}
	require.NoError(t, b.Reject("low hemoglobin"))
	assert.Equal(t, StatusRejected, b.Status)
	require.NotNil(t, b.Notes)
	assert.Equal(t, "low hemoglobin", *b.Notes)

	err := b.Reject("again")
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
	assert.Equal(t, "low hemoglobin", *b.Notes, "second reject must not overwrite the reason")
}

func TestBooking_RejectTerminalReportsStatusBeforeReason(t *testing.T) {
	b := &Booking{BookingID: "BK-1", Status: StatusRejected}
	err := b.Reject("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in status rejected")
	assert.NotContains(t, err.Error(), "reason is required")
}

func TestBooking_RejectRequiresReason(t *testing.T) {
	b := &Booking{Status: StatusPending}
	assert.Error(t, b.Reject("   "))
	assert.Equal(t, StatusPending, b.Status)
}

func TestBooking_Cancel(t *testing.T) {
	b := &Booking{Status: StatusPending}
	assert.NoError(t, b.Cancel())

	b = &Booking{Status: StatusConfirmed}
	assert.Error(t, b.Cancel(), "confirmed bookings cannot be cancelled")
}

func TestBooking_Reschedule(t *testing.T) {
	b := &Booking{Status: StatusPending, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Time: "09:00"}
	newDate := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.Reschedule(newDate, "14:30"))
	assert.True(t, b.Date.Equal(newDate))
	assert.Equal(t, "14:30", b.Time)
	assert.Equal(t, StatusPending, b.Status)

	assert.Error(t, b.Reschedule(newDate, "2pm"), "malformed time")

	b.Status = StatusConfirmed
	b.Arrived = true
	require.NoError(t, b.Reschedule(newDate, "10:00"))
	assert.False(t, b.Arrived, "reschedule clears arrival")
	assert.Equal(t, StatusConfirmed, b.Status)

	b.Status = StatusCompleted
	assert.Error(t, b.Reschedule(newDate, "10:00"), "terminal bookings cannot be rescheduled")
}
