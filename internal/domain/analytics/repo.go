package analytics

import (
	"context"
	"time"
)

type Repository interface {
	// Collect fills every count of d for d.HospitalID. now is the reference
	// for "today" and the expiring windows.
	Collect(ctx context.Context, d *Dashboard, now time.Time, componentWindows []ExpiryWindow, unitUntil time.Time) error
}
