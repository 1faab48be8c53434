package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/domain/bloodgroup"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

const entityName = "booking"

type Service struct {
	repo  Repository
	audit audit.Recorder
	tx    db.TxRunner
	now   func() time.Time
}

func NewService(repo Repository, rec audit.Recorder, tx db.TxRunner) *Service {
	return &Service{repo: repo, audit: rec, tx: tx, now: time.Now}
}

func (s *Service) Create(ctx context.Context, sc scope.Scope, b *Booking) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	b.DonorName = strings.TrimSpace(b.DonorName)
	if b.DonorName == "" {
		return apperrors.Validation("donor name is required")
	}
	b.BloodGroup = bloodgroup.Normalize(b.BloodGroup)
	if !bloodgroup.Valid(b.BloodGroup) {
		return apperrors.Validation("invalid blood group: %s", b.BloodGroup)
	}
	if b.Date.IsZero() {
		return apperrors.Validation("date is required")
	}
	if err := validateSlot(b.Time); err != nil {
		return err
	}
	if b.PatientMRID != nil {
		mrid := strings.ToUpper(strings.TrimSpace(*b.PatientMRID))
		b.PatientMRID = &mrid
	}

	b.Date = truncateDay(b.Date)
	b.HospitalID = sc.HospitalID
	b.Status = StatusPending
	b.Arrived = false
	b.ArrivalTime = nil
	b.CompletedAt = nil
	b.Notes = nil
	b.CreatedBy = sc.Actor()
	b.UpdatedBy = sc.Actor()

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		token, err := s.repo.NextToken(ctx, sc.HospitalID, b.Date)
		if err != nil {
			return err
		}
		b.TokenNumber = token
		b.BookingID = fmt.Sprintf("BK-%s-%03d-%s", b.Date.Format("20060102"), token, sc.HospitalID)
		if err := s.repo.Create(ctx, b); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityBooking, b.ID, "create",
			fmt.Sprintf("booking %s created for %s on %s %s (token %d)", b.BookingID, b.DonorName, b.Date.Format("2006-01-02"), b.Time, b.TokenNumber),
			map[string]interface{}{"token_number": b.TokenNumber, "date": b.Date.Format("2006-01-02"), "time": b.Time}))
	})
	return apperrors.FromRepo(err, entityName)
}

func (s *Service) Get(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Booking, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	b, err := s.repo.GetByID(ctx, sc.HospitalID, id)
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, sc scope.Scope, p query.Params, page pagination.Params) ([]*Booking, int, error) {
	if err := sc.Validate(); err != nil {
		return nil, 0, err
	}
	if p.Status != "" && !Status(p.Status).Valid() {
		return nil, 0, apperrors.Validation("invalid status: %s", p.Status)
	}
	p.HospitalID = sc.HospitalID
	items, total, err := s.repo.List(ctx, p, page)
	if err != nil {
		return nil, 0, apperrors.FromRepo(err, entityName)
	}
	return items, total, nil
}

// Tokens returns the day's queue ordered by token number.
func (s *Service) Tokens(ctx context.Context, sc scope.Scope, date time.Time) ([]*Booking, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByDate(ctx, sc.HospitalID, truncateDay(date))
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return items, nil
}

func (s *Service) Confirm(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Booking, error) {
	return s.transition(ctx, sc, id, "confirm", func(_ context.Context, b *Booking, _ time.Time) (string, error) {
		return fmt.Sprintf("booking %s confirmed", b.BookingID), b.Confirm()
	})
}

func (s *Service) MarkArrived(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Booking, error) {
	return s.transition(ctx, sc, id, "arrive", func(_ context.Context, b *Booking, now time.Time) (string, error) {
		return fmt.Sprintf("donor %s arrived for booking %s", b.DonorName, b.BookingID), b.MarkArrived(now)
	})
}

func (s *Service) Reject(ctx context.Context, sc scope.Scope, id uuid.UUID, reason string) (*Booking, error) {
	return s.transition(ctx, sc, id, "reject", func(_ context.Context, b *Booking, _ time.Time) (string, error) {
		return fmt.Sprintf("booking %s rejected: %s", b.BookingID, strings.TrimSpace(reason)), b.Reject(reason)
	})
}

func (s *Service) Complete(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Booking, error) {
	return s.transition(ctx, sc, id, "complete", func(_ context.Context, b *Booking, now time.Time) (string, error) {
		return fmt.Sprintf("booking %s completed", b.BookingID), b.Complete(now)
	})
}

func (s *Service) Cancel(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Booking, error) {
	return s.transition(ctx, sc, id, "cancel", func(_ context.Context, b *Booking, _ time.Time) (string, error) {
		return fmt.Sprintf("booking %s cancelled", b.BookingID), b.Cancel()
	})
}

func (s *Service) Reschedule(ctx context.Context, sc scope.Scope, id uuid.UUID, date time.Time, slot string) (*Booking, error) {
	return s.transition(ctx, sc, id, "reschedule", func(ctx context.Context, b *Booking, _ time.Time) (string, error) {
		from := b.Date.Format("2006-01-02") + " " + b.Time
		oldDate := b.Date
		if err := b.Reschedule(date, slot); err != nil {
			return "", err
		}
		// Moving to another day joins the end of that day's token queue.
		if !b.Date.Equal(oldDate) {
			token, err := s.repo.NextToken(ctx, b.HospitalID, b.Date)
			if err != nil {
				return "", err
			}
			b.TokenNumber = token
		}
		return fmt.Sprintf("booking %s rescheduled from %s to %s %s (token %d)",
			b.BookingID, from, b.Date.Format("2006-01-02"), b.Time, b.TokenNumber), nil
	})
}

// transition loads the booking, applies mutate in memory, and persists it
// with one audit event. A mutate error leaves storage untouched.
func (s *Service) transition(ctx context.Context, sc scope.Scope, id uuid.UUID, action string,
	mutate func(_ context.Context, b *Booking, now time.Time) (string, error)) (*Booking, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	var out *Booking
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		from := b.Status
		msg, err := mutate(ctx, b, s.now().UTC())
		if err != nil {
			return err
		}
		b.UpdatedBy = sc.Actor()
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityBooking, b.ID, action, msg,
			map[string]interface{}{"from": string(from), "to": string(b.Status), "token_number": b.TokenNumber}))
	})
	if err != nil {
		return nil, apperrors.FromRepo(err, entityName)
	}
	return out, nil
}
