package bloodbag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/domain/bloodgroup"
	"github.com/bloodbank/bloodbank/internal/domain/shelflife"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

const (
	bagEntity       = "blood bag"
	componentEntity = "blood component"
)

type Service struct {
	bags       BagRepository
	components ComponentRepository
	audit      audit.Recorder
	tx         db.TxRunner
	now        func() time.Time
}

func NewService(bags BagRepository, components ComponentRepository, rec audit.Recorder, tx db.TxRunner) *Service {
	return &Service{bags: bags, components: components, audit: rec, tx: tx, now: time.Now}
}

// -- Bags --

func (s *Service) CreateBag(ctx context.Context, sc scope.Scope, b *Bag) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	b.SerialNumber = strings.TrimSpace(b.SerialNumber)
	if b.SerialNumber == "" {
		return apperrors.Validation("serial number is required")
	}
	b.BloodGroup = bloodgroup.Normalize(b.BloodGroup)
	if !bloodgroup.Valid(b.BloodGroup) {
		return apperrors.Validation("invalid blood group: %s", b.BloodGroup)
	}
	if b.CollectionDate.IsZero() {
		return apperrors.Validation("collection date is required")
	}
	if b.CollectionDate.After(s.now()) {
		return apperrors.Validation("collection date cannot be in the future")
	}
	if b.Volume == 0 {
		b.Volume = DefaultBagVolume
	}
	if b.Volume < 0 {
		return apperrors.Validation("volume must be positive")
	}
	if b.Status == "" {
		b.Status = BagReceived
	}
	if b.Status != BagReceived && b.Status != BagProcessing && b.Status != BagQuarantine {
		return apperrors.Validation("a new bag cannot start as %s", b.Status)
	}
	if b.ExpiryDate.IsZero() {
		b.ExpiryDate = shelflife.Expiry(shelflife.WholeBlood, b.CollectionDate)
	} else if !b.ExpiryDate.After(b.CollectionDate) {
		return apperrors.Validation("expiry date must be after collection date")
	}

	b.HospitalID = sc.HospitalID
	b.SeparatedAt, b.SeparatedBy, b.SeparationMethod = nil, nil, nil
	b.ComponentsCount = 0
	b.CreatedBy = sc.Actor()
	b.UpdatedBy = sc.Actor()

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.bags.Create(ctx, b); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityBloodBag, b.ID, "create",
			fmt.Sprintf("blood bag %s (%s, %d ml) received", b.SerialNumber, b.BloodGroup, b.Volume),
			map[string]interface{}{"status": string(b.Status), "expiry_date": b.ExpiryDate.Format(time.RFC3339)}))
	})
	return apperrors.FromRepo(err, bagEntity)
}

func (s *Service) GetBag(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Bag, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	b, err := s.bags.GetByID(ctx, sc.HospitalID, id)
	if err != nil {
		return nil, apperrors.FromRepo(err, bagEntity)
	}
	return b, nil
}

func (s *Service) ListBags(ctx context.Context, sc scope.Scope, p query.Params, page pagination.Params) ([]*Bag, int, error) {
	if err := sc.Validate(); err != nil {
		return nil, 0, err
	}
	if p.Status != "" && !BagStatus(p.Status).Valid() {
		return nil, 0, apperrors.Validation("invalid status: %s", p.Status)
	}
	p.HospitalID = sc.HospitalID
	items, total, err := s.bags.List(ctx, p, page)
	if err != nil {
		return nil, 0, apperrors.FromRepo(err, bagEntity)
	}
	return items, total, nil
}

func (s *Service) UpdateBagStatus(ctx context.Context, sc scope.Scope, id uuid.UUID, status BagStatus) (*Bag, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.Validation("invalid status: %s", status)
	}
	if status == BagSeparated {
		return nil, apperrors.Validation("use the separate operation to separate a bag")
	}

	var out *Bag
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.bags.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		from := b.Status
		if !from.CanTransitionTo(status) {
			return apperrors.Validation("cannot change blood bag from %s to %s", from, status)
		}
		b.Status = status
		b.UpdatedBy = sc.Actor()
		if err := s.bags.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityBloodBag, b.ID, "status",
			fmt.Sprintf("blood bag %s status changed from %s to %s", b.SerialNumber, from, status),
			map[string]interface{}{"from": string(from), "to": string(status)}))
	})
	if err != nil {
		return nil, apperrors.FromRepo(err, bagEntity)
	}
	return out, nil
}

// -- Separation --

// componentCode abbreviates a kind for generated serial numbers.
var componentCode = map[shelflife.Kind]string{
	shelflife.RedCells:        "RBC",
	shelflife.Plasma:          "FFP",
	shelflife.Platelets:       "PLT",
	shelflife.WhiteCells:      "WBC",
	shelflife.Cryoprecipitate: "CRYO",
}

// generatedSerial names the i-th component of bag. Bag serials are only
// unique per hospital while component serials are global, so the hospital
// id leads.
func generatedSerial(bag *Bag, kind shelflife.Kind, i int) string {
	return fmt.Sprintf("%s-%s-%s-%d", bag.HospitalID, bag.SerialNumber, componentCode[kind], i+1)
}

// validateSeparation checks every precondition that does not need storage
// and fills generated serial numbers. It never mutates bag.
func validateSeparation(bag *Bag, req *SeparationRequest, now time.Time) error {
	if !bag.Status.Separable() {
		return apperrors.Validation("blood bag %s cannot be separated in status %s", bag.SerialNumber, bag.Status)
	}
	if shelflife.IsExpired(bag.ExpiryDate, now) {
		return apperrors.Validation("blood bag %s expired on %s", bag.SerialNumber, bag.ExpiryDate.Format("2006-01-02"))
	}
	if len(req.Components) == 0 {
		return apperrors.Validation("at least one component is required")
	}
	if req.SeparationDate.IsZero() {
		return apperrors.Validation("separation date is required")
	}
	if req.SeparationDate.Before(bag.CollectionDate) {
		return apperrors.Validation("separation date cannot be before collection date")
	}
	if req.SeparationDate.After(now) {
		return apperrors.Validation("separation date cannot be in the future")
	}

	total := 0
	seen := make(map[string]bool, len(req.Components))
	for i := range req.Components {
		part := &req.Components[i]
		if !shelflife.IsComponent(part.Type) {
			return apperrors.Validation("invalid component type: %s", part.Type)
		}
		if part.Volume <= 0 {
			return apperrors.Validation("component %d volume must be positive", i+1)
		}
		total += part.Volume

		part.SerialNumber = strings.TrimSpace(part.SerialNumber)
		if part.SerialNumber == "" {
			part.SerialNumber = generatedSerial(bag, part.Type, i)
		}
		if seen[part.SerialNumber] {
			return apperrors.Validation("duplicate component serial number in request: %s", part.SerialNumber)
		}
		seen[part.SerialNumber] = true
	}
	if total > bag.Volume {
		return apperrors.Validation("total component volume %d ml exceeds bag volume %d ml", total, bag.Volume)
	}
	return nil
}

// Separate splits a bag into components. Preconditions are checked before
// the first write; the component inserts, the bag update, and the audit
// event then commit or roll back together.
func (s *Service) Separate(ctx context.Context, sc scope.Scope, bagID uuid.UUID, req SeparationRequest) (*SeparationResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	technician := strings.TrimSpace(req.Technician)
	if technician == "" {
		technician = sc.Actor()
	}
	method := strings.TrimSpace(req.Method)

	var result *SeparationResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		bag, err := s.bags.GetByID(ctx, sc.HospitalID, bagID)
		if err != nil {
			return err
		}
		if err := validateSeparation(bag, &req, now); err != nil {
			return err
		}
		serials := make([]string, len(req.Components))
		for i, part := range req.Components {
			serials[i] = part.SerialNumber
		}
		taken, err := s.components.ExistingSerials(ctx, serials)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return apperrors.Conflict("component serial number already exists: %s", strings.Join(taken, ", "))
		}

		created := make([]*Component, 0, len(req.Components))
		summary := make([]string, 0, len(req.Components))
		for _, part := range req.Components {
			c := &Component{
				HospitalID:     sc.HospitalID,
				SerialNumber:   part.SerialNumber,
				Type:           part.Type,
				OriginalBagID:  bag.ID,
				BloodGroup:     bag.BloodGroup,
				Volume:         part.Volume,
				SeparationDate: req.SeparationDate,
				ExpiryDate:     shelflife.Expiry(part.Type, req.SeparationDate),
				Status:         ComponentAvailable,
				CreatedBy:      sc.Actor(),
				UpdatedBy:      sc.Actor(),
			}
			if notes := strings.TrimSpace(part.Notes); notes != "" {
				c.Notes = &notes
			}
			if err := s.components.Create(ctx, c); err != nil {
				return err
			}
			created = append(created, c)
			summary = append(summary, fmt.Sprintf("%s %s %d ml", c.SerialNumber, c.Type, c.Volume))
		}

		from := bag.Status
		sepAt := req.SeparationDate
		bag.Status = BagSeparated
		bag.SeparatedAt = &sepAt
		bag.SeparatedBy = &technician
		if method != "" {
			bag.SeparationMethod = &method
		}
		bag.ComponentsCount = len(created)
		bag.UpdatedBy = sc.Actor()
		if err := s.bags.Update(ctx, bag); err != nil {
			return err
		}

		result = &SeparationResult{Bag: bag, Components: created}
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityBloodBag, bag.ID, "separate",
			fmt.Sprintf("blood bag %s separated by %s into %d components: %s",
				bag.SerialNumber, technician, len(created), strings.Join(summary, "; ")),
			map[string]interface{}{
				"from":            string(from),
				"to":              string(BagSeparated),
				"method":          method,
				"separation_date": req.SeparationDate.Format(time.RFC3339),
				"components":      serials,
			}))
	})
	if err != nil {
		return nil, apperrors.FromRepo(err, bagEntity)
	}
	return result, nil
}

// -- Components --

func (s *Service) GetComponent(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Component, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	c, err := s.components.GetByID(ctx, sc.HospitalID, id)
	if err != nil {
		return nil, apperrors.FromRepo(err, componentEntity)
	}
	return c, nil
}

func (s *Service) ListComponents(ctx context.Context, sc scope.Scope, p query.Params, page pagination.Params) ([]*Component, int, error) {
	if err := sc.Validate(); err != nil {
		return nil, 0, err
	}
	if p.Status != "" && !ComponentStatus(p.Status).Valid() {
		return nil, 0, apperrors.Validation("invalid status: %s", p.Status)
	}
	if t, ok := p.Extra["type"]; ok {
		if k, _ := t.(string); !shelflife.IsComponent(shelflife.Kind(k)) {
			return nil, 0, apperrors.Validation("invalid component type: %v", t)
		}
	}
	p.HospitalID = sc.HospitalID
	items, total, err := s.components.List(ctx, p, page)
	if err != nil {
		return nil, 0, apperrors.FromRepo(err, componentEntity)
	}
	return items, total, nil
}

// ComponentsForBag returns the components separated from one bag.
func (s *Service) ComponentsForBag(ctx context.Context, sc scope.Scope, bagID uuid.UUID) ([]*Component, error) {
	if _, err := s.GetBag(ctx, sc, bagID); err != nil {
		return nil, err
	}
	items, err := s.components.ListByBag(ctx, sc.HospitalID, bagID)
	if err != nil {
		return nil, apperrors.FromRepo(err, componentEntity)
	}
	return items, nil
}

func (s *Service) UpdateComponentStatus(ctx context.Context, sc scope.Scope, id uuid.UUID, status ComponentStatus) (*Component, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.Validation("invalid status: %s", status)
	}

	var out *Component
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.components.GetByID(ctx, sc.HospitalID, id)
		if err != nil {
			return err
		}
		from := c.Status
		if !from.CanTransitionTo(status) {
			return apperrors.Validation("cannot change component from %s to %s", from, status)
		}
		c.Status = status
		c.UpdatedBy = sc.Actor()
		if err := s.components.Update(ctx, c); err != nil {
			return err
		}
		out = c
		return s.audit.Record(ctx, audit.NewEvent(sc, audit.EntityComponent, c.ID, "status",
			fmt.Sprintf("component %s status changed from %s to %s", c.SerialNumber, from, status),
			map[string]interface{}{"from": string(from), "to": string(status)}))
	})
	if err != nil {
		return nil, apperrors.FromRepo(err, componentEntity)
	}
	return out, nil
}

// ExpiringComponents returns usable components inside their type's warning
// window: expiry in (now, now+window].
func (s *Service) ExpiringComponents(ctx context.Context, sc scope.Scope) ([]*Component, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	widest := time.Duration(0)
	for _, k := range shelflife.ComponentKinds() {
		if w := shelflife.WarningWindow(k); w > widest {
			widest = w
		}
	}
	candidates, err := s.components.ListExpiringBetween(ctx, sc.HospitalID, now, now.Add(widest))
	if err != nil {
		return nil, apperrors.FromRepo(err, componentEntity)
	}
	out := make([]*Component, 0, len(candidates))
	for _, c := range candidates {
		if shelflife.IsExpiringSoon(c.Type, c.ExpiryDate, now) {
			out = append(out, c)
		}
	}
	return out, nil
}
