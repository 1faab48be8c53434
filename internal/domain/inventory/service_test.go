package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/domain/expiry"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type mockRepo struct {
	units    map[uuid.UUID]*Unit
	consumed []int
	// shrinkBy simulates a concurrent purchase landing between read and write.
	shrinkBy int
}

func newMockRepo() *mockRepo {
	return &mockRepo{units: make(map[uuid.UUID]*Unit)}
}

func (m *mockRepo) Create(_ context.Context, u *Unit) error {
	u.ID = uuid.New()
	u.Version = 1
	cp := *u
	m.units[u.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, hospitalID string, id uuid.UUID) (*Unit, error) {
	u, ok := m.units[id]
	if !ok || u.HospitalID != hospitalID {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, u *Unit, expected Status) error {
	cur, ok := m.units[u.ID]
	if !ok || cur.Version != u.Version || cur.Status != expected {
		return apperrors.ErrConcurrentUpdate
	}
	u.Version++
	cp := *u
	m.units[u.ID] = &cp
	return nil
}

func (m *mockRepo) Consume(_ context.Context, u *Unit, n int) error {
	cur, ok := m.units[u.ID]
	if !ok {
		return apperrors.ErrConcurrentUpdate
	}
	cur.UnitsCount -= m.shrinkBy
	if cur.Version != u.Version || cur.UnitsCount < n || cur.Status != StatusAvailable {
		return apperrors.ErrConcurrentUpdate
	}
	m.consumed = append(m.consumed, n)
	u.Version++
	cp := *u
	m.units[u.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, hospitalID string, id uuid.UUID, version int) error {
	cur, ok := m.units[id]
	if !ok || cur.HospitalID != hospitalID || cur.Version != version {
		return apperrors.ErrConcurrentUpdate
	}
	delete(m.units, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, p query.Params, _ pagination.Params) ([]*Unit, int, error) {
	var out []*Unit
	for _, u := range m.units {
		if u.HospitalID == p.HospitalID {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListExpiringBetween(_ context.Context, hospitalID string, from, to time.Time) ([]*Unit, error) {
	var out []*Unit
	for _, u := range m.units {
		if u.HospitalID == hospitalID && u.ExpiryDate != nil && u.ExpiryDate.After(from) && !u.ExpiryDate.After(to) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepo) ExpireDue(context.Context, string, time.Time) ([]expiry.Expired, error) {
	return nil, nil
}

type mockRecorder struct{ events []*audit.Event }

func (m *mockRecorder) Record(_ context.Context, e *audit.Event) error {
	m.events = append(m.events, e)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var testScope = scope.Scope{HospitalID: "hosp-1", ActorID: "u3", ActorName: "Store", Role: "store_manager"}

func newTestService() (*Service, *mockRepo, *mockRecorder) {
	repo := newMockRepo()
	rec := &mockRecorder{}
	svc := NewService(repo, rec, passthroughTx{})
	svc.now = func() time.Time { return now }
	return svc, repo, rec
}

func strPtr(s string) *string { return &s }

func createUnit(t *testing.T, svc *Service, count int) *Unit {
	t.Helper()
	u := &Unit{SerialNumber: "INV-7", BloodGroup: strPtr("ab-"), UnitsCount: count}
	require.NoError(t, svc.Create(context.Background(), testScope, u))
	return u
}

func TestCreate_Defaults(t *testing.T) {
	svc, _, rec := newTestService()
	u := createUnit(t, svc, 5)

	assert.Equal(t, "AB-", *u.BloodGroup)
	assert.Equal(t, StatusAvailable, u.Status)
	assert.Equal(t, 5, u.InitialUnits)
	require.NotNil(t, u.ExpiryDate)
	assert.True(t, u.ExpiryDate.Equal(now.Add(35*24*time.Hour)))
	assert.Len(t, rec.events, 1)
}

func TestCreate_Validation(t *testing.T) {
	svc, repo, _ := newTestService()
	cases := []*Unit{
		{SerialNumber: "", ItemName: strPtr("gloves"), UnitsCount: 1},
		{SerialNumber: "S", UnitsCount: 1},
		{SerialNumber: "S", ItemName: strPtr("  "), UnitsCount: 1},
		{SerialNumber: "S", ItemName: strPtr("gloves"), UnitsCount: 0},
		{SerialNumber: "S", BloodGroup: strPtr("Z+"), UnitsCount: 1},
	}
	for _, u := range cases {
		err := svc.Create(context.Background(), testScope, u)
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "unit %+v: %v", u, err)
	}
	assert.Empty(t, repo.units)
}

func TestCreate_ItemWithoutExpiry(t *testing.T) {
	svc, _, _ := newTestService()
	u := &Unit{SerialNumber: "KIT-1", ItemName: strPtr("transfusion kit"), UnitsCount: 3}
	require.NoError(t, svc.Create(context.Background(), testScope, u))
	assert.Nil(t, u.ExpiryDate)
}

func TestPurchase_AllUnits(t *testing.T) {
	svc, repo, rec := newTestService()
	u := createUnit(t, svc, 4)

	got, err := svc.Purchase(context.Background(), testScope, u.ID, 4, "Meena")
	require.NoError(t, err)
	assert.Equal(t, StatusUsed, got.Status)
	assert.Equal(t, 0, got.UnitsCount)
	assert.Equal(t, []int{4}, repo.consumed)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "purchase", last.Action)
	assert.Equal(t, "INV-7/1-4", last.Payload["range"])
}

func TestPurchase_TooMany(t *testing.T) {
	svc, repo, _ := newTestService()
	u := createUnit(t, svc, 4)

	_, err := svc.Purchase(context.Background(), testScope, u.ID, 5, "Meena")
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
	stored := repo.units[u.ID]
	assert.Equal(t, 4, stored.UnitsCount)
	assert.Equal(t, StatusAvailable, stored.Status)
	assert.Empty(t, repo.consumed)
}

func TestPurchase_ConcurrentShrinkIsConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	u := createUnit(t, svc, 4)
	repo.shrinkBy = 2

	_, err := svc.Purchase(context.Background(), testScope, u.ID, 3, "Meena")
	assert.True(t, apperrors.IsType(err, apperrors.TypeConflict), "got %v", err)
}

func TestAllocateThenBill(t *testing.T) {
	svc, _, _ := newTestService()
	u := createUnit(t, svc, 1)

	got, err := svc.Allocate(context.Background(), testScope, u.ID, AllocationTarget{UserID: "dr-7"})
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, got.Status)

	got, err = svc.Bill(context.Background(), testScope, u.ID, "Meena", decimal.RequireFromString("899.99"))
	require.NoError(t, err)
	assert.Equal(t, StatusSold, got.Status)
	assert.Equal(t, "899.99", got.BillPrice.StringFixed(2))

	_, err = svc.Take(context.Background(), testScope, u.ID, "ICU", "urgent")
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
}

func TestTake(t *testing.T) {
	svc, _, rec := newTestService()
	u := createUnit(t, svc, 3)

	got, err := svc.Take(context.Background(), testScope, u.ID, "ICU", "trauma case")
	require.NoError(t, err)
	assert.Equal(t, StatusUsed, got.Status)
	assert.Equal(t, 0, got.UnitsCount)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "available", last.Payload["from"])
	assert.Equal(t, "used", last.Payload["to"])
}

func TestDelete(t *testing.T) {
	svc, _, _ := newTestService()
	u := createUnit(t, svc, 1)

	require.NoError(t, svc.Delete(context.Background(), testScope, u.ID))
	_, err := svc.Get(context.Background(), testScope, u.ID)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound), "got %v", err)
}

func TestExpiringSoon(t *testing.T) {
	svc, repo, _ := newTestService()
	soon := now.Add(3 * 24 * time.Hour)
	later := now.Add(10 * 24 * time.Hour)
	repo.units[uuid.New()] = &Unit{HospitalID: "hosp-1", ExpiryDate: &soon, Status: StatusAvailable}
	repo.units[uuid.New()] = &Unit{HospitalID: "hosp-1", ExpiryDate: &later, Status: StatusAvailable}
	repo.units[uuid.New()] = &Unit{HospitalID: "hosp-2", ExpiryDate: &soon, Status: StatusAvailable}

	items, err := svc.ExpiringSoon(context.Background(), testScope)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
