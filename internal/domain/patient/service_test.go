package patient

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/internal/domain/audit"
	"github.com/bloodbank/bloodbank/internal/platform/query"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.Version = 1
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, hospitalID string, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok || p.HospitalID != hospitalID {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) ExistsMRID(_ context.Context, hospitalID, mrid string) (bool, error) {
	for _, p := range m.patients {
		if p.HospitalID == hospitalID && p.MRID == mrid {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	cur, ok := m.patients[p.ID]
	if !ok || cur.Version != p.Version {
		return apperrors.ErrConcurrentUpdate
	}
	p.Version++
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, hospitalID string, id uuid.UUID, version int) error {
	cur, ok := m.patients[id]
	if !ok || cur.HospitalID != hospitalID || cur.Version != version {
		return apperrors.ErrConcurrentUpdate
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, p query.Params, _ pagination.Params) ([]*Patient, int, error) {
	var out []*Patient
	for _, pt := range m.patients {
		if pt.HospitalID == p.HospitalID {
			out = append(out, pt)
		}
	}
	return out, len(out), nil
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

var testScope = scope.Scope{HospitalID: "hosp-1", ActorID: "u1", ActorName: "Front Desk", Role: "front_desk"}

func newTestService() (*Service, *mockRepo, *mockRecorder) {
	repo := newMockRepo()
	rec := &mockRecorder{}
	return NewService(repo, rec, passthroughTx{}), repo, rec
}

func register(t *testing.T, svc *Service, mrid string, required int) *Patient {
	t.Helper()
	p := &Patient{MRID: mrid, Name: "Lakshmi", RequiredUnits: required}
	require.NoError(t, svc.Register(context.Background(), testScope, p))
	return p
}

func TestRegister_NormalizesMRID(t *testing.T) {
	svc, _, rec := newTestService()
	p := register(t, svc, "  mr-001 ", 2)
	assert.Equal(t, "MR-001", p.MRID)
	assert.False(t, p.IsFulfilled, "patient needing units must not be fulfilled")
	require.Len(t, rec.events, 1)
	assert.Equal(t, "register", rec.events[0].Action)
}

func TestRegister_DuplicateMRIDCaseInsensitive(t *testing.T) {
	svc, repo, _ := newTestService()
	register(t, svc, "M1", 1)

	err := svc.Register(context.Background(), testScope, &Patient{MRID: "m1", Name: "Other"})
	require.True(t, apperrors.IsType(err, apperrors.TypeConflict), "got %v", err)
	assert.Len(t, repo.patients, 1)
}

func TestRegister_SameMRIDOtherHospital(t *testing.T) {
	svc, _, _ := newTestService()
	register(t, svc, "M1", 1)

	other := testScope
	other.HospitalID = "hosp-2"
	err := svc.Register(context.Background(), other, &Patient{MRID: "m1", Name: "Other"})
	assert.NoError(t, err, "same MRID in another hospital should be allowed")
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	bad := "Q+"
	age := 200
	cases := []*Patient{
		{MRID: " ", Name: "A"},
		{MRID: "M2", Name: ""},
		{MRID: "M2", Name: "A", BloodGroup: &bad},
		{MRID: "M2", Name: "A", Age: &age},
		{MRID: "M2", Name: "A", RequiredUnits: -1},
	}
	for i, p := range cases {
		err := svc.Register(context.Background(), testScope, p)
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "case %d: %v", i, err)
	}
}

func TestRecordTransfusion_Fulfills(t *testing.T) {
	svc, _, _ := newTestService()
	p := register(t, svc, "M1", 3)

	got, err := svc.RecordTransfusion(context.Background(), testScope, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReceivedUnits)
	assert.False(t, got.IsFulfilled)

	got, err = svc.RecordTransfusion(context.Background(), testScope, p.ID, 1)
	require.NoError(t, err)
	assert.True(t, got.IsFulfilled, "3 of 3")

	_, err = svc.RecordTransfusion(context.Background(), testScope, p.ID, 0)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "zero units: %v", err)
}

func TestUpdate_RecomputesFulfilled(t *testing.T) {
	svc, _, _ := newTestService()
	p := register(t, svc, "M1", 1)
	_, err := svc.RecordTransfusion(context.Background(), testScope, p.ID, 1)
	require.NoError(t, err)

	more := 4
	ward := " ICU "
	got, err := svc.Update(context.Background(), testScope, p.ID, Changes{RequiredUnits: &more, Ward: &ward})
	require.NoError(t, err)
	assert.False(t, got.IsFulfilled, "raising required units clears fulfilled")
	require.NotNil(t, got.Ward)
	assert.Equal(t, "ICU", *got.Ward)
	assert.Equal(t, "M1", got.MRID, "MRID must not change")
}

func TestUpdate_EmptyName(t *testing.T) {
	svc, _, _ := newTestService()
	p := register(t, svc, "M1", 1)
	empty := "  "
	_, err := svc.Update(context.Background(), testScope, p.ID, Changes{Name: &empty})
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
}

func TestDelete_ThenReRegister(t *testing.T) {
	svc, _, _ := newTestService()
	p := register(t, svc, "M1", 1)
	require.NoError(t, svc.Delete(context.Background(), testScope, p.ID))

	_, err := svc.Get(context.Background(), testScope, p.ID)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound), "got %v", err)
	register(t, svc, "m1", 1)
}
