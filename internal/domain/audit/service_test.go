package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

type mockRepo struct {
	events []*Event
}

func (m *mockRepo) Record(_ context.Context, e *Event) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.events = append(m.events, e)
	return nil
}

func (m *mockRepo) List(_ context.Context, hospitalID string, f Filter, _ pagination.Params) ([]*Event, int, error) {
	var out []*Event
	for _, e := range m.events {
		if e.HospitalID != hospitalID {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != nil && e.EntityID != *f.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

var testScope = scope.Scope{HospitalID: "hosp-1", ActorID: "u1", ActorName: "Ravi", Role: "bloodbank_admin"}

func TestNewEvent_StampsScope(t *testing.T) {
	id := uuid.New()
	e := NewEvent(testScope, EntityBooking, id, "confirm", "booking confirmed", nil)
	assert.Equal(t, "hosp-1", e.HospitalID)
	assert.Equal(t, "u1", e.ActorID)
	assert.Equal(t, "Ravi", e.ActorName)
	assert.Equal(t, id, e.EntityID)
	assert.Equal(t, EntityBooking, e.EntityType)
}

func TestService_ListIsHospitalScoped(t *testing.T) {
	repo := &mockRepo{}
	ctx := context.Background()
	bagID := uuid.New()
	require.NoError(t, repo.Record(ctx, NewEvent(testScope, EntityBloodBag, bagID, "separate", "separated", nil)))
	other := testScope
	other.HospitalID = "hosp-2"
	require.NoError(t, repo.Record(ctx, NewEvent(other, EntityBloodBag, bagID, "separate", "separated", nil)))

	svc := NewService(repo)
	items, total, err := svc.List(ctx, testScope, Filter{EntityType: EntityBloodBag, EntityID: &bagID}, pagination.Default())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "hosp-1", items[0].HospitalID)
}

func TestService_ListValidation(t *testing.T) {
	svc := NewService(&mockRepo{})
	ctx := context.Background()

	t.Run("unknown entity type", func(t *testing.T) {
		_, _, err := svc.List(ctx, testScope, Filter{EntityType: "donor"}, pagination.Default())
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
	})
	t.Run("entity id without type", func(t *testing.T) {
		id := uuid.New()
		_, _, err := svc.List(ctx, testScope, Filter{EntityID: &id}, pagination.Default())
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
	})
	t.Run("empty scope", func(t *testing.T) {
		_, _, err := svc.List(ctx, scope.Scope{}, Filter{}, pagination.Default())
		assert.True(t, apperrors.IsType(err, apperrors.TypeForbidden), "got %v", err)
	})
}

func TestHandler_ListEvents(t *testing.T) {
	repo := &mockRepo{}
	id := uuid.New()
	require.NoError(t, repo.Record(context.Background(), NewEvent(testScope, EntityPatient, id, "register", "registered", nil)))
	h := NewHandler(NewService(repo))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?entity_type=patient&entity_id="+id.String(), nil)
	req = req.WithContext(scope.WithScope(req.Context(), testScope))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.ListEvents(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ListEvents_BadEntityID(t *testing.T) {
	h := NewHandler(NewService(&mockRepo{}))
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?entity_type=patient&entity_id=nope", nil)
	req = req.WithContext(scope.WithScope(req.Context(), testScope))
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.ListEvents(c)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
}
