package analytics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/internal/platform/cache"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
)

type mockRepo struct {
	calls   int
	windows []ExpiryWindow
	err     error
}

func (m *mockRepo) Collect(_ context.Context, d *Dashboard, _ time.Time, windows []ExpiryWindow, _ time.Time) error {
	m.calls++
	m.windows = windows
	if m.err != nil {
		return m.err
	}
	d.BagsByStatus = map[string]int{"received": m.calls}
	d.UnfulfilledPatients = 2
	return nil
}

var (
	testScope = scope.Scope{HospitalID: "hosp-1", ActorID: "u1", Role: "bloodbank_admin"}
	testNow   = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, *mockRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := &mockRepo{}
	svc := NewService(repo, cache.NewWithClient(client, "bloodbank:"), time.Minute, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, repo, mr
}

func TestDashboard_CachesSnapshot(t *testing.T) {
	svc, repo, mr := newTestService(t)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, testScope, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.True(t, mr.Exists("bloodbank:dashboard:hosp-1"))

	second, err := svc.Dashboard(ctx, testScope, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 1, second.BagsByStatus["received"])
}

func TestDashboard_RefreshBypassesCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, testScope, false)
	require.NoError(t, err)
	d, err := svc.Dashboard(ctx, testScope, true)
	require.NoError(t, err)
	assert.False(t, d.Cached)
	assert.Equal(t, 2, repo.calls)
	assert.Equal(t, 2, d.BagsByStatus["received"])
}

func TestDashboard_ExpiresWithTTL(t *testing.T) {
	svc, repo, mr := newTestService(t)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, testScope, false)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	d, err := svc.Dashboard(ctx, testScope, false)
	require.NoError(t, err)
	assert.False(t, d.Cached)
	assert.Equal(t, 2, repo.calls)
}

func TestDashboard_RedisDownFallsBack(t *testing.T) {
	svc, repo, mr := newTestService(t)
	mr.Close()

	d, err := svc.Dashboard(context.Background(), testScope, false)
	require.NoError(t, err)
	assert.False(t, d.Cached)
	assert.Equal(t, 1, repo.calls)
}

func TestDashboard_DisabledCache(t *testing.T) {
	repo := &mockRepo{}
	c, err := cache.New(context.Background(), "", "bloodbank:")
	require.NoError(t, err)
	svc := NewService(repo, c, time.Minute, zerolog.Nop())

	_, err = svc.Dashboard(context.Background(), testScope, false)
	require.NoError(t, err)
	_, err = svc.Dashboard(context.Background(), testScope, false)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestDashboard_WindowsPerComponentType(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, err := svc.Dashboard(context.Background(), testScope, true)
	require.NoError(t, err)

	byType := map[string]time.Time{}
	for _, w := range repo.windows {
		byType[w.Type] = w.Until
	}
	assert.Equal(t, testNow.Add(24*time.Hour), byType["platelets"])
	assert.Equal(t, testNow.Add(12*time.Hour), byType["white_cells"])
	assert.Equal(t, testNow.Add(7*24*time.Hour), byType["plasma"])
}

func TestDashboard_RepoError(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.err = errors.New("connection reset")
	_, err := svc.Dashboard(context.Background(), testScope, true)
	assert.True(t, apperrors.IsType(err, apperrors.TypeInternal), "got %v", err)
}

func TestInvalidate(t *testing.T) {
	svc, _, mr := newTestService(t)
	_, err := svc.Dashboard(context.Background(), testScope, false)
	require.NoError(t, err)
	svc.Invalidate(context.Background(), "hosp-1")
	assert.False(t, mr.Exists("bloodbank:dashboard:hosp-1"))
}

func TestInvalidateAll(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()
	other := testScope
	other.HospitalID = "hosp-2"

	_, err := svc.Dashboard(ctx, testScope, false)
	require.NoError(t, err)
	_, err = svc.Dashboard(ctx, other, false)
	require.NoError(t, err)

	svc.InvalidateAll(ctx)
	assert.False(t, mr.Exists("bloodbank:dashboard:hosp-1"))
	assert.False(t, mr.Exists("bloodbank:dashboard:hosp-2"))
}

func TestInvalidateOnWrite(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		status  int
		err     error
		dropped bool
	}{
		{"successful post", http.MethodPost, http.StatusCreated, nil, true},
		{"successful put", http.MethodPut, http.StatusOK, nil, true},
		{"successful delete", http.MethodDelete, http.StatusNoContent, nil, true},
		{"read", http.MethodGet, http.StatusOK, nil, false},
		{"failed write", http.MethodPost, 0, apperrors.Validation("bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, mr := newTestService(t)
			ctx := context.Background()
			_, err := svc.Dashboard(ctx, testScope, false)
			require.NoError(t, err)

			e := echo.New()
			req := httptest.NewRequest(tt.method, "/", nil)
			req = req.WithContext(scope.WithScope(req.Context(), testScope))
			c := e.NewContext(req, httptest.NewRecorder())

			h := InvalidateOnWrite(svc)(func(c echo.Context) error {
				if tt.err != nil {
					return tt.err
				}
				return c.NoContent(tt.status)
			})
			assert.Equal(t, tt.err, h(c))
			assert.Equal(t, !tt.dropped, mr.Exists("bloodbank:dashboard:hosp-1"))
		})
	}
}

func TestInvalidateOnWrite_OtherHospitalUntouched(t *testing.T) {
	svc, _, mr := newTestService(t)
	other := testScope
	other.HospitalID = "hosp-2"
	_, err := svc.Dashboard(context.Background(), other, false)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(scope.WithScope(req.Context(), testScope))
	c := e.NewContext(req, httptest.NewRecorder())
	require.NoError(t, InvalidateOnWrite(svc)(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})(c))

	assert.True(t, mr.Exists("bloodbank:dashboard:hosp-2"))
}

func TestHandler_GetDashboard(t *testing.T) {
	svc, _, _ := newTestService(t)
	h, e := NewHandler(svc), echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?refresh=yes", nil)
	req = req.WithContext(scope.WithScope(req.Context(), testScope))
	c := e.NewContext(req, httptest.NewRecorder())
	err := h.GetDashboard(c)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)

	req = httptest.NewRequest(http.MethodGet, "/?refresh=true", nil)
	req = req.WithContext(scope.WithScope(req.Context(), testScope))
	rec := httptest.NewRecorder()
	require.NoError(t, h.GetDashboard(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unfulfilled_patients":2`)
}
