package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func callWithRole(t *testing.T, role string, allowed ...string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithPrincipal(req.Context(), Principal{ID: "u", Role: role, HospitalID: "h"}))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := RequireRole(allowed...)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return h(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	assert.NoError(t, callWithRole(t, RoleFrontDesk, RoleFrontDesk, RoleBloodBankAdmin))
}

func TestRequireRole_SystemAdminBypass(t *testing.T) {
	assert.NoError(t, callWithRole(t, RoleSystemAdmin, RoleCentrifugeStaff), "system admin passes every role check")
}

func TestRequireRole_Forbidden(t *testing.T) {
	err := callWithRole(t, RoleFrontDesk, RoleCentrifugeStaff, RoleStoreManager)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_NoPrincipal(t *testing.T) {
	err := callWithRole(t, "", RoleFrontDesk)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleSystemAdmin, RoleBloodBankAdmin, RoleStoreManager, RoleCentrifugeStaff, RoleStoreStaff, RoleFrontDesk} {
		assert.True(t, ValidRole(r), r)
	}
	assert.False(t, ValidRole("admin"))
}
