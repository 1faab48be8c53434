package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleSystemAdmin     = "system_admin"
	RoleBloodBankAdmin  = "bloodbank_admin"
	RoleStoreManager    = "store_manager"
	RoleCentrifugeStaff = "centrifuge_staff"
	RoleStoreStaff      = "store_staff"
	RoleFrontDesk       = "front_desk"
)

var validRoles = map[string]bool{
	RoleSystemAdmin:     true,
	RoleBloodBankAdmin:  true,
	RoleStoreManager:    true,
	RoleCentrifugeStaff: true,
	RoleStoreStaff:      true,
	RoleFrontDesk:       true,
}

func ValidRole(role string) bool { return validRoles[role] }

// RequireRole returns middleware that admits callers holding one of roles.
// System admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if HasRole(p, roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

func HasRole(p Principal, roles ...string) bool {
	if p.Role == RoleSystemAdmin {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
