// Package scope carries the hospital boundary that every core operation
// runs inside. A Scope is passed explicitly to services; it is never read
// from ambient state below the HTTP layer.
package scope

import (
	"context"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
)

const HeaderHospitalID = "X-Hospital-ID"

var hospitalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Scope struct {
	HospitalID string
	ActorID    string
	ActorName  string
	Role       string
}

// Validate rejects a scope with an empty or malformed hospital id.
func (s Scope) Validate() error {
	if s.HospitalID == "" {
		return apperrors.Forbidden("no hospital scope for this request")
	}
	if !hospitalIDPattern.MatchString(s.HospitalID) {
		return apperrors.Forbidden("invalid hospital identifier")
	}
	return nil
}

// Actor returns the name used for audit stamping, falling back to the id.
func (s Scope) Actor() string {
	if s.ActorName != "" {
		return s.ActorName
	}
	return s.ActorID
}

type contextKey string

const scopeKey contextKey = "hospital_scope"

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey).(Scope)
	return s, ok
}

// FromEcho returns the request scope or a Forbidden error when the
// middleware has not populated one.
func FromEcho(c echo.Context) (Scope, error) {
	s, ok := FromContext(c.Request().Context())
	if !ok {
		return Scope{}, apperrors.Forbidden("no hospital scope for this request")
	}
	return s, nil
}

// Middleware derives the Scope from the authenticated principal. Only system
// admins may act on another hospital through the X-Hospital-ID header.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := auth.PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}

			hospitalID := p.HospitalID
			if override := c.Request().Header.Get(HeaderHospitalID); override != "" {
				if p.Role != auth.RoleSystemAdmin {
					return echo.NewHTTPError(http.StatusForbidden, "hospital override requires system_admin")
				}
				hospitalID = override
			}

			s := Scope{HospitalID: hospitalID, ActorID: p.ID, ActorName: p.Name, Role: p.Role}
			if err := s.Validate(); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, err.Error())
			}

			c.SetRequest(c.Request().WithContext(WithScope(c.Request().Context(), s)))
			c.Set("hospital_id", hospitalID)
			return next(c)
		}
	}
}
