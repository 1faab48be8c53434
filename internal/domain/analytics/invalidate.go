package analytics

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/platform/scope"
)

// InvalidateOnWrite drops the hospital's dashboard snapshot after every
// successful mutating request, so the next dashboard read reflects the
// write instead of waiting out the TTL. It must run after scope.Middleware.
func InvalidateOnWrite(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil || !mutates(c.Request().Method) || c.Response().Status >= http.StatusBadRequest {
				return err
			}
			sc, ok := scope.FromContext(c.Request().Context())
			if !ok {
				return nil
			}
			// The write is committed; a client disconnect must not skip this.
			svc.Invalidate(context.WithoutCancel(c.Request().Context()), sc.HospitalID)
			return nil
		}
	}
}

func mutates(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
