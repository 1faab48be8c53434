package analytics

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analytics", auth.RequireRole(auth.RoleBloodBankAdmin, auth.RoleStoreManager))
	g.GET("/dashboard", h.GetDashboard)
}

func (h *Handler) GetDashboard(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	refresh := false
	if raw := c.QueryParam("refresh"); raw != "" {
		if refresh, err = strconv.ParseBool(raw); err != nil {
			return apperrors.Validation("refresh must be true or false")
		}
	}
	d, err := h.svc.Dashboard(c.Request().Context(), sc, refresh)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, d)
}
