package audit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
	"github.com/bloodbank/bloodbank/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit-events", h.ListEvents, auth.RequireRole(auth.RoleBloodBankAdmin, auth.RoleStoreManager))
}

func (h *Handler) ListEvents(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	f := Filter{
		EntityType: c.QueryParam("entity_type"),
		Action:     c.QueryParam("action"),
		Search:     c.QueryParam("search"),
	}
	if raw := c.QueryParam("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.Validation("invalid entity_id")
		}
		f.EntityID = &id
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), sc, f, pg)
	if err != nil {
		return err
	}
	return response.List(c, http.StatusOK, items, pg.NewMeta(total))
}
