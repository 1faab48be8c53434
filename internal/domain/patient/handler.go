package patient

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/internal/platform/query"
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
	g := api.Group("/patients", auth.RequireRole(auth.RoleFrontDesk, auth.RoleBloodBankAdmin))
	g.POST("", h.RegisterPatient)
	g.GET("", h.ListPatients)
	g.GET("/:id", h.GetPatient)
	g.PUT("/:id", h.UpdatePatient)
	g.DELETE("/:id", h.DeletePatient)
	g.POST("/:id/transfusions", h.RecordTransfusion)
}

type registerRequest struct {
	MRID          string  `json:"mrid"`
	Name          string  `json:"name"`
	BloodGroup    *string `json:"blood_group"`
	Age           *int    `json:"age"`
	Gender        *string `json:"gender"`
	Ward          *string `json:"ward"`
	RequiredUnits int     `json:"required_units"`
}

type transfusionRequest struct {
	Units int `json:"units"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	p := &Patient{
		MRID:          req.MRID,
		Name:          req.Name,
		BloodGroup:    req.BloodGroup,
		Age:           req.Age,
		Gender:        req.Gender,
		Ward:          req.Ward,
		RequiredUnits: req.RequiredUnits,
	}
	if err := h.svc.Register(c.Request().Context(), sc, p); err != nil {
		return err
	}
	return response.Message(c, http.StatusCreated, "patient registered", p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	p, err := query.ParamsFromContext(c, sc.HospitalID)
	if err != nil {
		return err
	}
	if raw := c.QueryParam("fulfilled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.Validation("fulfilled must be true or false")
		}
		p.Extra = map[string]interface{}{"is_fulfilled": v}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), sc, p, pg)
	if err != nil {
		return err
	}
	return response.List(c, http.StatusOK, items, pg.NewMeta(total))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var ch Changes
	if err := c.Bind(&ch); err != nil {
		return apperrors.Validation("invalid request body")
	}
	p, err := h.svc.Update(c.Request().Context(), sc, id, ch)
	if err != nil {
		return err
	}
	return response.Message(c, http.StatusOK, "patient updated", p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), sc, id); err != nil {
		return err
	}
	return response.Message(c, http.StatusOK, "patient deleted", nil)
}

func (h *Handler) RecordTransfusion(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transfusionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	p, err := h.svc.RecordTransfusion(c.Request().Context(), sc, id, req.Units)
	if err != nil {
		return err
	}
	return response.Message(c, http.StatusOK, "transfusion recorded", p)
}
