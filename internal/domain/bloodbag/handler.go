package bloodbag

import (
	"net/http"
	"time"

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
	storeRoles := []string{auth.RoleStoreManager, auth.RoleCentrifugeStaff, auth.RoleStoreStaff, auth.RoleBloodBankAdmin}
	separateRoles := []string{auth.RoleCentrifugeStaff, auth.RoleStoreManager, auth.RoleBloodBankAdmin}

	bags := api.Group("/blood-bags", auth.RequireRole(storeRoles...))
	bags.POST("", h.CreateBag)
	bags.GET("", h.ListBags)
	bags.GET("/:id", h.GetBag)
	bags.GET("/:id/components", h.ListBagComponents)
	bags.PUT("/:id/status", h.UpdateBagStatus, auth.RequireRole(separateRoles...))
	bags.POST("/:id/separate", h.SeparateBag, auth.RequireRole(separateRoles...))

	comps := api.Group("/blood-components", auth.RequireRole(storeRoles...))
	comps.GET("", h.ListComponents)
	comps.GET("/expiring", h.ListExpiringComponents)
	comps.GET("/:id", h.GetComponent)
	comps.PUT("/:id/status", h.UpdateComponentStatus)
}

type createBagRequest struct {
	SerialNumber   string  `json:"serial_number"`
	BloodGroup     string  `json:"blood_group"`
	CollectionDate string  `json:"collection_date"`
	Volume         int     `json:"volume"`
	Status         string  `json:"status"`
	ExpiryDate     string  `json:"expiry_date"`
	DonorID        *string `json:"donor_id"`
	DonorName      *string `json:"donor_name"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type separateRequest struct {
	Components     []ComponentSpec `json:"components"`
	SeparationDate string          `json:"separation_date"`
	Technician     string          `json:"technician"`
	Method         string          `json:"method"`
}

// parseTime accepts a bare date or an RFC 3339 timestamp.
func parseTime(field, raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(query.DateLayout, raw)
	if err != nil {
		return time.Time{}, apperrors.Validation("%s must be YYYY-MM-DD or RFC 3339", field)
	}
	return t, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) CreateBag(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	var req createBagRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	if req.CollectionDate == "" {
		return apperrors.Validation("collection date is required")
	}
	collected, err := parseTime("collection_date", req.CollectionDate)
	if err != nil {
		return err
	}
	b := &Bag{
		SerialNumber:   req.SerialNumber,
		BloodGroup:     req.BloodGroup,
		CollectionDate: collected,
		Volume:         req.Volume,
		Status:         BagStatus(req.Status),
		DonorID:        req.DonorID,
		DonorName:      req.DonorName,
	}
	if req.ExpiryDate != "" {
		if b.ExpiryDate, err = parseTime("expiry_date", req.ExpiryDate); err != nil {
			return err
		}
	}
	if err := h.svc.CreateBag(c.Request().Context(), sc, b); err != nil {
		return err
	}
	return response.Message(c, http.StatusCreated, "blood bag created", b)
}

func (h *Handler) GetBag(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBag(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, b)
}

func (h *Handler) ListBags(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	p, err := query.ParamsFromContext(c, sc.HospitalID)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBags(c.Request().Context(), sc, p, pg)
	if err != nil {
		return err
	}
	return response.List(c, http.StatusOK, items, pg.NewMeta(total))
}

func (h *Handler) UpdateBagStatus(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	b, err := h.svc.UpdateBagStatus(c.Request().Context(), sc, id, BagStatus(req.Status))
	if err != nil {
		return err
	}
	return response.Message(c, http.StatusOK, "blood bag status updated", b)
}

func (h *Handler) SeparateBag(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req separateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	if req.SeparationDate == "" {
		return apperrors.Validation("separation date is required")
	}
	sepDate, err := parseTime("separation_date", req.SeparationDate)
	if err != nil {
		return err
	}
	res, err := h.svc.Separate(c.Request().Context(), sc, id, SeparationRequest{
		Components:     req.Components,
		SeparationDate: sepDate,
		Technician:     req.Technician,
		Method:         req.Method,
	})
	if err != nil {
		return err
	}
	return response.Message(c, http.StatusCreated, "blood bag separated", res)
}

func (h *Handler) ListBagComponents(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ComponentsForBag(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, items)
}

func (h *Handler) ListComponents(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	p, err := query.ParamsFromContext(c, sc.HospitalID)
	if err != nil {
		return err
	}
	extra := map[string]interface{}{}
	if t := c.QueryParam("type"); t != "" {
		extra["type"] = t
	}
	if raw := c.QueryParam("bag_id"); raw != "" {
		bagID, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.Validation("invalid bag_id")
		}
		extra["original_bag_id"] = bagID
	}
	if len(extra) > 0 {
		p.Extra = extra
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListComponents(c.Request().Context(), sc, p, pg)
	if err != nil {
		return err
	}
	return response.List(c, http.StatusOK, items, pg.NewMeta(total))
}

func (h *Handler) ListExpiringComponents(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ExpiringComponents(c.Request().Context(), sc)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, items)
}

func (h *Handler) GetComponent(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	comp, err := h.svc.GetComponent(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, comp)
}

func (h *Handler) UpdateComponentStatus(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	comp, err := h.svc.UpdateComponentStatus(c.Request().Context(), sc, id, ComponentStatus(req.Status))
	if err != nil {
		return err
	}
	return response.Message(c, http.StatusOK, "component status updated", comp)
}
