package inventory

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	g := api.Group("/inventory", auth.RequireRole(auth.RoleStoreManager, auth.RoleStoreStaff, auth.RoleBloodBankAdmin))
	g.POST("", h.CreateUnit)
	g.GET("", h.ListUnits)
	g.GET("/expiring", h.ListExpiring)
	g.GET("/:id", h.GetUnit)
	g.POST("/:id/allocate", h.AllocateUnit)
	g.POST("/:id/purchase", h.PurchaseUnits)
	g.POST("/:id/take", h.TakeUnit)
	g.POST("/:id/bill", h.BillUnit)
	g.DELETE("/:id", h.DeleteUnit)
}

type createRequest struct {
	SerialNumber   string  `json:"serial_number"`
	BloodGroup     *string `json:"blood_group"`
	ItemName       *string `json:"item_name"`
	UnitsCount     int     `json:"units_count"`
	CollectionDate string  `json:"collection_date"`
	ExpiryDate     string  `json:"expiry_date"`
}

type purchaseRequest struct {
	Units       int    `json:"units"`
	PatientName string `json:"patient_name"`
}

type takeRequest struct {
	Department string `json:"department"`
	Reason     string `json:"reason"`
}

type billRequest struct {
	PatientName string          `json:"patient_name"`
	Price       decimal.Decimal `json:"price"`
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(query.DateLayout, raw)
	if err != nil {
		return nil, apperrors.Validation("%s must be YYYY-MM-DD or RFC 3339", field)
	}
	return &t, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) CreateUnit(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	u := &Unit{
		SerialNumber: req.SerialNumber,
		BloodGroup:   req.BloodGroup,
		ItemName:     req.ItemName,
		UnitsCount:   req.UnitsCount,
	}
	if u.CollectionDate, err = parseOptionalDate("collection_date", req.CollectionDate); err != nil {
		return err
	}
	if u.ExpiryDate, err = parseOptionalDate("expiry_date", req.ExpiryDate); err != nil {
		return err
	}
	if err := h.svc.Create(c.Request().Context(), sc, u); err != nil {
		return err
	}
	return response.Message(c, http.StatusCreated, "inventory unit created", u)
}

func (h *Handler) GetUnit(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Get(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, u)
}

func (h *Handler) ListUnits(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	p, err := query.ParamsFromContext(c, sc.HospitalID)
	if err != nil {
		return err
	}
	if dept := c.QueryParam("department"); dept != "" {
		p.Extra = map[string]interface{}{"allocated_department": dept}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), sc, p, pg)
	if err != nil {
		return err
	}
	return response.List(c, http.StatusOK, items, pg.NewMeta(total))
}

func (h *Handler) ListExpiring(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ExpiringSoon(c.Request().Context(), sc)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, items)
}

func (h *Handler) DeleteUnit(c echo.Context) error {
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
	return response.Message(c, http.StatusOK, "inventory unit deleted", nil)
}

func (h *Handler) AllocateUnit(c echo.Context) error {
	var req AllocationTarget
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return h.apply(c, "inventory unit allocated", func(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Unit, error) {
		return h.svc.Allocate(ctx, sc, id, req)
	})
}

func (h *Handler) PurchaseUnits(c echo.Context) error {
	var req purchaseRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return h.apply(c, "units purchased", func(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Unit, error) {
		return h.svc.Purchase(ctx, sc, id, req.Units, req.PatientName)
	})
}

func (h *Handler) TakeUnit(c echo.Context) error {
	var req takeRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return h.apply(c, "inventory unit taken", func(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Unit, error) {
		return h.svc.Take(ctx, sc, id, req.Department, req.Reason)
	})
}

func (h *Handler) BillUnit(c echo.Context) error {
	var req billRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return h.apply(c, "inventory unit billed", func(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Unit, error) {
		return h.svc.Bill(ctx, sc, id, req.PatientName, req.Price)
	})
}

func (h *Handler) apply(c echo.Context, msg string, op func(context.Context, scope.Scope, uuid.UUID) (*Unit, error)) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := op(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.Message(c, http.StatusOK, msg, u)
}
