package booking

import (
	"context"
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
	g := api.Group("/bookings", auth.RequireRole(auth.RoleFrontDesk, auth.RoleBloodBankAdmin))
	g.POST("", h.CreateBooking)
	g.GET("", h.ListBookings)
	g.GET("/tokens", h.ListTokens)
	g.GET("/:id", h.GetBooking)
	g.POST("/:id/confirm", h.ConfirmBooking)
	g.POST("/:id/arrive", h.MarkArrived)
	g.POST("/:id/reject", h.RejectBooking)
	g.POST("/:id/complete", h.CompleteBooking)
	g.POST("/:id/cancel", h.CancelBooking)
	g.PUT("/:id/reschedule", h.RescheduleBooking)
}

type createRequest struct {
	DonorID     *string `json:"donor_id"`
	DonorName   string  `json:"donor_name"`
	PatientName *string `json:"patient_name"`
	PatientMRID *string `json:"patient_mrid"`
	BloodGroup  string  `json:"blood_group"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperrors.Validation("date is required")
	}
	d, err := time.Parse(query.DateLayout, raw)
	if err != nil {
		return time.Time{}, apperrors.Validation("date must be YYYY-MM-DD")
	}
	return d, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) CreateBooking(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}
	b := &Booking{
		DonorID:     req.DonorID,
		DonorName:   req.DonorName,
		PatientName: req.PatientName,
		PatientMRID: req.PatientMRID,
		BloodGroup:  req.BloodGroup,
		Date:        date,
		Time:        req.Time,
	}
	if err := h.svc.Create(c.Request().Context(), sc, b); err != nil {
		return err
	}
	return response.Message(c, http.StatusCreated, "booking created", b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.Get(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, b)
}

func (h *Handler) ListBookings(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	p, err := query.ParamsFromContext(c, sc.HospitalID)
	if err != nil {
		return err
	}
	if donor := c.QueryParam("donor_id"); donor != "" {
		p.Extra = map[string]interface{}{"donor_id": donor}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), sc, p, pg)
	if err != nil {
		return err
	}
	return response.List(c, http.StatusOK, items, pg.NewMeta(total))
}

func (h *Handler) ListTokens(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	date := time.Now().UTC()
	if raw := c.QueryParam("date"); raw != "" {
		if date, err = parseDate(raw); err != nil {
			return err
		}
	}
	items, err := h.svc.Tokens(c.Request().Context(), sc, date)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, items)
}

func (h *Handler) ConfirmBooking(c echo.Context) error {
	return h.apply(c, "booking confirmed", h.svc.Confirm)
}

func (h *Handler) MarkArrived(c echo.Context) error {
	return h.apply(c, "donor arrival recorded", h.svc.MarkArrived)
}

func (h *Handler) CompleteBooking(c echo.Context) error {
	return h.apply(c, "booking completed", h.svc.Complete)
}

func (h *Handler) CancelBooking(c echo.Context) error {
	return h.apply(c, "booking cancelled", h.svc.Cancel)
}

func (h *Handler) RejectBooking(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return h.apply(c, "booking rejected", func(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Booking, error) {
		return h.svc.Reject(ctx, sc, id, req.Reason)
	})
}

func (h *Handler) RescheduleBooking(c echo.Context) error {
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}
	return h.apply(c, "booking rescheduled", func(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Booking, error) {
		return h.svc.Reschedule(ctx, sc, id, date, req.Time)
	})
}

func (h *Handler) apply(c echo.Context, msg string, op func(context.Context, scope.Scope, uuid.UUID) (*Booking, error)) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := op(c.Request().Context(), sc, id)
	if err != nil {
		return err
	}
	return response.Message(c, http.StatusOK, msg, b)
}
