package consultation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/internal/platform/apperr"
	"github.com/caregate/caregate/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/consultations", h.Start)
	api.POST("/consultations/:id/confirm-payment", h.ConfirmPayment)
	api.POST("/consultations/:id/end", h.End)
	api.GET("/consultations/:id", h.Get)
	api.GET("/earnings", h.ListEarnings)
}

// RegisterAdminRoutes mounts the payout settlement endpoint; the caller
// wraps the group with the admin role guard.
func (h *Handler) RegisterAdminRoutes(admin *echo.Group) {
	admin.POST("/earnings/:id/payout", h.MarkPayoutProcessed)
}

type startRequest struct {
	PermissionID uuid.UUID `json:"permission_id"`
	PatientCode  string    `json:"patient_code"`
}

func (h *Handler) Start(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess, err := h.svc.Start(c.Request().Context(), req.PermissionID, req.PatientCode)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"session_id":        sess.ID,
		"payment_intent_id": sess.PaymentIntentID,
		"fee_amount":        sess.FeeAmount,
		"session":           sess,
	})
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

func (h *Handler) ConfirmPayment(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var req confirmPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess, err := h.svc.ConfirmPayment(c.Request().Context(), req.PaymentIntentID, sessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

type endRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) End(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var req endRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.svc.End(c.Request().Context(), sessionID, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Get(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	sess, err := h.svc.Get(c.Request().Context(), sessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListEarnings(c echo.Context) error {
	code := c.QueryParam("professional_code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "professional_code query parameter is required")
	}
	page := pagination.FromContext(c)

	out, err := h.svc.ListEarnings(c.Request().Context(), code, page)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   out,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *Handler) MarkPayoutProcessed(c echo.Context) error {
	earningsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid earnings id")
	}
	e, err := h.svc.MarkPayoutProcessed(c.Request().Context(), earningsID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func httpError(err error) error {
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case apperr.InvalidCode, apperr.ExpiredCode:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case apperr.UnauthorizedAccess:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case apperr.PaymentFailed:
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case apperr.InvalidStateTransition, apperr.QuotaExhausted, apperr.DuplicateSession:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
