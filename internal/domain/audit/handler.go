package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/internal/platform/apperr"
	"github.com/caregate/caregate/internal/platform/auth"
	"github.com/caregate/caregate/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit/report", h.GenerateReport)
}

// RegisterAdminRoutes mounts alert management; the caller wraps the group
// with the admin role guard.
func (h *Handler) RegisterAdminRoutes(admin *echo.Group) {
	admin.GET("/audit/alerts", h.ListAlerts)
	admin.POST("/audit/alerts/:id/acknowledge", h.AcknowledgeAlert)
}

func (h *Handler) GenerateReport(c echo.Context) error {
	subject := c.QueryParam("subject")
	if subject == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject query parameter is required")
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if raw := c.QueryParam("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
		}
	}
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC3339")
		}
	}
	if !from.Before(to) {
		return echo.NewHTTPError(http.StatusBadRequest, "from must precede to")
	}

	report, err := h.svc.GenerateReport(c.Request().Context(), subject, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	page := pagination.FromContext(c)
	alerts, err := h.svc.ListAlerts(c.Request().Context(), page)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   alerts,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *Handler) AcknowledgeAlert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}

	actor := auth.UserIDFromContext(c.Request().Context())
	if actor == "" {
		actor = "admin"
	}

	a, err := h.svc.AcknowledgeAlert(c.Request().Context(), id, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func httpError(err error) error {
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
