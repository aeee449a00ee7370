package permission

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
	api.POST("/permissions", h.Request)
	api.POST("/permissions/:id/respond", h.Respond)
	api.GET("/permissions/:id", h.Get)
	api.GET("/permissions", h.List)
}

type requestAccessRequest struct {
	PatientCode      string    `json:"patient_code"`
	ProfessionalCode string    `json:"professional_code"`
	Sections         []Section `json:"sections"`
	MaxConsultations int       `json:"max_consultations"`
}

func (h *Handler) Request(c echo.Context) error {
	var req requestAccessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.svc.Request(c.Request().Context(), req.PatientCode, req.ProfessionalCode, req.Sections, req.MaxConsultations)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

type respondRequest struct {
	Approve         bool      `json:"approve"`
	AllowedSections []Section `json:"allowed_sections"`
}

func (h *Handler) Respond(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid permission id")
	}
	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.svc.Respond(c.Request().Context(), id, req.Approve, req.AllowedSections)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid permission id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	page := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		ps  []*Permission
		err error
	)
	switch {
	case c.QueryParam("patient_code") != "":
		ps, err = h.svc.ListByPatient(ctx, c.QueryParam("patient_code"), page)
	case c.QueryParam("professional_code") != "":
		ps, err = h.svc.ListByProfessional(ctx, c.QueryParam("professional_code"), page)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "patient_code or professional_code query parameter is required")
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   ps,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func httpError(err error) error {
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case apperr.InvalidCode, apperr.ExpiredCode:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case apperr.InvalidStateTransition, apperr.QuotaExhausted:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
