package accesscode

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/access-code", h.IssuePatientCode)
	api.POST("/professionals/:id/code", h.IssueProfessionalCode)
	api.GET("/codes/:code", h.VerifyCode)
}

func (h *Handler) IssuePatientCode(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	code, err := h.svc.IssuePatientCode(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"code":       code.Code,
		"expires_at": code.ExpiresAt,
	})
}

type issueProfessionalCodeRequest struct {
	Profession Profession `json:"profession"`
	Country    string     `json:"country"`
}

func (h *Handler) IssueProfessionalCode(c echo.Context) error {
	professionalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid professional id")
	}
	var req issueProfessionalCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	code, err := h.svc.IssueProfessionalCode(c.Request().Context(), professionalID, req.Profession, req.Country)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, code)
}

func (h *Handler) VerifyCode(c echo.Context) error {
	v, err := h.svc.Verify(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// httpError maps domain error kinds to HTTP statuses.
func httpError(err error) error {
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case apperr.InvalidCode, apperr.ExpiredCode:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
