package events

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/pkg/pagination"
)

// Handler exposes pull-based consumption of the event log.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/events", h.ListEvents)
}

// ListEvents pages through the log with an `after` sequence cursor,
// optionally filtered to one subject code.
func (h *Handler) ListEvents(c echo.Context) error {
	after, _ := strconv.ParseInt(c.QueryParam("after"), 10, 64)
	pg := pagination.FromContext(c)

	var (
		items []*Event
		err   error
	)
	if subject := c.QueryParam("subject"); subject != "" {
		items, err = h.store.ListBySubject(c.Request().Context(), subject, after, pg.Limit)
	} else {
		items, err = h.store.List(c.Request().Context(), after, pg.Limit)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	next := after
	if len(items) > 0 {
		next = items[len(items)-1].Seq
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": items,
		"next": next,
	})
}
