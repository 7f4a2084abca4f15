package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/limited-drops/internal/middleware"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/service"
)

// PublicHandler serves drop browsing to anonymous and signed-in callers.
type PublicHandler struct {
	Drops *service.DropService
}

func NewPublicHandler(drops *service.DropService) *PublicHandler {
	if drops == nil {
		panic("nil drop service passed to NewPublicHandler")
	}
	return &PublicHandler{Drops: drops}
}

// ListDrops handles GET /v1/drops?status=&type=&upcoming=&limit=.
func (h *PublicHandler) ListDrops(c echo.Context) error {
	var f service.ListDropsFilter
	if s := c.QueryParam("status"); s != "" {
		st := model.DropStatus(s)
		if !st.Valid() {
			return badRequest(c, "invalid status")
		}
		f.Status = &st
	}
	if s := c.QueryParam("type"); s != "" {
		t := model.DropType(s)
		if !t.Valid() {
			return badRequest(c, "invalid type")
		}
		f.Type = &t
	}
	if s := c.QueryParam("upcoming"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return badRequest(c, "invalid upcoming flag")
		}
		f.UpcomingOnly = b
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return badRequest(c, "invalid limit")
		}
		f.Limit = n
	}

	drops, err := h.Drops.ListDrops(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": drops})
}

// Calendar handles GET /v1/drops/calendar?days=N (default 30).
func (h *PublicHandler) Calendar(c echo.Context) error {
	days := service.DefaultCalendarDays
	if s := c.QueryParam("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return badRequest(c, "invalid days")
		}
		days = n
	}
	drops, err := h.Drops.GetCalendar(c.Request().Context(), days)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": drops, "days": days})
}

// GetDrop handles GET /v1/drops/:id.
func (h *PublicHandler) GetDrop(c echo.Context) error {
	d, err := h.Drops.GetDrop(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Countdown handles GET /v1/drops/:id/countdown.
func (h *PublicHandler) Countdown(c echo.Context) error {
	res, err := h.Drops.Countdown(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Access handles GET /v1/drops/:id/access. A bearer token is optional;
// without one the caller is treated as a non-member.
func (h *PublicHandler) Access(c echo.Context) error {
	userID, _ := middleware.UserID(c)
	res, err := h.Drops.EvaluateAccess(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
