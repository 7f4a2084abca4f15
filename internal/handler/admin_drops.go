package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/service"
)

// CachePurger drops cached public responses after a write.
type CachePurger interface {
	Purge(ctx context.Context) error
}

// MembershipCache forgets a cached membership answer.
type MembershipCache interface {
	Invalidate(ctx context.Context, userID string) error
}

// AdminHandler serves operator and order-system endpoints. Every route
// requires the ADMIN role.
type AdminHandler struct {
	Drops    *service.DropService
	Draws    *service.DrawService
	Notifier *service.NotificationService
	Cache    CachePurger
	Members  MembershipCache
}

func NewAdminHandler(drops *service.DropService, draws *service.DrawService, notify *service.NotificationService, cache CachePurger, members MembershipCache) *AdminHandler {
	if drops == nil || draws == nil || notify == nil || members == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Drops: drops, Draws: draws, Notifier: notify, Cache: cache, Members: members}
}

// CreateDrop handles POST /v1/admin/drops.
func (h *AdminHandler) CreateDrop(c echo.Context) error {
	var in service.CreateDropInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	d, err := h.Drops.CreateDrop(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, d)
}

// RunDraw handles POST /v1/admin/drops/:id/draw.
func (h *AdminHandler) RunDraw(c echo.Context) error {
	sum, err := h.Draws.RunDrawSelection(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, sum)
}

// Notify handles POST /v1/admin/drops/:id/notify.
func (h *AdminHandler) Notify(c echo.Context) error {
	n, err := h.Notifier.DispatchLiveNotifications(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"queued": n})
}

// Stats handles GET /v1/admin/stats.
func (h *AdminHandler) Stats(c echo.Context) error {
	st, err := h.Drops.GetStats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// InvalidateMembership handles DELETE /v1/admin/members/:id/cache. The
// identity service calls it after changing a membership so early-access
// checks stop using the cached answer.
func (h *AdminHandler) InvalidateMembership(c echo.Context) error {
	if err := h.Members.Invalidate(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, apperr.Storage(err))
	}
	return c.NoContent(http.StatusNoContent)
}

type purchaseRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CommitPurchase handles POST /v1/admin/drops/:id/purchases for
// first-come drops. Quantity defaults to 1.
func (h *AdminHandler) CommitPurchase(c echo.Context) error {
	var body purchaseRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.ProductID == "" {
		return badRequest(c, "product_id is required")
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	a, err := h.Drops.CommitPurchase(c.Request().Context(), c.Param("id"), body.ProductID, body.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, a)
}

type markPurchasedRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

// MarkPurchased handles POST /v1/admin/drops/:id/entries/purchased.
func (h *AdminHandler) MarkPurchased(c echo.Context) error {
	var body markPurchasedRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.UserID == "" || body.ProductID == "" {
		return badRequest(c, "user_id and product_id are required")
	}
	e, err := h.Draws.MarkPurchased(c.Request().Context(), body.UserID, c.Param("id"), body.ProductID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *AdminHandler) purge(c echo.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Purge(c.Request().Context()); err != nil {
		log.Warn().Err(err).Str("evt.name", "http.cache").Msg("cache purge failed")
	}
}
