package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/limited-drops/internal/service"
)

// CustomerHandler serves draw entries, results and go-live subscriptions
// to authenticated users.
type CustomerHandler struct {
	Drops    *service.DropService
	Draws    *service.DrawService
	Notifier *service.NotificationService
}

func NewCustomerHandler(drops *service.DropService, draws *service.DrawService, notify *service.NotificationService) *CustomerHandler {
	if drops == nil || draws == nil || notify == nil {
		panic("nil service passed to NewCustomerHandler")
	}
	return &CustomerHandler{Drops: drops, Draws: draws, Notifier: notify}
}

type enterDrawRequest struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
}

// EnterDraw handles POST /v1/drops/:id/entries. The caller must currently
// have access to the drop; a denial is answered with 403 and its reason.
func (h *CustomerHandler) EnterDraw(c echo.Context) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	var body enterDrawRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	body.ProductID = strings.TrimSpace(body.ProductID)
	if body.ProductID == "" {
		return badRequest(c, "product_id is required")
	}

	ctx := c.Request().Context()
	dropID := c.Param("id")
	access, err := h.Drops.EvaluateAccess(ctx, dropID, userID)
	if err != nil {
		return respondError(c, err)
	}
	if !access.Granted {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "ACCESS_DENIED", "message": access.Reason})
	}

	entry, err := h.Draws.EnterDraw(ctx, userID, dropID, body.ProductID, body.VariantID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// ListEntries handles GET /v1/me/entries.
func (h *CustomerHandler) ListEntries(c echo.Context) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	entries, err := h.Draws.ListUserEntries(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": entries})
}

// Result handles GET /v1/drops/:id/result. Users without an entry get
// {"entered": false}.
func (h *CustomerHandler) Result(c echo.Context) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	res, err := h.Draws.GetDrawResult(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if res == nil {
		return c.JSON(http.StatusOK, echo.Map{"entered": false})
	}
	return c.JSON(http.StatusOK, res)
}

// Subscribe handles POST /v1/drops/:id/subscription.
func (h *CustomerHandler) Subscribe(c echo.Context) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	if err := h.Notifier.SubscribeNotification(c.Request().Context(), userID, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"subscribed": true})
}

// SubscriptionStatus handles GET /v1/drops/:id/subscription.
func (h *CustomerHandler) SubscriptionStatus(c echo.Context) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	subscribed, err := h.Notifier.IsSubscribed(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"subscribed": subscribed})
}

// Unsubscribe handles DELETE /v1/drops/:id/subscription.
func (h *CustomerHandler) Unsubscribe(c echo.Context) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	if err := h.Notifier.UnsubscribeNotification(c.Request().Context(), userID, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
