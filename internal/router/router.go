// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/limited-drops/internal/handler"
	"github.com/iliyamo/limited-drops/internal/middleware"
)

// RegisterRoutes registers unauthenticated infrastructure routes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the browse endpoints. Reads pass through the
// response cache; the access check accepts an optional bearer token and
// is never cached because its answer depends on the caller.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache *middleware.ResponseCache, jwtSecret string) {
	g := e.Group("/v1/drops")
	g.GET("", p.ListDrops, cache.Middleware())
	g.GET("/calendar", p.Calendar, cache.Middleware())
	g.GET("/:id", p.GetDrop, cache.Middleware())
	g.GET("/:id/countdown", p.Countdown)
	g.GET("/:id/access", p.Access, middleware.OptionalJWT(jwtSecret))
}

// RegisterCustomer registers endpoints for any signed-in user. Entry
// creation is additionally throttled by the token bucket.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.POST("/drops/:id/entries", h.EnterDraw, limiter)
	g.GET("/drops/:id/result", h.Result)
	g.GET("/drops/:id/subscription", h.SubscriptionStatus)
	g.POST("/drops/:id/subscription", h.Subscribe)
	g.DELETE("/drops/:id/subscription", h.Unsubscribe)
	g.GET("/me/entries", h.ListEntries)
}

// RegisterAdmin registers operator endpoints. All routes require the
// ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/drops", a.CreateDrop)
	g.POST("/drops/:id/draw", a.RunDraw)
	g.POST("/drops/:id/notify", a.Notify)
	g.POST("/drops/:id/purchases", a.CommitPurchase)
	g.POST("/drops/:id/entries/purchased", a.MarkPurchased)
	g.GET("/stats", a.Stats)
	g.DELETE("/members/:id/cache", a.InvalidateMembership)
}
