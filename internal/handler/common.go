// Package handler exposes the drop engine over HTTP. Handlers only parse
// requests, call the services and map typed errors to responses.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/middleware"
)

// respondError writes err as {"error": code, "message": text}. Untyped
// errors become 500 and are logged.
func respondError(c echo.Context, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Error().Err(err).Str("evt.name", "http.error").Str("path", c.Path()).Msg("unexpected error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "internal error"})
	}
	if ae.StatusCode >= http.StatusInternalServerError {
		log.Error().Err(err).Str("evt.name", "http.error").Str("path", c.Path()).Msg("request failed")
	}
	body := echo.Map{"error": ae.Code, "message": ae.Message}
	if ae.Extras != nil {
		for k, v := range *ae.Extras {
			body[k] = v
		}
	}
	return c.JSON(ae.StatusCode, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": apperr.CodeValidation, "message": msg})
}

// requireUser returns the authenticated user id or writes 401.
func requireUser(c echo.Context) (string, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return id, ok
}
