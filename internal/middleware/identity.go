package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user id, if any.
func UserID(c echo.Context) (string, bool) {
	s, ok := c.Get(ctxUserID).(string)
	return s, ok && s != ""
}

// Role returns the role claim of the authenticated user.
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}

// userKey identifies the caller in cache and rate limit keys. Anonymous
// callers share "anon".
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return id
	}
	return "anon"
}
