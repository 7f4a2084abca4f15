package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/limited-drops/internal/config"
)

const secret = "test-secret"

func sign(t *testing.T, key, sub, role string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"user_id": id, "authenticated": ok, "role": Role(c)})
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))
	e.GET("/admin", whoami, JWTAuth(secret), RequireRole(RoleAdmin))

	valid := sign(t, secret, "user-1", "CUSTOMER", time.Now().Add(time.Hour))

	rec := do(e, http.MethodGet, "/me", valid)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"user-1","authenticated":true,"role":"CUSTOMER"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", sign(t, "other", "user-1", "", time.Now().Add(time.Hour))).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", sign(t, secret, "user-1", "", time.Now().Add(-time.Minute))).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me", sign(t, secret, "", "", time.Now().Add(time.Hour))).Code)

	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/admin", valid).Code)
	admin := sign(t, secret, "ops-1", RoleAdmin, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/admin", admin).Code)
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/access", whoami, OptionalJWT(secret))

	rec := do(e, http.MethodGet, "/access", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"","authenticated":false,"role":""}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/access", sign(t, secret, "user-2", "", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user-2"`)

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/access", "garbage").Code)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestTokenBucket(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip_user_route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.POST("/entries", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, NewTokenBucket(cfg, rdb))

	assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/entries", "").Code)
	rec := do(e, http.MethodPost, "/entries", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do(e, http.MethodPost, "/entries", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucketDisabled(t *testing.T) {
	e := echo.New()
	e.POST("/entries", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
		NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/entries", "").Code)
	}
}

func TestResponseCache(t *testing.T) {
	rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{
		Enabled:     true,
		Methods:     []string{"GET"},
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "cache",
	}, rdb)

	calls := 0
	e := echo.New()
	e.GET("/drops/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "calls": calls})
	}, rc.Middleware())

	first := do(e, http.MethodGet, "/drops/a", "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, http.MethodGet, "/drops/a", "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	other := do(e, http.MethodGet, "/drops/b", "")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)

	require.NoError(t, rc.Purge(context.Background()))
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/drops/a", "").Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}
