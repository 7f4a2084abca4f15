package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DROPS_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "drops", cfg.DBName)
	assert.Equal(t, 2*time.Minute, cfg.DrawLockExpiry)
	assert.Equal(t, 2, cfg.DrawLockTries)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Cache.MethodSet()["GET"])
	assert.False(t, cfg.AutoDraw)
	assert.True(t, cfg.DevMode())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("DROPS_JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("DROPS_JWT_SECRET"))

	_, err := Load()
	assert.Error(t, err)
}

func TestRateLimitNormalize(t *testing.T) {
	t.Setenv("DROPS_JWT_SECRET", "s3cret")
	t.Setenv("DROPS_RATE_LIMIT_CAPACITY", "0")
	t.Setenv("DROPS_RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("DROPS_RATE_LIMIT_TTL", "1m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.RateLimit.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.TTL)
}
