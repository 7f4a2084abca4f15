// Package config loads runtime configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Prefix is prepended to every variable name, e.g. DROPS_DB_HOST.
const Prefix = "drops"

type Config struct {
	// Env names the deployment ("dev", "prod"). Dev mode logs at trace level.
	Env string `default:"dev"`

	// Port is the HTTP port to listen on.
	Port string `default:"8080"`

	DBUser string `split_words:"true" default:"root"`
	DBPass string `split_words:"true"`
	DBHost string `split_words:"true" default:"127.0.0.1"`
	DBPort string `split_words:"true" default:"3306"`
	DBName string `split_words:"true" default:"drops"`

	// EnsureSchema applies the embedded schema on startup.
	EnsureSchema bool `split_words:"true" default:"true"`

	// JWTSecret verifies HS256 bearer tokens issued by the identity service.
	JWTSecret string `split_words:"true" required:"true"`

	// AMQPURL enables the RabbitMQ publisher and the notification consumer.
	// When empty, events are only logged.
	AMQPURL string `envconfig:"AMQP_URL"`

	// NotificationLogPath is where the drop.live consumer writes its lines.
	NotificationLogPath string `split_words:"true" default:"logs/notifications.log"`

	LogPath string `split_words:"true" default:"logs/app.log"`

	// MembershipCacheTTL bounds how stale a cached membership answer may be.
	MembershipCacheTTL time.Duration `split_words:"true" default:"60s"`

	// DrawLockExpiry and DrawLockTries configure the per-drop selection mutex.
	DrawLockExpiry time.Duration `split_words:"true" default:"2m"`
	DrawLockTries  int           `split_words:"true" default:"2"`

	// SweepInterval is how often the status sweeper runs. Zero disables it.
	SweepInterval time.Duration `split_words:"true" default:"30s"`

	// AutoDraw lets the sweeper run selection for DRAW drops whose end time
	// has passed.
	AutoDraw bool `split_words:"true" default:"false"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `split_words:"true" default:"15s"`

	Redis     RedisConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig `split_words:"true"`
}

// DevMode reports whether the service runs in development.
func (c *Config) DevMode() bool { return c.Env == "dev" }

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		_ = envconfig.Usage(Prefix, &cfg)
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	cfg.RateLimit.normalize()
	return &cfg, nil
}
