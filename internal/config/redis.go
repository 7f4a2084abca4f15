package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection parameters. Addr takes host:port.
type RedisConfig struct {
	Addr     string `default:"localhost:6379"`
	Password string
	DB       int  `default:"0"`
	TLS      bool `default:"false"`
}

// NewRedisClient dials Redis and pings it with a short timeout. It returns
// nil when the server is unreachable; callers then disable the response
// cache and rate limiting and fall back to the in-process draw lock.
func NewRedisClient(c RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      c.Addr,
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
