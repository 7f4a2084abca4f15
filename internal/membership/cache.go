// Package membership caches answers from the identity service's
// membership table in Redis.
package membership

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Lookup answers whether a user holds an active membership.
type Lookup interface {
	HasActiveMembership(ctx context.Context, userID string) (bool, error)
}

// CachedLookup is a read-through cache in front of another Lookup. Redis
// failures fall through to the backing lookup.
type CachedLookup struct {
	next   Lookup
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedLookup wraps next. A nil client disables caching.
func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration) *CachedLookup {
	return &CachedLookup{next: next, client: client, ttl: ttl, prefix: "membership:"}
}

func (c *CachedLookup) HasActiveMembership(ctx context.Context, userID string) (bool, error) {
	if c.client == nil {
		return c.next.HasActiveMembership(ctx, userID)
	}
	key := c.prefix + userID

	v, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return v == "1", nil
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("evt.name", "membership.cache").Msg("cache read failed")
	}

	active, err := c.next.HasActiveMembership(ctx, userID)
	if err != nil {
		return false, err
	}
	val := "0"
	if active {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("evt.name", "membership.cache").Msg("cache write failed")
	}
	return active, nil
}

// Invalidate drops the cached answer for userID.
func (c *CachedLookup) Invalidate(ctx context.Context, userID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.prefix+userID).Err()
}
