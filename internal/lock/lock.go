// Package lock provides the per-key mutual exclusion used to keep one
// selection pass per drop running at a time.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/pkg/errors"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNotAcquired is returned when the lock is held elsewhere.
var ErrNotAcquired = errors.New("lock not acquired")

// RedisLocker is a distributed per-key lock backed by redsync.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

// NewRedisLocker builds a RedisLocker on top of client. expiry bounds how
// long a crashed holder can block others.
func NewRedisLocker(client *goredislib.Client, expiry time.Duration, tries int) *RedisLocker {
	if tries < 1 {
		tries = 1
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
		tries:  tries,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	m := l.rs.NewMutex("mutex:"+key, redsync.WithExpiry(l.expiry), redsync.WithTries(l.tries))
	if err := m.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, errors.Wrap(ErrNotAcquired, err.Error())
		}
		return nil, errors.Wrapf(err, "acquire %s", key)
	}
	return func() {
		if _, err := m.UnlockContext(context.Background()); err != nil {
			log.Warn().Err(err).Str("evt.name", "lock.release").Str("key", key).Msg("failed to release lock")
		}
	}, nil
}

// LocalLocker is an in-process lock for single-instance deployments and
// tests. Acquire fails fast instead of waiting.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, ErrNotAcquired
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
