package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultTTL  = 30 * time.Second
	defaultPoll = 50 * time.Millisecond
	keyPrefix   = "techdispatch:lock:"
)

// redisStore is the subset of redis operations the lock needs.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Redis implements Locker with SETNX + TTL so several server replicas
// share one serialization domain.
type Redis struct {
	store redisStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
	log   zerolog.Logger
}

func NewRedis(client *redis.Client, ttl, wait time.Duration, log zerolog.Logger) *Redis {
	return newRedis(clientStore{c: client}, ttl, wait, log)
}

func newRedis(store redisStore, ttl, wait time.Duration, log zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{store: store, ttl: ttl, wait: wait, poll: defaultPoll, log: log}
}

func (l *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, redisKey, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			break
		}
		if l.wait <= 0 || time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-time.After(l.poll):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return func() {
		// release must not be cut short by a cancelled request context
		if err := l.release(context.WithoutCancel(ctx), redisKey, owner); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("lock release failed")
		}
	}, nil
}

// release deletes the key only while owner still holds it.
func (l *Redis) release(ctx context.Context, key, owner string) error {
	value, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := l.store.Del(ctx, key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

type clientStore struct {
	c *redis.Client
}

func (s clientStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return s.c.SetNX(ctx, key, value, ttl).Result()
}

func (s clientStore) Get(ctx context.Context, key string) (string, error) {
	return s.c.Get(ctx, key).Result()
}

func (s clientStore) Del(ctx context.Context, keys ...string) error {
	return s.c.Del(ctx, keys...).Err()
}
