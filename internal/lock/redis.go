package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker leases keys in Redis. The lease expires after ttl even if the
// holder dies without releasing it; long runs call Refresh to keep it.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

func (r *RedisLocker) Acquire(ctx context.Context, tenantID, resource string) (*Lock, error) {
	key := Key(tenantID, resource)
	l, err := r.client.Obtain(ctx, key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Lock{
		key: key,
		release: func(ctx context.Context) error {
			err := l.Release(ctx)
			if errors.Is(err, redislock.ErrLockNotHeld) {
				// lease expired; nothing left to free
				return nil
			}
			return err
		},
		refresh: func(ctx context.Context) error {
			err := l.Refresh(ctx, r.ttl, nil)
			if errors.Is(err, redislock.ErrNotObtained) {
				return ErrNotHeld
			}
			return err
		},
	}, nil
}

func (r *RedisLocker) Release(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	return l.releaseOnce(ctx)
}

func (r *RedisLocker) Refresh(ctx context.Context, l *Lock) error {
	return l.refreshLease(ctx)
}
