package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-perfiles/internal/logger"
)

const keyPrefix = "registration_lock:"

const (
	defaultLockTTL       = 10 * time.Second
	defaultRetryInterval = 20 * time.Millisecond
	defaultMaxWait       = 5 * time.Second
)

// releaseScript deletes the lock only when it still carries the owner token,
// so an expired lock taken over by another instance is never released by the
// previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every service instance pointed at the
// same Redis.
type RedisLocker struct {
	Client        *redis.Client
	TTL           time.Duration
	RetryInterval time.Duration
	MaxWait       time.Duration
	Logger        *logger.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		Client:        client,
		TTL:           ttl,
		RetryInterval: defaultRetryInterval,
		MaxWait:       defaultMaxWait,
		Logger:        log,
	}
}

// TryLock makes a single attempt at the lock.
func (r *RedisLocker) TryLock(ctx context.Context, key, token string) (bool, error) {
	return r.Client.SetNX(ctx, keyPrefix+key, token, r.TTL).Result()
}

// IsLocked reports whether key is currently held by anyone.
func (r *RedisLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	_, err := r.Client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Unlock releases key if token still owns it.
func (r *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, r.Client, []string{keyPrefix + key}, token).Err()
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if r.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.MaxWait)
		defer cancel()
	}

	token := uuid.NewString()
	retry := r.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}

	for {
		ok, err := r.TryLock(ctx, key, token)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := r.Unlock(releaseCtx, key, token); err != nil {
					r.Logger.Error("REDIS", fmt.Sprintf("Failed to release lock %s: %v", key, err))
				}
			}, nil
		}

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}
