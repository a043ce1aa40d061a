package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shuttle/internal/utils"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker is a TripLocker shared by every instance pointed at the same
// Redis. The TTL bounds how long a crashed holder can block a trip.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	// RetryMin/RetryMax bound the backoff between acquisition attempts.
	RetryMin time.Duration
	RetryMax time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		Client:   client,
		TTL:      ttl,
		Prefix:   "lock:trip:",
		RetryMin: 10 * time.Millisecond,
		RetryMax: 250 * time.Millisecond,
	}
}

func (r *RedisLocker) key(tripID int64) string {
	return fmt.Sprintf("%s%d", r.Prefix, tripID)
}

func (r *RedisLocker) Lock(ctx context.Context, tripID int64) (func(), error) {
	key := r.key(tripID)
	token := uuid.NewString()
	wait := r.RetryMin
	if wait <= 0 {
		wait = 10 * time.Millisecond
	}

	for {
		ok, err := r.Client.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire trip lock %d: %w", tripID, err)
		}
		if ok {
			return r.unlocker(key, token), nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire trip lock %d: %w", tripID, ctx.Err())
		case <-timer.C:
		}
		wait *= 2
		if r.RetryMax > 0 && wait > r.RetryMax {
			wait = r.RetryMax
		}
	}
}

func (r *RedisLocker) unlocker(key, token string) func() {
	return releaseOnce(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.Client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			utils.GetLogger().Warn("release trip lock failed", zap.String("key", key), zap.Error(err))
		}
	})
}
