package runguard

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL outlives a day so a crashed run still blocks until tomorrow.
const DefaultLockTTL = 26 * time.Hour

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Locker backed by SET NX with an expiry.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
	token  string
}

func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	host, _ := os.Hostname()
	return &RedisLock{
		client: client,
		ttl:    ttl,
		token:  host + ":" + strconv.Itoa(os.Getpid()),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string) error {
	ok, err := l.client.SetNX(ctx, key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, key).Result()
		return fmt.Errorf("%w: %s held by %s", ErrLocked, key, holder)
	}
	return nil
}

// Release deletes key only if this lock still owns it.
func (l *RedisLock) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, l.token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
