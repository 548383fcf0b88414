package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("call lock not acquired")
)

// Locker guards the initiate-call critical section per appointment, so two
// parties racing to start the same call only fan out one notification.
type Locker interface {
	WithCallLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisCallLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCallLocker creates a locker that uses a per appointment Redis key
func NewRedisCallLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisCallLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisCallLocker) WithCallLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:call:%s", appointmentID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire call lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisCallLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release call lock: %w", err)
	}
	return nil
}

// StatusCache holds recent room-status payloads so a fleet of 5-second pollers
// does not translate one-for-one into media server API calls.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *StatusCache) Get(ctx context.Context, roomName string) ([]byte, bool) {
	val, err := c.client.Get(ctx, statusKey(roomName)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *StatusCache) Set(ctx context.Context, roomName string, payload []byte) {
	// Best effort; a cache write failure just costs an extra lookup.
	_ = c.client.Set(ctx, statusKey(roomName), payload, c.ttl).Err()
}

func statusKey(roomName string) string {
	return fmt.Sprintf("roomstatus:%s", roomName)
}
