package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyInFlight = "redemption:inflight:%s"
	lockTTL     = 30 * time.Second
)

// Locker guards an order while its redemption is in flight. It only narrows
// the race window; the persisted claim decides.
type Locker interface {
	Acquire(ctx context.Context, orderRef string) (release func(), acquired bool, err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocker(rdb *redis.Client, logger *zap.Logger) Locker {
	return &redisLocker{rdb: rdb, ttl: lockTTL, logger: logger}
}

func (l *redisLocker) Acquire(ctx context.Context, orderRef string) (func(), bool, error) {
	key := fmt.Sprintf(keyInFlight, orderRef)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("failed to acquire redemption lock: %w", err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release redemption lock", zap.String("order_ref", orderRef), zap.Error(err))
		}
	}
	return release, true, nil
}
