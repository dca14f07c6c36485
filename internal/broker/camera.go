package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// releaseScript deletes the lease only if it still belongs to the holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCamera leases a session's camera with SETNX so a second client of the
// same attempt is denied while the first holds it.
type RedisCamera struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ proctor.Camera = (*RedisCamera)(nil)

func NewRedisCamera(rdb *redis.Client, ttl time.Duration) *RedisCamera {
	return &RedisCamera{rdb: rdb, ttl: ttl}
}

func (c *RedisCamera) Acquire(ctx context.Context, req proctor.CameraRequest) (proctor.CameraLease, error) {
	if !req.DeviceReady {
		return nil, fmt.Errorf("%w: device not ready", proctor.ErrCameraUnavailable)
	}

	key := config.CacheKey.SessionCameraKey(req.SessionID.String())
	token := req.StudentID.String()

	ok, err := c.rdb.SetNX(ctx, key, token, c.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", proctor.ErrCameraUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: camera already in use", proctor.ErrCameraUnavailable)
	}
	return &redisLease{rdb: c.rdb, key: key, token: token}, nil
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
