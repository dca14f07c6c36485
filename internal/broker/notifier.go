package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// RedisNotifier publishes notifications to the session's event channel and
// the exam monitor channel.
type RedisNotifier struct {
	rdb     *redis.Client
	timeout time.Duration
	log     zerolog.Logger
}

var _ proctor.Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(rdb *redis.Client, timeout time.Duration, log zerolog.Logger) *RedisNotifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisNotifier{
		rdb:     rdb,
		timeout: timeout,
		log:     log.With().Str("component", "notifier").Logger(),
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, note model.Notification) {
	data, err := json.Marshal(note)
	if err != nil {
		n.log.Error().Err(err).Msg("Failed to marshal notification")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	pipe := n.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.SessionEventsChannel(note.SessionID.String()), data)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(note.ExamID.String()), data)
	if _, err := pipe.Exec(ctx); err != nil {
		n.log.Warn().Err(err).
			Str("session_id", note.SessionID.String()).
			Str("kind", string(note.Kind)).
			Msg("Notification publish failed")
	}
}
