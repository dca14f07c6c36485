// Package broker adapts the proctoring collaborators onto Redis: journal
// queues drained by the persistence workers, notification pub/sub and
// camera leases.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Envelope wraps a queued record with its delivery attempt count.
type Envelope[T any] struct {
	Attempts int `json:"attempts"`
	Data     T   `json:"data"`
}

// RedisJournal pushes journal entries onto the persistence queues.
type RedisJournal struct {
	rdb     *redis.Client
	timeout time.Duration
}

var _ proctor.Journal = (*RedisJournal)(nil)

func NewRedisJournal(rdb *redis.Client, timeout time.Duration) *RedisJournal {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisJournal{rdb: rdb, timeout: timeout}
}

func (j *RedisJournal) SessionSaved(ctx context.Context, s model.ExamSession) error {
	return push(ctx, j, "session", config.WorkerKey.PersistSessionsQueue, s)
}

func (j *RedisJournal) WarningRecorded(ctx context.Context, w model.Warning) error {
	return push(ctx, j, "warning", config.WorkerKey.PersistWarningsQueue, w)
}

func (j *RedisJournal) AnswerRecorded(ctx context.Context, a model.Answer) error {
	return push(ctx, j, "answer", config.WorkerKey.PersistAnswersQueue, a)
}

func (j *RedisJournal) RecordingAppended(ctx context.Context, seg model.RecordingSegment) error {
	return push(ctx, j, "recording", config.WorkerKey.PersistRecordingsQueue, seg)
}

func push[T any](ctx context.Context, j *RedisJournal, op, queue string, v T) error {
	data, err := json.Marshal(Envelope[T]{Data: v})
	if err != nil {
		return &proctor.PersistenceError{Op: op, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.rdb.RPush(ctx, queue, data).Err(); err != nil {
		return &proctor.PersistenceError{Op: op, Err: err}
	}
	return nil
}
