package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/broker"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
	RetryDelay   = 2 * time.Second
)

// Sink writes queued records to the database. WriteBatch is the fast path;
// Write is the row-by-row recovery path and must be idempotent.
type Sink[T any] interface {
	WriteBatch(ctx context.Context, items []T) error
	Write(ctx context.Context, item T) error
}

// QueueWorker drains one persistence queue into a Sink in batches.
type QueueWorker[T any] struct {
	queue       string
	rdb         *redis.Client
	sink        Sink[T]
	maxAttempts int
	log         zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	retryDelay   time.Duration

	// held counts records popped from Redis but not yet written or requeued.
	held atomic.Int64
}

// NewQueueWorker builds a worker. Records failing maxAttempts writes are dropped.
func NewQueueWorker[T any](component, queue string, rdb *redis.Client, sink Sink[T], maxAttempts int, log zerolog.Logger) *QueueWorker[T] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &QueueWorker[T]{
		queue:        queue,
		rdb:          rdb,
		sink:         sink,
		maxAttempts:  maxAttempts,
		log:          log.With().Str("component", component).Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		retryDelay:   RetryDelay,
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *QueueWorker[T]) Start(ctx context.Context) {
	w.log.Info().Str("queue", w.queue).Msg("Worker started")

	buffer := make([]broker.Envelope[T], 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				w.held.Add(-int64(len(buffer)))
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}
		w.held.Add(1)

		var env broker.Envelope[T]
		if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
			// Malformed JSON cannot be retried.
			w.held.Add(-1)
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, env)
	}
}

// Held reports how many records the worker has dequeued but not yet settled.
func (w *QueueWorker[T]) Held() int {
	return int(w.held.Load())
}

// flushSafe attempts the bulk write, then row-by-row recovery, then requeue.
func (w *QueueWorker[T]) flushSafe(ctx context.Context, batch []broker.Envelope[T]) {
	if len(batch) == 0 {
		return
	}

	items := make([]T, len(batch))
	for i := range batch {
		items[i] = batch[i].Data
	}

	err := w.sink.WriteBatch(ctx, items)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk write failed, attempting row-by-row recovery")

	failed := make([]broker.Envelope[T], 0)
	for _, env := range batch {
		if err := w.sink.Write(ctx, env.Data); err != nil {
			w.log.Error().Err(err).Int("attempts", env.Attempts).Msg("Write failed, requeueing")
			failed = append(failed, env)
		}
	}

	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *QueueWorker[T]) requeue(ctx context.Context, items []broker.Envelope[T]) {
	pipe := w.rdb.Pipeline()
	queued := 0
	for _, env := range items {
		env.Attempts++
		if env.Attempts >= w.maxAttempts {
			w.log.Error().Int("attempts", env.Attempts).Msg("Dropping record after max attempts")
			continue
		}
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, w.queue, data)
		queued++
	}
	if queued == 0 {
		return
	}

	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", queued).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	sleepCtx(ctx, w.retryDelay)
}

func (w *QueueWorker[T]) shutdown(buffer []broker.Envelope[T]) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w.flushSafe(shutdownCtx, buffer)
	w.held.Add(-int64(len(buffer)))
	w.log.Info().Msg("Worker stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
