package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const drainPoll = 100 * time.Millisecond

// Holder is a worker that may keep dequeued records in memory before writing them.
type Holder interface {
	Held() int
}

// WaitDrained blocks until every queue is empty and no worker holds unwritten
// records, or until timeout elapses. The backlog must read zero on two
// consecutive polls so a record between BLPOP and the buffer is not missed.
func WaitDrained(ctx context.Context, rdb *redis.Client, queues []string, timeout time.Duration, workers ...Holder) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	var (
		clean   int
		pending int64 = -1
		readErr error
	)
	for {
		n, err := backlog(ctx, rdb, queues, workers)
		switch {
		case err != nil:
			readErr = err
			clean = 0
		case n == 0:
			clean++
			if clean >= 2 {
				return nil
			}
		default:
			clean = 0
		}
		if err == nil {
			pending = n
		}

		select {
		case <-ctx.Done():
			if pending < 0 {
				return fmt.Errorf("read queue depth: %w", readErr)
			}
			return fmt.Errorf("%d records still pending: %w", pending, ctx.Err())
		case <-ticker.C:
		}
	}
}

func backlog(ctx context.Context, rdb *redis.Client, queues []string, workers []Holder) (int64, error) {
	pipe := rdb.Pipeline()
	lens := make([]*redis.IntCmd, len(queues))
	for i, q := range queues {
		lens[i] = pipe.LLen(ctx, q)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	var total int64
	for _, l := range lens {
		total += l.Val()
	}
	for _, w := range workers {
		total += int64(w.Held())
	}
	return total, nil
}
