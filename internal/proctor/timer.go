package proctor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Timer counts a session down in whole seconds, one second per tick.
// onExpire runs at most once, when the count reaches zero before Cancel.
type Timer struct {
	remaining atomic.Int64
	tick      time.Duration
	onExpire  func()

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once
	done   chan struct{}
}

// NewTimer builds a stopped countdown. Partial seconds are rounded up.
func NewTimer(duration, tick time.Duration, onExpire func()) *Timer {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Timer{
		tick:     tick,
		onExpire: onExpire,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	secs := int64(duration / time.Second)
	if duration%time.Second > 0 {
		secs++
	}
	if secs < 0 {
		secs = 0
	}
	t.remaining.Store(secs)
	return t
}

// Start launches the countdown goroutine. Later calls are no-ops.
func (t *Timer) Start() {
	t.start.Do(func() { go t.run() })
}

func (t *Timer) run() {
	defer close(t.done)

	if t.remaining.Load() <= 0 {
		t.expire()
		return
	}

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if t.remaining.Add(-1) <= 0 {
				t.expire()
				return
			}
		}
	}
}

func (t *Timer) expire() {
	if t.ctx.Err() != nil {
		return
	}
	t.onExpire()
}

// Cancel stops the countdown without firing. Safe from any goroutine,
// including from inside onExpire.
func (t *Timer) Cancel() { t.cancel() }

// Remaining returns the seconds left, never negative.
func (t *Timer) Remaining() int {
	if r := t.remaining.Load(); r > 0 {
		return int(r)
	}
	return 0
}

// Done is closed when the countdown goroutine exits. It never closes for a
// timer that was not started.
func (t *Timer) Done() <-chan struct{} { return t.done }
