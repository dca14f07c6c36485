package proctor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// MotionDetector returns a suspicion verdict for the session's camera feed.
type MotionDetector interface {
	Suspicious(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// MotionFunc adapts a function to MotionDetector.
type MotionFunc func(ctx context.Context, sessionID uuid.UUID) (bool, error)

func (f MotionFunc) Suspicious(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return f(ctx, sessionID)
}

// RandomMotionDetector flags a check as suspicious with a fixed probability.
// It stands in for a real vision model.
type RandomMotionDetector struct {
	mu          sync.Mutex
	rng         *rand.Rand
	probability float64
}

func NewRandomMotionDetector(probability float64, seed uint64) *RandomMotionDetector {
	return &RandomMotionDetector{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		probability: probability,
	}
}

func (d *RandomMotionDetector) Suspicious(context.Context, uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() < d.probability, nil
}

// EventSource delivers raw signals from the exam client.
type EventSource interface {
	Signals() <-chan Signal
}

// errSourceClosed is returned by ChannelSource.Emit after Close.
var errSourceClosed = errors.New("event source closed")

// ChannelSource is an in-process EventSource fed by a transport handler.
type ChannelSource struct {
	mu     sync.RWMutex
	ch     chan Signal
	closed bool
}

func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan Signal, buffer)}
}

func (c *ChannelSource) Signals() <-chan Signal { return c.ch }

// Emit queues a signal, blocking until it is accepted or ctx ends.
func (c *ChannelSource) Emit(ctx context.Context, s Signal) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errSourceClosed
	}
	select {
	case c.ch <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. Safe to call more than once.
func (c *ChannelSource) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// violationSink is the escalation entry point a detector reports into.
type violationSink func(ctx context.Context, t model.ViolationType, description string) (*model.Warning, Outcome, error)

// Detector turns signals and periodic motion checks into violations for one
// session. It keeps no counters; admission is decided by the sink.
type Detector struct {
	sessionID uuid.UUID
	motion    MotionDetector
	interval  time.Duration
	sink      violationSink
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once
	wg     sync.WaitGroup
}

func newDetector(sessionID uuid.UUID, motion MotionDetector, interval time.Duration, sink violationSink, log zerolog.Logger) *Detector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Detector{
		sessionID: sessionID,
		motion:    motion,
		interval:  interval,
		sink:      sink,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the periodic motion check, if a detector is configured.
func (d *Detector) Start() {
	d.start.Do(func() {
		if d.motion == nil || d.interval <= 0 {
			return
		}
		d.wg.Add(1)
		go d.motionLoop()
	})
}

func (d *Detector) motionLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			suspicious, err := d.motion.Suspicious(d.ctx, d.sessionID)
			if err != nil {
				d.log.Warn().Err(err).Msg("Motion check failed")
				continue
			}
			if suspicious {
				d.report(model.ViolationMotionDetected, Describe(model.ViolationMotionDetected))
			}
		}
	}
}

// Attach subscribes the detector to src until the source closes or the
// detector stops.
func (d *Detector) Attach(src EventSource) {
	if d.ctx.Err() != nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		signals := src.Signals()
		for {
			select {
			case <-d.ctx.Done():
				return
			case s, ok := <-signals:
				if !ok {
					return
				}
				d.Observe(s)
			}
		}
	}()
}

// Observe classifies one signal and forwards it to escalation.
func (d *Detector) Observe(s Signal) Outcome {
	vt, ok := Classify(s)
	if !ok {
		d.log.Debug().Str("kind", string(s.Kind)).Msg("Ignoring unknown signal")
		return OutcomeIgnored
	}
	desc := s.Description
	if desc == "" {
		desc = Describe(vt)
	}
	return d.report(vt, desc)
}

func (d *Detector) report(vt model.ViolationType, desc string) Outcome {
	_, outcome, err := d.sink(context.Background(), vt, desc)
	if err != nil {
		if !errors.Is(err, ErrSessionNotActive) {
			d.log.Warn().Err(err).Str("type", string(vt)).Msg("Violation rejected")
		}
		return OutcomeIgnored
	}
	return outcome
}

// Stop cancels the motion loop and detaches all sources without waiting.
func (d *Detector) Stop() { d.cancel() }

// Wait blocks until every detector goroutine has exited.
func (d *Detector) Wait() { d.wg.Wait() }
