// Package loop drives one or more state machines at a fixed tick rate.
//
// A machine is single-threaded; the loop goroutine is its owner. Other
// goroutines hand work to it with Post, which runs the closure on the loop
// goroutine before the next tick.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Target is ticked once per loop iteration. *tickfsm.Machine implements it.
type Target interface {
	TickStateMachine(dt time.Duration) error
}

// ErrQueueFull is returned by Post when the pending work queue is at capacity
var ErrQueueFull = errors.New("loop queue full")

const (
	DefaultTickRate  = 16 * time.Millisecond
	DefaultMaxDelta  = 250 * time.Millisecond
	DefaultQueueSize = 1024
)

// Config configures the loop
type Config struct {
	TickRate    time.Duration // Fixed tick rate (e.g., 16ms for ~60 FPS)
	MaxDelta    time.Duration // Upper bound for the delta passed to targets; 0 disables clamping
	StopOnError bool          // Return from Run on the first failed tick
	QueueSize   int           // Capacity of the Post queue
}

// Loop ticks its targets in registration order
type Loop struct {
	cfg     Config
	logger  *zap.SugaredLogger
	targets []Target

	queue   []func() error
	queueMu sync.Mutex

	tickNum atomic.Uint64
}

// New creates a loop. Zero config fields fall back to the defaults.
func New(cfg Config, logger *zap.Logger, targets ...Target) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.MaxDelta < 0 {
		cfg.MaxDelta = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cfg:     cfg,
		logger:  logger.Sugar().Named("loop"),
		targets: targets,
		queue:   make([]func() error, 0, cfg.QueueSize),
	}
}

// Add registers another target. Not safe to call while Run is active.
func (l *Loop) Add(t Target) {
	l.targets = append(l.targets, t)
}

// Post queues fn to run on the loop goroutine at the start of the next tick.
// Safe for concurrent use.
func (l *Loop) Post(fn func() error) error {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()

	if len(l.queue) >= l.cfg.QueueSize {
		return ErrQueueFull
	}
	l.queue = append(l.queue, fn)
	return nil
}

// TickNumber returns the number of completed ticks
func (l *Loop) TickNumber() uint64 {
	return l.tickNum.Load()
}

// Step runs posted work, then ticks every target once with dt. It returns
// all errors of the tick joined together.
func (l *Loop) Step(dt time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("tick %d panicked: %v", l.tickNum.Load()+1, r))
		}
		l.tickNum.Add(1)
	}()

	var errs []error
	for _, fn := range l.collectPosted() {
		if perr := fn(); perr != nil {
			errs = append(errs, fmt.Errorf("posted work: %w", perr))
		}
	}
	for i, t := range l.targets {
		if terr := t.TickStateMachine(dt); terr != nil {
			errs = append(errs, fmt.Errorf("target %d: %w", i, terr))
		}
	}
	return errors.Join(errs...)
}

// Run ticks until ctx is cancelled. Elapsed wall time between ticks is passed
// as the delta, clamped to MaxDelta.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.TickRate)
	defer ticker.Stop()

	l.logger.Infof("Loop started with tick rate %v and %d targets", l.cfg.TickRate, len(l.targets))
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("Loop stopped after %d ticks", l.tickNum.Load())
			return nil
		case now := <-ticker.C:
			dt := l.clamp(now.Sub(last))
			last = now

			start := time.Now()
			err := l.Step(dt)
			if cycle := time.Since(start); cycle > l.cfg.TickRate {
				l.logger.Warnf("Tick took %v, longer than the tick rate %v", cycle, l.cfg.TickRate)
			}
			if err != nil {
				l.logger.Errorw("Tick failed", "tick", l.tickNum.Load(), "error", err)
				if l.cfg.StopOnError {
					return err
				}
			}
		}
	}
}

func (l *Loop) clamp(dt time.Duration) time.Duration {
	if l.cfg.MaxDelta > 0 && dt > l.cfg.MaxDelta {
		l.logger.Debugf("Clamping tick delta %v to %v", dt, l.cfg.MaxDelta)
		return l.cfg.MaxDelta
	}
	return dt
}

// collectPosted atomically retrieves and clears the work queue
func (l *Loop) collectPosted() []func() error {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()

	if len(l.queue) == 0 {
		return nil
	}
	work := l.queue
	l.queue = make([]func() error, 0, cap(work))
	return work
}
