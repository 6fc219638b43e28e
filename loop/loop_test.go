package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/librescoot/tickfsm"
)

type fakeTarget struct {
	mu     sync.Mutex
	deltas []time.Duration
	err    error
	panic  bool
	log    *[]string
}

func (f *fakeTarget) TickStateMachine(dt time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("target exploded")
	}
	f.deltas = append(f.deltas, dt)
	if f.log != nil {
		*f.log = append(*f.log, "tick")
	}
	return f.err
}

func (f *fakeTarget) ticks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deltas)
}

func TestNewAppliesDefaults(t *testing.T) {
	l := New(Config{}, nil)

	assert.Equal(t, DefaultTickRate, l.cfg.TickRate)
	assert.Equal(t, DefaultQueueSize, l.cfg.QueueSize)
	assert.Zero(t, l.cfg.MaxDelta)
}

func TestStepTicksTargetsInOrder(t *testing.T) {
	var log []string
	a := &fakeTarget{log: &log}
	b := &fakeTarget{log: &log}
	l := New(Config{}, zaptest.NewLogger(t), a)
	l.Add(b)

	require.NoError(t, l.Step(20*time.Millisecond))

	assert.Equal(t, []time.Duration{20 * time.Millisecond}, a.deltas)
	assert.Equal(t, []time.Duration{20 * time.Millisecond}, b.deltas)
	assert.Equal(t, uint64(1), l.TickNumber())
}

func TestPostedWorkRunsBeforeTick(t *testing.T) {
	var log []string
	target := &fakeTarget{log: &log}
	l := New(Config{}, zaptest.NewLogger(t), target)

	require.NoError(t, l.Post(func() error {
		log = append(log, "first")
		return nil
	}))
	require.NoError(t, l.Post(func() error {
		log = append(log, "second")
		return nil
	}))
	require.NoError(t, l.Step(time.Millisecond))
	require.NoError(t, l.Step(time.Millisecond))

	assert.Equal(t, []string{"first", "second", "tick", "tick"}, log)
}

func TestPostQueueFull(t *testing.T) {
	l := New(Config{QueueSize: 1}, zaptest.NewLogger(t))

	require.NoError(t, l.Post(func() error { return nil }))
	assert.ErrorIs(t, l.Post(func() error { return nil }), ErrQueueFull)

	require.NoError(t, l.Step(time.Millisecond))
	assert.NoError(t, l.Post(func() error { return nil }), "queue drains on tick")
}

func TestStepJoinsErrors(t *testing.T) {
	errTarget := errors.New("target failed")
	errWork := errors.New("work failed")
	l := New(Config{}, zaptest.NewLogger(t), &fakeTarget{err: errTarget}, &fakeTarget{})
	require.NoError(t, l.Post(func() error { return errWork }))

	err := l.Step(time.Millisecond)

	assert.ErrorIs(t, err, errTarget)
	assert.ErrorIs(t, err, errWork)
}

func TestStepRecoversPanic(t *testing.T) {
	l := New(Config{}, zaptest.NewLogger(t), &fakeTarget{panic: true})

	err := l.Step(time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "target exploded")
	assert.Equal(t, uint64(1), l.TickNumber())
}

func TestClamp(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(Config{MaxDelta: 50 * time.Millisecond}, zap.New(core))

	assert.Equal(t, 20*time.Millisecond, l.clamp(20*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, l.clamp(time.Second))
	assert.Equal(t, 1, logs.FilterMessageSnippet("Clamping").Len())

	unclamped := New(Config{}, zaptest.NewLogger(t))
	assert.Equal(t, time.Second, unclamped.clamp(time.Second))
}

func TestRunUntilCancelled(t *testing.T) {
	target := &fakeTarget{}
	l := New(Config{TickRate: 5 * time.Millisecond}, zaptest.NewLogger(t), target)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return target.ticks() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunStopOnError(t *testing.T) {
	errTarget := errors.New("target failed")
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(Config{TickRate: time.Millisecond, StopOnError: true}, zap.New(core), &fakeTarget{err: errTarget})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := l.Run(ctx)

	assert.ErrorIs(t, err, errTarget)
	assert.Equal(t, 1, logs.FilterMessage("Tick failed").Len())
}

type counter struct {
	ticks int
	hits  int
}

func (c *counter) ID() tickfsm.StateID { return "counter" }

func (c *counter) Tick(time.Duration) tickfsm.Transition {
	c.ticks++
	return nil
}

func (c *counter) ReceiveEvent(int) tickfsm.Transition {
	c.hits++
	return nil
}

func TestDrivesMachine(t *testing.T) {
	m := tickfsm.NewMachine()
	c := &counter{}
	require.NoError(t, m.RegisterState(c))
	require.NoError(t, m.ChangeState("counter"))

	l := New(Config{}, zaptest.NewLogger(t), m)
	require.NoError(t, l.Post(func() error { return tickfsm.SendEvent(m, 7) }))
	require.NoError(t, l.Step(DefaultTickRate))
	require.NoError(t, l.Step(DefaultTickRate))

	assert.Equal(t, 2, c.ticks)
	assert.Equal(t, 1, c.hits)
}
