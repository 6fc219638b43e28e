package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/tickfsm"
)

type alarm struct{}

type idle struct{}

func (idle) ID() tickfsm.StateID { return "idle" }

func (idle) Tick(time.Duration) tickfsm.Transition {
	return tickfsm.To("busy")
}

func (idle) ReceiveEvent(alarm) tickfsm.Transition {
	return tickfsm.To("busy", tickfsm.WithOrder(1))
}

type busy struct{}

func (busy) ID() tickfsm.StateID { return "busy" }

func TestCollectorRecordsMachineActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	m := tickfsm.NewMachine(tickfsm.WithObserver(c.Observer("npc")))

	require.NoError(t, m.RegisterState(idle{}))
	require.NoError(t, m.RegisterState(busy{}))
	require.NoError(t, m.ChangeState("idle"))
	require.NoError(t, tickfsm.SendEvent(m, alarm{}))
	require.NoError(t, tickfsm.SendEvent(m, 3))
	require.NoError(t, m.TickStateMachine(16*time.Millisecond))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.registered.WithLabelValues("npc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ticks.WithLabelValues("npc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stateChanges.WithLabelValues("npc", "", "idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stateChanges.WithLabelValues("npc", "idle", "busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("npc", OutcomeExecuted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("npc", OutcomeDiscarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("npc", "metrics.alarm", OutcomeHandled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("npc", "int", OutcomeIgnored)))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeState.WithLabelValues("npc", "idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeState.WithLabelValues("npc", "busy")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.tickDelta))
}

func TestGaugesFollowReplaceAndClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	m := tickfsm.NewMachine(
		tickfsm.WithObserver(c.Observer("npc")),
		tickfsm.WithDuplicatePolicy(tickfsm.DuplicateReplace),
	)

	require.NoError(t, m.RegisterState(idle{}))
	require.NoError(t, m.RegisterState(busy{}))
	require.NoError(t, m.ChangeState("idle"))
	require.NoError(t, m.RegisterState(idle{}))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.registered.WithLabelValues("npc")), "replacement keeps the count")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeState.WithLabelValues("npc", "idle")), "replaced active state is no longer active")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stateChanges.WithLabelValues("npc", "idle", "")))

	require.NoError(t, m.ChangeState("busy"))
	require.NoError(t, m.Close())

	assert.Equal(t, 0.0, testutil.ToFloat64(c.registered.WithLabelValues("npc")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeState.WithLabelValues("npc", "busy")))
}

func TestFailedTransitionOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	o := c.Observer("npc")

	o.TransitionExecuted(tickfsm.To("x"), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("npc", OutcomeFailed)))
}

func TestCollectorsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Observer("a").Ticked(time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tickfsm_ticks_total")
	assert.Contains(t, names, "tickfsm_tick_delta_seconds")

	assert.Panics(t, func() { NewCollector(reg) }, "registering twice must fail")
}
