// Package metrics exports state machine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/librescoot/tickfsm"
)

const (
	namespace = "tickfsm"

	OutcomeExecuted  = "executed"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
	OutcomeHandled   = "handled"
	OutcomeIgnored   = "ignored"
)

// Collector owns the metric vectors. One Collector serves any number of
// machines, told apart by the "machine" label.
type Collector struct {
	ticks        *prometheus.CounterVec
	tickDelta    *prometheus.HistogramVec
	registered   *prometheus.GaugeVec
	stateChanges *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	events       *prometheus.CounterVec
	activeState  *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Total number of ticks processed with an active state",
			},
			[]string{"machine"},
		),
		tickDelta: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_delta_seconds",
				Help:      "Delta time passed to each tick",
				Buckets:   []float64{0.001, 0.004, 0.008, 0.016, 0.033, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"machine"},
		),
		registered: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registered_states",
				Help:      "Number of states currently registered with the machine",
			},
			[]string{"machine"},
		),
		stateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_changes_total",
				Help:      "Total number of committed state switches",
			},
			[]string{"machine", "from", "to"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Transitions by outcome (executed, failed, discarded)",
			},
			[]string{"machine", "outcome"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Events delivered to the active state by outcome (handled, ignored)",
			},
			[]string{"machine", "event", "outcome"},
		),
		activeState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_state",
				Help:      "1 for the active state of the machine, 0 for states it has left",
			},
			[]string{"machine", "state"},
		),
	}
}

// Observer returns a tickfsm.Observer recording under the given machine name
func (c *Collector) Observer(machine string) tickfsm.Observer {
	return &machineObserver{c: c, machine: machine}
}

type machineObserver struct {
	c       *Collector
	machine string
}

func (o *machineObserver) StateRegistered(tickfsm.StateID) {
	o.c.registered.WithLabelValues(o.machine).Inc()
}

func (o *machineObserver) StateDestroyed(tickfsm.StateID) {
	o.c.registered.WithLabelValues(o.machine).Dec()
}

func (o *machineObserver) StateChanged(from, to tickfsm.StateID) {
	o.c.stateChanges.WithLabelValues(o.machine, string(from), string(to)).Inc()
	if from != tickfsm.NoState {
		o.c.activeState.WithLabelValues(o.machine, string(from)).Set(0)
	}
	if to != tickfsm.NoState {
		o.c.activeState.WithLabelValues(o.machine, string(to)).Set(1)
	}
}

func (o *machineObserver) Ticked(dt time.Duration) {
	o.c.ticks.WithLabelValues(o.machine).Inc()
	o.c.tickDelta.WithLabelValues(o.machine).Observe(dt.Seconds())
}

func (o *machineObserver) TransitionExecuted(_ tickfsm.Transition, err error) {
	outcome := OutcomeExecuted
	if err != nil {
		outcome = OutcomeFailed
	}
	o.c.transitions.WithLabelValues(o.machine, outcome).Inc()
}

func (o *machineObserver) TransitionDiscarded(tickfsm.Transition) {
	o.c.transitions.WithLabelValues(o.machine, OutcomeDiscarded).Inc()
}

func (o *machineObserver) EventDelivered(event string, handled bool) {
	outcome := OutcomeIgnored
	if handled {
		outcome = OutcomeHandled
	}
	o.c.events.WithLabelValues(o.machine, event, outcome).Inc()
}
