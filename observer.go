package tickfsm

import "time"

// Observer is notified about machine activity. Hooks run synchronously on the
// machine's goroutine and must not call back into the machine. A state that
// stops being active without a successor is reported as a change to NoState.
type Observer interface {
	StateRegistered(id StateID)
	StateDestroyed(id StateID)
	StateChanged(from, to StateID)
	Ticked(dt time.Duration)
	TransitionExecuted(t Transition, err error)
	TransitionDiscarded(t Transition)
	EventDelivered(event string, handled bool)
}

// NopObserver implements Observer with empty methods. Embed it to override a subset.
type NopObserver struct{}

func (NopObserver) StateRegistered(StateID)              {}
func (NopObserver) StateDestroyed(StateID)               {}
func (NopObserver) StateChanged(StateID, StateID)        {}
func (NopObserver) Ticked(time.Duration)                 {}
func (NopObserver) TransitionExecuted(Transition, error) {}
func (NopObserver) TransitionDiscarded(Transition)       {}
func (NopObserver) EventDelivered(string, bool)          {}
