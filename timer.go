package tickfsm

import (
	"fmt"
	"time"
)

// timerEntry tracks a running timer. Timers count down by tick delta, not
// wall-clock time.
type timerEntry struct {
	name       string
	remaining  time.Duration
	duration   time.Duration
	event      string
	recv       receive
	scope      TimerScope
	ownerState StateID
}

// StartTimer starts a named timer that delivers event to the active state
// once the summed tick deltas reach d. The event goes through the same path as
// SendEvent, in the tick where the timer expires. A timer with the same name
// is reset. TimerScopeState timers are cancelled when the state active at
// start exits.
func StartTimer[E any](m *Machine, name string, d time.Duration, event E, scope TimerScope) error {
	if err := m.acquire("start timer"); err != nil {
		return err
	}
	defer m.release()

	owner := NoState
	if scope == TimerScopeState {
		if m.active == nil {
			return fmt.Errorf("start timer %q: state-scoped timer needs an active state", name)
		}
		owner = m.active.state.ID()
	}

	m.removeTimer(name)
	m.timers = append(m.timers, &timerEntry{
		name:       name,
		remaining:  d,
		duration:   d,
		event:      eventName[E](),
		recv:       receiverFor(event),
		scope:      scope,
		ownerState: owner,
	})

	m.logger.Debug("timer started", "machine", m.name, "name", name, "duration", d, "event", eventName[E]())
	return nil
}

// StopTimer stops a timer by name. No-op if the timer doesn't exist.
func (m *Machine) StopTimer(name string) error {
	if err := m.acquire("stop timer"); err != nil {
		return err
	}
	defer m.release()
	if m.removeTimer(name) {
		m.logger.Debug("timer stopped", "machine", m.name, "name", name)
	}
	return nil
}

// ResetTimer restarts a timer with a new duration, keeping its event. A zero
// duration restarts it with the duration it was started with.
func (m *Machine) ResetTimer(name string, d time.Duration) error {
	if err := m.acquire("reset timer"); err != nil {
		return err
	}
	defer m.release()
	for _, t := range m.timers {
		if t.name != name {
			continue
		}
		if d > 0 {
			t.duration = d
		}
		t.remaining = t.duration
		m.logger.Debug("timer reset", "machine", m.name, "name", name, "duration", t.duration)
		return nil
	}
	return fmt.Errorf("reset timer %q: not running", name)
}

// StopAllTimers stops all running timers
func (m *Machine) StopAllTimers() error {
	if err := m.acquire("stop timers"); err != nil {
		return err
	}
	defer m.release()
	for _, t := range m.timers {
		m.logger.Debug("timer stopped (cleanup)", "machine", m.name, "name", t.name)
	}
	m.timers = nil
	return nil
}

// TimerActive checks if a timer is running
func (m *Machine) TimerActive(name string) bool {
	for _, t := range m.timers {
		if t.name == name {
			return true
		}
	}
	return false
}

// TimerRemaining returns the time left on a timer
func (m *Machine) TimerRemaining(name string) (time.Duration, bool) {
	for _, t := range m.timers {
		if t.name == name {
			return t.remaining, true
		}
	}
	return 0, false
}

// advanceTimers counts all timers down by dt and fires the expired ones in start order
func (m *Machine) advanceTimers(dt time.Duration) {
	if len(m.timers) == 0 {
		return
	}
	kept := m.timers[:0]
	var fired []*timerEntry
	for _, t := range m.timers {
		t.remaining -= dt
		if t.remaining <= 0 {
			fired = append(fired, t)
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(m.timers); i++ {
		m.timers[i] = nil
	}
	m.timers = kept

	for _, t := range fired {
		m.logger.Debug("timer fired", "machine", m.name, "name", t.name, "event", t.event)
		m.dispatch(t.event, t.recv)
	}
}

func (m *Machine) removeTimer(name string) bool {
	for i, t := range m.timers {
		if t.name == name {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

// cleanupTimersForState cancels all state-scoped timers owned by the given state
func (m *Machine) cleanupTimersForState(id StateID) {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.scope == TimerScopeState && t.ownerState == id {
			m.logger.Debug("timer cleaned up (state exit)", "machine", m.name, "name", t.name, "state", id)
			continue
		}
		kept = append(kept, t)
	}
	m.timers = kept
}
