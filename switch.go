package tickfsm

import (
	"errors"
	"fmt"
)

// Switch is a staged state switch. The caller configures the staged state
// while it is inactive, then Commit exits the active state and enters the
// staged one with the same rules as ChangeState.
type Switch struct {
	c      Changer
	target *registration
	done   bool
}

// SwitchState looks up a registered state of type S and stages a switch to it.
// Callers must Commit the returned Switch on every path, usually with defer;
// Configure does that for them.
func SwitchState[S State](c Changer, id StateID) (S, *Switch, error) {
	var zero S
	reg, err := c.stage(id)
	if err != nil {
		return zero, nil, err
	}
	s, ok := reg.state.(S)
	if !ok {
		return zero, nil, fmt.Errorf("state %q is %T, want %T: %w", id, reg.state, zero, ErrStateType)
	}
	return s, &Switch{c: c, target: reg}, nil
}

// Commit performs the staged switch. Only the first call has an effect.
func (sw *Switch) Commit() error {
	if sw == nil || sw.done {
		return nil
	}
	sw.done = true
	return sw.c.commitStaged(sw.target)
}

// Committed reports whether Commit has been called
func (sw *Switch) Committed() bool {
	return sw.done
}

// Configure stages the state registered under id, passes it to configure and
// commits the switch when configure returns, fails or panics.
func Configure[S State](c Changer, id StateID, configure func(S) error) (err error) {
	staged, sw, err := SwitchState[S](c, id)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sw.Commit(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return configure(staged)
}

func (m *Machine) stageUnlocked(id StateID) (*registration, error) {
	reg, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if reg.entry == entryParam {
		return nil, fmt.Errorf("state %q needs an entry parameter: %w", id, ErrEntryMismatch)
	}
	return reg, nil
}

func (m *Machine) commitStagedUnlocked(reg *registration) error {
	id := reg.state.ID()
	if m.states[id] != reg {
		return fmt.Errorf("staged state %q was replaced: %w", id, ErrUnregisteredState)
	}
	if m.sameStateCheck && m.active == reg {
		m.logger.Debug("already in state", "machine", m.name, "state", id)
		return nil
	}
	m.commit(reg, enterPlain(reg.state))
	return nil
}
