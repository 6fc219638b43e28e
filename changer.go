package tickfsm

import (
	"fmt"
	"sync/atomic"
)

// Changer is the capability a Transition receives when it executes. States
// never hold it, so the only way for a state to switch is to return a
// Transition and win resolution.
//
// *Machine implements Changer for host code; calls made through it are
// rejected with ErrReentrant while a tick is in progress. Transitions get an
// internal Changer that is valid during their Execute call and performs at
// most one switch. Using it afterwards, or from an Enter or Exit hook, fails
// with ErrReentrant.
type Changer interface {
	ChangeState(id StateID) error

	changeStateWith(id StateID, bind binder) error
	stage(id StateID) (*registration, error)
	commitStaged(reg *registration) error
}

// binder returns the Enter call for s, or false if s cannot be entered that way
type binder func(s State) (enter func(), ok bool)

// ChangeStateWith switches to the given state and enters it with param. The
// state is exited and entered again even if it is already active.
func ChangeStateWith[P any](c Changer, id StateID, param P) error {
	return c.changeStateWith(id, func(s State) (func(), bool) {
		e, ok := s.(ParamEnterer[P])
		if !ok {
			return nil, false
		}
		return func() { e.Enter(param) }, true
	})
}

func (m *Machine) changeStateWith(id StateID, bind binder) error {
	if err := m.acquire("change state"); err != nil {
		return err
	}
	defer m.release()
	return m.changeStateWithUnlocked(id, bind)
}

func (m *Machine) stage(id StateID) (*registration, error) {
	if err := m.acquire("switch state"); err != nil {
		return nil, err
	}
	defer m.release()
	return m.stageUnlocked(id)
}

func (m *Machine) commitStaged(reg *registration) error {
	if err := m.acquire("commit switch"); err != nil {
		return err
	}
	defer m.release()
	return m.commitStagedUnlocked(reg)
}

// executor is the Changer handed to a winning transition. The machine already
// holds its busy flag at that point. It is closed once Execute returns and
// allows a single switch.
type executor struct {
	m        *Machine
	open     atomic.Bool
	switched bool
}

func newExecutor(m *Machine) *executor {
	e := &executor{m: m}
	e.open.Store(true)
	return e
}

// run executes t and closes the executor afterwards
func (e *executor) run(t Transition) error {
	defer e.open.Store(false)
	return t.Execute(e)
}

func (e *executor) check(op string) error {
	if !e.open.Load() {
		return fmt.Errorf("%s: changer used outside its transition: %w", op, ErrReentrant)
	}
	if e.m.committing {
		return fmt.Errorf("%s: switch requested from a lifecycle hook: %w", op, ErrReentrant)
	}
	if e.switched {
		return fmt.Errorf("%s: transition already switched: %w", op, ErrReentrant)
	}
	return nil
}

func (e *executor) ChangeState(id StateID) error {
	if err := e.check("change state"); err != nil {
		return err
	}
	if err := e.m.changeState(id); err != nil {
		return err
	}
	e.switched = true
	return nil
}

func (e *executor) changeStateWith(id StateID, bind binder) error {
	if err := e.check("change state"); err != nil {
		return err
	}
	if err := e.m.changeStateWithUnlocked(id, bind); err != nil {
		return err
	}
	e.switched = true
	return nil
}

func (e *executor) stage(id StateID) (*registration, error) {
	if err := e.check("switch state"); err != nil {
		return nil, err
	}
	return e.m.stageUnlocked(id)
}

func (e *executor) commitStaged(reg *registration) error {
	if err := e.check("commit switch"); err != nil {
		return err
	}
	if err := e.m.commitStagedUnlocked(reg); err != nil {
		return err
	}
	e.switched = true
	return nil
}
