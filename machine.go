package tickfsm

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Machine owns a registry of states, the single active state and the
// pending-transition slot. It is driven by a host loop calling
// TickStateMachine once per frame.
//
// A Machine is not safe for concurrent use. Overlapping calls, whether from a
// second goroutine or from inside a state's own hook, fail with ErrReentrant
// instead of corrupting the machine.
type Machine struct {
	name    string
	states  map[StateID]*registration
	order   []StateID // registration order, used for teardown
	active  *registration
	pending Transition
	timers  []*timerEntry

	busy       atomic.Bool
	closed     bool
	committing bool

	duplicatePolicy DuplicatePolicy
	sameStateCheck  bool

	logger              *slog.Logger
	observers           []Observer
	stateChangeCallback func(from, to StateID)
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithName sets the name used in log lines and by observers
func WithName(name string) MachineOption {
	return func(m *Machine) {
		m.name = name
	}
}

// WithLogger sets the logger for the machine
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithObserver attaches an observer. May be given more than once.
func WithObserver(o Observer) MachineOption {
	return func(m *Machine) {
		m.observers = append(m.observers, o)
	}
}

// WithStateChangeCallback sets a callback invoked after each state change
func WithStateChangeCallback(fn func(from, to StateID)) MachineOption {
	return func(m *Machine) {
		m.stateChangeCallback = fn
	}
}

// WithDuplicatePolicy sets what RegisterState does with a key that is already taken
func WithDuplicatePolicy(p DuplicatePolicy) MachineOption {
	return func(m *Machine) {
		m.duplicatePolicy = p
	}
}

// WithSameStateCheck controls whether ChangeState to the active state is a no-op (the default).
// When disabled the active state is exited and entered again.
func WithSameStateCheck(enabled bool) MachineOption {
	return func(m *Machine) {
		m.sameStateCheck = enabled
	}
}

// NewMachine creates an empty machine with no active state
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		states:         make(map[StateID]*registration),
		sameStateCheck: true,
		logger:         Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnStateChange sets a callback invoked after each state change
func (m *Machine) OnStateChange(fn func(from, to StateID)) {
	m.stateChangeCallback = fn
}

// Name returns the machine name
func (m *Machine) Name() string {
	return m.name
}

// RegisterState adds a state to the registry and calls its Init hook
func (m *Machine) RegisterState(s State) error {
	if s == nil {
		return fmt.Errorf("register: nil state")
	}
	if err := m.acquire("register"); err != nil {
		return err
	}
	defer m.release()

	id := s.ID()
	old, exists := m.states[id]
	if exists {
		if m.duplicatePolicy == DuplicateReject {
			return fmt.Errorf("register %q: %w", id, ErrDuplicateState)
		}
		m.logger.Debug("replacing state", "machine", m.name, "state", id)
		m.destroy(old)
	}

	reg := newRegistration(s)
	if i, ok := s.(Initializer); ok {
		i.Init()
	}
	m.states[id] = reg
	if !exists {
		m.order = append(m.order, id)
	}

	m.logger.Debug("state registered", "machine", m.name, "state", id, "entry", reg.entry)
	for _, o := range m.observers {
		o.StateRegistered(id)
	}
	return nil
}

// RegisterNew registers a zero-valued *S
func RegisterNew[S any, PS interface {
	*S
	State
}](m *Machine) (PS, error) {
	s := PS(new(S))
	if err := m.RegisterState(s); err != nil {
		return nil, err
	}
	return s, nil
}

// ChangeState switches to the given state without a parameter
func (m *Machine) ChangeState(id StateID) error {
	if err := m.acquire("change state"); err != nil {
		return err
	}
	defer m.release()
	return m.changeState(id)
}

// TickStateMachine ticks the active state, advances timers and executes the
// winning pending transition, if any. The slot is empty afterwards. Errors
// from the executed transition are returned.
func (m *Machine) TickStateMachine(dt time.Duration) error {
	if err := m.acquire("tick"); err != nil {
		return err
	}
	defer m.release()

	if m.active == nil {
		if m.pending != nil {
			m.logger.Debug("transition discarded without active state", "machine", m.name, "order", m.pending.Order())
			for _, o := range m.observers {
				o.TransitionDiscarded(m.pending)
			}
			m.pending = nil
		}
		return nil
	}
	for _, o := range m.observers {
		o.Ticked(dt)
	}

	if t, ok := m.active.state.(Tickable); ok {
		m.offer(t.Tick(dt))
	}
	m.advanceTimers(dt)

	pending := m.pending
	m.pending = nil
	if pending == nil {
		return nil
	}

	m.logger.Debug("executing transition", "machine", m.name, "state", m.active.state.ID(), "order", pending.Order())
	err := newExecutor(m).run(pending)
	for _, o := range m.observers {
		o.TransitionExecuted(pending, err)
	}
	if err != nil {
		return fmt.Errorf("execute transition: %w", err)
	}
	return nil
}

// Close exits the active state, then destroys every registered state in
// registration order. Later mutating calls fail with ErrClosed.
func (m *Machine) Close() error {
	if !m.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("close: %w", ErrReentrant)
	}
	defer m.release()
	if m.closed {
		return nil
	}
	m.closed = true

	m.pending = nil
	m.deactivate()
	for _, id := range m.order {
		if reg, ok := m.states[id]; ok {
			m.destroy(reg)
		}
	}
	m.timers = nil
	m.states = make(map[StateID]*registration)
	m.order = nil

	m.logger.Debug("machine closed", "machine", m.name)
	return nil
}

// CurrentState returns the key of the active state, or NoState
func (m *Machine) CurrentState() StateID {
	if m.active == nil {
		return NoState
	}
	return m.active.state.ID()
}

// Current returns the active state, or nil
func (m *Machine) Current() State {
	if m.active == nil {
		return nil
	}
	return m.active.state
}

// IsInState checks if the given state is the active one
func (m *Machine) IsInState(id StateID) bool {
	return m.active != nil && m.active.state.ID() == id
}

// Registered reports whether a state is registered under id
func (m *Machine) Registered(id StateID) bool {
	_, ok := m.states[id]
	return ok
}

// State returns the state registered under id
func (m *Machine) State(id StateID) (State, bool) {
	reg, ok := m.states[id]
	if !ok {
		return nil, false
	}
	return reg.state, true
}

// States returns the registered keys in registration order
func (m *Machine) States() []StateID {
	ids := make([]StateID, len(m.order))
	copy(ids, m.order)
	return ids
}

// Pending returns the transition currently holding the slot, or nil
func (m *Machine) Pending() Transition {
	return m.pending
}

func (m *Machine) acquire(op string) error {
	if !m.busy.CompareAndSwap(false, true) {
		m.logger.Warn("rejected overlapping call", "machine", m.name, "op", op)
		return fmt.Errorf("%s: %w", op, ErrReentrant)
	}
	if m.closed {
		m.busy.Store(false)
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return nil
}

func (m *Machine) release() {
	m.busy.Store(false)
}

func (m *Machine) lookup(id StateID) (*registration, error) {
	reg, ok := m.states[id]
	if !ok {
		return nil, fmt.Errorf("state %q: %w", id, ErrUnregisteredState)
	}
	return reg, nil
}

// offer puts t into the pending slot unless the holder has a strictly higher order
func (m *Machine) offer(t Transition) {
	if t == nil {
		return
	}
	if m.pending != nil && m.pending.Order() > t.Order() {
		m.logger.Debug("transition discarded", "machine", m.name, "order", t.Order(), "pending", m.pending.Order())
		for _, o := range m.observers {
			o.TransitionDiscarded(t)
		}
		return
	}
	if m.pending != nil {
		m.logger.Debug("transition superseded", "machine", m.name, "order", m.pending.Order(), "by", t.Order())
		for _, o := range m.observers {
			o.TransitionDiscarded(m.pending)
		}
	}
	m.pending = t
}

func (m *Machine) changeState(id StateID) error {
	reg, err := m.lookup(id)
	if err != nil {
		return err
	}
	if reg.entry == entryParam {
		return fmt.Errorf("state %q needs an entry parameter: %w", id, ErrEntryMismatch)
	}
	if m.sameStateCheck && m.active == reg {
		m.logger.Debug("already in state", "machine", m.name, "state", id)
		return nil
	}
	m.commit(reg, enterPlain(reg.state))
	return nil
}

func (m *Machine) changeStateWithUnlocked(id StateID, bind binder) error {
	reg, err := m.lookup(id)
	if err != nil {
		return err
	}
	enter, ok := bind(reg.state)
	if !ok {
		return fmt.Errorf("state %q does not accept this entry parameter: %w", id, ErrEntryMismatch)
	}
	m.commit(reg, enter)
	return nil
}

// commit exits the active state, makes next active and enters it
func (m *Machine) commit(next *registration, enter func()) {
	m.committing = true
	defer func() { m.committing = false }()

	from := NoState
	if prev := m.active; prev != nil {
		from = prev.state.ID()
		m.exit(prev)
	}

	m.active = next
	to := next.state.ID()
	m.logger.Debug("entering state", "machine", m.name, "state", to, "from", from)
	if enter != nil {
		enter()
	}

	m.notifyChange(from, to)
}

// deactivate exits the active state and leaves the machine without one
func (m *Machine) deactivate() {
	prev := m.active
	if prev == nil {
		return
	}
	m.committing = true
	defer func() { m.committing = false }()

	m.exit(prev)
	m.active = nil
	m.notifyChange(prev.state.ID(), NoState)
}

func (m *Machine) notifyChange(from, to StateID) {
	for _, o := range m.observers {
		o.StateChanged(from, to)
	}
	if m.stateChangeCallback != nil {
		m.stateChangeCallback(from, to)
	}
}

func (m *Machine) exit(reg *registration) {
	id := reg.state.ID()
	m.logger.Debug("exiting state", "machine", m.name, "state", id)
	m.cleanupTimersForState(id)
	if e, ok := reg.state.(Exiter); ok {
		e.Exit()
	}
}

// destroy tears down a registration, exiting it first when active
func (m *Machine) destroy(reg *registration) {
	if m.active == reg {
		m.deactivate()
	}
	if d, ok := reg.state.(Destroyer); ok {
		d.Destroy()
	}
	id := reg.state.ID()
	m.logger.Debug("state destroyed", "machine", m.name, "state", id)
	for _, o := range m.observers {
		o.StateDestroyed(id)
	}
}

func enterPlain(s State) func() {
	e, ok := s.(Enterer)
	if !ok {
		return nil
	}
	return e.Enter
}
