package tickfsm

// Transition is a prioritized, one-shot request to switch state. The machine
// executes at most one per tick: the highest Order offered since the last
// tick, where a later offer wins a tie.
type Transition interface {
	Order() int
	Execute(c Changer) error
}

// Base carries the priority of a transition and is meant to be embedded
type Base struct {
	order int
}

// Order returns the priority
func (b *Base) Order() int {
	return b.order
}

// SetOrder changes the priority
func (b *Base) SetOrder(order int) {
	b.order = order
}

// TransitionOption is a functional option for configuring a transition
type TransitionOption func(*Base)

// WithOrder sets the priority of the transition
func WithOrder(order int) TransitionOption {
	return func(b *Base) {
		b.order = order
	}
}

// Goto switches to Target without a parameter
type Goto struct {
	Base
	Target StateID
}

// To creates a transition to the given state
func To(target StateID, opts ...TransitionOption) *Goto {
	t := &Goto{Target: target}
	for _, opt := range opts {
		opt(&t.Base)
	}
	return t
}

// Execute implements Transition
func (t *Goto) Execute(c Changer) error {
	return c.ChangeState(t.Target)
}

// GotoWith switches to Target and enters it with Param
type GotoWith[P any] struct {
	Base
	Target StateID
	Param  P
}

// ToWith creates a transition that enters the target with a parameter
func ToWith[P any](target StateID, param P, opts ...TransitionOption) *GotoWith[P] {
	t := &GotoWith[P]{Target: target, Param: param}
	for _, opt := range opts {
		opt(&t.Base)
	}
	return t
}

// Execute implements Transition
func (t *GotoWith[P]) Execute(c Changer) error {
	return ChangeStateWith(c, t.Target, t.Param)
}

// Func adapts a function to the Transition interface
type Func struct {
	Base
	fn func(Changer) error
}

// TransitionFunc creates a transition that runs fn when it wins resolution
func TransitionFunc(order int, fn func(Changer) error) *Func {
	return &Func{Base: Base{order: order}, fn: fn}
}

// Execute implements Transition
func (t *Func) Execute(c Changer) error {
	return t.fn(c)
}

// TransitionKey names a cached transition
type TransitionKey string

// TransitionCache hands out transitions a state builds once and reuses every
// tick. Entries are never replaced once stored. The zero value is ready to use.
type TransitionCache struct {
	entries map[TransitionKey]Transition
}

// Get returns the transition stored under key, building it on first use
func (c *TransitionCache) Get(key TransitionKey, build func() Transition) Transition {
	if t, ok := c.entries[key]; ok {
		return t
	}
	if c.entries == nil {
		c.entries = make(map[TransitionKey]Transition, 4)
	}
	t := build()
	c.entries[key] = t
	return t
}

// Len returns the number of cached transitions
func (c *TransitionCache) Len() int {
	return len(c.entries)
}
