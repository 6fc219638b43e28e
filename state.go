package tickfsm

import (
	"reflect"
	"time"
)

// State is a unit of behavior owned by a Machine. Everything beyond the key
// is optional: a state opts into lifecycle hooks by implementing the
// capability interfaces below.
type State interface {
	ID() StateID
}

// Initializer is called once, right after registration
type Initializer interface {
	Init()
}

// Enterer is entered without a parameter
type Enterer interface {
	Enter()
}

// ParamEnterer is entered with a parameter of type P.
// A type cannot implement both Enterer and ParamEnterer.
type ParamEnterer[P any] interface {
	Enter(param P)
}

// Tickable is ticked once per machine tick while active and may request a transition
type Tickable interface {
	Tick(dt time.Duration) Transition
}

// Exiter is called when the machine switches away from the state
type Exiter interface {
	Exit()
}

// Destroyer is called when the state's registration is replaced or the machine is closed
type Destroyer interface {
	Destroy()
}

// EventReceiver accepts events of type E while the state is active
type EventReceiver[E any] interface {
	ReceiveEvent(event E) Transition
}

// EventHandlers lets a state receive more than one event type. It is asked
// for its handlers once, at registration.
type EventHandlers interface {
	EventHandlers() []EventHandler
}

// EventHandler is a typed event handler, built with On
type EventHandler interface {
	eventHandler()
}

type handlerFunc[E any] func(E) Transition

func (handlerFunc[E]) eventHandler() {}

// On creates a handler for events of type E
func On[E any](fn func(E) Transition) EventHandler {
	return handlerFunc[E](fn)
}

// entryKind is resolved once at registration
type entryKind int

const (
	entryNone entryKind = iota
	entryPlain
	entryParam
)

func (k entryKind) String() string {
	switch k {
	case entryPlain:
		return "plain"
	case entryParam:
		return "param"
	default:
		return "none"
	}
}

func classifyEntry(s State) entryKind {
	if _, ok := s.(Enterer); ok {
		return entryPlain
	}
	method, ok := reflect.TypeOf(s).MethodByName("Enter")
	// Receiver counts as the first input
	if ok && method.Type.NumIn() == 2 && method.Type.NumOut() == 0 {
		return entryParam
	}
	return entryNone
}

// registration is one slot of the registry
type registration struct {
	state    State
	entry    entryKind
	handlers []EventHandler
}

func newRegistration(s State) *registration {
	reg := &registration{state: s, entry: classifyEntry(s)}
	if h, ok := s.(EventHandlers); ok {
		reg.handlers = h.EventHandlers()
	}
	return reg
}
