package tickfsm

import (
	"reflect"
)

// SendEvent delivers event to the active state if it implements
// EventReceiver[E] or lists a handler for E in EventHandlers. A returned
// transition competes for the pending slot and executes on the next tick.
// Without an active state or a matching receiver the call does nothing.
func SendEvent[E any](m *Machine, event E) error {
	if err := m.acquire("send event"); err != nil {
		return err
	}
	defer m.release()
	m.dispatch(eventName[E](), receiverFor(event))
	return nil
}

// Signal sends the zero value of E
func Signal[E any](m *Machine) error {
	var event E
	return SendEvent(m, event)
}

// receive asks a state for a transition; ok is false if it does not take the event type
type receive func(reg *registration) (t Transition, ok bool)

func receiverFor[E any](event E) receive {
	return func(reg *registration) (Transition, bool) {
		if r, ok := reg.state.(EventReceiver[E]); ok {
			return r.ReceiveEvent(event), true
		}
		for _, h := range reg.handlers {
			if fn, ok := h.(handlerFunc[E]); ok {
				return fn(event), true
			}
		}
		return nil, false
	}
}

func (m *Machine) dispatch(name string, recv receive) {
	if m.active == nil {
		m.logger.Debug("no active state for event", "machine", m.name, "event", name)
		return
	}
	t, handled := recv(m.active)
	for _, o := range m.observers {
		o.EventDelivered(name, handled)
	}
	if !handled {
		m.logger.Debug("event ignored", "machine", m.name, "event", name, "state", m.active.state.ID())
		return
	}
	m.offer(t)
}

func eventName[E any]() string {
	return reflect.TypeOf((*E)(nil)).Elem().String()
}
