package tickfsm

import (
	"errors"
	"log/slog"
)

// StateID is a unique identifier for a registered state
type StateID string

// NoState is reported as the "from" side of the first switch and while no state is active
const NoState StateID = ""

// DuplicatePolicy decides what RegisterState does with a key that is already taken
type DuplicatePolicy int

const (
	// DuplicateReject fails the registration with ErrDuplicateState
	DuplicateReject DuplicatePolicy = iota
	// DuplicateReplace destroys the old instance and registers the new one
	DuplicateReplace
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateReject:
		return "reject"
	case DuplicateReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// TimerScope defines when a timer is automatically cancelled
type TimerScope int

const (
	// TimerScopeGlobal - timer lives until explicitly stopped or the machine is closed
	TimerScopeGlobal TimerScope = iota
	// TimerScopeState - timer auto-cancelled when the state active at start exits
	TimerScopeState
)

var (
	// ErrDuplicateState is returned when a state key is registered twice
	ErrDuplicateState = errors.New("state already registered")
	// ErrUnregisteredState is returned when switching to a key that was never registered
	ErrUnregisteredState = errors.New("state not registered")
	// ErrEntryMismatch is returned when the switch form does not match the state's Enter method
	ErrEntryMismatch = errors.New("state entry does not match")
	// ErrStateType is returned when a registered state is not of the requested Go type
	ErrStateType = errors.New("state has unexpected type")
	// ErrReentrant is returned when a mutating call overlaps another one on the same machine
	ErrReentrant = errors.New("machine is busy")
	// ErrClosed is returned by every mutating call after Close
	ErrClosed = errors.New("machine closed")
)

// Logger is the default logger used when none is provided
var Logger = slog.Default()
