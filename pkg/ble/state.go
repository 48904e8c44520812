package ble

import (
	"fmt"
	"sync"

	"github.com/srg/boonled/internal/ringchan"
)

// StateKind tags the active variant of a ConnectionState.
type StateKind int

const (
	StateIdle StateKind = iota
	StateScanning
	StateConnecting
	StateConnected
	StateDisconnected
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// ConnectionState is the observable lifecycle of the manager. Only the fields
// of the active Kind are set.
type ConnectionState struct {
	Kind StateKind

	// Connected
	DeviceName    string
	DeviceAddress string

	// Disconnected
	Reason string

	// Error
	Message string
	Cause   error
}

func Idle() ConnectionState       { return ConnectionState{Kind: StateIdle} }
func Scanning() ConnectionState   { return ConnectionState{Kind: StateScanning} }
func Connecting() ConnectionState { return ConnectionState{Kind: StateConnecting} }

func Connected(name, address string) ConnectionState {
	return ConnectionState{Kind: StateConnected, DeviceName: name, DeviceAddress: address}
}

func Disconnected(reason string) ConnectionState {
	return ConnectionState{Kind: StateDisconnected, Reason: reason}
}

func Errored(message string, cause error) ConnectionState {
	return ConnectionState{Kind: StateError, Message: message, Cause: cause}
}

func (s ConnectionState) String() string {
	switch s.Kind {
	case StateConnected:
		return fmt.Sprintf("Connected(%s, %s)", s.DeviceName, s.DeviceAddress)
	case StateDisconnected:
		return fmt.Sprintf("Disconnected(%s)", s.Reason)
	case StateError:
		if s.Cause != nil {
			return fmt.Sprintf("Error(%s: %v)", s.Message, s.Cause)
		}
		return fmt.Sprintf("Error(%s)", s.Message)
	default:
		return s.Kind.String()
	}
}

// same compares states by value. Causes compare by message so that
// non-comparable error types cannot panic.
func (s ConnectionState) same(o ConnectionState) bool {
	if s.Kind != o.Kind || s.DeviceName != o.DeviceName || s.DeviceAddress != o.DeviceAddress ||
		s.Reason != o.Reason || s.Message != o.Message {
		return false
	}
	if (s.Cause == nil) != (o.Cause == nil) {
		return false
	}
	return s.Cause == nil || s.Cause.Error() == o.Cause.Error()
}

// stateSubscriberBuffer bounds each subscriber; a slow reader loses the oldest states.
const stateSubscriberBuffer = 64

// stateHolder is the observable current state. Consecutive equal states are
// published once.
type stateHolder struct {
	mu      sync.Mutex
	current ConnectionState
	subs    map[uint64]*ringchan.RingChannel[ConnectionState]
	nextID  uint64
}

func newStateHolder() *stateHolder {
	return &stateHolder{
		current: Idle(),
		subs:    make(map[uint64]*ringchan.RingChannel[ConnectionState]),
	}
}

func (h *stateHolder) get() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// publish stores s and fans it out. Reports false when s equals the current state.
func (h *stateHolder) publish(s ConnectionState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current.same(s) {
		return false
	}
	h.current = s
	for _, rc := range h.subs {
		rc.Send(s)
	}
	return true
}

// subscribe returns a stream that starts with the current state, and a cancel
// func that closes it.
func (h *stateHolder) subscribe() (<-chan ConnectionState, func()) {
	rc := ringchan.New[ConnectionState](stateSubscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = rc
	rc.Send(h.current)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			rc.Close()
		})
	}
	return rc.C(), cancel
}
