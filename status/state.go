// Package status tracks the transport session lifecycle.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatkit/bus"
)

// State represents the connection lifecycle state.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Connected  State = "CONNECTED"
	Broken     State = "BROKEN"
	Shutdown   State = "SHUTDOWN"
)

// validTransitions defines allowed state transitions. Shutdown is
// terminal; the self-edges let repeated breakage and reconnect attempts
// re-enter their own state.
var validTransitions = map[State][]State{
	Idle:       {Connecting, Shutdown},
	Connecting: {Connected, Broken, Connecting, Shutdown},
	Connected:  {Broken, Shutdown},
	Broken:     {Connecting, Broken, Shutdown},
	Shutdown:   {},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; shutdown() stays idempotent because the
// Shutdown self-case is absorbed by the caller checking Current first.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindConnStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
