package device

import (
	"context"
	"sync"
	"time"
)

// Transition is one recorded on/off switch, kept by the mock for assertions
// and for the simulated-target UI.
type Transition struct {
	Device string
	On     bool
	At     time.Time
}

// Mock is the simulated actuation target behind mock_pump nodes and tests.
// It never fails unless told to.
type Mock struct {
	mu          sync.Mutex
	states      map[string]bool
	transitions []Transition
	failOn      map[string]error
}

func NewMock() *Mock {
	return &Mock{
		states: make(map[string]bool),
		failOn: make(map[string]error),
	}
}

// FailWith makes every call for deviceID return err. Pass nil to clear.
func (m *Mock) FailWith(deviceID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, deviceID)
		return
	}
	m.failOn[deviceID] = err
}

func (m *Mock) TurnOn(ctx context.Context, deviceID string) error {
	return m.set(deviceID, true)
}

func (m *Mock) TurnOff(ctx context.Context, deviceID string) error {
	return m.set(deviceID, false)
}

func (m *Mock) State(ctx context.Context, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[deviceID]; err != nil {
		return false, err
	}
	return m.states[deviceID], nil
}

func (m *Mock) set(deviceID string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[deviceID]; err != nil {
		return err
	}
	m.states[deviceID] = on
	m.transitions = append(m.transitions, Transition{Device: deviceID, On: on, At: time.Now()})
	return nil
}

// Transitions returns a copy of the recorded switch history for a device.
func (m *Mock) Transitions(deviceID string) []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, 0, len(m.transitions))
	for _, tr := range m.transitions {
		if tr.Device == deviceID {
			out = append(out, tr)
		}
	}
	return out
}
