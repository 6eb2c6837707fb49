package environment

import (
	"context"
	"sync"

	"github.com/johnwbyrd/aifand/state"
)

// SimulatedEnvironment is a deterministic in-memory HardwareIO test
// double, grounded on original_source's MockEnvironment scaffolding
// (tests/unit/base/mocks.py): ReadSensors echoes back whatever readings
// were last set, WriteActuators simply records what was written. It
// carries no timing logic of its own — that responsibility belongs to
// Environment/Runner, mirroring the split the original's tests kept
// between the mock hardware boundary and the process that drives it.
type SimulatedEnvironment struct {
	mu       sync.Mutex
	readings state.State
	written  state.State
	failNext bool
}

// NewSimulatedEnvironment returns a SimulatedEnvironment seeded with the
// given initial sensor+actuator readings.
func NewSimulatedEnvironment(initial state.State) *SimulatedEnvironment {
	return &SimulatedEnvironment{readings: initial}
}

// SetReadings replaces the values ReadSensors will return on the next
// call, simulating new hardware measurements arriving.
func (s *SimulatedEnvironment) SetReadings(readings state.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = readings
}

// FailNextWrite makes the next WriteActuators call return an error,
// exercising the hardware-I/O-error quality-marking policy.
func (s *SimulatedEnvironment) FailNextWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// ReadSensors returns the currently configured readings.
func (s *SimulatedEnvironment) ReadSensors(ctx context.Context) (state.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readings, nil
}

// WriteActuators records desired as the last-written actuator state.
func (s *SimulatedEnvironment) WriteActuators(ctx context.Context, desired state.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errWriteFailed
	}
	s.written = desired
	return nil
}

// LastWritten returns the actuator State from the most recent successful
// WriteActuators call.
func (s *SimulatedEnvironment) LastWritten() state.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

var errWriteFailed = writeError{}

type writeError struct{}

func (writeError) Error() string { return "simulated: hardware write failed" }
