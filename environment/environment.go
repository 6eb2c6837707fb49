// Package environment implements Environment (spec.md §4.10): the
// Process at pipeline boundaries that bridges to hardware. Head
// position (empty input bundle) reads sensors and emits an initial
// bundle; non-head positions write desired's actuators and pass the
// bundle through unchanged.
package environment

import (
	"context"
	"fmt"

	"github.com/johnwbyrd/aifand/device"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
)

// HardwareIO is the external collaborator contract (spec.md §6):
// concrete hardware access is out of scope, so every Environment is
// parameterized over this interface.
type HardwareIO interface {
	// ReadSensors returns the current reading for every device the
	// hardware backend knows about (sensors and actuator echo-back).
	ReadSensors(ctx context.Context) (state.State, error)
	// WriteActuators pushes desired's actuator values to hardware.
	WriteActuators(ctx context.Context, desired state.State) error
}

// Environment bridges a process tree to hardware through HardwareIO.
type Environment struct {
	*process.Base

	io HardwareIO
}

// New returns an Environment backed by io.
func New(name string, intervalNs int64, io HardwareIO) *Environment {
	e := &Environment{Base: process.NewBase(name, permissions.RoleEnvironment, intervalNs), io: io}
	e.Base.DoExecute = e.doExecute
	return e
}

func (e *Environment) doExecute(ctx context.Context, input state.Bundle) (state.Bundle, error) {
	if len(input) == 0 {
		return e.readHead(ctx)
	}
	return e.writeTail(ctx, input)
}

func (e *Environment) readHead(ctx context.Context) (state.Bundle, error) {
	actual, err := e.io.ReadSensors(ctx)
	if err != nil {
		return state.Bundle{}, fmt.Errorf("environment %q: read_sensors: %w", e.Name(), err)
	}
	return state.Bundle{}.With("actual", actual).With("desired", actual.Actuators()), nil
}

func (e *Environment) writeTail(ctx context.Context, input state.Bundle) (state.Bundle, error) {
	desired, ok := input.Get("desired")
	if !ok {
		return input, nil
	}
	if err := e.io.WriteActuators(ctx, desired); err != nil {
		// Hardware I/O failure policy (spec.md §7): mark every device in
		// desired failed rather than propagate, so a flaky actuator does
		// not halt the tree the way a permission-denied error would. This
		// reconstructs the State unchecked: it reflects hardware-reported
		// status, not a cross-role mutation the PermissionMatrix governs.
		return input.With("desired", markFailed(desired)), nil
	}
	return input, nil
}

func markFailed(s state.State) state.State {
	devices := make([]device.Device, 0, s.Count())
	for _, name := range s.Names() {
		d, _ := s.Get(name)
		devices = append(devices, d.WithProperty("quality", "failed"))
	}
	return state.FromDevicesUnchecked(devices...)
}
