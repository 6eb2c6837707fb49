// Package state implements State (an immutable device-name -> Device
// map) and StateBundle (a role-name -> State map), the two value types
// threaded through every Process tick.
package state

import (
	"context"
	"sort"

	"github.com/johnwbyrd/aifand/device"
	"github.com/johnwbyrd/aifand/permissions"
)

// State is an immutable mapping from device name to Device. All mutating
// operations return a new State; the receiver is never modified.
type State struct {
	devices map[string]device.Device
}

// New returns an empty State.
func New() State {
	return State{devices: map[string]device.Device{}}
}

// FromDevicesUnchecked builds a State directly from devices without
// consulting the permission matrix, for collaborators (hardware readers,
// test fixtures) that construct a State outside of a running tick, where
// spec.md §4.3 already says no check is performed.
func FromDevicesUnchecked(devices ...device.Device) State {
	m := make(map[string]device.Device, len(devices))
	for _, d := range devices {
		m[d.Name()] = d
	}
	return State{devices: m}
}

func (s State) Get(name string) (device.Device, bool) {
	d, ok := s.devices[name]
	return d, ok
}

func (s State) Has(name string) bool {
	_, ok := s.devices[name]
	return ok
}

// Names returns device names in sorted order for deterministic iteration.
func (s State) Names() []string {
	names := make([]string, 0, len(s.devices))
	for n := range s.devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s State) Count() int { return len(s.devices) }

// WithDevice returns a new State with d added or replaced. The current
// process on ctx (if any) must be permitted to mutate d's role, per the
// PermissionMatrix; on denial the receiver is returned unchanged
// alongside the error.
func (s State) WithDevice(ctx context.Context, d device.Device) (State, error) {
	if err := permissions.CheckContext(ctx, d.Role(), d.Name()); err != nil {
		return s, err
	}
	return s.withDeviceUnchecked(d), nil
}

// WithDevices applies every device in devices, or none: if any device is
// denied, the receiver is returned unchanged and no devices are added
// (spec.md §4.1 "leaves no partial State").
func (s State) WithDevices(ctx context.Context, devices ...device.Device) (State, error) {
	for _, d := range devices {
		if err := permissions.CheckContext(ctx, d.Role(), d.Name()); err != nil {
			return s, err
		}
	}
	out := s
	for _, d := range devices {
		out = out.withDeviceUnchecked(d)
	}
	return out, nil
}

func (s State) withDeviceUnchecked(d device.Device) State {
	next := make(map[string]device.Device, len(s.devices)+1)
	for k, v := range s.devices {
		next[k] = v
	}
	next[d.Name()] = d
	return State{devices: next}
}

// Without returns a new State with name removed.
func (s State) Without(name string) State {
	if !s.Has(name) {
		return s
	}
	next := make(map[string]device.Device, len(s.devices))
	for k, v := range s.devices {
		if k != name {
			next[k] = v
		}
	}
	return State{devices: next}
}

// Filter returns the subset of devices for which pred is true.
func (s State) Filter(pred func(device.Device) bool) State {
	next := make(map[string]device.Device)
	for k, v := range s.devices {
		if pred(v) {
			next[k] = v
		}
	}
	return State{devices: next}
}

// Sensors returns the sensor-only view.
func (s State) Sensors() State { return s.Filter(device.Device.IsSensor) }

// Actuators returns the actuator-only view.
func (s State) Actuators() State { return s.Filter(device.Device.IsActuator) }

// Merge returns a new State containing the receiver's devices overlaid
// by other's, permission-checked per device against the current process
// on ctx.
func (s State) Merge(ctx context.Context, other State) (State, error) {
	devices := make([]device.Device, 0, len(other.devices))
	for _, d := range other.devices {
		devices = append(devices, d)
	}
	return s.WithDevices(ctx, devices...)
}
