// Package device defines the tagged value record at the bottom of the
// entity model: a Sensor or an Actuator carrying an opaque property map.
package device

import (
	"fmt"

	"github.com/google/uuid"
)

// Role distinguishes a Sensor from an Actuator. It is also the unit the
// permission matrix keys device-side rules on.
type Role int

const (
	Sensor Role = iota
	Actuator
)

func (r Role) String() string {
	switch r {
	case Sensor:
		return "sensor"
	case Actuator:
		return "actuator"
	default:
		return "unknown"
	}
}

// uuidNamespace matches the DNS namespace spec.md §6 calls for hardware
// device identifiers.
var uuidNamespace = uuid.NameSpaceDNS

// Device is an immutable, tagged value record. Mutating operations (see
// WithProperty) return a new Device rather than mutating in place.
type Device struct {
	id         uuid.UUID
	name       string
	role       Role
	properties map[string]any
}

// New constructs a software-only Device with a fresh random identifier.
// Conventional property keys (value, unit, min, max, hwmon_path,
// enable_path, scale, desire, timestamp, quality) are documented, not
// enforced.
func New(role Role, name string, properties map[string]any) Device {
	return Device{
		id:         uuid.New(),
		name:       name,
		role:       role,
		properties: cloneProps(properties),
	}
}

// NewHardware constructs a Device whose identifier is derived
// deterministically from (machineID, hardwarePath) via
// UUIDv5(DNS, "{machineID}.{hardwarePath}.uuid.aifand.com"), so the same
// physical device always yields the same identifier across restarts.
func NewHardware(role Role, machineID, hardwarePath, name string, properties map[string]any) Device {
	seed := fmt.Sprintf("%s.%s.uuid.aifand.com", machineID, hardwarePath)
	return Device{
		id:         uuid.NewSHA1(uuidNamespace, []byte(seed)),
		name:       name,
		role:       role,
		properties: cloneProps(properties),
	}
}

func (d Device) ID() uuid.UUID         { return d.id }
func (d Device) Name() string          { return d.name }
func (d Device) Role() Role            { return d.role }
func (d Device) IsSensor() bool        { return d.role == Sensor }
func (d Device) IsActuator() bool      { return d.role == Actuator }

// Property returns the named property and whether it was present.
func (d Device) Property(key string) (any, bool) {
	v, ok := d.properties[key]
	return v, ok
}

// Properties returns a defensive copy of the property map.
func (d Device) Properties() map[string]any {
	return cloneProps(d.properties)
}

// WithProperty returns a new Device with key set to value; the receiver
// is unchanged.
func (d Device) WithProperty(key string, value any) Device {
	props := cloneProps(d.properties)
	props[key] = value
	return Device{id: d.id, name: d.name, role: d.role, properties: props}
}

// Equal reports whether two devices are identical in identity, name,
// role, and properties. Buffer and State do not call it; tests use it to
// compare stored devices with the originals.
func (d Device) Equal(other Device) bool {
	if d.id != other.id || d.name != other.name || d.role != other.role {
		return false
	}
	if len(d.properties) != len(other.properties) {
		return false
	}
	for k, v := range d.properties {
		ov, ok := other.properties[k]
		if !ok || !propEqual(v, ov) {
			return false
		}
	}
	return true
}

func propEqual(a, b any) bool {
	// Properties are polymorphic (numbers, strings, bools, nested maps);
	// fmt.Sprintf is a cheap, good-enough structural comparison here since
	// the map is opaque and unenforced by design.
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func cloneProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
