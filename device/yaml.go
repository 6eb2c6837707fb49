package device

import (
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

func parseOrNewID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

// envelope is the self-describing YAML/JSON-equivalent wire shape for a
// Device (spec.md §6 "persisted state layout"). Kind carries the role as
// a string so the format stays human-editable.
type envelope struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"kind"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (d Device) MarshalYAML() (any, error) {
	return envelope{
		ID:         d.id.String(),
		Name:       d.name,
		Kind:       d.role.String(),
		Properties: d.properties,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. The polymorphic property
// map (numbers, strings, booleans, nested maps) is decoded with yaml.v3's
// generic map[string]any decoding, which keeps YAML integers as int and
// floats as float64.
func (d *Device) UnmarshalYAML(value *yaml.Node) error {
	var env envelope
	if err := value.Decode(&env); err != nil {
		return err
	}
	id, err := parseOrNewID(env.ID)
	if err != nil {
		return err
	}
	role := Sensor
	if env.Kind == "actuator" {
		role = Actuator
	}
	d.id = id
	d.name = env.Name
	d.role = role
	d.properties = cloneProps(env.Properties)
	return nil
}
