// Package fixed implements FixedSpeedController (spec.md §4.11), the
// exemplar Controller: a stateless Controller that writes configured
// constant values into desired's actuators, overriding only Think.
//
// Its partial-application behavior is grounded on
// original_source/src/aifand/controllers/fixed.py: an actuator the
// controller was not configured for is left untouched, while a
// configured actuator absent from desired is manufactured fresh rather
// than skipped, matching fixed.py's unconditional
// Actuator(name=actuator_name, properties={"value": fixed_value}).
package fixed

import (
	"context"
	"fmt"

	"github.com/johnwbyrd/aifand/controller"
	"github.com/johnwbyrd/aifand/device"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
)

// Controller writes Targets' values into desired's matching actuators.
type Controller struct {
	*process.Base

	Targets map[string]float64

	bundle state.Bundle
}

// New returns a FixedSpeedController. Configuration is validated at
// construction (spec.md §7.4): targets must be non-empty, and every
// value must fall within [min, max] if the actuator carries those
// properties — deferred to Think since the bundle (and thus the
// actuator's bounds) is not known until a tick runs; here only the
// trivially-checkable emptiness is rejected.
func New(name string, intervalNs int64, targets map[string]float64) (*Controller, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("fixed: targets must be non-empty")
	}
	cp := make(map[string]float64, len(targets))
	for k, v := range targets {
		cp[k] = v
	}
	c := &Controller{Base: controller.New(name, intervalNs), Targets: cp}
	c.Base.ImportState = c.importState
	c.Base.Think = c.think
	c.Base.ExportState = c.exportState
	return c, nil
}

func (c *Controller) importState(ctx context.Context, input state.Bundle) {
	c.bundle = input
}

func (c *Controller) think(ctx context.Context) {
	desired, ok := c.bundle.Get("desired")
	if !ok {
		return
	}
	for name, target := range c.Targets {
		actuator, ok := desired.Get(name)
		if ok {
			if actuator.IsSensor() {
				continue
			}
			if min, ok := actuator.Property("min"); ok {
				if f, ok := min.(float64); ok && target < f {
					continue
				}
			}
			if max, ok := actuator.Property("max"); ok {
				if f, ok := max.(float64); ok && target > f {
					continue
				}
			}
			updated, err := desired.WithDevice(ctx, actuator.WithProperty("desire", target))
			if err == nil {
				desired = updated
			}
			continue
		}
		fresh := device.New(device.Actuator, name, map[string]any{"desire": target})
		updated, err := desired.WithDevice(ctx, fresh)
		if err == nil {
			desired = updated
		}
	}
	c.bundle = c.bundle.With("desired", desired)
}

func (c *Controller) exportState(ctx context.Context) state.Bundle {
	return c.bundle
}
