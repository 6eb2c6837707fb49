// Package stateful implements StatefulProcess (spec.md §4.8): a Process
// that records every input bundle into a Buffer with auto-pruning,
// leaving Think free to read history.
package stateful

import (
	"context"
	"fmt"

	"github.com/johnwbyrd/aifand/buffer"
	"github.com/johnwbyrd/aifand/clock"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/telemetry/metrics"
)

// Config bounds a StatefulProcess's Buffer.
type Config struct {
	BufferSizeLimit  int
	AutoPruneEnabled bool
	MaxAgeNs         int64
}

// Validate rejects an unusable Config at construction (spec.md §7.4:
// "configuration error ... Reject at construction").
func (c Config) Validate() error {
	if c.BufferSizeLimit < 1 {
		return fmt.Errorf("stateful: buffer_size_limit must be >= 1, got %d", c.BufferSizeLimit)
	}
	if c.MaxAgeNs < 0 {
		return fmt.Errorf("stateful: max_age_ns must be >= 0, got %d", c.MaxAgeNs)
	}
	return nil
}

// Process is a Process whose Initialize allocates a fresh Buffer and
// whose default ImportState records every tick's input, auto-pruned per
// Config. Concrete types embed *Process and set Think/ExportState (or
// DoExecute) to read the Buffer.
type Process struct {
	*process.Base

	config Config
	buf    *buffer.Buffer

	Metrics   metrics.Provider
	occupancy metrics.Gauge
}

// New returns a StatefulProcess with the given identity, role, tick
// interval, and buffer Config. The role is almost always RoleGeneric or
// RoleController — a StatefulProcess reading sensor history to drive
// actuators.
func New(name string, role permissions.ProcessRole, intervalNs int64, cfg Config) (*Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Process{
		Base:   process.NewBase(name, role, intervalNs),
		config: cfg,
	}
	p.Base.ImportState = p.importState
	return p, nil
}

// Buffer returns the process's history, for Think implementations and
// tests.
func (p *Process) Buffer() *buffer.Buffer { return p.buf }

// Initialize allocates a fresh Buffer (spec.md §4.8: "runtime-only,
// recreated on initialize") then resets the embedded Base's timing
// state.
func (p *Process) Initialize(ctx context.Context) {
	p.buf = buffer.New()
	p.Base.Initialize(ctx)
}

func (p *Process) importState(ctx context.Context, input state.Bundle) {
	now := clock.Now(ctx)
	p.buf.Store(now, input)
	if p.config.AutoPruneEnabled {
		if p.config.MaxAgeNs > 0 {
			p.buf.PruneBefore(now - p.config.MaxAgeNs)
		}
		p.buf.TrimToSize(p.config.BufferSizeLimit)
	}
	p.occupancyGauge().Set(float64(p.buf.Count()), p.Name())
}

// occupancyGauge lazily builds the buffer-occupancy instrument against
// whichever Provider is configured, falling back to a no-op Provider
// when none is set.
func (p *Process) occupancyGauge() metrics.Gauge {
	if p.occupancy != nil {
		return p.occupancy
	}
	pr := p.Metrics
	if pr == nil {
		pr = metrics.NewNoop()
	}
	p.occupancy = pr.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "aifand",
		Subsystem: "stateful",
		Name:      "buffer_occupancy",
		Help:      "Number of entries currently retained in a StatefulProcess's Buffer.",
		Labels:    []string{"process"},
	}})
	return p.occupancy
}
