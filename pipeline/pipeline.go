// Package pipeline implements Pipeline (spec.md §4.5): a Process that
// owns an ordered sequence of child Processes and threads a bundle
// through them serially on each tick. Per-child bookkeeping is grounded
// directly on the teacher's multi-stage worker pipeline
// (engine/internal/pipeline/pipeline.go), whose StageStatus/StageMetrics
// shape is reused here renamed to per-child, even though this Pipeline
// is single-threaded (spec.md §5) rather than worker-pool based.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/telemetry/logging"
	"github.com/johnwbyrd/aifand/telemetry/metrics"
)

// ChildStatus reports whether a child is currently executing, mirroring
// the teacher's StageStatus.
type ChildStatus struct {
	Name   string
	Active bool
}

// ChildMetrics accumulates per-child tick outcomes, mirroring the
// teacher's StageMetrics.
type ChildMetrics struct {
	Processed int
	Failed    int
	AvgTime   time.Duration
}

// Pipeline threads a bundle through an ordered list of children
// left-to-right: each child's output becomes the next child's input.
type Pipeline struct {
	*process.Base

	children []process.Process
	status   map[string]*ChildStatus
	metrics  map[string]*ChildMetrics

	Logger  logging.Logger
	Metrics metrics.Provider

	childDuration metrics.Histogram
}

// New returns an empty Pipeline with the given name and tick interval.
func New(name string, intervalNs int64) *Pipeline {
	p := &Pipeline{
		Base:    process.NewBase(name, permissions.RoleGeneric, intervalNs),
		status:  make(map[string]*ChildStatus),
		metrics: make(map[string]*ChildMetrics),
	}
	p.Base.DoExecute = p.doExecute
	return p
}

// Append adds child to the end of the ordered list.
func (p *Pipeline) Append(child process.Process) {
	p.children = append(p.children, child)
	p.status[child.Name()] = &ChildStatus{Name: child.Name()}
	p.metrics[child.Name()] = &ChildMetrics{}
}

// Remove drops the named child, reporting whether it was present.
func (p *Pipeline) Remove(name string) bool {
	for i, c := range p.children {
		if c.Name() == name {
			p.children = append(p.children[:i], p.children[i+1:]...)
			delete(p.status, name)
			delete(p.metrics, name)
			return true
		}
	}
	return false
}

// Has reports whether a child with the given name is present.
func (p *Pipeline) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Get returns the named child.
func (p *Pipeline) Get(name string) (process.Process, bool) {
	for _, c := range p.children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Count returns the number of children.
func (p *Pipeline) Count() int { return len(p.children) }

// ChildStatus returns a snapshot of the named child's status.
func (p *Pipeline) ChildStatus(name string) ChildStatus {
	if s, ok := p.status[name]; ok {
		return *s
	}
	return ChildStatus{Name: name}
}

// ChildMetrics returns a snapshot of the named child's metrics.
func (p *Pipeline) ChildMetrics(name string) ChildMetrics {
	if m, ok := p.metrics[name]; ok {
		return *m
	}
	return ChildMetrics{}
}

// Initialize initializes the Pipeline itself, then every child in
// order.
func (p *Pipeline) Initialize(ctx context.Context) {
	p.Base.Initialize(ctx)
	for _, c := range p.children {
		c.Initialize(ctx)
	}
}

// childDurationInstrument lazily builds the per-child duration
// histogram against whichever Provider is configured, falling back to
// a no-op Provider when none is set.
func (p *Pipeline) childDurationInstrument() metrics.Histogram {
	if p.childDuration != nil {
		return p.childDuration
	}
	pr := p.Metrics
	if pr == nil {
		pr = metrics.NewNoop()
	}
	p.childDuration = pr.NewHistogram(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "aifand",
		Subsystem: "pipeline",
		Name:      "child_duration_ns",
		Help:      "Duration of one child's tick within a Pipeline, in nanoseconds.",
		Labels:    []string{"pipeline", "child"},
	}})
	return p.childDuration
}

func (p *Pipeline) doExecute(ctx context.Context, input state.Bundle) (state.Bundle, error) {
	bundle := input
	for _, c := range p.children {
		st := p.status[c.Name()]
		st.Active = true
		start := time.Now()

		out, err := c.Execute(ctx, bundle)

		elapsed := time.Since(start)
		st.Active = false
		p.childDurationInstrument().Observe(float64(elapsed.Nanoseconds()), p.Name(), c.Name())
		m := p.metrics[c.Name()]
		m.AvgTime = avgTime(m, elapsed)

		if err != nil {
			if permissions.IsPermissionDenied(err) {
				m.Failed++
				return bundle, fmt.Errorf("pipeline %q: child %q: %w", p.Name(), c.Name(), err)
			}
			m.Failed++
			if p.Logger != nil {
				p.Logger.WarnCtx(ctx, "pipeline child tick failed, continuing with prior bundle",
					"pipeline", p.Name(), "child", c.Name(), "error", err)
			}
			continue
		}
		m.Processed++
		bundle = out
	}
	return bundle, nil
}

func avgTime(m *ChildMetrics, sample time.Duration) time.Duration {
	n := m.Processed + m.Failed
	if n == 0 {
		return sample
	}
	return (m.AvgTime*time.Duration(n) + sample) / time.Duration(n+1)
}
