// Package runner implements Runner (spec.md §4.7): owns a root Process
// and a virtual-or-real clock, drives ticks, and registers itself as the
// active clock for the tree it owns via the clock package's
// context-carried handle (spec.md §9's resolution of the task-local
// "current Runner" requirement).
//
// WallRunner and VirtualRunner share the teacher's production/virtual
// split already present in engine/ratelimit/clock.go's Clock{Now,Sleep}
// abstraction, generalized here to drive an entire process tree instead
// of one rate limiter.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/johnwbyrd/aifand/clock"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/telemetry/logging"
	"github.com/johnwbyrd/aifand/telemetry/metrics"
)

// sleepQuantum bounds WallRunner's cooperative sleep so Stop returns
// within one quantum (spec.md §4.7).
const sleepQuantum = 100 * time.Millisecond

// tick runs one Runner iteration against root, logging (not
// propagating) any error — permission-denied is treated identically to
// every other exception by the Runner (spec.md §7: "a programming error
// but not a reason to halt the loop in production"). Duration is
// measured on the real wall clock regardless of which domain clock ctx
// carries, since VirtualRunner's domain time advances instantly.
func tick(ctx context.Context, root process.Process, logger logging.Logger, tickDuration metrics.Histogram) {
	start := time.Now()
	_, err := root.Execute(ctx, state.Bundle{})
	if tickDuration != nil {
		tickDuration.Observe(float64(time.Since(start).Nanoseconds()), root.Name())
	}
	if err == nil || logger == nil {
		return
	}
	if permissions.IsPermissionDenied(err) {
		logger.ErrorCtx(ctx, "runner tick: permission denied", "root", root.Name(), "error", err)
		return
	}
	logger.WarnCtx(ctx, "runner tick failed, continuing", "root", root.Name(), "error", err)
}

// tickDurationHistogram builds the shared tick-duration instrument for a
// Runner, falling back to a no-op Provider when none is configured.
func tickDurationHistogram(p metrics.Provider) metrics.Histogram {
	if p == nil {
		p = metrics.NewNoop()
	}
	return p.NewHistogram(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "aifand",
		Subsystem: "runner",
		Name:      "tick_duration_ns",
		Help:      "Wall-clock duration of one root Process tick, in nanoseconds.",
		Labels:    []string{"process"},
	}})
}

// WallRunner drives root on the real monotonic clock with a cooperative
// sleep loop.
type WallRunner struct {
	root    process.Process
	Logger  logging.Logger
	Metrics metrics.Provider

	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	tickDuration metrics.Histogram
	runningGauge metrics.Gauge
}

// NewWallRunner returns a WallRunner for root.
func NewWallRunner(root process.Process) *WallRunner {
	return &WallRunner{root: root}
}

// Now returns the current real time in nanoseconds.
func (r *WallRunner) Now() int64 { return clock.System{}.Now() }

// IsRunning reports whether the background loop is active.
func (r *WallRunner) IsRunning() bool { return r.running }

// Start initializes root and launches the tick loop on a background
// goroutine. Calling Start while already running is a no-op.
func (r *WallRunner) Start(ctx context.Context) {
	if r.running {
		return
	}
	ctx = clock.WithClock(ctx, clock.System{})
	r.root.Initialize(ctx)

	r.tickDuration = tickDurationHistogram(r.Metrics)
	if r.runningGauge == nil {
		p := r.Metrics
		if p == nil {
			p = metrics.NewNoop()
		}
		r.runningGauge = p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "aifand",
			Subsystem: "runner",
			Name:      "running",
			Help:      "1 while a WallRunner's tick loop is active, 0 otherwise.",
			Labels:    []string{"process"},
		}})
	}
	r.runningGauge.Set(1, r.root.Name())

	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.running = true

	go r.loop(ctx)
}

// Stop signals the loop to exit and blocks until it has, returning
// within one sleepQuantum.
func (r *WallRunner) Stop() {
	if !r.running {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.running = false
	r.runningGauge.Set(0, r.root.Name())
}

func (r *WallRunner) loop(ctx context.Context) {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		next := r.root.GetNextExecutionTime()
		if !r.waitUntil(ctx, next) {
			return
		}
		tick(ctx, r.root, r.Logger, r.tickDuration)
	}
}

// waitUntil cooperatively sleeps in sleepQuantum chunks until now() >=
// target, returning false if Stop was signaled meanwhile.
func (r *WallRunner) waitUntil(ctx context.Context, target int64) bool {
	for {
		remaining := time.Duration(target - r.Now())
		if remaining <= 0 {
			return true
		}
		wait := remaining
		if wait > sleepQuantum {
			wait = sleepQuantum
		}
		select {
		case <-r.stopCh:
			return false
		case <-time.After(wait):
		}
	}
}

// VirtualRunner drives root on an internal clock that advances instantly
// to each next-due time, for deterministic tests (spec.md §4.7).
type VirtualRunner struct {
	root    process.Process
	now     int64
	Logger  logging.Logger
	Metrics metrics.Provider

	tickDuration metrics.Histogram
}

// NewVirtualRunner returns a VirtualRunner for root.
func NewVirtualRunner(root process.Process) *VirtualRunner {
	return &VirtualRunner{root: root}
}

// Now returns the runner's current virtual time in nanoseconds.
func (r *VirtualRunner) Now() int64 { return r.now }

// Start is always an error: VirtualRunner has no background worker
// (spec.md §4.7: "It does not start a background worker; start() is an
// error").
func (r *VirtualRunner) Start(ctx context.Context) error {
	return fmt.Errorf("virtualrunner: Start is not supported, use RunFor")
}

// RunFor initializes root (on first call) and advances the virtual
// clock instantly to each next-due time, invoking Execute, until the
// clock reaches the starting time plus duration or maxDurationNs (a
// safety ceiling; 0 means no ceiling) is hit, whichever comes first.
func (r *VirtualRunner) RunFor(ctx context.Context, duration time.Duration, maxDurationNs int64) {
	ctx = clock.WithClock(ctx, clockFunc(r.Now))
	if r.tickDuration == nil {
		// First call: initialize root and build the instrument once.
		r.root.Initialize(ctx)
		r.tickDuration = tickDurationHistogram(r.Metrics)
	}

	start := r.now
	deadline := start + int64(duration)
	var ceiling int64 = -1
	if maxDurationNs > 0 {
		ceiling = start + maxDurationNs
	}

	for {
		next := r.root.GetNextExecutionTime()
		if next >= deadline {
			return
		}
		if ceiling >= 0 && next > ceiling {
			if r.Logger != nil {
				r.Logger.ErrorCtx(ctx, "virtualrunner: safety ceiling reached, halting run", "root", r.root.Name())
			}
			return
		}
		r.now = next
		tick(ctx, r.root, r.Logger, r.tickDuration)
	}
}

// clockFunc adapts a plain func() int64 to clock.Clock.
type clockFunc func() int64

func (f clockFunc) Now() int64 { return f() }
