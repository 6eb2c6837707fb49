// Package process implements the abstract tick-based execution unit
// (spec.md §4.4): Execute is a template method over the three-phase
// ImportState/Think/ExportState pattern, expressed with function-field
// hooks in place of virtual dispatch, the same hookable-phase shape the
// teacher's worker pipeline (engine/internal/pipeline/pipeline.go) uses
// for its discovery/extraction/processing/output stages.
package process

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/johnwbyrd/aifand/clock"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/telemetry/logging"
	"github.com/johnwbyrd/aifand/telemetry/tracing"
)

// DefaultInterval is the default tick period (spec.md §3).
const DefaultInterval = 100 * time.Millisecond

// Role aliases the permission matrix's process-role enum; Process
// carries exactly one, consumed solely by the PermissionMatrix, never by
// scheduling.
type Role = permissions.ProcessRole

// Process is the contract Pipeline and System hold their children
// through.
type Process interface {
	Execute(ctx context.Context, input state.Bundle) (state.Bundle, error)
	Initialize(ctx context.Context)
	GetNextExecutionTime() int64
	Name() string
	Role() Role
	IntervalNs() int64
	ExecutionCount() int64
	StopRequested() bool
	RequestStop()
}

// ImportStateFunc stores or transforms an incoming bundle, typically by
// mutating state captured in the enclosing concrete Process.
type ImportStateFunc func(ctx context.Context, input state.Bundle)

// ThinkFunc computes using only the concrete Process's own captured
// state.
type ThinkFunc func(ctx context.Context)

// ExportStateFunc returns the outgoing bundle.
type ExportStateFunc func(ctx context.Context) state.Bundle

// DoExecuteFunc overrides the whole three-phase pattern for one-shot
// logic (e.g. Pipeline, System).
type DoExecuteFunc func(ctx context.Context, input state.Bundle) (state.Bundle, error)

// Base is the embeddable core every concrete Process builds on. Concrete
// types set the function-field hooks they need in their constructor;
// unset hooks default to the spec's no-op phases (spec.md §4.4: "Default
// import_state and think do nothing; default export_state returns an
// empty bundle").
type Base struct {
	name       string
	role       Role
	intervalNs int64

	startTime      int64
	executionCount int64
	stopRequested  atomic.Bool

	Tracer tracing.Tracer
	Logger logging.Logger

	DoExecute   DoExecuteFunc
	ImportState ImportStateFunc
	Think       ThinkFunc
	ExportState ExportStateFunc
}

// NewBase returns a Base with the given identity, role, and tick
// interval. Passing intervalNs <= 0 selects DefaultInterval.
func NewBase(name string, role Role, intervalNs int64) *Base {
	if intervalNs <= 0 {
		intervalNs = int64(DefaultInterval)
	}
	return &Base{name: name, role: role, intervalNs: intervalNs}
}

func (b *Base) Name() string     { return b.name }
func (b *Base) Role() Role       { return b.role }
func (b *Base) IntervalNs() int64 { return b.intervalNs }

// SetIntervalNs updates the tick period; System re-reads it on every
// GetNextExecutionTime scan, so a running child's cadence can change
// without reinitializing the tree.
func (b *Base) SetIntervalNs(intervalNs int64) {
	if intervalNs <= 0 {
		intervalNs = int64(DefaultInterval)
	}
	atomic.StoreInt64(&b.intervalNs, intervalNs)
}

func (b *Base) ExecutionCount() int64 { return atomic.LoadInt64(&b.executionCount) }
func (b *Base) StopRequested() bool   { return b.stopRequested.Load() }
func (b *Base) RequestStop()          { b.stopRequested.Store(true) }

// Initialize resets timing state. Containers must cascade this call to
// every child (spec.md §4.4).
func (b *Base) Initialize(ctx context.Context) {
	b.startTime = now(ctx)
	atomic.StoreInt64(&b.executionCount, 0)
	b.stopRequested.Store(false)
}

// GetNextExecutionTime is the default start_time + execution_count *
// interval_ns formula. Pipeline uses it unmodified; System overrides it
// with its earliest child's due time and falls back to this formula only
// while it has no children.
func (b *Base) GetNextExecutionTime() int64 {
	return b.startTime + b.ExecutionCount()*atomic.LoadInt64(&b.intervalNs)
}

// Execute is the tick template method: it marks ctx as executing inside
// this Process's role (the PermissionMatrix's enforcement hook, spec.md
// §4.3), runs the three-phase pattern (or the DoExecute override), and
// increments execution_count only on success. On error, execution_count
// is unchanged and the error propagates to the caller unchanged.
func (b *Base) Execute(ctx context.Context, input state.Bundle) (state.Bundle, error) {
	ctx = permissions.WithCurrentProcess(ctx, b.role)

	if b.Tracer != nil {
		tickCtx, endSpan := b.startSpan(ctx)
		ctx = tickCtx
		defer endSpan()
	}

	output, err := b.doExecute(ctx, input)
	if err != nil {
		if b.Logger != nil {
			b.Logger.ErrorCtx(ctx, "process tick failed", "process", b.name, "error", err)
		}
		return output, err
	}
	atomic.AddInt64(&b.executionCount, 1)
	return output, nil
}

func (b *Base) startSpan(ctx context.Context) (context.Context, func()) {
	tickCtx, span := b.Tracer.StartTick(ctx, b.name)
	return tickCtx, func() { span.End() }
}

func (b *Base) doExecute(ctx context.Context, input state.Bundle) (state.Bundle, error) {
	if b.DoExecute != nil {
		return b.DoExecute(ctx, input)
	}
	if b.ImportState != nil {
		b.ImportState(ctx, input)
	}
	if b.Think != nil {
		b.Think(ctx)
	}
	if b.ExportState != nil {
		return b.ExportState(ctx), nil
	}
	return state.Bundle{}, nil
}

// now resolves the active Runner's clock, falling back to monotonic
// system time (spec.md §4.4's now()).
func now(ctx context.Context) int64 {
	return clock.Now(ctx)
}
