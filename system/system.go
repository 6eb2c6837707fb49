// Package system implements System (spec.md §4.6): a Process that owns
// a priority queue of children keyed by next-due time and dispatches,
// in isolation, every child currently due on each tick. The queue is
// grounded on the container/heap idiom used by the corpus's own timer
// heap (joeycumines-go-utilpkg/eventloop/loop.go's timerHeap), combined
// with the teacher's per-child status bookkeeping reused from Pipeline.
package system

import (
	"container/heap"
	"context"
	"math"
	"sync"

	"github.com/johnwbyrd/aifand/clock"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/pipeline"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/telemetry/logging"
	"github.com/johnwbyrd/aifand/telemetry/metrics"
)

type entry struct {
	child process.Process
	due   int64
	seq   int64
}

// dueQueue implements heap.Interface, ordered by due time ascending and
// insertion sequence as the stable tie-break (spec.md §4.6: "dispatched
// in the order they were inserted into the queue").
type dueQueue []*entry

func (q dueQueue) Len() int { return len(q) }
func (q dueQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}
func (q dueQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *dueQueue) Push(x any)   { *q = append(*q, x.(*entry)) }
func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// System dispatches every child whose current next-due time has arrived,
// each in an empty bundle (state isolation), and is pass-through on its
// own input bundle.
type System struct {
	*process.Base

	mu      sync.Mutex
	q       dueQueue
	nextSeq int64
	status  map[string]*pipeline.ChildStatus
	metrics map[string]*pipeline.ChildMetrics

	Logger  logging.Logger
	Metrics metrics.Provider

	deniedCounter metrics.Counter
}

// New returns an empty System with the given name and tick interval.
// Each child is scheduled independently; the System's own interval sets
// its next-due time only while it has no children (see
// GetNextExecutionTime).
func New(name string, intervalNs int64) *System {
	s := &System{
		Base:    process.NewBase(name, permissions.RoleGeneric, intervalNs),
		status:  make(map[string]*pipeline.ChildStatus),
		metrics: make(map[string]*pipeline.ChildMetrics),
	}
	s.Base.DoExecute = s.doExecute
	return s
}

// deniedCounterInstrument lazily builds the permission-denial counter
// against whichever Provider is configured at first use, falling back
// to a no-op Provider when none is set.
func (s *System) deniedCounterInstrument() metrics.Counter {
	if s.deniedCounter != nil {
		return s.deniedCounter
	}
	p := s.Metrics
	if p == nil {
		p = metrics.NewNoop()
	}
	s.deniedCounter = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "aifand",
		Subsystem: "system",
		Name:      "permission_denied_total",
		Help:      "Count of child ticks aborted by a permission-denied error.",
		Labels:    []string{"system", "child"},
	}})
	return s.deniedCounter
}

// Append adds child to the priority queue, keyed by its current
// next-due time.
func (s *System) Append(child process.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{child: child, due: child.GetNextExecutionTime(), seq: s.nextSeq}
	s.nextSeq++
	heap.Push(&s.q, e)
	s.status[child.Name()] = &pipeline.ChildStatus{Name: child.Name()}
	s.metrics[child.Name()] = &pipeline.ChildMetrics{}
}

// Remove drops the named child from the queue, reporting whether it was
// present.
func (s *System) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.q {
		if e.child.Name() == name {
			heap.Remove(&s.q, i)
			delete(s.status, name)
			delete(s.metrics, name)
			return true
		}
	}
	return false
}

// Has reports whether a child with the given name is queued.
func (s *System) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Get returns the named child.
func (s *System) Get(name string) (process.Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.q {
		if e.child.Name() == name {
			return e.child, true
		}
	}
	return nil, false
}

// Count returns the number of queued children.
func (s *System) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q)
}

// ChildStatus returns a snapshot of the named child's status.
func (s *System) ChildStatus(name string) pipeline.ChildStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[name]; ok {
		return *st
	}
	return pipeline.ChildStatus{Name: name}
}

// ChildMetrics returns a snapshot of the named child's metrics.
func (s *System) ChildMetrics(name string) pipeline.ChildMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.metrics[name]; ok {
		return *m
	}
	return pipeline.ChildMetrics{}
}

// Initialize initializes the System itself, then every child, then
// recomputes each child's queue key from its post-initialize next-due
// time.
func (s *System) Initialize(ctx context.Context) {
	s.Base.Initialize(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.q {
		e.child.Initialize(ctx)
		e.due = e.child.GetNextExecutionTime()
	}
	heap.Init(&s.q)
}

// GetNextExecutionTime returns the earliest queued child's current
// next-due time, recomputed live since a child's interval may have
// changed since it was queued, or the System's own time if empty.
func (s *System) GetNextExecutionTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.q) == 0 {
		return s.Base.GetNextExecutionTime()
	}
	min := int64(math.MaxInt64)
	for _, e := range s.q {
		if d := e.child.GetNextExecutionTime(); d < min {
			min = d
		}
	}
	return min
}

func (s *System) doExecute(ctx context.Context, input state.Bundle) (state.Bundle, error) {
	now := clock.Now(ctx)

	s.mu.Lock()
	var due []*entry
	for len(s.q) > 0 {
		top := s.q[0]
		live := top.child.GetNextExecutionTime()
		if live != top.due {
			top.due = live
			heap.Fix(&s.q, 0)
			continue
		}
		if top.due > now {
			break
		}
		due = append(due, heap.Pop(&s.q).(*entry))
	}
	s.mu.Unlock()

	for i, e := range due {
		st := s.status[e.child.Name()]
		st.Active = true
		_, err := e.child.Execute(ctx, state.Bundle{})
		st.Active = false

		e.due = e.child.GetNextExecutionTime()
		e.seq = s.reserveSeq()

		s.mu.Lock()
		heap.Push(&s.q, e)
		s.mu.Unlock()

		m := s.metrics[e.child.Name()]
		if err != nil {
			m.Failed++
			if permissions.IsPermissionDenied(err) {
				s.deniedCounterInstrument().Inc(1, s.Name(), e.child.Name())
				s.requeueRemaining(due[i+1:])
				return input, err
			}
			if s.Logger != nil {
				s.Logger.WarnCtx(ctx, "system child tick failed, child re-queued",
					"system", s.Name(), "child", e.child.Name(), "error", err)
			}
			continue
		}
		m.Processed++
	}
	return input, nil
}

// requeueRemaining re-inserts children popped this tick but not yet
// executed, preserving the invariant that every child appears in the
// queue exactly once, even when a permission-denied error aborts the
// tick partway through the due list.
func (s *System) requeueRemaining(remaining []*entry) {
	if len(remaining) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range remaining {
		e.due = e.child.GetNextExecutionTime()
		e.seq = s.nextSeq
		s.nextSeq++
		heap.Push(&s.q, e)
	}
}

func (s *System) reserveSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq
}
