package system_test

import (
	"context"
	"testing"

	"github.com/johnwbyrd/aifand/clock"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.Clock for deterministic tests.
type fakeClock struct{ t int64 }

func (f *fakeClock) Now() int64 { return f.t }

func child(name string, intervalNs int64, fn func(ctx context.Context, in state.Bundle) (state.Bundle, error)) process.Process {
	b := process.NewBase(name, permissions.RoleGeneric, intervalNs)
	b.DoExecute = fn
	return b
}

func TestStateIsolationChildrenSeeEmptyBundle(t *testing.T) {
	s := system.New("sys", 10)
	var gotLen = -1
	s.Append(child("a", 10, func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		gotLen = len(in)
		return in.With("x", state.New()), nil
	}))

	fc := &fakeClock{t: 0}
	ctx := clock.WithClock(context.Background(), fc)
	s.Initialize(ctx)

	input := state.Bundle{"actual": state.New()}
	out, err := s.Execute(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 0, gotLen, "child must see an empty bundle, not the System's input")
	assert.Equal(t, input, out, "System is pass-through on its own input bundle")
}

func TestDispatchOrderStableOnTies(t *testing.T) {
	s := system.New("sys", 10)
	var order []string
	record := func(name string) func(context.Context, state.Bundle) (state.Bundle, error) {
		return func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
			order = append(order, name)
			return in, nil
		}
	}
	s.Append(child("first", 10, record("first")))
	s.Append(child("second", 10, record("second")))
	s.Append(child("third", 10, record("third")))

	fc := &fakeClock{t: 0}
	ctx := clock.WithClock(context.Background(), fc)
	s.Initialize(ctx)

	_, err := s.Execute(ctx, state.Bundle{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestChildPoppedExactlyOnceEvenIfStillDue(t *testing.T) {
	s := system.New("sys", 10)
	var runs int
	s.Append(child("a", 10, func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		runs++
		return in, nil
	}))

	fc := &fakeClock{t: 0}
	ctx := clock.WithClock(context.Background(), fc)
	s.Initialize(ctx)
	// At t=100 "a" is still due (next due 10) after its single run.
	fc.t = 100

	_, err := s.Execute(ctx, state.Bundle{})
	require.NoError(t, err)
	assert.Equal(t, 1, runs, "a due child runs once per tick even if it remains due after re-insertion")
	assert.Equal(t, 1, s.Count(), "child must still be queued exactly once")
}

func TestPermissionDeniedPropagatesAndRequeues(t *testing.T) {
	s := system.New("sys", 10)
	denyErr := &permissions.Error{Process: permissions.RoleEnvironment, Device: 1, Name: "fan0"}
	var ranB bool
	s.Append(child("a", 10, func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		return in, denyErr
	}))
	s.Append(child("b", 10, func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		ranB = true
		return in, nil
	}))

	fc := &fakeClock{t: 0}
	ctx := clock.WithClock(context.Background(), fc)
	s.Initialize(ctx)

	_, err := s.Execute(ctx, state.Bundle{})
	require.Error(t, err)
	assert.True(t, permissions.IsPermissionDenied(err))
	assert.False(t, ranB, "permission-denied aborts the remainder of the tick")
	assert.Equal(t, 2, s.Count(), "both children must still be queued exactly once")
	assert.True(t, s.Has("a"))
	assert.True(t, s.Has("b"))
}

func TestOtherErrorLogsAndChildIsRequeued(t *testing.T) {
	s := system.New("sys", 10)
	s.Append(child("a", 10, func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		return in, assertError{}
	}))

	fc := &fakeClock{t: 0}
	ctx := clock.WithClock(context.Background(), fc)
	s.Initialize(ctx)

	_, err := s.Execute(ctx, state.Bundle{})
	require.NoError(t, err, "non-permission child errors do not propagate from System")
	assert.True(t, s.Has("a"))
	assert.Equal(t, 1, s.ChildMetrics("a").Failed)
}

func TestIntervalChangeWhileQueuedIsReconfirmedAtPop(t *testing.T) {
	s := system.New("sys", 10)
	var ranA, ranB bool
	a := process.NewBase("a", permissions.RoleGeneric, 1000)
	a.DoExecute = func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		ranA = true
		return in, nil
	}
	s.Append(a)
	s.Append(child("b", 10, func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		ranB = true
		return in, nil
	}))

	fc := &fakeClock{t: 0}
	ctx := clock.WithClock(context.Background(), fc)
	s.Initialize(ctx)

	// Both children first run at t=0, which re-queues "a" due at t=1000,
	// well after "b"'s t=10.
	_, err := s.Execute(ctx, state.Bundle{})
	require.NoError(t, err)
	ranA, ranB = false, false

	// Shrinking "a"'s interval after queuing must be honored at pop time,
	// not only on the next Append/Initialize.
	a.SetIntervalNs(5)
	fc.t = 10

	_, err = s.Execute(ctx, state.Bundle{})
	require.NoError(t, err)
	assert.True(t, ranA, "child's shortened interval must be reconfirmed live at pop, not read from its stale queued due time")
	assert.True(t, ranB)
}

type assertError struct{}

func (assertError) Error() string { return "transient" }
