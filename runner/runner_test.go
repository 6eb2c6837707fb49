package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/johnwbyrd/aifand/clock"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/runner"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingChild(name string, intervalNs int64) process.Process {
	b := process.NewBase(name, permissions.RoleGeneric, intervalNs)
	b.DoExecute = func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		return in, nil
	}
	return b
}

func TestSystemIndependentTiming(t *testing.T) {
	sys := system.New("sys", 10)
	p1 := countingChild("p1", 10*int64(time.Millisecond))
	p2 := countingChild("p2", 30*int64(time.Millisecond))
	p3 := countingChild("p3", 70*int64(time.Millisecond))
	sys.Append(p1)
	sys.Append(p2)
	sys.Append(p3)

	r := runner.NewVirtualRunner(sys)
	r.RunFor(context.Background(), 210*time.Millisecond, 0)

	assert.Equal(t, int64(21), p1.ExecutionCount())
	assert.Equal(t, int64(7), p2.ExecutionCount())
	assert.Equal(t, int64(3), p3.ExecutionCount())
}

func TestSimultaneousReadinessIdenticalTimestamps(t *testing.T) {
	sys := system.New("sys", 10)
	const n = 30
	var timestamps [n][]int64
	for i := 0; i < n; i++ {
		idx := i
		b := process.NewBase("child", permissions.RoleGeneric, 50*int64(time.Millisecond))
		b.DoExecute = func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
			timestamps[idx] = append(timestamps[idx], nowFromCtx(ctx))
			return in, nil
		}
		sys.Append(b)
	}

	r := runner.NewVirtualRunner(sys)
	r.RunFor(context.Background(), 500*time.Millisecond, 0)

	for i := 0; i < n; i++ {
		require.Len(t, timestamps[i], 10, "child %d execution count", i)
	}
	for i := 1; i < n; i++ {
		assert.Equal(t, timestamps[0], timestamps[i], "every child must tick at identical timestamps")
	}
	expected := make([]int64, 10)
	for i := range expected {
		expected[i] = int64(i) * 50 * int64(time.Millisecond)
	}
	assert.Equal(t, expected, timestamps[0])
}

func TestCoprimeHarmonics(t *testing.T) {
	sys := system.New("sys", 10)
	var sevenTimestamps []int64
	seven := process.NewBase("seven", permissions.RoleGeneric, 7*int64(time.Millisecond))
	seven.DoExecute = func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		sevenTimestamps = append(sevenTimestamps, nowFromCtx(ctx))
		return in, nil
	}
	eleven := countingChild("eleven", 11*int64(time.Millisecond))
	sys.Append(seven)
	sys.Append(eleven)

	r := runner.NewVirtualRunner(sys)
	r.RunFor(context.Background(), 231*time.Millisecond, 0)

	assert.Equal(t, int64(33), seven.ExecutionCount())
	assert.Equal(t, int64(21), eleven.ExecutionCount())

	first10 := sevenTimestamps[:10]
	expected := make([]int64, 10)
	for i := range expected {
		expected[i] = int64(i) * 7 * int64(time.Millisecond)
	}
	assert.Equal(t, expected, first10)
}

func nowFromCtx(ctx context.Context) int64 {
	return clock.Now(ctx)
}

func TestWallRunnerStartStop(t *testing.T) {
	var ticks int
	b := process.NewBase("p", permissions.RoleGeneric, int64(5*time.Millisecond))
	b.DoExecute = func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		ticks++
		return in, nil
	}

	r := runner.NewWallRunner(b)
	assert.False(t, r.IsRunning())
	r.Start(context.Background())
	assert.True(t, r.IsRunning())
	time.Sleep(40 * time.Millisecond)
	r.Stop()
	assert.False(t, r.IsRunning())
	assert.Greater(t, ticks, 0)
}

func TestVirtualRunnerStartIsAnError(t *testing.T) {
	b := process.NewBase("p", permissions.RoleGeneric, 10)
	r := runner.NewVirtualRunner(b)
	require.Error(t, r.Start(context.Background()))
}
