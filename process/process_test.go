package process_test

import (
	"context"
	"errors"
	"testing"

	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteIncrementsExecutionCountOnlyOnSuccess(t *testing.T) {
	b := process.NewBase("p", permissions.RoleGeneric, 10)
	b.Initialize(context.Background())

	fail := true
	b.DoExecute = func(ctx context.Context, input state.Bundle) (state.Bundle, error) {
		if fail {
			return state.Bundle{}, errors.New("boom")
		}
		return state.Bundle{}, nil
	}

	_, err := b.Execute(context.Background(), state.Bundle{})
	require.Error(t, err)
	assert.Equal(t, int64(0), b.ExecutionCount())

	fail = false
	_, err = b.Execute(context.Background(), state.Bundle{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.ExecutionCount())
}

func TestDefaultThreePhasePatternNoOps(t *testing.T) {
	b := process.NewBase("p", permissions.RoleGeneric, 10)
	b.Initialize(context.Background())

	out, err := b.Execute(context.Background(), state.Bundle{"actual": state.New()})
	require.NoError(t, err)
	assert.Equal(t, 0, len(out), "default export_state returns an empty bundle")
}

func TestThreePhaseHooksCalledInOrder(t *testing.T) {
	b := process.NewBase("p", permissions.RoleGeneric, 10)
	b.Initialize(context.Background())

	var calls []string
	b.ImportState = func(ctx context.Context, input state.Bundle) { calls = append(calls, "import") }
	b.Think = func(ctx context.Context) { calls = append(calls, "think") }
	b.ExportState = func(ctx context.Context) state.Bundle {
		calls = append(calls, "export")
		return state.Bundle{}
	}

	_, err := b.Execute(context.Background(), state.Bundle{})
	require.NoError(t, err)
	assert.Equal(t, []string{"import", "think", "export"}, calls)
}

func TestGetNextExecutionTimeDefaultFormula(t *testing.T) {
	b := process.NewBase("p", permissions.RoleGeneric, 100)
	b.Initialize(context.Background())
	b.DoExecute = func(ctx context.Context, input state.Bundle) (state.Bundle, error) {
		return state.Bundle{}, nil
	}

	first := b.GetNextExecutionTime()
	_, err := b.Execute(context.Background(), state.Bundle{})
	require.NoError(t, err)
	assert.Equal(t, first+100, b.GetNextExecutionTime())
}

func TestRequestStop(t *testing.T) {
	b := process.NewBase("p", permissions.RoleGeneric, 10)
	assert.False(t, b.StopRequested())
	b.RequestStop()
	assert.True(t, b.StopRequested())
}
