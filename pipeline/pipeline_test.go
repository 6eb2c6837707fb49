package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/pipeline"
	"github.com/johnwbyrd/aifand/process"
	"github.com/johnwbyrd/aifand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(name string, fn func(ctx context.Context, in state.Bundle) (state.Bundle, error)) process.Process {
	b := process.NewBase(name, permissions.RoleGeneric, 10)
	b.DoExecute = fn
	return b
}

func TestSerialThreading(t *testing.T) {
	p := pipeline.New("p", 10)
	p.Append(stage("a", func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		return in.With("a", state.New()), nil
	}))
	p.Append(stage("b", func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		_, ok := in.Get("a")
		require.True(t, ok, "b must see a's output")
		return in.With("b", state.New()), nil
	}))

	p.Initialize(context.Background())
	out, err := p.Execute(context.Background(), state.Bundle{})
	require.NoError(t, err)
	assert.Equal(t, 2, len(out))
}

func TestPermissionDeniedAborts(t *testing.T) {
	p := pipeline.New("p", 10)
	var ranC bool
	p.Append(stage("a", func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		return in, &permissions.Error{Process: permissions.RoleEnvironment, Device: 1, Name: "fan0"}
	}))
	p.Append(stage("c", func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		ranC = true
		return in, nil
	}))

	p.Initialize(context.Background())
	_, err := p.Execute(context.Background(), state.Bundle{})
	require.Error(t, err)
	assert.True(t, permissions.IsPermissionDenied(err))
	assert.False(t, ranC, "permission-denied must abort the tick")
}

func TestOtherErrorLogsAndContinues(t *testing.T) {
	p := pipeline.New("p", 10)
	p.Append(stage("a", func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		return in.With("a", state.New()), errors.New("transient")
	}))
	var sawB bool
	p.Append(stage("b", func(ctx context.Context, in state.Bundle) (state.Bundle, error) {
		sawB = true
		_, ok := in.Get("a")
		assert.False(t, ok, "b must see the pre-error bundle")
		return in, nil
	}))

	p.Initialize(context.Background())
	_, err := p.Execute(context.Background(), state.Bundle{})
	require.NoError(t, err)
	assert.True(t, sawB)
	assert.Equal(t, 1, p.ChildMetrics("a").Failed)
}

func TestAppendRemoveHasGetCount(t *testing.T) {
	p := pipeline.New("p", 10)
	assert.Equal(t, 0, p.Count())
	p.Append(stage("a", nil))
	assert.True(t, p.Has("a"))
	assert.Equal(t, 1, p.Count())
	assert.True(t, p.Remove("a"))
	assert.False(t, p.Has("a"))
}
