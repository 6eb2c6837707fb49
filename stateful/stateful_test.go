package stateful_test

import (
	"context"
	"testing"

	"github.com/johnwbyrd/aifand/clock"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/stateful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) Now() int64 { return f.t }

func TestInvalidConfigRejectedAtConstruction(t *testing.T) {
	_, err := stateful.New("p", permissions.RoleGeneric, 10, stateful.Config{BufferSizeLimit: 0})
	require.Error(t, err)

	_, err = stateful.New("p", permissions.RoleGeneric, 10, stateful.Config{BufferSizeLimit: 1, MaxAgeNs: -1})
	require.Error(t, err)
}

func TestAutoPruneBySize(t *testing.T) {
	p, err := stateful.New("p", permissions.RoleGeneric, 10, stateful.Config{
		BufferSizeLimit:  3,
		AutoPruneEnabled: true,
	})
	require.NoError(t, err)

	fc := &fakeClock{}
	ctx := clock.WithClock(context.Background(), fc)
	p.Initialize(ctx)

	for _, ts := range []int64{1, 2, 3, 4, 5} {
		fc.t = ts
		_, err := p.Execute(ctx, state.Bundle{})
		require.NoError(t, err)
	}

	snap := p.Buffer().Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].Timestamp, snap[1].Timestamp, snap[2].Timestamp})
}

func TestAutoPruneByAge(t *testing.T) {
	p, err := stateful.New("p", permissions.RoleGeneric, 10, stateful.Config{
		BufferSizeLimit:  100,
		AutoPruneEnabled: true,
		MaxAgeNs:         5,
	})
	require.NoError(t, err)

	fc := &fakeClock{}
	ctx := clock.WithClock(context.Background(), fc)
	p.Initialize(ctx)

	for _, ts := range []int64{0, 2, 4, 6, 8, 10} {
		fc.t = ts
		_, err := p.Execute(ctx, state.Bundle{})
		require.NoError(t, err)
	}

	// at t=10, entries older than 10-5=5 are dropped: keeps {6, 8, 10}
	snap := p.Buffer().Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, int64(6), snap[0].Timestamp)
}

func TestInitializeAllocatesFreshBuffer(t *testing.T) {
	p, err := stateful.New("p", permissions.RoleGeneric, 10, stateful.Config{BufferSizeLimit: 3})
	require.NoError(t, err)

	ctx := clock.WithClock(context.Background(), &fakeClock{t: 1})
	p.Initialize(ctx)
	_, err = p.Execute(ctx, state.Bundle{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Buffer().Count())

	p.Initialize(ctx)
	assert.Equal(t, 0, p.Buffer().Count(), "initialize must recreate the buffer")
}
