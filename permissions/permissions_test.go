package permissions_test

import (
	"context"
	"testing"

	"github.com/johnwbyrd/aifand/device"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableCanonicalRules(t *testing.T) {
	m := permissions.Default()

	require.NoError(t, m.Check(permissions.RoleEnvironment, device.Sensor, "temp"))
	require.Error(t, m.Check(permissions.RoleEnvironment, device.Actuator, "fan"))
	require.NoError(t, m.Check(permissions.RoleController, device.Actuator, "fan"))
	require.Error(t, m.Check(permissions.RoleController, device.Sensor, "temp"))
	require.NoError(t, m.Check(permissions.RoleGeneric, device.Sensor, "temp"))
	require.NoError(t, m.Check(permissions.RoleGeneric, device.Actuator, "fan"))
}

func TestUnmatchedPairDefaultsToDeny(t *testing.T) {
	m := permissions.NewMatrix() // empty: nothing matches anything
	err := m.Check(permissions.RoleController, device.Actuator, "fan")
	require.Error(t, err)
	assert.True(t, permissions.IsPermissionDenied(err))
}

func TestCheckContextNoCurrentProcessIsUnconstrained(t *testing.T) {
	err := permissions.CheckContext(context.Background(), device.Sensor, "temp")
	assert.NoError(t, err)
}

func TestCheckContextUsesCurrentRoleAndMatrix(t *testing.T) {
	ctx := permissions.WithCurrentProcess(context.Background(), permissions.RoleController)
	err := permissions.CheckContext(ctx, device.Sensor, "temp")
	require.Error(t, err)

	var permErr *permissions.Error
	require.True(t, permissions.IsPermissionDenied(err))
	_ = permErr
}

func TestWithMatrixOverridesDefault(t *testing.T) {
	ctx := permissions.WithCurrentProcess(context.Background(), permissions.RoleController)
	custom := permissions.NewMatrix(permissions.Rule{Process: permissions.RoleController, Device: device.Sensor, Allow: true})
	ctx = permissions.WithMatrix(ctx, custom)
	require.NoError(t, permissions.CheckContext(ctx, device.Sensor, "temp"))
}

func TestErrorCarriesContext(t *testing.T) {
	m := permissions.NewMatrix()
	err := m.Check(permissions.RoleController, device.Sensor, "temp")
	var permErr *permissions.Error
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, permissions.RoleController, permErr.Process)
	assert.Equal(t, device.Sensor, permErr.Device)
	assert.Equal(t, "temp", permErr.Name)
}
