package hwaccel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcore/player/internal/errkind"
)

func TestPoolSizeFloorsAtMinimum(t *testing.T) {
	assert.Equal(t, minPoolSize, PoolSize(1, 1, 1))
	assert.Equal(t, 20, PoolSize(8, 8, 4))
}

func TestInitializeAlwaysYieldsSoftwareBackend(t *testing.T) {
	ctx, err := Initialize(BackendNone, 8, 6, 4, true)
	require.Nil(t, err)
	assert.Equal(t, BackendNone, ctx.Backend())
	assert.Equal(t, PoolSize(8, 6, 4), ctx.PoolSize())

	ctx, err = Initialize(BackendD3D11VA, 8, 6, 4, true)
	require.Nil(t, err)
	assert.Equal(t, BackendNone, ctx.Backend(), "no backend is implemented, so fallback always lands on BackendNone")
}

func TestInitializeRejectsUnavailableBackendWithoutFallback(t *testing.T) {
	ctx, err := Initialize(BackendDXVA2, 8, 6, 4, false)
	assert.Nil(t, ctx)
	require.NotNil(t, err)
	assert.Equal(t, errkind.DeviceInitFailed, err.Kind)
}

func TestAcquireReleaseRefcounting(t *testing.T) {
	ctx, err := Initialize(BackendNone, 8, 6, 4, true)
	require.Nil(t, err)

	ctx.Acquire()
	ctx.Acquire()
	assert.False(t, ctx.Release(), "two acquires means one release must not be the last one")
	assert.True(t, ctx.Release(), "second release drops the refcount to zero")
}

func TestBackendString(t *testing.T) {
	assert.Equal(t, "none", BackendNone.String())
	assert.Equal(t, "d3d11va", BackendD3D11VA.String())
	assert.Equal(t, "dxva2", BackendDXVA2.String())
}
