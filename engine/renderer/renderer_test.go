package renderer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendTable(t *testing.T) {
	assert.Equal(t, "Vulkan", BackendVulkan.String())
	assert.Equal(t, "WebGPU", BackendWebGPU.String())
	assert.Equal(t, "Headless", BackendHeadless.String())
	assert.Equal(t, filepath.Join("assets", "shaders", "vulkan", "default_main_vs.bin"), BackendVulkan.ShaderPath("assets", "default_main_vs"))
	assert.True(t, BackendWebGPU.ResizeOnVSyncChange())

	bt, err := ParseBackend("webgpu")
	require.NoError(t, err)
	assert.Equal(t, BackendWebGPU, bt)
	_, err = ParseBackend("--metal")
	assert.ErrorIs(t, err, core.ErrUnknownBackend)
}

func TestBackendFromArgs(t *testing.T) {
	bt, unknown, err := BackendFromArgs(nil, BackendVulkan)
	require.NoError(t, err)
	assert.Equal(t, BackendVulkan, bt)
	assert.Empty(t, unknown)

	bt, unknown, err = BackendFromArgs([]string{"--headless", "--fullscreen"}, BackendVulkan)
	require.NoError(t, err)
	assert.Equal(t, BackendHeadless, bt)
	assert.Equal(t, []string{"--fullscreen"}, unknown)

	// the same flag twice is not a conflict
	_, _, err = BackendFromArgs([]string{"--webgpu", "--webgpu"}, BackendVulkan)
	assert.NoError(t, err)

	_, _, err = BackendFromArgs([]string{"--vulkan", "--webgpu"}, BackendHeadless)
	assert.ErrorIs(t, err, core.ErrMultipleBackends)
}

func TestDefaultMessageCallback(t *testing.T) {
	assert.NoError(t, DefaultMessageCallback(metadata.MessageSeverityWarning, "slow path"))
	err := DefaultMessageCallback(metadata.MessageSeverityFatal, "device lost")
	assert.True(t, errors.Is(err, core.ErrFatalDevice))
}
