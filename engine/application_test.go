package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultApplicationConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, renderer.BackendVulkan, config.BackendType())
	assert.Equal(t, 16*time.Millisecond, config.FrameSleep())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name = "Demo"
backend = "headless"
log_level = "debug"
max_frames = 10
vsync = true

[scene]
models = ["models/box.gltf", "models/duck.glb"]

[[scene.entities]]
model = 1
translation = [1.0, 2.0, 3.0]
`)
	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Demo", config.Name)
	assert.Equal(t, renderer.BackendHeadless, config.BackendType())
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, uint64(10), config.MaxFrames)
	assert.True(t, config.VSync)
	// untouched keys keep their default
	assert.Equal(t, uint32(1600), config.StartWidth)
	assert.Equal(t, "assets", config.AssetsDir)

	require.Len(t, config.Scene.Models, 2)
	require.Len(t, config.Scene.Entities, 1)
	assert.Equal(t, 1, config.Scene.Entities[0].Model)
	assert.Equal(t, [3]float32{1, 2, 3}, config.Scene.Entities[0].Translation)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend":      `backend = "metal"`,
		"log level":    `log_level = "loud"`,
		"window size":  `start_width = 0`,
		"frames":       `max_frames_in_flight = 0`,
		"entities":     `max_entities = 0`,
		"too many":     "max_entities = 1\n[scene]\nmodels = [\"a.glb\"]\n[[scene.entities]]\nmodel = 0\n[[scene.entities]]\nmodel = 0\n",
		"entity model": "[[scene.entities]]\nmodel = 0\n",
		"syntax":       `name = `,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadApplicationConfig(writeConfig(t, contents))
			assert.Error(t, err)
		})
	}
}

func TestResolveConfig(t *testing.T) {
	_, err := ResolveApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	// no explicit path and no lumen.toml in the working directory
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	config, err := ResolveApplicationConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultApplicationConfig(), config)

	require.NoError(t, os.WriteFile(DefaultConfigPath, []byte(`name = "Local"`), 0o644))
	config, err = ResolveApplicationConfig("")
	require.NoError(t, err)
	assert.Equal(t, "Local", config.Name)
}

func TestDeviceParameters(t *testing.T) {
	config := DefaultApplicationConfig()
	config.StartWidth = 320
	config.StartHeight = 200
	config.VSync = true
	config.MaxFramesInFlight = 3
	config.SwapChainBufferCount = 0

	params := config.DeviceParameters()
	assert.Equal(t, uint32(320), params.BackBufferWidth)
	assert.Equal(t, uint32(200), params.BackBufferHeight)
	assert.True(t, params.VSyncEnabled)
	assert.Equal(t, uint32(3), params.MaxFramesInFlight)
	assert.Equal(t, renderer.DefaultDeviceCreationParameters().SwapChainBufferCount, params.SwapChainBufferCount)
	assert.Equal(t, "Lumen", params.WindowTitle)
}
