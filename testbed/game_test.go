package testbed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headlessConfig(t *testing.T) *engine.ApplicationConfig {
	t.Helper()
	dir := t.TempDir()
	shaderDir := filepath.Join(dir, "shaders", renderer.BackendHeadless.ShaderDir())
	require.NoError(t, os.MkdirAll(shaderDir, 0o755))
	for _, stage := range []string{systems.SHADER_STAGE_SCENE_VS, systems.SHADER_STAGE_SCENE_PS, systems.SHADER_STAGE_SCREEN_VS, systems.SHADER_STAGE_SCREEN_PS} {
		require.NoError(t, os.WriteFile(filepath.Join(shaderDir, stage+".bin"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	}
	config := engine.DefaultApplicationConfig()
	config.Backend = "headless"
	config.AssetsDir = dir
	config.StartWidth = 64
	config.StartHeight = 32
	config.FrameSleepMS = 0
	config.MaxFrames = 2
	return config
}

func startGame(t *testing.T, config *engine.ApplicationConfig) (*TestGame, *engine.Engine) {
	t.Helper()
	tg := NewTestGame(config)
	e, err := engine.New(tg.Game, renderer.BackendHeadless)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { assert.NoError(t, e.Shutdown(context.Background())) })
	return tg, e
}

func TestEmptySceneDrawsPentagons(t *testing.T) {
	tg, e := startGame(t, headlessConfig(t))
	require.Len(t, tg.Entities(), 2)
	assert.Equal(t, 1, e.SystemManager().ModelSystem.Count())

	entities := e.SystemManager().RendererSystem.Entities()
	assert.Equal(t, systems.Translation(0.6, 0, 0), entities[1].Transform)
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(2), e.FrameCount())
}

func TestMissingModelFallsBack(t *testing.T) {
	config := headlessConfig(t)
	config.Scene.Models = []string{"models/missing.gltf"}
	config.Scene.Entities = []engine.SceneEntityConfig{{Model: 0, Translation: [3]float32{1, 0, 0}}}

	tg, e := startGame(t, config)
	assert.Len(t, tg.Entities(), 2)
	assert.Equal(t, 1, e.SystemManager().ModelSystem.Count())
}

func TestCameraFollowsKeys(t *testing.T) {
	tg, e := startGame(t, headlessConfig(t))
	state := tg.State.(*gameState)
	camera := e.SystemManager().RendererSystem.Camera()
	start := camera.Eye

	state.input.ProcessKey(core.KEY_W, true)
	require.NoError(t, tg.Update(1))
	assert.NotEqual(t, start, camera.Eye)
	state.input.ProcessKey(core.KEY_W, false)

	// R resets on release
	state.input.ProcessKey(core.KEY_R, true)
	state.input.Update()
	state.input.ProcessKey(core.KEY_R, false)
	require.NoError(t, tg.Update(0))
	assert.Equal(t, start, camera.Eye)
}

func TestResizeUpdatesAspect(t *testing.T) {
	tg, e := startGame(t, headlessConfig(t))
	require.NoError(t, tg.OnResize(200, 100))
	assert.InDelta(t, 2.0, e.SystemManager().RendererSystem.Camera().Aspect, 1e-6)
}
