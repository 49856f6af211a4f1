package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeadlessConfig(t *testing.T) *ApplicationConfig {
	t.Helper()
	dir := t.TempDir()
	shaderDir := filepath.Join(dir, "shaders", renderer.BackendHeadless.ShaderDir())
	require.NoError(t, os.MkdirAll(shaderDir, 0o755))
	for _, stage := range []string{systems.SHADER_STAGE_SCENE_VS, systems.SHADER_STAGE_SCENE_PS, systems.SHADER_STAGE_SCREEN_VS, systems.SHADER_STAGE_SCREEN_PS} {
		require.NoError(t, os.WriteFile(filepath.Join(shaderDir, stage+".bin"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	}

	config := DefaultApplicationConfig()
	config.Backend = "headless"
	config.AssetsDir = dir
	config.StartWidth = 64
	config.StartHeight = 32
	config.FrameSleepMS = 0
	config.MaxFrames = 3
	return config
}

// pentagonGame draws one pentagon and calls onUpdate every frame.
func pentagonGame(config *ApplicationConfig, onUpdate func(frame int, input *core.Input)) *Game {
	var input *core.Input
	frame := 0
	return &Game{
		ApplicationConfig: config,
		FnInitialize: func(ctx context.Context, sm *systems.SystemManager, in *core.Input) error {
			input = in
			model, err := sm.ModelSystem.AddModel(ctx, systems.PentagonModel())
			if err != nil {
				return err
			}
			_, err = sm.RendererSystem.AddEntity(systems.RenderEntity{ModelIndex: model, Transform: systems.Translation(0, 0, 0)})
			return err
		},
		FnUpdate: func(deltaTime float64) error {
			if onUpdate != nil {
				onUpdate(frame, input)
			}
			frame++
			return nil
		},
		FnOnResize: func(width, height uint32) error { return nil },
	}
}

func newEngine(t *testing.T, g *Game) *Engine {
	t.Helper()
	e, err := New(g, g.ApplicationConfig.BackendType())
	require.NoError(t, err)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, EngineStageInitialized, e.Stage())
	return e
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	e := newEngine(t, pentagonGame(newHeadlessConfig(t), nil))
	device, ok := e.DeviceManager().GetDevice().(*headless.Device)
	require.True(t, ok)
	device.ResetRecords()

	ctx := context.Background()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, uint64(3), e.FrameCount())
	// one scene draw and one screen quad per frame
	assert.Len(t, device.Draws(), 6)

	require.NoError(t, e.Shutdown(ctx))
	assert.Equal(t, EngineStageShuttingDown, e.Stage())
}

func TestEscapeQuits(t *testing.T) {
	config := newHeadlessConfig(t)
	config.MaxFrames = 0
	e := newEngine(t, pentagonGame(config, func(frame int, input *core.Input) {
		if frame == 1 {
			input.ProcessKey(core.KEY_ESCAPE, true)
		}
	}))
	ctx := context.Background()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, uint64(2), e.FrameCount())
	require.NoError(t, e.Shutdown(ctx))
}

func TestVsyncToggleAppliesOnNextFrame(t *testing.T) {
	config := newHeadlessConfig(t)
	resized := 0
	e := newEngine(t, pentagonGame(config, func(frame int, input *core.Input) {
		if frame == 0 {
			input.ProcessKey(core.KEY_V, true)
		}
	}))
	e.events.Register(core.EVENT_CODE_BACKBUFFER_RESIZED, func(core.EventContext) { resized++ })
	assert.False(t, e.DeviceManager().IsVsyncEnabled())

	ctx := context.Background()
	require.NoError(t, e.Run(ctx))
	assert.True(t, e.DeviceManager().IsVsyncEnabled())
	assert.Equal(t, 1, resized)
	require.NoError(t, e.Shutdown(ctx))
}

func TestResizeEventRebuildsBackBuffers(t *testing.T) {
	config := newHeadlessConfig(t)
	var sizes [][2]uint32
	g := pentagonGame(config, nil)
	g.FnOnResize = func(width, height uint32) error {
		sizes = append(sizes, [2]uint32{width, height})
		return nil
	}
	e := newEngine(t, g)
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.SystemEvent{WindowWidth: 128, WindowHeight: 96}})

	ctx := context.Background()
	require.NoError(t, e.Run(ctx))
	w, h := e.DeviceManager().GetWindowDimensions()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(96), h)
	assert.Equal(t, [][2]uint32{{64, 32}, {128, 96}}, sizes)
	require.NoError(t, e.Shutdown(ctx))
}

func TestCancelledContextStopsLoop(t *testing.T) {
	e := newEngine(t, pentagonGame(newHeadlessConfig(t), nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Zero(t, e.FrameCount())
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestRunBeforeInitialize(t *testing.T) {
	g := pentagonGame(newHeadlessConfig(t), nil)
	e, err := New(g, renderer.BackendHeadless)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background()), core.ErrNotInitialized)
}

func TestFailedInitializeShutsDownCleanly(t *testing.T) {
	config := newHeadlessConfig(t)
	config.AssetsDir = t.TempDir()
	e, err := New(pentagonGame(config, nil), renderer.BackendHeadless)
	require.NoError(t, err)
	require.Error(t, e.Initialize(context.Background()))
	assert.NoError(t, e.Shutdown(context.Background()))
}
