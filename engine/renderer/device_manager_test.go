package renderer_test

import (
	"context"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPass struct {
	calls []string
	sizes [][2]uint32
}

func (p *recordingPass) BackBufferResizing() {
	p.calls = append(p.calls, "resizing")
}

func (p *recordingPass) BackBufferResized(width, height, sampleCount uint32) error {
	p.calls = append(p.calls, "resized")
	p.sizes = append(p.sizes, [2]uint32{width, height})
	return nil
}

func newManager(t *testing.T) (*renderer.DeviceManager, *headless.Swapchain, *recordingPass, *core.EventSystem) {
	t.Helper()
	events := core.NewEventSystem()
	sc := headless.NewSwapchain(headless.Options{ManualRetire: true})
	dm := renderer.NewDeviceManager(sc, events)
	pass := &recordingPass{}
	dm.AddRenderPass(pass)

	params := renderer.DefaultDeviceCreationParameters()
	params.BackBufferWidth = 160
	params.BackBufferHeight = 90
	params.SwapChainFormat = metadata.FormatBGRA8UNorm
	require.NoError(t, dm.CreateWindowDeviceAndSwapChain(context.Background(), params))
	t.Cleanup(dm.Shutdown)
	return dm, sc, pass, events
}

func TestCreateForcesInitialResize(t *testing.T) {
	dm, _, pass, _ := newManager(t)

	assert.Equal(t, []string{"resizing", "resized"}, pass.calls)
	assert.Equal(t, [][2]uint32{{160, 90}}, pass.sizes)
	assert.True(t, dm.IsWindowVisible())
	assert.Equal(t, uint32(3), dm.GetBackBufferCount())
	for i := uint32(0); i < dm.GetBackBufferCount(); i++ {
		fb := dm.GetFramebuffer(i)
		require.NotNil(t, fb)
		assert.Equal(t, uint32(160), fb.Info().Width)
		assert.Equal(t, []metadata.Format{metadata.FormatBGRA8UNorm}, fb.Info().ColorFormats)
	}
	assert.Nil(t, dm.GetFramebuffer(3))
}

func TestMinimisedWindowSkipsResize(t *testing.T) {
	dm, _, pass, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, dm.UpdateWindowSize(ctx, 0, 0))
	assert.False(t, dm.IsWindowVisible())
	require.NoError(t, dm.UpdateWindowSize(ctx, 160, 90))
	assert.True(t, dm.IsWindowVisible())
	assert.Len(t, pass.calls, 2, "same size must not recreate back buffers")
}

func TestResizeRecreatesFramebuffers(t *testing.T) {
	dm, sc, pass, events := newManager(t)
	ctx := context.Background()

	var resized *core.SystemEvent
	events.Register(core.EVENT_CODE_BACKBUFFER_RESIZED, func(ec core.EventContext) {
		resized = ec.Data.(*core.SystemEvent)
	})

	old := dm.GetFramebuffer(0)
	require.NoError(t, dm.UpdateWindowSize(ctx, 320, 180))

	assert.Equal(t, []string{"resizing", "resized", "resizing", "resized"}, pass.calls)
	w, h := dm.GetWindowDimensions()
	assert.Equal(t, uint32(320), w)
	assert.Equal(t, uint32(180), h)
	assert.Equal(t, uint32(320), dm.GetFramebuffer(0).Info().Width)
	assert.Equal(t, uint32(320), sc.GetBackBuffer(0).Desc().Width)
	assert.True(t, old.(*headless.Framebuffer).IsDestroyed())
	require.NotNil(t, resized)
	assert.Equal(t, uint32(180), resized.WindowHeight)
}

func TestVsyncChangeIsDeferredToNextSizeUpdate(t *testing.T) {
	dm, sc, pass, _ := newManager(t)
	ctx := context.Background()

	dm.SetVsyncEnabled(true)
	assert.False(t, dm.IsVsyncEnabled())
	assert.False(t, sc.IsVsyncEnabled())

	require.NoError(t, dm.UpdateWindowSize(ctx, 160, 90))
	assert.True(t, dm.IsVsyncEnabled())
	assert.True(t, sc.IsVsyncEnabled())
	assert.Len(t, pass.calls, 4)
}

func TestFrameLoopAdvancesBackBuffers(t *testing.T) {
	dm, sc, _, _ := newManager(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, dm.BeginFrame(ctx))
		assert.Equal(t, uint32(i%3), dm.GetCurrentBackBufferIndex())
		assert.Equal(t, dm.GetFramebuffer(uint32(i%3)), dm.GetCurrentFramebuffer())
		require.NoError(t, dm.Present())
		sc.RetireOldest()
	}
	assert.Equal(t, uint32(4), dm.GetFrameIndex())
	assert.Equal(t, "Lumen headless", dm.GetRendererString())
	assert.Equal(t, renderer.BackendHeadless, dm.GetGraphicsAPI())
}
