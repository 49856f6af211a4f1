package headless

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	device   *Device
	color    renderer.Texture
	fb       renderer.Framebuffer
	layout   renderer.BindingLayout
	pipeline renderer.GraphicsPipeline
	vb       renderer.Buffer
	ib       renderer.Buffer
	cb       renderer.Buffer
	set      renderer.BindingSet
}

func newFixture(t *testing.T, d *Device) *fixture {
	t.Helper()
	f := &fixture{device: d}
	var err error

	f.color, err = d.CreateTexture(metadata.TextureDesc{
		Width:            64,
		Height:           32,
		Format:           metadata.FormatRGBA8UNorm,
		IsRenderTarget:   true,
		InitialState:     metadata.ResourceStateRenderTarget,
		KeepInitialState: true,
		DebugName:        "color",
	})
	require.NoError(t, err)
	fbDesc := renderer.FramebufferDesc{}
	fbDesc.AddColorAttachment(f.color)
	f.fb, err = d.CreateFramebuffer(fbDesc)
	require.NoError(t, err)

	vs, err := d.CreateShader(metadata.ShaderDesc{ShaderType: metadata.ShaderTypeVertex, EntryName: metadata.VERTEX_SHADER_ENTRY_POINT, DebugName: "vs"}, []byte{0x03, 0x02, 0x23, 0x07})
	require.NoError(t, err)
	ps, err := d.CreateShader(metadata.ShaderDesc{ShaderType: metadata.ShaderTypePixel, EntryName: metadata.PIXEL_SHADER_ENTRY_POINT, DebugName: "ps"}, []byte{0x03, 0x02, 0x23, 0x07})
	require.NoError(t, err)
	il, err := d.CreateInputLayout(metadata.DrawVertexAttributes(), vs)
	require.NoError(t, err)

	f.layout, err = d.CreateBindingLayout(metadata.BindingLayoutDesc{
		Visibility: metadata.ShaderTypeAll,
		Bindings:   []metadata.BindingLayoutItem{metadata.VolatileConstantBufferItem(0)},
	})
	require.NoError(t, err)
	f.cb, err = d.CreateBuffer(metadata.NewVolatileConstantBufferDesc(64, "constants", 16))
	require.NoError(t, err)
	setDesc := renderer.BindingSetDesc{}
	setDesc.AddItem(renderer.BindingSetItemConstantBuffer(0, f.cb))
	f.set, err = d.CreateBindingSet(setDesc, f.layout)
	require.NoError(t, err)

	f.pipeline, err = d.CreateGraphicsPipeline(renderer.GraphicsPipelineDesc{
		InputLayout:    il,
		VS:             vs,
		PS:             ps,
		BindingLayouts: []renderer.BindingLayout{f.layout},
		DebugName:      "test",
	}, f.fb)
	require.NoError(t, err)

	f.vb, err = d.CreateBuffer(metadata.BufferDesc{
		ByteSize:  uint64(len(metadata.PentagonVertices)) * uint64(metadata.DRAW_VERTEX_STRIDE),
		Role:      metadata.BufferRoleVertex,
		DebugName: "vertices",
	})
	require.NoError(t, err)
	f.ib, err = d.CreateBuffer(metadata.BufferDesc{
		ByteSize:  uint64(len(metadata.PentagonIndices)) * 4,
		Role:      metadata.BufferRoleIndex,
		DebugName: "indices",
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) recordUpload(cl renderer.CommandList) {
	cl.BeginTrackingBufferState(f.vb, metadata.ResourceStateCommon)
	cl.WriteBuffer(f.vb, metadata.AsBytes(metadata.PentagonVertices), 0)
	cl.SetPermanentBufferState(f.vb, metadata.ResourceStateVertexBuffer)
	cl.BeginTrackingBufferState(f.ib, metadata.ResourceStateCommon)
	cl.WriteBuffer(f.ib, metadata.AsBytes(metadata.PentagonIndices), 0)
	cl.SetPermanentBufferState(f.ib, metadata.ResourceStateIndexBuffer)
}

func (f *fixture) upload(t *testing.T) {
	t.Helper()
	cl, err := f.device.CreateCommandList()
	require.NoError(t, err)
	require.NoError(t, cl.Open())
	f.recordUpload(cl)
	require.NoError(t, cl.Close())
	_, err = f.device.ExecuteCommandList(cl)
	require.NoError(t, err)
}

func (f *fixture) state() renderer.GraphicsState {
	s := renderer.GraphicsState{
		Pipeline:      f.pipeline,
		Framebuffer:   f.fb,
		Bindings:      []renderer.BindingSet{f.set},
		VertexBuffers: []renderer.VertexBufferBinding{{Buffer: f.vb}},
		IndexBuffer:   renderer.IndexBufferBinding{Buffer: f.ib, Format: metadata.FormatR32UInt},
	}
	s.Viewport.AddViewportAndScissorRect(metadata.NewViewport(64, 32))
	return s
}

func newSwapchain(t *testing.T, options Options) *Swapchain {
	t.Helper()
	params := renderer.DefaultDeviceCreationParameters()
	params.BackBufferWidth = 64
	params.BackBufferHeight = 32
	params.SwapChainFormat = metadata.FormatRGBA8UNorm
	sc := NewSwapchain(options)
	require.NoError(t, sc.CreateDeviceAndSwapChain(params))
	t.Cleanup(sc.DestroyDeviceAndSwapChain)
	return sc
}

func TestUploadTransitions(t *testing.T) {
	f := newFixture(t, NewDevice())
	cl, err := f.device.CreateCommandList()
	require.NoError(t, err)
	require.NoError(t, cl.Open())
	f.recordUpload(cl)
	require.NoError(t, cl.Close())

	transitions := cl.(*CommandList).Transitions()
	require.Len(t, transitions, 4)
	assert.Equal(t, metadata.ResourceStateCommon, transitions[0].Before)
	assert.Equal(t, metadata.ResourceStateCopyDest, transitions[0].After)
	assert.Equal(t, metadata.ResourceStateCopyDest, transitions[1].Before)
	assert.Equal(t, metadata.ResourceStateVertexBuffer, transitions[1].After)

	_, err = f.device.ExecuteCommandList(cl)
	require.NoError(t, err)
	assert.Equal(t, metadata.AsBytes(metadata.PentagonIndices), f.ib.(*Buffer).Data())

	// permanent states need no barriers afterwards
	require.NoError(t, cl.Open())
	cl.SetGraphicsState(f.state())
	cl.DrawIndexed(metadata.NewDrawArguments(9))
	require.NoError(t, cl.Close())
	assert.Empty(t, cl.(*CommandList).Transitions())
}

func TestPermanentStateCannotChange(t *testing.T) {
	f := newFixture(t, NewDevice())
	f.upload(t)

	cl, _ := f.device.CreateCommandList()
	require.NoError(t, cl.Open())
	cl.SetPermanentBufferState(f.vb, metadata.ResourceStateIndexBuffer)
	assert.ErrorIs(t, cl.Close(), core.ErrResourceState)

	require.NoError(t, cl.Open())
	cl.BeginTrackingBufferState(f.vb, metadata.ResourceStateCommon)
	assert.ErrorIs(t, cl.Close(), core.ErrResourceState)
}

func TestDrawRejectsBufferStillInUploadState(t *testing.T) {
	f := newFixture(t, NewDevice())
	cl, _ := f.device.CreateCommandList()
	require.NoError(t, cl.Open())
	cl.BeginTrackingBufferState(f.vb, metadata.ResourceStateCommon)
	cl.WriteBuffer(f.vb, metadata.AsBytes(metadata.PentagonVertices), 0)
	cl.BeginTrackingBufferState(f.ib, metadata.ResourceStateCommon)
	cl.WriteBuffer(f.ib, metadata.AsBytes(metadata.PentagonIndices), 0)
	cl.SetPermanentBufferState(f.ib, metadata.ResourceStateIndexBuffer)
	cl.SetGraphicsState(f.state())
	cl.DrawIndexed(metadata.NewDrawArguments(9))

	err := cl.Close()
	assert.ErrorIs(t, err, core.ErrResourceState)
	assert.Contains(t, err.Error(), "vertices")

	_, err = f.device.ExecuteCommandList(cl)
	assert.ErrorIs(t, err, core.ErrResourceState)
	assert.Empty(t, f.device.Draws())
}

func TestCommandListMisuse(t *testing.T) {
	f := newFixture(t, NewDevice())
	f.upload(t)
	cl, _ := f.device.CreateCommandList()

	require.NoError(t, cl.Open())
	assert.Error(t, cl.Open())
	_, err := f.device.ExecuteCommandList(cl)
	assert.ErrorIs(t, err, core.ErrCommandListClosed)

	cl.DrawIndexed(metadata.NewDrawArguments(3))
	assert.ErrorIs(t, cl.Close(), core.ErrInvalidHandle)

	require.NoError(t, cl.Open())
	cl.SetGraphicsState(f.state())
	cl.DrawIndexed(metadata.NewDrawArguments(10))
	assert.ErrorIs(t, cl.Close(), core.ErrInvalidHandle)

	require.NoError(t, cl.Open())
	cl.WriteBuffer(f.cb, make([]byte, 65), 0)
	assert.ErrorIs(t, cl.Close(), core.ErrInvalidHandle)
}

func TestVolatileWritesAreSnapshottedPerDraw(t *testing.T) {
	f := newFixture(t, NewDevice())
	f.upload(t)

	first := make([]byte, 64)
	first[0] = 1
	second := make([]byte, 64)
	second[0] = 2

	cl, _ := f.device.CreateCommandList()
	require.NoError(t, cl.Open())
	cl.SetGraphicsState(f.state())
	cl.WriteBuffer(f.cb, first, 0)
	cl.DrawIndexed(metadata.NewDrawArguments(9))
	cl.WriteBuffer(f.cb, second, 0)
	cl.DrawIndexed(metadata.NewDrawArguments(9))
	require.NoError(t, cl.Close())
	_, err := f.device.ExecuteCommandList(cl)
	require.NoError(t, err)

	draws := f.device.Draws()
	require.Len(t, draws, 2)
	assert.Equal(t, byte(1), draws[0].Constants[f.cb][0])
	assert.Equal(t, byte(2), draws[1].Constants[f.cb][0])
	assert.Equal(t, uint32(9), draws[1].IndexCount)
}

func TestVolatileVersionLimit(t *testing.T) {
	sc := newSwapchain(t, Options{ManualRetire: true})
	f := newFixture(t, sc.HeadlessDevice())
	f.upload(t)

	require.NoError(t, sc.BeginFrame(context.Background()))
	cl, _ := f.device.CreateCommandList()
	require.NoError(t, cl.Open())
	for i := 0; i < 17; i++ {
		cl.WriteBuffer(f.cb, []byte{byte(i)}, 0)
	}
	require.NoError(t, cl.Close())
	_, err := f.device.ExecuteCommandList(cl)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	require.NoError(t, sc.Present(false))
}

func TestFramesInFlightArePaced(t *testing.T) {
	sc := newSwapchain(t, Options{ManualRetire: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, sc.BeginFrame(ctx))
		require.NoError(t, sc.Present(false))
	}
	assert.Equal(t, 2, sc.OutstandingFrames())

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sc.BeginFrame(timeout), context.DeadlineExceeded)

	assert.True(t, sc.RetireOldest())
	require.NoError(t, sc.BeginFrame(ctx))
	assert.Equal(t, uint32(2), sc.GetCurrentBackBufferIndex())
	require.NoError(t, sc.Present(false))
}

func TestFramesRetireAutomatically(t *testing.T) {
	sc := newSwapchain(t, Options{RetireDelay: time.Millisecond})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, sc.BeginFrame(ctx))
		require.NoError(t, sc.Present(false))
	}
	assert.Eventually(t, func() bool { return sc.OutstandingFrames() == 0 }, time.Second, time.Millisecond)
}

func TestGarbageCollectionWaitsForLastUse(t *testing.T) {
	sc := newSwapchain(t, Options{ManualRetire: true})
	d := sc.HeadlessDevice()
	ctx := context.Background()

	buf, err := d.CreateBuffer(metadata.BufferDesc{ByteSize: 16, DebugName: "scratch"})
	require.NoError(t, err)

	require.NoError(t, sc.BeginFrame(ctx))
	cl, _ := d.CreateCommandList()
	require.NoError(t, cl.Open())
	cl.BeginTrackingBufferState(buf, metadata.ResourceStateCommon)
	cl.WriteBuffer(buf, []byte{1, 2, 3, 4}, 0)
	require.NoError(t, cl.Close())
	submission, err := d.ExecuteCommandList(cl)
	require.NoError(t, err)
	require.NoError(t, sc.Present(false))

	buf.Release()
	d.RunGarbageCollection()
	assert.False(t, buf.(*Buffer).IsDestroyed())
	assert.False(t, d.IsSubmissionCompleted(submission))

	assert.True(t, sc.RetireOldest())
	d.RunGarbageCollection()
	assert.True(t, buf.(*Buffer).IsDestroyed())
}

func TestWaitInsideFrameCompletesWork(t *testing.T) {
	sc := newSwapchain(t, Options{ManualRetire: true})
	d := sc.HeadlessDevice()

	require.NoError(t, sc.BeginFrame(context.Background()))
	cl, _ := d.CreateCommandList()
	require.NoError(t, cl.Open())
	require.NoError(t, cl.Close())
	submission, err := d.ExecuteCommandList(cl)
	require.NoError(t, err)

	require.NoError(t, d.WaitForSubmission(context.Background(), submission))
	assert.True(t, d.IsSubmissionCompleted(submission))
	assert.ErrorIs(t, d.WaitForSubmission(context.Background(), submission+10), core.ErrInvalidHandle)
	require.NoError(t, sc.Present(false))
}

func TestResizeRequiresReleasedFramebuffers(t *testing.T) {
	sc := newSwapchain(t, Options{ManualRetire: true})
	d := sc.HeadlessDevice()

	desc := renderer.FramebufferDesc{}
	desc.AddColorAttachment(sc.GetBackBuffer(0))
	fb, err := d.CreateFramebuffer(desc)
	require.NoError(t, err)

	assert.ErrorIs(t, sc.ResizeSwapChain(128, 64, false), core.ErrResourceState)

	fb.Release()
	require.NoError(t, d.WaitForIdle(context.Background()))
	d.RunGarbageCollection()
	require.NoError(t, sc.ResizeSwapChain(128, 64, true))
	assert.Equal(t, uint32(128), sc.GetBackBuffer(0).Desc().Width)
	assert.Equal(t, uint32(3), sc.GetBackBufferCount())
	assert.True(t, sc.IsVsyncEnabled())
}
