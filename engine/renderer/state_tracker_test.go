package renderer

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct{ desc metadata.BufferDesc }

func (b *fakeBuffer) Release()                  {}
func (b *fakeBuffer) Desc() metadata.BufferDesc { return b.desc }

type fakeTexture struct{ desc metadata.TextureDesc }

func (t *fakeTexture) Release()                   {}
func (t *fakeTexture) Desc() metadata.TextureDesc { return t.desc }

func TestTrackerStartsFromKnownStates(t *testing.T) {
	tracker := NewStateTracker(NewPermanentStates())
	plain := &fakeBuffer{desc: metadata.BufferDesc{DebugName: "plain"}}
	cb := &fakeBuffer{desc: metadata.NewConstantBufferDesc(16, "cb")}

	assert.Equal(t, metadata.ResourceStateUnknown, tracker.BufferState(plain))
	assert.Equal(t, metadata.ResourceStateConstantBuffer, tracker.BufferState(cb))

	require.NoError(t, tracker.BeginTrackingBuffer(plain, metadata.ResourceStateCommon))
	tr, needed, err := tracker.RequireBuffer(plain, metadata.ResourceStateCopyDest)
	require.NoError(t, err)
	assert.True(t, needed)
	assert.Equal(t, Transition{Buffer: plain, Before: metadata.ResourceStateCommon, After: metadata.ResourceStateCopyDest}, tr)

	_, needed, err = tracker.RequireBuffer(plain, metadata.ResourceStateCopyDest)
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestPermanentStatesAreCommittedOnce(t *testing.T) {
	permanent := NewPermanentStates()
	vb := &fakeBuffer{desc: metadata.BufferDesc{DebugName: "vb"}}

	first := NewStateTracker(permanent)
	require.NoError(t, first.BeginTrackingBuffer(vb, metadata.ResourceStateCopyDest))
	_, needed, err := first.SetPermanentBuffer(vb, metadata.ResourceStateVertexBuffer)
	require.NoError(t, err)
	assert.True(t, needed)

	_, ok := permanent.Buffer(vb)
	assert.False(t, ok, "not visible before commit")
	first.CommitPermanent()
	state, ok := permanent.Buffer(vb)
	require.True(t, ok)
	assert.Equal(t, metadata.ResourceStateVertexBuffer, state)

	second := NewStateTracker(permanent)
	assert.True(t, second.IsBufferPermanent(vb))
	_, needed, err = second.RequireBufferRead(vb, metadata.ResourceStateVertexBuffer)
	require.NoError(t, err)
	assert.False(t, needed)

	_, _, err = second.RequireBuffer(vb, metadata.ResourceStateCopyDest)
	assert.ErrorIs(t, err, core.ErrResourceState)
	_, _, err = second.SetPermanentBuffer(vb, metadata.ResourceStateIndexBuffer)
	assert.ErrorIs(t, err, core.ErrResourceState)

	permanent.Forget(vb)
	_, ok = permanent.Buffer(vb)
	assert.False(t, ok)
}

func TestReadsInUploadStateAreRejected(t *testing.T) {
	tracker := NewStateTracker(NewPermanentStates())
	tex := &fakeTexture{desc: metadata.TextureDesc{DebugName: "albedo"}}

	_, _, err := tracker.RequireTextureRead(tex, metadata.ResourceStateShaderResource)
	assert.ErrorIs(t, err, core.ErrResourceState)

	require.NoError(t, tracker.BeginTrackingTexture(tex, metadata.ResourceStateCopyDest))
	_, _, err = tracker.RequireTextureRead(tex, metadata.ResourceStateShaderResource)
	assert.ErrorIs(t, err, core.ErrResourceState)

	_, _, err = tracker.SetPermanentTexture(tex, metadata.ResourceStateShaderResource)
	require.NoError(t, err)
	_, needed, err := tracker.RequireTextureRead(tex, metadata.ResourceStateShaderResource)
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestKeepInitialStatesRestoresAttachments(t *testing.T) {
	tracker := NewStateTracker(NewPermanentStates())
	color := &fakeTexture{desc: metadata.TextureDesc{
		DebugName:        "scene colour",
		IsRenderTarget:   true,
		InitialState:     metadata.ResourceStateRenderTarget,
		KeepInitialState: true,
	}}

	tr, needed, err := tracker.RequireTextureRead(color, metadata.ResourceStateShaderResource)
	require.NoError(t, err)
	require.True(t, needed)
	assert.Equal(t, metadata.ResourceStateRenderTarget, tr.Before)

	restore := tracker.KeepInitialStates()
	require.Len(t, restore, 1)
	assert.Equal(t, metadata.ResourceStateShaderResource, restore[0].Before)
	assert.Equal(t, metadata.ResourceStateRenderTarget, restore[0].After)
	assert.Empty(t, tracker.KeepInitialStates())
}

func TestRequireGraphicsStateOrdersTransitions(t *testing.T) {
	tracker := NewStateTracker(NewPermanentStates())
	vb := &fakeBuffer{desc: metadata.BufferDesc{DebugName: "vb", InitialState: metadata.ResourceStateVertexBuffer, KeepInitialState: true}}
	ib := &fakeBuffer{desc: metadata.BufferDesc{DebugName: "ib", InitialState: metadata.ResourceStateIndexBuffer, KeepInitialState: true}}
	back := &fakeTexture{desc: metadata.TextureDesc{DebugName: "back", IsRenderTarget: true, InitialState: metadata.ResourceStatePresent, KeepInitialState: true}}
	depth := &fakeTexture{desc: metadata.TextureDesc{DebugName: "depth", IsRenderTarget: true, Format: metadata.FormatD32, InitialState: metadata.ResourceStateDepthWrite, KeepInitialState: true}}

	fb := &fakeFramebuffer{desc: FramebufferDesc{ColorAttachments: []Texture{back}, DepthAttachment: depth}}
	state := GraphicsState{
		Framebuffer:   fb,
		VertexBuffers: []VertexBufferBinding{{Buffer: vb}},
		IndexBuffer:   IndexBufferBinding{Buffer: ib, Format: metadata.FormatR32UInt},
	}
	transitions, err := tracker.RequireGraphicsState(state)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, back, transitions[0].Texture)
	assert.Equal(t, metadata.ResourceStateRenderTarget, transitions[0].After)
}

type fakeFramebuffer struct{ desc FramebufferDesc }

func (f *fakeFramebuffer) Release()              {}
func (f *fakeFramebuffer) Desc() FramebufferDesc { return f.desc }
func (f *fakeFramebuffer) Info() metadata.FramebufferInfo {
	return FramebufferInfoFromDesc(f.desc)
}
