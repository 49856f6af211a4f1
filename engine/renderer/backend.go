package renderer

import (
	"context"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Resource is implemented by every device object.
type Resource interface {
	// Release hands the object back to the device. It is destroyed by
	// RunGarbageCollection once no pending submission references it.
	Release()
}

type Buffer interface {
	Resource
	Desc() metadata.BufferDesc
}

type Texture interface {
	Resource
	Desc() metadata.TextureDesc
}

type Sampler interface {
	Resource
	Desc() metadata.SamplerDesc
}

type Shader interface {
	Resource
	Desc() metadata.ShaderDesc
}

type InputLayout interface {
	Resource
	Attributes() []metadata.VertexAttributeDesc
}

type BindingLayout interface {
	Resource
	Desc() metadata.BindingLayoutDesc
}

type BindingSet interface {
	Resource
	Desc() BindingSetDesc
	Layout() BindingLayout
}

type Framebuffer interface {
	Resource
	Desc() FramebufferDesc
	Info() metadata.FramebufferInfo
}

type GraphicsPipeline interface {
	Resource
	Desc() GraphicsPipelineDesc
	FramebufferInfo() metadata.FramebufferInfo
}

/**
 * @brief Records GPU work. A list is opened, recorded into, closed and
 * then handed to Device.ExecuteCommandList.
 *
 * Recording methods do not return errors. The first recording error is
 * kept and reported by Close, and a list that failed to record cannot be
 * executed.
 */
type CommandList interface {
	Open() error
	Close() error

	// BeginTrackingBufferState tells the tracker which state the buffer is in now.
	BeginTrackingBufferState(buffer Buffer, state metadata.ResourceState)
	BeginTrackingTextureState(texture Texture, state metadata.ResourceState)
	// SetPermanentBufferState transitions the buffer and freezes its state.
	// Later uses need no transitions and the state cannot be changed again.
	SetPermanentBufferState(buffer Buffer, state metadata.ResourceState)
	SetPermanentTextureState(texture Texture, state metadata.ResourceState)

	WriteBuffer(buffer Buffer, data []byte, destOffset uint64)
	WriteTexture(texture Texture, arraySlice, mipLevel uint32, data []byte, rowPitch uint32)
	ClearTextureFloat(texture Texture, color metadata.Color)
	ClearDepthStencilTexture(texture Texture, clearDepth bool, depth float32, clearStencil bool, stencil uint8)

	SetGraphicsState(state GraphicsState)
	// DrawIndexed uses args.VertexCount as the index count.
	DrawIndexed(args metadata.DrawArguments)
}

/**
 * @brief The GPU abstraction every backend implements.
 */
type Device interface {
	GraphicsAPI() BackendType

	CreateBuffer(desc metadata.BufferDesc) (Buffer, error)
	CreateTexture(desc metadata.TextureDesc) (Texture, error)
	CreateSampler(desc metadata.SamplerDesc) (Sampler, error)
	CreateShader(desc metadata.ShaderDesc, binary []byte) (Shader, error)
	CreateInputLayout(attributes []metadata.VertexAttributeDesc, vertexShader Shader) (InputLayout, error)
	CreateBindingLayout(desc metadata.BindingLayoutDesc) (BindingLayout, error)
	CreateBindingSet(desc BindingSetDesc, layout BindingLayout) (BindingSet, error)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc, framebuffer Framebuffer) (GraphicsPipeline, error)
	CreateCommandList() (CommandList, error)

	// ExecuteCommandList submits a closed list and returns without waiting.
	// The returned id can be passed to WaitForSubmission.
	ExecuteCommandList(commandList CommandList) (uint64, error)
	WaitForSubmission(ctx context.Context, submission uint64) error
	WaitForIdle(ctx context.Context) error
	// RunGarbageCollection destroys released objects whose last use has completed.
	RunGarbageCollection()
}
