package systems

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	SHADER_STAGE_SCENE_VS  string = "default_main_vs"
	SHADER_STAGE_SCENE_PS  string = "default_main_ps"
	SHADER_STAGE_SCREEN_VS string = "screen_main_vs"
	SHADER_STAGE_SCREEN_PS string = "screen_main_ps"

	/** @brief Lower bound for the number of live versions of a volatile constant buffer. */
	MIN_VOLATILE_VERSIONS uint32 = 16
)

type PipelineSystemConfig struct {
	MaxFramesInFlight uint32
	/** @brief Entities drawn per frame, each writes the per-entity buffer once. */
	MaxEntities uint32
}

/**
 * @brief Owns the binding layouts, constant buffers, shaders and the two
 * pipelines of the frame: the scene pass into an offscreen framebuffer and
 * the fullscreen quad that copies it to the back buffer.
 */
type PipelineSystem struct {
	config  PipelineSystemConfig
	device  renderer.Device
	backend renderer.BackendType
	assets  *assets.AssetManager

	GlobalLayout renderer.BindingLayout
	EntityLayout renderer.BindingLayout
	ScreenLayout renderer.BindingLayout

	Sampler         renderer.Sampler
	PerFrameBuffer  renderer.Buffer
	PerEntityBuffer renderer.Buffer
	GlobalSet       renderer.BindingSet

	sceneVS           renderer.Shader
	scenePS           renderer.Shader
	screenVS          renderer.Shader
	screenPS          renderer.Shader
	sceneInputLayout  renderer.InputLayout
	screenInputLayout renderer.InputLayout

	QuadVertices renderer.Buffer
	QuadIndices  renderer.Buffer

	// size dependent, recreated by Rebuild
	SceneColor       renderer.Texture
	SceneDepth       renderer.Texture
	SceneFramebuffer renderer.Framebuffer
	ScenePipeline    renderer.GraphicsPipeline
	ScreenPipeline   renderer.GraphicsPipeline
	ScreenSet        renderer.BindingSet

	swapchainFormat metadata.Format
	width           uint32
	height          uint32
	sampleCount     uint32
	backbuffer      renderer.Framebuffer
}

func NewPipelineSystem(config PipelineSystemConfig, device renderer.Device, backend renderer.BackendType, am *assets.AssetManager) (*PipelineSystem, error) {
	if device == nil {
		return nil, fmt.Errorf("func NewPipelineSystem - %w: device", core.ErrInvalidHandle)
	}
	if am == nil {
		return nil, fmt.Errorf("func NewPipelineSystem - %w: asset manager", core.ErrInvalidHandle)
	}
	if config.MaxFramesInFlight == 0 {
		config.MaxFramesInFlight = 1
	}
	if config.MaxEntities == 0 {
		return nil, fmt.Errorf("func NewPipelineSystem - %w: max entities must be at least 1", core.ErrInvalidConfig)
	}
	return &PipelineSystem{
		config:  config,
		device:  device,
		backend: backend,
		assets:  am,
	}, nil
}

// EntityVersions is the number of per-entity buffer versions that can be alive at once.
func (ps *PipelineSystem) EntityVersions() uint32 {
	return max(MIN_VOLATILE_VERSIONS, ps.config.MaxEntities*ps.config.MaxFramesInFlight+1)
}

/**
 * @brief Creates everything that does not depend on the back buffer size.
 * The scene framebuffer and the pipelines follow with the first Rebuild.
 */
func (ps *PipelineSystem) Initialize(ctx context.Context, swapchainFormat metadata.Format) error {
	ps.swapchainFormat = swapchainFormat
	var err error

	ps.GlobalLayout, err = ps.device.CreateBindingLayout(metadata.BindingLayoutDesc{
		Visibility: metadata.ShaderTypeAll,
		Bindings: []metadata.BindingLayoutItem{
			metadata.VolatileConstantBufferItem(0),
			metadata.VolatileConstantBufferItem(1),
			metadata.SamplerItem(0),
		},
		DebugName: "Global binding layout",
	})
	if err != nil {
		return fmt.Errorf("failed to create global binding layout: %w", err)
	}
	ps.EntityLayout, err = ps.device.CreateBindingLayout(metadata.BindingLayoutDesc{
		Visibility:    metadata.ShaderTypeAll,
		RegisterSpace: 1,
		Bindings:      []metadata.BindingLayoutItem{metadata.TextureSRVItem(0)},
		DebugName:     "Entity binding layout",
	})
	if err != nil {
		return fmt.Errorf("failed to create entity binding layout: %w", err)
	}
	ps.ScreenLayout, err = ps.device.CreateBindingLayout(metadata.BindingLayoutDesc{
		Visibility: metadata.ShaderTypeAll,
		Bindings: []metadata.BindingLayoutItem{
			metadata.TextureSRVItem(0),
			metadata.SamplerItem(0),
		},
		DebugName: "Screen quad binding layout",
	})
	if err != nil {
		return fmt.Errorf("failed to create screen quad binding layout: %w", err)
	}

	samplerDesc := metadata.NewLinearWrapSamplerDesc(16)
	samplerDesc.DebugName = "Linear wrap sampler"
	if ps.Sampler, err = ps.device.CreateSampler(samplerDesc); err != nil {
		return fmt.Errorf("failed to create sampler: %w", err)
	}

	ps.PerFrameBuffer, err = ps.device.CreateBuffer(metadata.NewVolatileConstantBufferDesc(
		metadata.PER_FRAME_CONSTANTS_SIZE, "Per-frame constants", MIN_VOLATILE_VERSIONS*ps.config.MaxFramesInFlight))
	if err != nil {
		return fmt.Errorf("failed to create per-frame constant buffer: %w", err)
	}
	ps.PerEntityBuffer, err = ps.device.CreateBuffer(metadata.NewVolatileConstantBufferDesc(
		metadata.PER_ENTITY_CONSTANTS_SIZE, "Per-entity constants", ps.EntityVersions()))
	if err != nil {
		return fmt.Errorf("failed to create per-entity constant buffer: %w", err)
	}

	globalDesc := renderer.BindingSetDesc{}
	globalDesc.
		AddItem(renderer.BindingSetItemConstantBuffer(0, ps.PerFrameBuffer)).
		AddItem(renderer.BindingSetItemConstantBuffer(1, ps.PerEntityBuffer)).
		AddItem(renderer.BindingSetItemSampler(0, ps.Sampler))
	if ps.GlobalSet, err = ps.device.CreateBindingSet(globalDesc, ps.GlobalLayout); err != nil {
		return fmt.Errorf("failed to create global binding set: %w", err)
	}

	if err := ps.loadShaders(); err != nil {
		return err
	}

	if ps.QuadVertices, err = CreateBufferWithData(ctx, ps.device, metadata.ScreenQuadVertices, metadata.BufferRoleVertex, "Screen quad vertices"); err != nil {
		return err
	}
	if ps.QuadIndices, err = CreateBufferWithData(ctx, ps.device, metadata.ScreenQuadIndices, metadata.BufferRoleIndex, "Screen quad indices"); err != nil {
		return err
	}
	return nil
}

func (ps *PipelineSystem) loadShader(stage string, shaderType metadata.ShaderType, entry string) (renderer.Shader, error) {
	path := ps.assets.ShaderPath(ps.backend, stage)
	res, err := ps.assets.LoadAsset(path, metadata.ResourceTypeShader, nil)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("shader %s has not been built, run `mage build:shaders`: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shader %s: %w", path, err)
	}
	binary, ok := res.Data.([]byte)
	if !ok {
		return nil, fmt.Errorf("shader %s did not load as a binary", path)
	}
	shader, err := ps.device.CreateShader(metadata.ShaderDesc{
		ShaderType: shaderType,
		EntryName:  entry,
		DebugName:  stage,
	}, binary)
	if err != nil {
		return nil, fmt.Errorf("failed to create shader %s: %w", path, err)
	}
	return shader, nil
}

// loadShaders replaces the shaders and input layouts only when all four stages load.
func (ps *PipelineSystem) loadShaders() error {
	type stage struct {
		name  string
		kind  metadata.ShaderType
		entry string
	}
	stages := []stage{
		{SHADER_STAGE_SCENE_VS, metadata.ShaderTypeVertex, metadata.VERTEX_SHADER_ENTRY_POINT},
		{SHADER_STAGE_SCENE_PS, metadata.ShaderTypePixel, metadata.PIXEL_SHADER_ENTRY_POINT},
		{SHADER_STAGE_SCREEN_VS, metadata.ShaderTypeVertex, metadata.VERTEX_SHADER_ENTRY_POINT},
		{SHADER_STAGE_SCREEN_PS, metadata.ShaderTypePixel, metadata.PIXEL_SHADER_ENTRY_POINT},
	}
	shaders := make([]renderer.Shader, 0, len(stages))
	releaseAll := func() {
		for _, s := range shaders {
			s.Release()
		}
	}
	for _, s := range stages {
		shader, err := ps.loadShader(s.name, s.kind, s.entry)
		if err != nil {
			releaseAll()
			return err
		}
		shaders = append(shaders, shader)
	}

	sceneInput, err := ps.device.CreateInputLayout(metadata.DrawVertexAttributes(), shaders[0])
	if err != nil {
		releaseAll()
		return fmt.Errorf("failed to create scene input layout: %w", err)
	}
	screenInput, err := ps.device.CreateInputLayout(metadata.ScreenQuadAttributes(), shaders[2])
	if err != nil {
		sceneInput.Release()
		releaseAll()
		return fmt.Errorf("failed to create screen quad input layout: %w", err)
	}

	ps.releaseShaders()
	ps.sceneVS, ps.scenePS, ps.screenVS, ps.screenPS = shaders[0], shaders[1], shaders[2], shaders[3]
	ps.sceneInputLayout, ps.screenInputLayout = sceneInput, screenInput
	return nil
}

func (ps *PipelineSystem) releaseShaders() {
	for _, r := range []renderer.Resource{ps.sceneInputLayout, ps.screenInputLayout, ps.sceneVS, ps.scenePS, ps.screenVS, ps.screenPS} {
		release(r)
	}
	ps.sceneInputLayout, ps.screenInputLayout = nil, nil
	ps.sceneVS, ps.scenePS, ps.screenVS, ps.screenPS = nil, nil, nil, nil
}

func release(r renderer.Resource) {
	if r != nil {
		r.Release()
	}
}

// ReleaseSizeDependent drops the scene framebuffer, both pipelines and the screen binding set.
func (ps *PipelineSystem) ReleaseSizeDependent() {
	for _, r := range []renderer.Resource{ps.ScreenSet, ps.ScreenPipeline, ps.ScenePipeline, ps.SceneFramebuffer, ps.SceneDepth, ps.SceneColor} {
		release(r)
	}
	ps.ScreenSet, ps.ScreenPipeline, ps.ScenePipeline = nil, nil, nil
	ps.SceneFramebuffer, ps.SceneDepth, ps.SceneColor = nil, nil, nil
	ps.backbuffer = nil
}

/**
 * @brief Recreates the scene framebuffer at width x height and both
 * pipelines. The screen quad pipeline is built against backbuffer, which
 * only has to share format and sample count with the other back buffers.
 */
func (ps *PipelineSystem) Rebuild(width, height, sampleCount uint32, backbuffer renderer.Framebuffer) error {
	if backbuffer == nil {
		return fmt.Errorf("%w: no back buffer framebuffer to build against", core.ErrInvalidHandle)
	}
	if ps.sceneVS == nil {
		return fmt.Errorf("pipeline system: %w", core.ErrNotInitialized)
	}
	ps.ReleaseSizeDependent()
	sampleCount = max(sampleCount, 1)
	// kept even when the rebuild fails so a later reload can retry at this size
	ps.width, ps.height, ps.sampleCount = width, height, sampleCount

	var err error
	ps.SceneColor, err = ps.device.CreateTexture(metadata.TextureDesc{
		Width:            width,
		Height:           height,
		MipLevels:        1,
		SampleCount:      sampleCount,
		Format:           ps.swapchainFormat,
		Dimension:        metadata.TextureDimension2D,
		IsRenderTarget:   true,
		IsShaderResource: true,
		InitialState:     metadata.ResourceStateRenderTarget,
		KeepInitialState: true,
		ClearValue:       SCENE_CLEAR_COLOR,
		UseClearValue:    true,
		DebugName:        "Scene colour",
	})
	if err != nil {
		return fmt.Errorf("failed to create scene colour target: %w", err)
	}
	ps.SceneDepth, err = ps.device.CreateTexture(metadata.TextureDesc{
		Width:            width,
		Height:           height,
		MipLevels:        1,
		SampleCount:      sampleCount,
		Format:           metadata.FormatD32,
		Dimension:        metadata.TextureDimension2D,
		IsRenderTarget:   true,
		InitialState:     metadata.ResourceStateDepthWrite,
		KeepInitialState: true,
		ClearValue:       metadata.Color{R: 1},
		UseClearValue:    true,
		DebugName:        "Scene depth",
	})
	if err != nil {
		return fmt.Errorf("failed to create scene depth target: %w", err)
	}

	fbDesc := renderer.FramebufferDesc{}
	fbDesc.AddColorAttachment(ps.SceneColor).SetDepthAttachment(ps.SceneDepth)
	if ps.SceneFramebuffer, err = ps.device.CreateFramebuffer(fbDesc); err != nil {
		return fmt.Errorf("failed to create scene framebuffer: %w", err)
	}

	ps.ScenePipeline, err = ps.device.CreateGraphicsPipeline(renderer.GraphicsPipelineDesc{
		PrimType:    metadata.PrimitiveTypeTriangleList,
		InputLayout: ps.sceneInputLayout,
		VS:          ps.sceneVS,
		PS:          ps.scenePS,
		RenderState: metadata.RenderState{
			DepthStencil: metadata.DepthStencilState{
				DepthTestEnable:  true,
				DepthWriteEnable: true,
				DepthFunc:        metadata.ComparisonFuncLess,
			},
			Raster: metadata.RasterState{
				CullMode:              metadata.RasterCullModeBack,
				FrontCounterClockwise: true,
			},
		},
		BindingLayouts: []renderer.BindingLayout{ps.GlobalLayout, ps.EntityLayout},
		DebugName:      "Scene pipeline",
	}, ps.SceneFramebuffer)
	if err != nil {
		return fmt.Errorf("failed to create scene pipeline: %w", err)
	}

	ps.ScreenPipeline, err = ps.device.CreateGraphicsPipeline(renderer.GraphicsPipelineDesc{
		PrimType:    metadata.PrimitiveTypeTriangleList,
		InputLayout: ps.screenInputLayout,
		VS:          ps.screenVS,
		PS:          ps.screenPS,
		RenderState: metadata.RenderState{
			Raster: metadata.RasterState{CullMode: metadata.RasterCullModeNone},
		},
		BindingLayouts: []renderer.BindingLayout{ps.ScreenLayout},
		DebugName:      "Screen quad pipeline",
	}, backbuffer)
	if err != nil {
		return fmt.Errorf("failed to create screen quad pipeline: %w", err)
	}

	screenDesc := renderer.BindingSetDesc{}
	screenDesc.
		AddItem(renderer.BindingSetItemTextureSRV(0, ps.SceneColor)).
		AddItem(renderer.BindingSetItemSampler(0, ps.Sampler))
	if ps.ScreenSet, err = ps.device.CreateBindingSet(screenDesc, ps.ScreenLayout); err != nil {
		return fmt.Errorf("failed to create screen quad binding set: %w", err)
	}

	ps.backbuffer = backbuffer
	renderer.PrintFramebufferInfo("Scene", ps.SceneFramebuffer.Info())
	return nil
}

/**
 * @brief Reloads all shader stages from disk and rebuilds the pipelines
 * at the current size. On failure the previous shaders stay in use.
 */
func (ps *PipelineSystem) ReloadShaders(backbuffer renderer.Framebuffer) error {
	if err := ps.loadShaders(); err != nil {
		return err
	}
	if backbuffer == nil {
		backbuffer = ps.backbuffer
	}
	if ps.width == 0 || ps.height == 0 || backbuffer == nil {
		return nil
	}
	return ps.Rebuild(ps.width, ps.height, ps.sampleCount, backbuffer)
}

// Viewport covers the whole scene framebuffer.
func (ps *PipelineSystem) Viewport() metadata.ViewportState {
	vs := metadata.ViewportState{}
	vs.AddViewportAndScissorRect(metadata.NewViewport(float32(ps.width), float32(ps.height)))
	return vs
}

func (ps *PipelineSystem) Shutdown() error {
	ps.ReleaseSizeDependent()
	ps.releaseShaders()
	for _, r := range []renderer.Resource{ps.QuadIndices, ps.QuadVertices, ps.GlobalSet, ps.PerEntityBuffer, ps.PerFrameBuffer, ps.Sampler, ps.ScreenLayout, ps.EntityLayout, ps.GlobalLayout} {
		release(r)
	}
	ps.QuadIndices, ps.QuadVertices, ps.GlobalSet = nil, nil, nil
	ps.PerEntityBuffer, ps.PerFrameBuffer, ps.Sampler = nil, nil, nil
	ps.ScreenLayout, ps.EntityLayout, ps.GlobalLayout = nil, nil, nil
	return nil
}
