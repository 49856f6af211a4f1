package systems

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var (
	SCENE_CLEAR_COLOR      = metadata.Color{R: 0.01, G: 0.05, B: 0.05, A: 1}
	BACKBUFFER_CLEAR_COLOR = metadata.Color{A: 1}
)

const (
	SCENE_CLEAR_DEPTH float32 = 1
	/** @brief Time step used for animation when the fixed timestep is on. */
	FIXED_TIME_STEP float32 = 0.016
)

// RenderEntity places a model in the world.
type RenderEntity struct {
	ModelIndex int
	Transform  mgl32.Mat4
}

type RendererSystemConfig struct {
	/** @brief Advance time by FIXED_TIME_STEP every frame instead of the measured delta. */
	FixedTimestep bool
	/** @brief Upper bound on entities, sizes the per-entity constant buffer. */
	MaxEntities uint32
}

/**
 * @brief Records and submits one frame: the scene pass into the offscreen
 * framebuffer followed by the fullscreen quad into the current back buffer.
 * It is registered with the device manager as a render pass so the scene
 * framebuffer follows the back buffer size.
 */
type RendererSystem struct {
	config        RendererSystemConfig
	deviceManager *renderer.DeviceManager
	device        renderer.Device
	pipelines     *PipelineSystem
	models        *ModelSystem
	camera        *components.Camera

	entities    []RenderEntity
	commandList renderer.CommandList

	time      float32
	lastFrame time.Time
}

func NewRendererSystem(config RendererSystemConfig, dm *renderer.DeviceManager, pipelines *PipelineSystem, models *ModelSystem) (*RendererSystem, error) {
	if dm == nil || dm.GetDevice() == nil {
		return nil, fmt.Errorf("func NewRendererSystem - device manager: %w", core.ErrNotInitialized)
	}
	if pipelines == nil || models == nil {
		return nil, fmt.Errorf("func NewRendererSystem - %w", core.ErrInvalidHandle)
	}
	cl, err := dm.GetDevice().CreateCommandList()
	if err != nil {
		return nil, fmt.Errorf("failed to create frame command list: %w", err)
	}
	return &RendererSystem{
		config:        config,
		deviceManager: dm,
		device:        dm.GetDevice(),
		pipelines:     pipelines,
		models:        models,
		camera:        components.NewCamera(),
		commandList:   cl,
	}, nil
}

func (r *RendererSystem) Camera() *components.Camera {
	return r.camera
}

// Time is the animation time accumulated so far.
func (r *RendererSystem) Time() float32 {
	return r.time
}

/**
 * @brief Adds an entity drawn in registration order.
 * @return Its index, or an error when the model does not exist or the
 * entity limit is reached.
 */
func (r *RendererSystem) AddEntity(entity RenderEntity) (int, error) {
	if _, ok := r.models.Model(entity.ModelIndex); !ok {
		return -1, fmt.Errorf("%w: entity references model %d, %d are loaded", core.ErrInvalidHandle, entity.ModelIndex, r.models.Count())
	}
	if uint32(len(r.entities)) >= r.config.MaxEntities {
		return -1, fmt.Errorf("cannot add entity %d: %w", len(r.entities), core.ErrCapacityExceeded)
	}
	r.entities = append(r.entities, entity)
	return len(r.entities) - 1, nil
}

func (r *RendererSystem) Entities() []RenderEntity {
	return append([]RenderEntity(nil), r.entities...)
}

// SetEntityTransform replaces the transform of the entity at index.
func (r *RendererSystem) SetEntityTransform(index int, transform mgl32.Mat4) error {
	if index < 0 || index >= len(r.entities) {
		return fmt.Errorf("%w: entity %d", core.ErrInvalidHandle, index)
	}
	r.entities[index].Transform = transform
	return nil
}

func (r *RendererSystem) BackBufferResizing() {
	r.pipelines.ReleaseSizeDependent()
}

func (r *RendererSystem) BackBufferResized(width, height, sampleCount uint32) error {
	return r.pipelines.Rebuild(width, height, sampleCount, r.deviceManager.GetFramebuffer(0))
}

func (r *RendererSystem) advanceTime() {
	now := time.Now()
	if r.config.FixedTimestep || r.lastFrame.IsZero() {
		r.time += FIXED_TIME_STEP
	} else {
		r.time += float32(now.Sub(r.lastFrame).Seconds())
	}
	r.lastFrame = now
}

/**
 * @brief Renders one frame. BeginFrame is the only call that blocks, the
 * recorded work is submitted without waiting for it.
 */
func (r *RendererSystem) DrawFrame(ctx context.Context) error {
	if !r.deviceManager.IsWindowVisible() {
		return nil
	}
	if err := r.deviceManager.BeginFrame(ctx); err != nil {
		return fmt.Errorf("failed to begin frame: %w", err)
	}
	backbuffer := r.deviceManager.GetCurrentFramebuffer()
	ps := r.pipelines
	if backbuffer == nil || ps.ScenePipeline == nil || ps.ScreenPipeline == nil {
		return fmt.Errorf("frame resources missing: %w", core.ErrNotInitialized)
	}

	cl := r.commandList
	if err := cl.Open(); err != nil {
		return err
	}

	cl.ClearTextureFloat(ps.SceneColor, SCENE_CLEAR_COLOR)
	cl.ClearDepthStencilTexture(ps.SceneDepth, true, SCENE_CLEAR_DEPTH, false, 0)

	r.advanceTime()
	frameConstants := metadata.PerFrameConstants{
		View:       r.camera.GetView(),
		Projection: r.camera.GetProjection(),
		Time:       r.time,
	}
	cl.WriteBuffer(ps.PerFrameBuffer, metadata.ValueBytes(&frameConstants), 0)

	viewport := ps.Viewport()
	for _, entity := range r.entities {
		model, ok := r.models.Model(entity.ModelIndex)
		if !ok {
			continue
		}
		entityConstants := metadata.PerEntityConstants{Transform: entity.Transform}
		cl.WriteBuffer(ps.PerEntityBuffer, metadata.ValueBytes(&entityConstants), 0)

		for _, surface := range model.Surfaces {
			state := renderer.GraphicsState{
				Pipeline:      ps.ScenePipeline,
				Framebuffer:   ps.SceneFramebuffer,
				Viewport:      viewport,
				Bindings:      []renderer.BindingSet{ps.GlobalSet, surface.BindingSet},
				VertexBuffers: []renderer.VertexBufferBinding{{Buffer: surface.VertexBuffer}},
				IndexBuffer:   renderer.IndexBufferBinding{Buffer: surface.IndexBuffer, Format: metadata.FormatR32UInt},
			}
			cl.SetGraphicsState(state)
			cl.DrawIndexed(metadata.NewDrawArguments(surface.IndexCount))
		}
	}

	cl.ClearTextureFloat(r.deviceManager.GetCurrentBackBuffer(), BACKBUFFER_CLEAR_COLOR)
	info := backbuffer.Info()
	screenViewport := metadata.ViewportState{}
	screenViewport.AddViewportAndScissorRect(metadata.NewViewport(float32(info.Width), float32(info.Height)))
	cl.SetGraphicsState(renderer.GraphicsState{
		Pipeline:      ps.ScreenPipeline,
		Framebuffer:   backbuffer,
		Viewport:      screenViewport,
		Bindings:      []renderer.BindingSet{ps.ScreenSet},
		VertexBuffers: []renderer.VertexBufferBinding{{Buffer: ps.QuadVertices}},
		IndexBuffer:   renderer.IndexBufferBinding{Buffer: ps.QuadIndices, Format: metadata.FormatR32UInt},
	})
	cl.DrawIndexed(metadata.NewDrawArguments(uint32(len(metadata.ScreenQuadIndices))))

	if err := cl.Close(); err != nil {
		return fmt.Errorf("failed to record frame %d: %w", r.deviceManager.GetFrameIndex(), err)
	}
	if _, err := r.device.ExecuteCommandList(cl); err != nil {
		return fmt.Errorf("failed to submit frame %d: %w", r.deviceManager.GetFrameIndex(), err)
	}
	if err := r.deviceManager.Present(); err != nil {
		return fmt.Errorf("failed to present: %w", err)
	}
	r.device.RunGarbageCollection()
	return nil
}

func (r *RendererSystem) Shutdown() error {
	r.deviceManager.RemoveRenderPass(r)
	r.entities = nil
	return nil
}
