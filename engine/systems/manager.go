package systems

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type SystemManagerConfig struct {
	Textures      TextureSystemConfig
	MaxEntities   uint32
	FixedTimestep bool
}

func DefaultSystemManagerConfig() SystemManagerConfig {
	return SystemManagerConfig{
		Textures:      DefaultTextureSystemConfig(),
		MaxEntities:   64,
		FixedTimestep: true,
	}
}

/**
 * @brief The renderer context. Owns every system that holds GPU objects
 * and tears them down in reverse creation order.
 */
type SystemManager struct {
	deviceManager *renderer.DeviceManager
	assetManager  *assets.AssetManager
	events        *core.EventSystem

	TextureSystem  *TextureSystem
	PipelineSystem *PipelineSystem
	ModelSystem    *ModelSystem
	RendererSystem *RendererSystem
}

// NewSystemManager creates all systems on the device of dm, which must already have its swapchain. events may be nil.
func NewSystemManager(ctx context.Context, config SystemManagerConfig, dm *renderer.DeviceManager, am *assets.AssetManager, events *core.EventSystem) (*SystemManager, error) {
	if dm == nil || dm.GetDevice() == nil {
		return nil, fmt.Errorf("func NewSystemManager - device manager: %w", core.ErrNotInitialized)
	}
	sm := &SystemManager{deviceManager: dm, assetManager: am, events: events}
	if err := sm.initialize(ctx, config); err != nil {
		if serr := sm.Shutdown(ctx); serr != nil {
			core.LogWarn("cleanup after failed initialisation: %s", serr)
		}
		return nil, err
	}
	return sm, nil
}

func (sm *SystemManager) initialize(ctx context.Context, config SystemManagerConfig) error {
	device := sm.deviceManager.GetDevice()
	params := sm.deviceManager.GetDeviceParams()
	var err error

	if sm.TextureSystem, err = NewTextureSystem(config.Textures, device, sm.assetManager); err != nil {
		return err
	}
	if err := sm.TextureSystem.Initialize(ctx); err != nil {
		return err
	}

	sm.PipelineSystem, err = NewPipelineSystem(PipelineSystemConfig{
		MaxFramesInFlight: params.MaxFramesInFlight,
		MaxEntities:       config.MaxEntities,
	}, device, sm.deviceManager.GetGraphicsAPI(), sm.assetManager)
	if err != nil {
		return err
	}
	if err := sm.PipelineSystem.Initialize(ctx, params.SwapChainFormat); err != nil {
		return err
	}
	if width, height := sm.deviceManager.GetWindowDimensions(); width > 0 && height > 0 {
		if err := sm.PipelineSystem.Rebuild(width, height, params.SwapChainSampleCount, sm.deviceManager.GetFramebuffer(0)); err != nil {
			return err
		}
	}

	if sm.ModelSystem, err = NewModelSystem(device, sm.assetManager, sm.TextureSystem, sm.PipelineSystem.EntityLayout); err != nil {
		return err
	}

	sm.RendererSystem, err = NewRendererSystem(RendererSystemConfig{
		FixedTimestep: config.FixedTimestep,
		MaxEntities:   config.MaxEntities,
	}, sm.deviceManager, sm.PipelineSystem, sm.ModelSystem)
	if err != nil {
		return err
	}
	sm.deviceManager.AddRenderPass(sm.RendererSystem)
	return nil
}

/**
 * @brief Applies files changed on disk since the last call. Shader
 * changes rebuild the pipelines, every change is announced with
 * EVENT_CODE_ASSET_CHANGED. Call between frames.
 */
func (sm *SystemManager) ProcessAssetChanges() {
	if sm.assetManager == nil {
		return
	}
	reloadShaders := false
	for _, path := range sm.assetManager.PendingReloads() {
		if assets.DetermineAssetType(path) == metadata.ResourceTypeShader {
			reloadShaders = true
		}
		if sm.events != nil {
			sm.events.Fire(core.EventContext{Type: core.EVENT_CODE_ASSET_CHANGED, Data: path})
		}
	}
	if !reloadShaders {
		return
	}
	if err := sm.PipelineSystem.ReloadShaders(sm.deviceManager.GetFramebuffer(0)); err != nil {
		// keep rendering with the previous shaders
		core.LogError("shader reload failed: %s", err)
		return
	}
	core.LogInfo("shaders reloaded")
}

func (sm *SystemManager) DrawFrame(ctx context.Context) error {
	return sm.RendererSystem.DrawFrame(ctx)
}

// Shutdown waits for the device to go idle and releases everything. Systems that were never created are skipped.
func (sm *SystemManager) Shutdown(ctx context.Context) error {
	var errs []error
	device := sm.deviceManager.GetDevice()
	if device != nil {
		if err := device.WaitForIdle(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if sm.RendererSystem != nil {
		errs = append(errs, sm.RendererSystem.Shutdown())
	}
	if sm.ModelSystem != nil {
		errs = append(errs, sm.ModelSystem.Shutdown())
	}
	if sm.PipelineSystem != nil {
		errs = append(errs, sm.PipelineSystem.Shutdown())
	}
	if sm.TextureSystem != nil {
		errs = append(errs, sm.TextureSystem.Shutdown())
	}
	if device != nil {
		device.RunGarbageCollection()
	}
	return errors.Join(errs...)
}
