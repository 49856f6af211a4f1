package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/webgpu"
	"github.com/spaghettifunk/lumen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	// simulated GPU time of a headless frame
	headlessRetireDelay = 2 * time.Millisecond
	// frames between two frame time log lines
	frameTimeLogInterval = 300
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	backendType  renderer.BackendType

	events        *core.EventSystem
	input         *core.Input
	platform      *platform.Platform
	assetManager  *assets.AssetManager
	deviceManager *renderer.DeviceManager
	systemManager *systems.SystemManager
	clock         *core.Clock

	quit          atomic.Bool
	width         uint32
	height        uint32
	pendingResize bool
	frameCount    uint64
	lastTime      float64
}

func New(g *Game, backend renderer.BackendType) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("func New - game config: %w", core.ErrInvalidHandle)
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, err
	}
	events := core.NewEventSystem()
	input := core.NewInput(events)
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.ApplicationConfig,
		backendType:  backend,
		events:       events,
		input:        input,
		platform:     platform.New(events, input),
		clock:        core.NewClock(),
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// FrameCount is the number of frames drawn by Run.
func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) DeviceManager() *renderer.DeviceManager {
	return e.deviceManager
}

// RequestQuit stops Run after the current frame. Safe to call from any goroutine.
func (e *Engine) RequestQuit() {
	e.quit.Store(true)
}

func (e *Engine) newSwapchainBackend() renderer.SwapchainBackend {
	switch e.backendType {
	case renderer.BackendVulkan:
		return vulkan.New(e.platform.Window)
	case renderer.BackendWebGPU:
		return webgpu.New(e.platform.Window)
	default:
		return headless.NewSwapchain(headless.Options{RetireDelay: headlessRetireDelay})
	}
}

func (e *Engine) Initialize(ctx context.Context) error {
	e.currentStage = EngineStageInitializing

	level, err := core.ParseLogLevel(e.config.LogLevel)
	if err != nil {
		return err
	}
	core.SetLogLevel(level)

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)

	windowed := e.backendType != renderer.BackendHeadless
	if err := e.platform.Startup(e.config.Name,
		e.config.StartPosX,
		e.config.StartPosY,
		e.config.StartWidth,
		e.config.StartHeight,
		windowed); err != nil {
		return err
	}

	e.assetManager = assets.NewAssetManager(e.config.AssetsDir)
	if e.config.HotReload {
		if err := e.assetManager.Watch(); err != nil {
			// rendering works without hot reload
			core.LogWarn("asset hot reload disabled: %s", err)
		}
	}

	e.deviceManager = renderer.NewDeviceManager(e.newSwapchainBackend(), e.events)
	if err := e.deviceManager.CreateWindowDeviceAndSwapChain(ctx, e.config.DeviceParameters()); err != nil {
		return err
	}
	if windowed {
		// the drawable size differs from the window size on HiDPI screens
		if w, h := e.platform.FramebufferSize(); w != e.width || h != e.height {
			e.width, e.height = w, h
			if err := e.deviceManager.UpdateWindowSize(ctx, w, h); err != nil {
				return err
			}
		}
	}

	smConfig := systems.DefaultSystemManagerConfig()
	if e.config.MaxTextures > 0 {
		smConfig.Textures.MaxTextureCount = e.config.MaxTextures
	}
	smConfig.MaxEntities = e.config.MaxEntities
	e.systemManager, err = systems.NewSystemManager(ctx, smConfig, e.deviceManager, e.assetManager, e.events)
	if err != nil {
		return err
	}
	core.LogInfo("Initialized %s", e.deviceManager.GetRendererString())

	if err := e.gameInstance.FnInitialize(ctx, e.systemManager, e.input); err != nil {
		return err
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

/**
 * @brief The frame loop. Returns nil when a quit was requested, the window
 * closed, ctx was cancelled or MaxFrames were drawn. Any other failure of
 * the game or the renderer stops the loop with that error.
 */
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("func Run - engine: %w", core.ErrNotInitialized)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for !e.quit.Load() && ctx.Err() == nil {
		if !e.platform.PumpMessages() {
			break
		}

		if e.pendingResize {
			e.pendingResize = false
			if err := e.deviceManager.UpdateWindowSize(ctx, e.width, e.height); err != nil {
				return err
			}
			if e.width > 0 && e.height > 0 && e.gameInstance.FnOnResize != nil {
				if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
					return err
				}
			}
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		e.systemManager.ProcessAssetChanges()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down.")
			return err
		}

		if err := e.systemManager.DrawFrame(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		e.frameCount++
		if e.frameCount%frameTimeLogInterval == 0 {
			core.LogDebug("Average frame time %.2f ms", e.deviceManager.GetAverageFrameTimeSeconds()*1000)
		}
		if e.config.MaxFrames > 0 && e.frameCount >= e.config.MaxFrames {
			break
		}

		e.platform.Sleep(e.config.FrameSleep())

		// NOTE: input state copying must stay the last step of the frame.
		e.input.Update()
		e.lastTime = currentTime
	}
	return nil
}

// Shutdown releases everything Initialize created, in reverse order. It is safe after a failed Initialize.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown(ctx))
		e.systemManager = nil
	}
	if e.deviceManager != nil {
		e.deviceManager.Shutdown()
		e.deviceManager = nil
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
		e.assetManager = nil
	}
	errs = append(errs, e.platform.Shutdown())
	e.events.Shutdown()
	e.clock.Stop()
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order) of the application framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.RequestQuit()
	}
}

func (e *Engine) onKey(context core.EventContext) {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	case core.KEY_V:
		if e.deviceManager == nil {
			return
		}
		enabled := !e.deviceManager.IsVsyncEnabled()
		e.deviceManager.SetVsyncEnabled(enabled)
		// applied with the next window size update
		e.pendingResize = true
		core.LogInfo("VSync %t", enabled)
	}
}

func (e *Engine) onResized(context core.EventContext) {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	if se.WindowWidth == e.width && se.WindowHeight == e.height {
		return
	}
	core.LogDebug("Window resize: %d, %d", se.WindowWidth, se.WindowHeight)
	if se.WindowWidth == 0 || se.WindowHeight == 0 {
		core.LogInfo("Window minimized, suspending rendering.")
	}
	e.width = se.WindowWidth
	e.height = se.WindowHeight
	e.pendingResize = true
}
