package platform

import (
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

/**
 * @brief The GLFW window and its callbacks. A platform started without a
 * window (headless runs) pumps nothing and never asks to close.
 */
type Platform struct {
	Window *glfw.Window

	events    *core.EventSystem
	input     *core.Input
	startTime time.Time
}

func New(events *core.EventSystem, input *core.Input) *Platform {
	return &Platform{events: events, input: input}
}

// Startup creates the window. With windowed false only the clock is started.
func (p *Platform) Startup(applicationName string, x, y, width, height uint32, windowed bool) error {
	p.startTime = time.Now()
	if !windowed {
		return nil
	}
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan and WebGPU.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window == nil {
		return nil
	}
	p.Window.Destroy()
	p.Window = nil
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. Returns false once the window should close.
func (p *Platform) PumpMessages() bool {
	if p.Window == nil {
		return true
	}
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// FramebufferSize is the drawable size in pixels, 0x0 while minimised.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	return uint32(max(w, 0)), uint32(max(h, 0))
}

// GetAbsoluteTime returns the seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return time.Since(p.startTime).Seconds()
}

func (p *Platform) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

var keyMapping = map[glfw.Key]core.KeyCode{
	glfw.KeyEnter:  core.KEY_ENTER,
	glfw.KeyEscape: core.KEY_ESCAPE,
	glfw.KeySpace:  core.KEY_SPACE,
	glfw.KeyLeft:   core.KEY_LEFT,
	glfw.KeyUp:     core.KEY_UP,
	glfw.KeyRight:  core.KEY_RIGHT,
	glfw.KeyDown:   core.KEY_DOWN,
	glfw.KeyA:      core.KEY_A,
	glfw.KeyD:      core.KEY_D,
	glfw.KeyE:      core.KEY_E,
	glfw.KeyQ:      core.KEY_Q,
	glfw.KeyR:      core.KEY_R,
	glfw.KeyS:      core.KEY_S,
	glfw.KeyV:      core.KEY_V,
	glfw.KeyW:      core.KEY_W,
}

// TranslateKey maps a GLFW key to the engine's key code, KEY_UNKNOWN if it has none.
func TranslateKey(key glfw.Key) core.KeyCode {
	if code, ok := keyMapping[key]; ok {
		return code
	}
	return core.KEY_UNKNOWN
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat || p.input == nil {
		return
	}
	p.input.ProcessKey(TranslateKey(key), action == glfw.Press)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if p.events == nil {
		return
	}
	p.events.Fire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: uint32(max(width, 0)), WindowHeight: uint32(max(height, 0))},
	})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	if p.events != nil {
		p.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	}
}
