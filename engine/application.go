package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// DefaultConfigPath is read when it exists and no other config was named.
const DefaultConfigPath = "lumen.toml"

// SceneEntityConfig places one instance of Scene.Models[Model].
type SceneEntityConfig struct {
	Model       int        `toml:"model"`
	Translation [3]float32 `toml:"translation"`
}

type SceneConfig struct {
	// glTF files relative to the assets directory.
	Models   []string            `toml:"models"`
	Entities []SceneEntityConfig `toml:"entities"`
}

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"start_height"`

	LogLevel string `toml:"log_level"`
	// Backend used when no backend flag is given.
	Backend              string `toml:"backend"`
	VSync                bool   `toml:"vsync"`
	MaxFramesInFlight    uint32 `toml:"max_frames_in_flight"`
	SwapChainBufferCount uint32 `toml:"swapchain_buffer_count"`
	// Pause after every frame, in milliseconds.
	FrameSleepMS uint32 `toml:"frame_sleep_ms"`
	// Stop after this many frames, 0 runs until asked to quit.
	MaxFrames uint64 `toml:"max_frames"`

	AssetsDir   string `toml:"assets_dir"`
	HotReload   bool   `toml:"hot_reload"`
	MaxTextures uint32 `toml:"max_textures"`
	// Entities drawn per frame, sizes the per-entity constant buffer.
	MaxEntities uint32 `toml:"max_entities"`

	Scene SceneConfig `toml:"scene"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:                 "Lumen",
		StartPosX:            100,
		StartPosY:            100,
		StartWidth:           1600,
		StartHeight:          900,
		LogLevel:             "info",
		Backend:              "vulkan",
		VSync:                false,
		MaxFramesInFlight:    2,
		SwapChainBufferCount: 3,
		FrameSleepMS:         16,
		AssetsDir:            "assets",
		MaxTextures:          128,
		MaxEntities:          64,
	}
}

// LoadApplicationConfig reads path over the defaults. Keys missing from the file keep their default.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	config := DefaultApplicationConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

/**
 * @brief Loads the config for a run. An explicit path must exist, without
 * one DefaultConfigPath is used when present and the defaults otherwise.
 */
func ResolveApplicationConfig(explicitPath string) (*ApplicationConfig, error) {
	if explicitPath != "" {
		return LoadApplicationConfig(explicitPath)
	}
	config, err := LoadApplicationConfig(DefaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultApplicationConfig(), nil
	}
	return config, err
}

func (c *ApplicationConfig) Validate() error {
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := renderer.ParseBackend(c.Backend); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return fmt.Errorf("window size %dx%d", c.StartWidth, c.StartHeight)
	}
	if c.MaxFramesInFlight == 0 {
		return fmt.Errorf("max_frames_in_flight must be at least 1")
	}
	if c.MaxEntities == 0 {
		return fmt.Errorf("max_entities must be at least 1")
	}
	if len(c.Scene.Entities) > int(c.MaxEntities) {
		return fmt.Errorf("scene has %d entities, max_entities is %d", len(c.Scene.Entities), c.MaxEntities)
	}
	for i, e := range c.Scene.Entities {
		if e.Model < 0 || e.Model >= len(c.Scene.Models) {
			return fmt.Errorf("scene entity %d uses model %d, only %d are configured", i, e.Model, len(c.Scene.Models))
		}
	}
	return nil
}

func (c *ApplicationConfig) BackendType() renderer.BackendType {
	bt, err := renderer.ParseBackend(c.Backend)
	if err != nil {
		return renderer.BackendVulkan
	}
	return bt
}

func (c *ApplicationConfig) FrameSleep() time.Duration {
	return time.Duration(c.FrameSleepMS) * time.Millisecond
}

// DeviceParameters derives the device creation parameters of this config.
func (c *ApplicationConfig) DeviceParameters() renderer.DeviceCreationParameters {
	params := renderer.DefaultDeviceCreationParameters()
	params.BackBufferWidth = c.StartWidth
	params.BackBufferHeight = c.StartHeight
	params.VSyncEnabled = c.VSync
	params.MaxFramesInFlight = c.MaxFramesInFlight
	if c.SwapChainBufferCount > 0 {
		params.SwapChainBufferCount = c.SwapChainBufferCount
	}
	params.WindowTitle = c.Name
	return params
}
