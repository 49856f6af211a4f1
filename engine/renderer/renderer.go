package renderer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/lumen/engine/core"
)

type BackendType uint8

const (
	BackendVulkan BackendType = iota
	BackendWebGPU
	BackendHeadless
)

type backendInfo struct {
	name string
	// command line flag selecting the backend
	flag string
	// subdirectory of assets/shaders holding this backend's binaries
	shaderDir string
	// swapchains of this backend bake the present mode in at creation
	resizeOnVSyncChange bool
}

var backendTable = map[BackendType]backendInfo{
	BackendVulkan:   {name: "Vulkan", flag: "--vulkan", shaderDir: "vulkan", resizeOnVSyncChange: true},
	BackendWebGPU:   {name: "WebGPU", flag: "--webgpu", shaderDir: "webgpu", resizeOnVSyncChange: true},
	BackendHeadless: {name: "Headless", flag: "--headless", shaderDir: "headless", resizeOnVSyncChange: true},
}

func (b BackendType) String() string {
	if info, ok := backendTable[b]; ok {
		return info.name
	}
	return fmt.Sprintf("BackendType(%d)", b)
}

// ShaderDir is the per-backend subdirectory under assets/shaders.
func (b BackendType) ShaderDir() string {
	return backendTable[b].shaderDir
}

func (b BackendType) ResizeOnVSyncChange() bool {
	return backendTable[b].resizeOnVSyncChange
}

// ShaderPath returns assets/shaders/{backend}/{stage}.bin relative to assetsDir.
func (b BackendType) ShaderPath(assetsDir, stage string) string {
	return filepath.Join(assetsDir, "shaders", b.ShaderDir(), stage+".bin")
}

// ParseBackend accepts a backend name such as "vulkan" or a flag such as "--vulkan".
func ParseBackend(s string) (BackendType, error) {
	for bt, info := range backendTable {
		if strings.EqualFold(s, info.name) || s == info.flag {
			return bt, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownBackend, s)
}

/**
 * @brief Picks the backend from process arguments.
 * Backend flags are mutually exclusive. Arguments that are not backend
 * flags are returned so the caller can report them.
 */
func BackendFromArgs(args []string, fallback BackendType) (BackendType, []string, error) {
	selected := fallback
	found := false
	var unknown []string
	for _, arg := range args {
		bt, err := ParseBackend(arg)
		if err != nil || !strings.HasPrefix(arg, "--") {
			unknown = append(unknown, arg)
			continue
		}
		if found && bt != selected {
			return fallback, unknown, fmt.Errorf("%w: %s and %s", core.ErrMultipleBackends, selected, bt)
		}
		selected = bt
		found = true
	}
	return selected, unknown, nil
}
