//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Default compiles the shaders and the demo binary.
var Default = Build.Engine

const shaderRoot = "assets/shaders"

type shaderSource struct {
	name  string
	stage string
	entry string
}

var shaderSources = []shaderSource{
	{"default_main", "vert", "main_vs"},
	{"default_main", "frag", "main_ps"},
	{"screen_main", "vert", "main_vs"},
	{"screen_main", "frag", "main_ps"},
}

// Compiles the HLSL sources to SPIR-V for vulkan and copies the WGSL sources for webgpu.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the demo binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/lumen", "."), withStream())
	return err
}

func buildShaders() error {
	for _, dir := range []string{"vulkan", "webgpu"} {
		if err := os.MkdirAll(filepath.Join(shaderRoot, dir), 0o755); err != nil {
			return err
		}
	}
	for _, s := range shaderSources {
		out := fmt.Sprintf("%s_%s.bin", s.name, s.entry)
		src := filepath.Join(shaderRoot, "src", s.name+".hlsl")
		if _, err := executeCmd("glslc", withArgs(
			"-x", "hlsl",
			"-fshader-stage="+s.stage,
			"-fentry-point="+s.entry,
			src,
			"-o", filepath.Join(shaderRoot, "vulkan", out),
		), withStream()); err != nil {
			return err
		}

		// one WGSL module holds both entry points
		wgsl, err := os.ReadFile(filepath.Join(shaderRoot, "src", s.name+".wgsl"))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(shaderRoot, "webgpu", out), wgsl, 0o644); err != nil {
			return err
		}
	}
	return nil
}
