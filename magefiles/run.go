//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Builds the shaders and runs the demo on backend (vulkan, webgpu or headless).
func (Run) Engine(backend string) error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Printf("Run engine with %s...\n", backend)
	if _, err := executeCmd("go", withArgs("run", ".", "--"+backend), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs every package test. The window and GPU bindings need cgo.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
