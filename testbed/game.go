package testbed

import (
	"context"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// camera units per second
const cameraMoveSpeed float32 = 0.5

type TestGame struct {
	*engine.Game
}

type gameState struct {
	systemManager *systems.SystemManager
	input         *core.Input

	width  uint32
	height uint32

	// model index per configured model, -1 when it fell back to the pentagon
	models   []int
	entities []int
}

// NewTestGame builds the demo scene game around config.
func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

/**
 * @brief Loads the configured models and places the configured entities.
 * Without any model, or when none of them loads, a pentagon is drawn at
 * the origin and once more next to it.
 */
func (g *TestGame) Initialize(ctx context.Context, sm *systems.SystemManager, input *core.Input) error {
	core.LogInfo("initializing testbed...")
	state := g.State.(*gameState)
	state.systemManager = sm
	state.input = input

	scene := g.ApplicationConfig.Scene
	state.models = make([]int, len(scene.Models))
	loaded := 0
	for i, path := range scene.Models {
		index, err := sm.ModelSystem.LoadModel(ctx, path)
		if err != nil {
			core.LogWarn("failed to load model %s: %s", path, err)
			state.models[i] = -1
			continue
		}
		state.models[i] = index
		loaded++
	}

	if loaded == 0 {
		return g.placePentagons(ctx)
	}

	entities := scene.Entities
	if len(entities) == 0 {
		// one entity per model at the origin
		for i := range scene.Models {
			entities = append(entities, engine.SceneEntityConfig{Model: i})
		}
	}
	for _, e := range entities {
		index := state.models[e.Model]
		if index < 0 {
			continue
		}
		if err := g.addEntity(index, e.Translation); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) placePentagons(ctx context.Context) error {
	state := g.State.(*gameState)
	core.LogInfo("no model loaded, drawing the fallback pentagon")
	index, err := state.systemManager.ModelSystem.AddModel(ctx, systems.PentagonModel())
	if err != nil {
		return err
	}
	if err := g.addEntity(index, [3]float32{0, 0, 0}); err != nil {
		return err
	}
	return g.addEntity(index, [3]float32{0.6, 0, 0})
}

func (g *TestGame) addEntity(model int, t [3]float32) error {
	state := g.State.(*gameState)
	entity, err := state.systemManager.RendererSystem.AddEntity(systems.RenderEntity{
		ModelIndex: model,
		Transform:  systems.Translation(t[0], t[1], t[2]),
	})
	if err != nil {
		return err
	}
	state.entities = append(state.entities, entity)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	if state.input == nil || state.systemManager == nil {
		return nil
	}
	camera := state.systemManager.RendererSystem.Camera()
	input := state.input
	step := cameraMoveSpeed * float32(deltaTime)

	if input.IsKeyDown(core.KEY_W) || input.IsKeyDown(core.KEY_UP) {
		camera.MoveForward(step)
	}
	if input.IsKeyDown(core.KEY_S) || input.IsKeyDown(core.KEY_DOWN) {
		camera.MoveBackward(step)
	}
	if input.IsKeyDown(core.KEY_A) || input.IsKeyDown(core.KEY_LEFT) {
		camera.MoveLeft(step)
	}
	if input.IsKeyDown(core.KEY_D) || input.IsKeyDown(core.KEY_RIGHT) {
		camera.MoveRight(step)
	}
	if input.IsKeyDown(core.KEY_E) {
		camera.MoveUp(step)
	}
	if input.IsKeyDown(core.KEY_Q) {
		camera.MoveDown(step)
	}

	if input.IsKeyUp(core.KEY_R) && input.WasKeyDown(core.KEY_R) {
		camera.Reset()
		if state.width > 0 && state.height > 0 {
			camera.SetPerspective(camera.FovY, float32(state.width)/float32(state.height), camera.Near, camera.Far)
		}
		core.LogDebug("camera reset")
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)

	state.width = width
	state.height = height

	if state.systemManager != nil && width > 0 && height > 0 {
		camera := state.systemManager.RendererSystem.Camera()
		camera.SetPerspective(camera.FovY, float32(width)/float32(height), camera.Near, camera.Far)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	state.entities = nil
	state.models = nil
	state.systemManager = nil
	return nil
}

// Entities returns the renderer entity indices the scene placed.
func (g *TestGame) Entities() []int {
	return g.State.(*gameState).entities
}
