package systems

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A drawable partition of a model: GPU geometry plus the binding
 * set that exposes its texture to the scene pipeline.
 */
type RenderSurface struct {
	VertexBuffer renderer.Buffer
	IndexBuffer  renderer.Buffer
	VertexCount  uint32
	IndexCount   uint32
	TextureIndex int
	BindingSet   renderer.BindingSet
	MaterialName string
}

type RenderModel struct {
	Name     string
	Surfaces []RenderSurface
}

func (m RenderModel) release() {
	for _, s := range m.Surfaces {
		release(s.BindingSet)
		release(s.IndexBuffer)
		release(s.VertexBuffer)
	}
}

// ModelSystem uploads models and hands them out by index.
type ModelSystem struct {
	device   renderer.Device
	assets   *assets.AssetManager
	textures *TextureSystem
	layout   renderer.BindingLayout
	models   []RenderModel
}

// NewModelSystem needs the entity binding layout the surfaces' binding sets are created on. am may be nil when only AddModel is used.
func NewModelSystem(device renderer.Device, am *assets.AssetManager, textures *TextureSystem, entityLayout renderer.BindingLayout) (*ModelSystem, error) {
	if device == nil || textures == nil || entityLayout == nil {
		return nil, fmt.Errorf("func NewModelSystem - %w", core.ErrInvalidHandle)
	}
	return &ModelSystem{
		device:   device,
		assets:   am,
		textures: textures,
		layout:   entityLayout,
	}, nil
}

/**
 * @brief Parses a glTF file and uploads every surface.
 * @param path Relative to the assets directory, or absolute.
 * @return The model index. On error nothing is registered.
 */
func (ms *ModelSystem) LoadModel(ctx context.Context, path string) (int, error) {
	if ms.assets == nil {
		return -1, fmt.Errorf("cannot load %s: %w", path, core.ErrNotInitialized)
	}
	res, err := ms.assets.LoadAsset(ms.assets.Resolve(path), metadata.ResourceTypeModel, nil)
	if err != nil {
		err = fmt.Errorf("failed to load model %s: %w", path, err)
		core.LogError(err.Error())
		return -1, err
	}
	data, ok := res.Data.(*metadata.ModelData)
	if !ok {
		return -1, fmt.Errorf("model %s did not load as model data", path)
	}
	return ms.AddModel(ctx, data)
}

// AddModel uploads geometry that is already in memory, e.g. a procedural mesh.
func (ms *ModelSystem) AddModel(ctx context.Context, data *metadata.ModelData) (int, error) {
	if data == nil || len(data.Surfaces) == 0 {
		return -1, fmt.Errorf("model has no surfaces")
	}

	names := make([]string, len(data.Surfaces))
	for i, s := range data.Surfaces {
		names[i] = s.MaterialName
	}
	textureIndices := ms.textures.FindOrCreateAll(ctx, names)

	model := RenderModel{Name: data.Name}
	for i, s := range data.Surfaces {
		surface, err := ms.uploadSurface(ctx, data.Name, i, s, textureIndices[i])
		if err != nil {
			model.release()
			err = fmt.Errorf("failed to upload surface %d of model %s: %w", i, data.Name, err)
			core.LogError(err.Error())
			return -1, err
		}
		model.Surfaces = append(model.Surfaces, surface)
	}

	ms.models = append(ms.models, model)
	core.LogInfo("loaded model %s with %d surfaces", data.Name, len(model.Surfaces))
	return len(ms.models) - 1, nil
}

func (ms *ModelSystem) uploadSurface(ctx context.Context, model string, index int, s metadata.SurfaceData, textureIndex int) (RenderSurface, error) {
	surface := RenderSurface{MaterialName: s.MaterialName, TextureIndex: textureIndex}
	if textureIndex == metadata.INVALID_TEXTURE_INDEX {
		core.LogWarn("material %q of model %s not found, using the default texture", s.MaterialName, model)
		surface.TextureIndex = metadata.DEFAULT_TEXTURE_INDEX
	}

	var err error
	surface.VertexBuffer, err = CreateBufferWithData(ctx, ms.device, s.Vertices, metadata.BufferRoleVertex,
		fmt.Sprintf("%s vertices %d", model, index))
	if err != nil {
		return surface, err
	}
	surface.IndexBuffer, err = CreateBufferWithData(ctx, ms.device, s.Indices, metadata.BufferRoleIndex,
		fmt.Sprintf("%s indices %d", model, index))
	if err != nil {
		surface.VertexBuffer.Release()
		return surface, err
	}
	surface.VertexCount = uint32(len(s.Vertices))
	surface.IndexCount = uint32(len(s.Indices))

	desc := renderer.BindingSetDesc{}
	desc.AddItem(renderer.BindingSetItemTextureSRV(0, ms.textures.Texture(surface.TextureIndex)))
	if surface.BindingSet, err = ms.device.CreateBindingSet(desc, ms.layout); err != nil {
		surface.IndexBuffer.Release()
		surface.VertexBuffer.Release()
		return surface, err
	}
	return surface, nil
}

// Model returns a copy of the model at index.
func (ms *ModelSystem) Model(index int) (RenderModel, bool) {
	if index < 0 || index >= len(ms.models) {
		return RenderModel{}, false
	}
	m := ms.models[index]
	m.Surfaces = append([]RenderSurface(nil), m.Surfaces...)
	return m, true
}

func (ms *ModelSystem) Count() int {
	return len(ms.models)
}

func (ms *ModelSystem) Shutdown() error {
	for _, m := range ms.models {
		m.release()
	}
	ms.models = nil
	return nil
}
