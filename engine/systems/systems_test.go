package systems

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shaderStages = []string{SHADER_STAGE_SCENE_VS, SHADER_STAGE_SCENE_PS, SHADER_STAGE_SCREEN_VS, SHADER_STAGE_SCREEN_PS}

// newAssetsDir lays out fake headless shader binaries under a temp dir.
func newAssetsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	shaderDir := filepath.Join(dir, "shaders", renderer.BackendHeadless.ShaderDir())
	require.NoError(t, os.MkdirAll(shaderDir, 0o755))
	for _, stage := range shaderStages {
		require.NoError(t, os.WriteFile(filepath.Join(shaderDir, stage+".bin"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	}
	return dir
}

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

type scene struct {
	dir       string
	swapchain *headless.Swapchain
	device    *headless.Device
	dm        *renderer.DeviceManager
	am        *assets.AssetManager
	events    *core.EventSystem
	sm        *SystemManager
}

func newScene(t *testing.T, dir string) *scene {
	t.Helper()
	ctx := context.Background()
	s := &scene{dir: dir, events: core.NewEventSystem()}
	s.swapchain = headless.NewSwapchain(headless.Options{RetireDelay: time.Millisecond})
	s.dm = renderer.NewDeviceManager(s.swapchain, s.events)

	params := renderer.DefaultDeviceCreationParameters()
	params.BackBufferWidth = 64
	params.BackBufferHeight = 32
	params.SwapChainFormat = metadata.FormatRGBA8UNorm
	require.NoError(t, s.dm.CreateWindowDeviceAndSwapChain(ctx, params))
	s.device = s.swapchain.HeadlessDevice()
	s.am = assets.NewAssetManager(dir)

	sm, err := NewSystemManager(ctx, DefaultSystemManagerConfig(), s.dm, s.am, s.events)
	require.NoError(t, err)
	s.sm = sm
	t.Cleanup(func() {
		assert.NoError(t, s.sm.Shutdown(context.Background()))
		s.am.Shutdown()
		s.dm.Shutdown()
	})
	return s
}

func TestCheckerboardPixels(t *testing.T) {
	pixels := GenerateCheckerboard()
	require.Len(t, pixels, 16*16*4)

	at := func(x, y int) []uint8 {
		i := (y*16 + x) * 4
		return pixels[i : i+4]
	}
	assert.Equal(t, []uint8{240, 240, 240, 255}, at(0, 0))
	assert.Equal(t, []uint8{240, 240, 240, 255}, at(5, 4))
	assert.Equal(t, []uint8{240, 240, 240, 255}, at(8, 3))
	assert.Equal(t, []uint8{42, 69, 69, 255}, at(1, 1))
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"wood.png", "wood.bmp", "wood.jpg", "wood.jpeg", "wood.tga"}, Candidates("wood.png"))
	assert.Equal(t, []string{"brick", "brick.bmp", "brick.jpg", "brick.jpeg", "brick.tga", "brick.png"}, Candidates("brick"))
}

func TestCreateBufferWithDataLeavesPermanentState(t *testing.T) {
	ctx := context.Background()
	device := headless.NewDevice()

	buf, err := CreateBufferWithData(ctx, device, metadata.PentagonIndices, metadata.BufferRoleIndex, "indices")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(metadata.PentagonIndices)*4), buf.Desc().ByteSize)
	assert.Equal(t, metadata.AsBytes(metadata.PentagonIndices), buf.(*headless.Buffer).Data())

	// the state is frozen, a later list cannot move it back into an upload state
	cl, err := device.CreateCommandList()
	require.NoError(t, err)
	require.NoError(t, cl.Open())
	cl.SetPermanentBufferState(buf, metadata.ResourceStateCopyDest)
	assert.ErrorIs(t, cl.Close(), core.ErrResourceState)
}

func TestCreateBufferWithDataFailures(t *testing.T) {
	ctx := context.Background()
	device := headless.NewDevice()

	_, err := CreateBufferWithData(ctx, device, []uint32{}, metadata.BufferRoleIndex, "empty")
	assert.Error(t, err)

	_, err = CreateBufferWithData[uint32](ctx, nil, []uint32{1}, metadata.BufferRoleIndex, "no device")
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	boom := errors.New("out of memory")
	device.SetBufferFault(func(metadata.BufferDesc) error { return boom })
	_, err = CreateBufferWithData(ctx, device, metadata.PentagonVertices, metadata.BufferRoleVertex, "vertices")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, device.LiveObjects())
}

func TestCreateTextureWithDataExpandsRGB(t *testing.T) {
	device := headless.NewDevice()
	tex, err := CreateTextureWithData(context.Background(), device, []uint8{1, 2, 3, 4, 5, 6}, 2, 1, 3, "rgb")
	require.NoError(t, err)
	assert.Equal(t, metadata.FormatRGBA8UNorm, tex.Desc().Format)
	assert.Equal(t, []uint8{1, 2, 3, 255, 4, 5, 6, 255}, tex.(*headless.Texture).Data())

	_, err = CreateTextureWithData(context.Background(), device, []uint8{1, 2}, 2, 2, 1, "short")
	assert.Error(t, err)
}

func TestTextureSystemFallbackAndDedup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "wood.png"), 2, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	ts, err := NewTextureSystem(DefaultTextureSystemConfig(), headless.NewDevice(), assets.NewAssetManager(dir))
	require.NoError(t, err)
	require.NoError(t, ts.Initialize(ctx))

	assert.Equal(t, 1, ts.Count())
	assert.Equal(t, metadata.DEFAULT_TEXTURE_NAME, ts.Name(0))
	assert.Equal(t, GenerateCheckerboard(), ts.Pixels(0))
	assert.Equal(t, metadata.DEFAULT_TEXTURE_INDEX, ts.FindOrCreate(ctx, ""))
	assert.Equal(t, metadata.INVALID_TEXTURE_INDEX, ts.FindOrCreate(ctx, "missing.png"))

	// the .jpg name resolves through the extension probes
	idx := ts.FindOrCreate(ctx, "wood.jpg")
	require.Equal(t, 1, idx)
	assert.Equal(t, idx, ts.FindOrCreate(ctx, "wood.jpg"))
	assert.Equal(t, 2, ts.Count())
	assert.Equal(t, []uint8{200, 100, 50, 255}, ts.Pixels(idx)[:4])
	assert.Equal(t, ts.Pixels(idx), ts.Texture(idx).(*headless.Texture).Data())

	w, h, c := ts.Extent(idx)
	assert.Equal(t, []uint32{2, 2}, []uint32{w, h})
	assert.Equal(t, uint8(4), c)
	assert.Nil(t, ts.Texture(7))
}

func TestTextureSystemCapacity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "wood.png"), 1, 1, color.NRGBA{A: 255})

	ts, err := NewTextureSystem(TextureSystemConfig{MaxTextureCount: 2}, headless.NewDevice(), assets.NewAssetManager(dir))
	require.NoError(t, err)
	require.NoError(t, ts.Initialize(ctx))
	assert.Error(t, ts.Initialize(ctx))

	_, err = ts.Register(ctx, "solid", []uint8{1, 2, 3, 4}, 1, 1, 4)
	require.NoError(t, err)
	_, err = ts.Register(ctx, "solid", []uint8{1, 2, 3, 4}, 1, 1, 4)
	assert.Error(t, err)

	assert.Equal(t, metadata.INVALID_TEXTURE_INDEX, ts.FindOrCreate(ctx, "wood.png"))
	assert.ErrorIs(t, ts.LastError(), core.ErrCapacityExceeded)
	assert.Equal(t, 2, ts.Count())

	_, err = NewTextureSystem(TextureSystemConfig{}, headless.NewDevice(), nil)
	assert.Error(t, err)
}

// writeModel saves a .glb with a textured primitive and one without material.
func writeModel(t *testing.T, dir, material string) string {
	t.Helper()
	doc := gltf.NewDocument()
	doc.Materials = []*gltf.Material{{Name: material}}
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	normals := [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}
	uvs := [][2]float32{{0, 0}, {1, 0}, {0, 1}}
	prim := func(withMaterial bool) *gltf.Primitive {
		p := &gltf.Primitive{
			Attributes: map[string]int{
				gltf.POSITION:   modeler.WritePosition(doc, positions),
				gltf.NORMAL:     modeler.WriteNormal(doc, normals),
				gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
			},
			Indices: gltf.Index(modeler.WriteIndices(doc, []uint16{0, 1, 2})),
		}
		if withMaterial {
			p.Material = gltf.Index(0)
		}
		return p
	}
	doc.Meshes = []*gltf.Mesh{{Name: "tris", Primitives: []*gltf.Primitive{prim(true), prim(false)}}}
	path := filepath.Join(dir, "tris.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))
	return path
}

func TestModelSystemLoadsModel(t *testing.T) {
	dir := newAssetsDir(t)
	writePNG(t, filepath.Join(dir, "checker.png"), 2, 2, color.NRGBA{G: 255, A: 255})
	writeModel(t, dir, "checker.png")
	s := newScene(t, dir)

	idx, err := s.sm.ModelSystem.LoadModel(context.Background(), "tris.glb")
	require.NoError(t, err)
	model, ok := s.sm.ModelSystem.Model(idx)
	require.True(t, ok)
	assert.Equal(t, "tris.glb", model.Name)
	require.Len(t, model.Surfaces, 2)

	textured := model.Surfaces[0]
	assert.Equal(t, uint32(3), textured.IndexCount)
	assert.Equal(t, 1, textured.TextureIndex)
	assert.Same(t, s.sm.TextureSystem.Texture(1), textured.BindingSet.Desc().Bindings[0].Texture)
	assert.Equal(t, metadata.DEFAULT_TEXTURE_INDEX, model.Surfaces[1].TextureIndex)

	// the copy does not alias the registry
	model.Surfaces[0].IndexCount = 99
	again, _ := s.sm.ModelSystem.Model(idx)
	assert.Equal(t, uint32(3), again.Surfaces[0].IndexCount)
}

func TestModelSystemMissingMaterialUsesDefault(t *testing.T) {
	dir := newAssetsDir(t)
	writeModel(t, dir, "nowhere.png")
	s := newScene(t, dir)

	idx, err := s.sm.ModelSystem.LoadModel(context.Background(), "tris.glb")
	require.NoError(t, err)
	model, _ := s.sm.ModelSystem.Model(idx)
	for _, surface := range model.Surfaces {
		assert.Equal(t, metadata.DEFAULT_TEXTURE_INDEX, surface.TextureIndex)
	}
	assert.Equal(t, 1, s.sm.TextureSystem.Count())

	_, err = s.sm.ModelSystem.LoadModel(context.Background(), "absent.glb")
	assert.Error(t, err)
	assert.Equal(t, 1, s.sm.ModelSystem.Count())
}

func TestModelUploadFailureRegistersNothing(t *testing.T) {
	s := newScene(t, newAssetsDir(t))
	before := s.device.LiveObjects()

	s.device.SetBufferFault(func(desc metadata.BufferDesc) error {
		if desc.Role == metadata.BufferRoleIndex {
			return errors.New("index heap exhausted")
		}
		return nil
	})
	_, err := s.sm.ModelSystem.AddModel(context.Background(), PentagonModel())
	require.Error(t, err)
	assert.Equal(t, 0, s.sm.ModelSystem.Count())

	s.device.RunGarbageCollection()
	assert.Equal(t, before, s.device.LiveObjects())
}

func TestDrawFrameRecordsPassesInOrder(t *testing.T) {
	s := newScene(t, newAssetsDir(t))
	ctx := context.Background()
	rs := s.sm.RendererSystem
	ps := s.sm.PipelineSystem

	model, err := s.sm.ModelSystem.AddModel(ctx, PentagonModel())
	require.NoError(t, err)
	first := mgl32.Ident4()
	second := Translation(0.6, 0, 0)
	_, err = rs.AddEntity(RenderEntity{ModelIndex: model, Transform: first})
	require.NoError(t, err)
	_, err = rs.AddEntity(RenderEntity{ModelIndex: model, Transform: second})
	require.NoError(t, err)
	_, err = rs.AddEntity(RenderEntity{ModelIndex: 5})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	s.device.ResetRecords()
	backbuffer := s.dm.GetCurrentFramebuffer()
	require.NoError(t, s.sm.DrawFrame(ctx))

	draws := s.device.Draws()
	require.Len(t, draws, 3)
	for i, want := range []mgl32.Mat4{first, second} {
		d := draws[i]
		assert.Same(t, ps.ScenePipeline, d.Pipeline)
		assert.Same(t, ps.SceneFramebuffer, d.Framebuffer)
		assert.Equal(t, uint32(len(metadata.PentagonIndices)), d.IndexCount)
		constants := metadata.PerEntityConstants{Transform: want}
		assert.Equal(t, metadata.ValueBytes(&constants), d.Constants[ps.PerEntityBuffer], "entity %d", i)
	}
	screen := draws[2]
	assert.Same(t, ps.ScreenPipeline, screen.Pipeline)
	assert.Same(t, backbuffer, screen.Framebuffer)
	assert.Equal(t, uint32(6), screen.IndexCount)

	clears := s.device.Clears()
	require.Len(t, clears, 3)
	assert.Same(t, ps.SceneColor, clears[0].Texture)
	assert.Equal(t, SCENE_CLEAR_COLOR, clears[0].Color)
	assert.True(t, clears[1].IsDepth)
	assert.Equal(t, SCENE_CLEAR_DEPTH, clears[1].Depth)
	assert.Same(t, s.swapchain.GetBackBuffer(0), clears[2].Texture)
	assert.Equal(t, BACKBUFFER_CLEAR_COLOR, clears[2].Color)
}

func TestDrawFrameUsesFixedTimestep(t *testing.T) {
	s := newScene(t, newAssetsDir(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.sm.DrawFrame(ctx))
	}
	assert.InDelta(t, 3*FIXED_TIME_STEP, s.sm.RendererSystem.Time(), 1e-6)
	assert.Equal(t, uint32(3), s.dm.GetFrameIndex())

	var frame metadata.PerFrameConstants
	copy(metadata.ValueBytes(&frame), s.sm.PipelineSystem.PerFrameBuffer.(*headless.Buffer).Data())
	assert.InDelta(t, 3*FIXED_TIME_STEP, frame.Time, 1e-6)
	assert.Equal(t, s.sm.RendererSystem.Camera().GetView(), frame.View)
}

func TestResizeRebuildsSceneTargets(t *testing.T) {
	s := newScene(t, newAssetsDir(t))
	ctx := context.Background()
	ps := s.sm.PipelineSystem
	require.NoError(t, s.sm.DrawFrame(ctx))
	oldFramebuffer := ps.SceneFramebuffer.(*headless.Framebuffer)

	require.NoError(t, s.dm.UpdateWindowSize(ctx, 128, 96))
	info := ps.SceneFramebuffer.Info()
	assert.Equal(t, uint32(128), info.Width)
	assert.Equal(t, uint32(96), info.Height)
	assert.Equal(t, metadata.FormatD32, info.DepthFormat)
	assert.True(t, oldFramebuffer.IsDestroyed())

	require.NoError(t, s.sm.DrawFrame(ctx))
}

func TestMinimisedWindowSkipsFrames(t *testing.T) {
	s := newScene(t, newAssetsDir(t))
	ctx := context.Background()
	require.NoError(t, s.dm.UpdateWindowSize(ctx, 0, 0))
	require.NoError(t, s.sm.DrawFrame(ctx))
	assert.Equal(t, uint32(0), s.dm.GetFrameIndex())
}

func TestMissingShaderNamesPath(t *testing.T) {
	dir := newAssetsDir(t)
	missing := renderer.BackendHeadless.ShaderPath(dir, SHADER_STAGE_SCREEN_PS)
	require.NoError(t, os.Remove(missing))

	swapchain := headless.NewSwapchain(headless.Options{ManualRetire: true})
	dm := renderer.NewDeviceManager(swapchain, nil)
	params := renderer.DefaultDeviceCreationParameters()
	params.BackBufferWidth, params.BackBufferHeight = 16, 16
	require.NoError(t, dm.CreateWindowDeviceAndSwapChain(context.Background(), params))
	t.Cleanup(dm.Shutdown)

	_, err := NewSystemManager(context.Background(), DefaultSystemManagerConfig(), dm, assets.NewAssetManager(dir), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), missing)
	assert.Contains(t, err.Error(), "mage build:shaders")
}

func TestShaderChangeRebuildsPipelines(t *testing.T) {
	dir := newAssetsDir(t)
	s := newScene(t, dir)
	require.NoError(t, s.am.Watch())

	changed := make(chan string, 64)
	s.events.Register(core.EVENT_CODE_ASSET_CHANGED, func(ctx core.EventContext) {
		changed <- ctx.Data.(string)
	})
	before := s.sm.PipelineSystem.ScenePipeline

	path := renderer.BackendHeadless.ShaderPath(dir, SHADER_STAGE_SCENE_PS)
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0}, 0o644))

	// the write can surface as several events, the rebuild happens once the file is complete
	deadline := time.Now().Add(5 * time.Second)
	for s.sm.PipelineSystem.ScenePipeline == before && time.Now().Before(deadline) {
		s.sm.ProcessAssetChanges()
		time.Sleep(10 * time.Millisecond)
	}
	require.NotSame(t, before, s.sm.PipelineSystem.ScenePipeline)
	require.NotEmpty(t, changed)
	assert.Equal(t, filepath.Clean(path), <-changed)
	require.NoError(t, s.sm.DrawFrame(context.Background()))
}

// writeColouredModel saves coloured.glb with a primitive carrying 16 bit
// COLOR_0 and one without colours. It returns the raw colours.
func writeColouredModel(t *testing.T, dir, material string) [][4]uint16 {
	t.Helper()
	doc := gltf.NewDocument()
	doc.Materials = []*gltf.Material{{Name: material}}
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	normals := [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}
	uvs := [][2]float32{{0, 0}, {1, 0}, {0, 1}}
	colours := [][4]uint16{{32768, 0, 0, 65535}, {0, 16384, 0, 65535}, {0, 0, 65535, 32768}}

	coloured := &gltf.Primitive{
		Attributes: map[string]int{
			gltf.POSITION:   modeler.WritePosition(doc, positions),
			gltf.NORMAL:     modeler.WriteNormal(doc, normals),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
			gltf.COLOR_0:    modeler.WriteColor(doc, colours),
		},
		Indices:  gltf.Index(modeler.WriteIndices(doc, []uint16{0, 1, 2})),
		Material: gltf.Index(0),
	}
	plain := &gltf.Primitive{
		Attributes: map[string]int{
			gltf.POSITION:   modeler.WritePosition(doc, positions),
			gltf.NORMAL:     modeler.WriteNormal(doc, normals),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
		},
		Indices: gltf.Index(modeler.WriteIndices(doc, []uint32{2, 1, 0})),
	}
	doc.Meshes = []*gltf.Mesh{{Name: "coloured", Primitives: []*gltf.Primitive{coloured, plain}}}
	require.NoError(t, gltf.SaveBinary(doc, filepath.Join(dir, "coloured.glb")))
	return colours
}

func uploadedVertices(t *testing.T, buf renderer.Buffer) []metadata.DrawVertex {
	t.Helper()
	data := buf.(*headless.Buffer).Data()
	require.Zero(t, len(data)%int(metadata.DRAW_VERTEX_STRIDE))
	out := make([]metadata.DrawVertex, len(data)/int(metadata.DRAW_VERTEX_STRIDE))
	copy(metadata.AsBytes(out), data)
	return out
}

func TestModelUploadCarriesDecodedColours(t *testing.T) {
	dir := newAssetsDir(t)
	colours := writeColouredModel(t, dir, "missing.png")
	s := newScene(t, dir)

	idx, err := s.sm.ModelSystem.LoadModel(context.Background(), "coloured.glb")
	require.NoError(t, err)
	model, ok := s.sm.ModelSystem.Model(idx)
	require.True(t, ok)
	require.Len(t, model.Surfaces, 2)

	for _, surface := range model.Surfaces {
		assert.Equal(t, uint32(3), surface.VertexCount)
		assert.Equal(t, uint32(3), surface.IndexCount)
		// an unknown material and no material both end up on the checkerboard
		assert.Equal(t, metadata.DEFAULT_TEXTURE_INDEX, surface.TextureIndex)
		assert.Same(t, s.sm.TextureSystem.Texture(metadata.DEFAULT_TEXTURE_INDEX), surface.BindingSet.Desc().Bindings[0].Texture)
	}
	assert.Equal(t, GenerateCheckerboard(), s.sm.TextureSystem.Texture(0).(*headless.Texture).Data())
	assert.Equal(t, 1, s.sm.TextureSystem.Count())

	first := uploadedVertices(t, model.Surfaces[0].VertexBuffer)
	require.Len(t, first, 3)
	for i, c := range colours {
		want := mgl32.Vec4{float32(c[0]) / 65536, float32(c[1]) / 65536, float32(c[2]) / 65536, float32(c[3]) / 65536}
		assert.Equal(t, want, first[i].Colour, "vertex %d", i)
	}
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, first[1].Position)

	second := uploadedVertices(t, model.Surfaces[1].VertexBuffer)
	require.Len(t, second, 3)
	for i, v := range second {
		assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, v.Colour, "vertex %d", i)
	}
	assert.Equal(t, metadata.AsBytes([]uint32{2, 1, 0}), model.Surfaces[1].IndexBuffer.(*headless.Buffer).Data())
}

func TestShaderReloadAfterFailedRebuild(t *testing.T) {
	s := newScene(t, newAssetsDir(t))
	ps := s.sm.PipelineSystem

	boom := errors.New("render target heap exhausted")
	s.device.SetTextureFault(func(desc metadata.TextureDesc) error {
		if desc.DebugName == "Scene colour" {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, ps.Rebuild(64, 32, 1, s.dm.GetFramebuffer(0)), boom)
	assert.Nil(t, ps.SceneColor)
	assert.Nil(t, ps.ScenePipeline)

	s.device.SetTextureFault(nil)
	require.NoError(t, ps.ReloadShaders(s.dm.GetFramebuffer(0)))
	require.NotNil(t, ps.SceneColor)
	info := ps.SceneFramebuffer.Info()
	assert.Equal(t, uint32(64), info.Width)
	assert.Equal(t, uint32(32), info.Height)
	require.NoError(t, s.sm.DrawFrame(context.Background()))
}

func TestEntityLimitSizesConstantBuffer(t *testing.T) {
	am := assets.NewAssetManager(t.TempDir())
	_, err := NewPipelineSystem(PipelineSystemConfig{MaxFramesInFlight: 2}, headless.NewDevice(), renderer.BackendHeadless, am)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	ps, err := NewPipelineSystem(PipelineSystemConfig{MaxFramesInFlight: 2, MaxEntities: 20}, headless.NewDevice(), renderer.BackendHeadless, am)
	require.NoError(t, err)
	assert.Equal(t, uint32(41), ps.EntityVersions())

	config := DefaultSystemManagerConfig()
	config.MaxEntities = 0
	swapchain := headless.NewSwapchain(headless.Options{ManualRetire: true})
	dm := renderer.NewDeviceManager(swapchain, nil)
	params := renderer.DefaultDeviceCreationParameters()
	params.BackBufferWidth, params.BackBufferHeight = 16, 16
	require.NoError(t, dm.CreateWindowDeviceAndSwapChain(context.Background(), params))
	t.Cleanup(dm.Shutdown)
	_, err = NewSystemManager(context.Background(), config, dm, assets.NewAssetManager(newAssetsDir(t)), nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestEntityLimitIsEnforced(t *testing.T) {
	s := newScene(t, newAssetsDir(t))
	model, err := s.sm.ModelSystem.AddModel(context.Background(), PentagonModel())
	require.NoError(t, err)
	limit := DefaultSystemManagerConfig().MaxEntities
	for i := uint32(0); i < limit; i++ {
		_, err := s.sm.RendererSystem.AddEntity(RenderEntity{ModelIndex: model, Transform: mgl32.Ident4()})
		require.NoError(t, err)
	}
	_, err = s.sm.RendererSystem.AddEntity(RenderEntity{ModelIndex: model, Transform: mgl32.Ident4()})
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	require.NoError(t, s.sm.DrawFrame(context.Background()))
}
