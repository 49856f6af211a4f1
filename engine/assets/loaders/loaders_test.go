package loaders

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertIndicesWidths(t *testing.T) {
	want := []uint32{0, 1, 2, 200, 3}

	for _, width := range []int{1, 2, 4, 8} {
		raw := make([]byte, len(want)*width)
		for i, v := range want {
			switch width {
			case 1:
				raw[i] = byte(v)
			case 2:
				binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
			case 4:
				binary.LittleEndian.PutUint32(raw[i*4:], v)
			case 8:
				binary.LittleEndian.PutUint64(raw[i*8:], uint64(v))
			}
		}
		got, err := ConvertIndices(raw, width)
		require.NoError(t, err, "width %d", width)
		assert.Equal(t, want, got, "width %d", width)
	}

	_, err := ConvertIndices(make([]byte, 6), 4)
	assert.Error(t, err)
	_, err = ConvertIndices(make([]byte, 6), 3)
	assert.Error(t, err)
}

func TestConvertColors(t *testing.T) {
	got, err := ConvertColors([][4]uint16{{32768, 0, 65535, 16384}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got[0][0], 1e-6)
	assert.InDelta(t, 65535.0/65536.0, got[0][2], 1e-6)
	assert.InDelta(t, 0.25, got[0][3], 1e-6)

	got, err = ConvertColors([][3]uint8{{128, 64, 0}})
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec4{0.5, 0.25, 0, 1}, got[0])

	got, err = ConvertColors([][3]float32{{0.1, 0.2, 0.3}})
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec4{0.1, 0.2, 0.3, 1}, got[0])

	got, err = ConvertColors([][4]float32{{0.1, 0.2, 0.3, 0.4}})
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec4{0.1, 0.2, 0.3, 0.4}, got[0])

	_, err = ConvertColors([]float32{1})
	assert.Error(t, err)
}

func TestBytesToBytecode(t *testing.T) {
	words, err := BytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, words)

	_, err = BytesToBytecode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestTextureLoaderDecodesPNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	img.Set(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	path := filepath.Join(t.TempDir(), "quad.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	tl := &TextureLoader{}
	res, err := tl.Load(path, metadata.ResourceTypeImage, nil)
	require.NoError(t, err)
	data := res.Data.(*metadata.ImageResourceData)
	assert.Equal(t, uint8(4), data.ChannelCount)
	assert.Equal(t, uint32(2), data.Width)
	assert.Equal(t, []uint8{255, 0, 0, 255}, data.Pixels[0:4])
	assert.Equal(t, []uint8{0, 0, 255, 255}, data.Pixels[8:12])

	res, err = tl.Load(path, metadata.ResourceTypeImage, &metadata.ImageResourceParams{FlipY: true})
	require.NoError(t, err)
	data = res.Data.(*metadata.ImageResourceData)
	assert.Equal(t, []uint8{0, 0, 255, 255}, data.Pixels[0:4])

	_, err = tl.Load(filepath.Join(t.TempDir(), "missing.png"), metadata.ResourceTypeImage, nil)
	assert.Error(t, err)
}

func TestChainLoaderFallsBack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	path := filepath.Join(t.TempDir(), "one.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	// a png is not a glTF file, so the first loader fails
	chain := &ChainLoader{Loaders: []interface {
		Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error)
	}{&ModelLoader{}, &TextureLoader{}}}

	res, err := chain.Load(path, metadata.ResourceTypeImage, nil)
	require.NoError(t, err)
	assert.Equal(t, "png", res.Name)
}

// writeTwoPrimitiveModel builds a .glb with a coloured, textured primitive
// using 16 bit indices and a plain one using 32 bit indices.
func writeTwoPrimitiveModel(t *testing.T) string {
	t.Helper()
	doc := gltf.NewDocument()
	doc.Materials = []*gltf.Material{{Name: "checker.png"}}

	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	normals := [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}
	uvs := [][2]float32{{0, 0}, {1, 0}, {0, 1}}

	first := &gltf.Primitive{
		Attributes: map[string]int{
			gltf.POSITION:   modeler.WritePosition(doc, positions),
			gltf.NORMAL:     modeler.WriteNormal(doc, normals),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
			gltf.COLOR_0:    modeler.WriteColor(doc, [][4]uint8{{128, 0, 0, 255}, {0, 128, 0, 255}, {0, 0, 128, 255}}),
		},
		Indices:  gltf.Index(modeler.WriteIndices(doc, []uint16{0, 1, 2})),
		Material: gltf.Index(0),
	}
	second := &gltf.Primitive{
		Attributes: map[string]int{
			gltf.POSITION:   modeler.WritePosition(doc, positions),
			gltf.NORMAL:     modeler.WriteNormal(doc, normals),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
		},
		Indices: gltf.Index(modeler.WriteIndices(doc, []uint32{2, 1, 0})),
	}
	doc.Meshes = []*gltf.Mesh{{Name: "triangles", Primitives: []*gltf.Primitive{first, second}}}

	path := filepath.Join(t.TempDir(), "triangles.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))
	return path
}

func TestModelLoaderReadsAllPrimitives(t *testing.T) {
	path := writeTwoPrimitiveModel(t)

	res, err := (&ModelLoader{}).Load(path, metadata.ResourceTypeModel, nil)
	require.NoError(t, err)
	model := res.Data.(*metadata.ModelData)
	assert.Equal(t, "triangles.glb", model.Name)
	require.Len(t, model.Surfaces, 2)

	first := model.Surfaces[0]
	assert.Equal(t, "checker.png", first.MaterialName)
	assert.Equal(t, []uint32{0, 1, 2}, first.Indices)
	require.Len(t, first.Vertices, 3)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, first.Vertices[1].Position)
	assert.Equal(t, mgl32.Vec2{0, 1}, first.Vertices[2].TexCoord)
	assert.InDelta(t, 0.5, first.Vertices[0].Colour[0], 1e-6)
	assert.InDelta(t, 255.0/256.0, first.Vertices[0].Colour[3], 1e-6)

	second := model.Surfaces[1]
	assert.Empty(t, second.MaterialName)
	assert.Equal(t, []uint32{2, 1, 0}, second.Indices)
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, second.Vertices[0].Colour)
	assert.Equal(t, 6, model.VertexCount())
}

func TestModelLoaderRequiresNormals(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Meshes = []*gltf.Mesh{{Primitives: []*gltf.Primitive{{
		Attributes: map[string]int{
			gltf.POSITION:   modeler.WritePosition(doc, [][3]float32{{0, 0, 0}}),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, [][2]float32{{0, 0}}),
		},
	}}}}
	_, err := ConvertDocument(doc, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NORMAL")

	_, err = (&ModelLoader{}).Load(filepath.Join(t.TempDir(), "nope.gltf"), metadata.ResourceTypeModel, nil)
	assert.Error(t, err)
}
