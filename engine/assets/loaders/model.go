package loaders

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"golang.org/x/exp/constraints"
)

// ModelLoader reads glTF 2.0 files (.gltf and .glb) into CPU side surfaces.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	model, err := ConvertDocument(doc, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to convert model %s: %w", path, err)
	}
	return &metadata.Resource{
		Name:     model.Name,
		FullPath: path,
		Type:     metadata.ResourceTypeModel,
		DataSize: uint64(model.VertexCount()) * uint64(metadata.DRAW_VERTEX_STRIDE),
		Data:     model,
	}, nil
}

func (ml *ModelLoader) Unload(*metadata.Resource) error {
	return nil
}

/**
 * @brief Converts every primitive of every mesh into one surface.
 * POSITION, NORMAL and TEXCOORD_0 are required, COLOR_0 defaults to white.
 */
func ConvertDocument(doc *gltf.Document, name string) (*metadata.ModelData, error) {
	model := &metadata.ModelData{Name: name}
	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			surface, err := convertPrimitive(doc, prim)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
			model.Surfaces = append(model.Surfaces, surface)
		}
	}
	if len(model.Surfaces) == 0 {
		return nil, fmt.Errorf("model %s has no primitives", name)
	}
	return model, nil
}

func convertPrimitive(doc *gltf.Document, prim *gltf.Primitive) (metadata.SurfaceData, error) {
	var surface metadata.SurfaceData

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return surface, fmt.Errorf("missing %s attribute", gltf.POSITION)
	}
	normIdx, ok := prim.Attributes[gltf.NORMAL]
	if !ok {
		return surface, fmt.Errorf("missing %s attribute", gltf.NORMAL)
	}
	uvIdx, ok := prim.Attributes[gltf.TEXCOORD_0]
	if !ok {
		return surface, fmt.Errorf("missing %s attribute", gltf.TEXCOORD_0)
	}

	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return surface, err
	}
	normals, err := modeler.ReadNormal(doc, doc.Accessors[normIdx], nil)
	if err != nil {
		return surface, err
	}
	uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[uvIdx], nil)
	if err != nil {
		return surface, err
	}
	if len(normals) != len(positions) || len(uvs) != len(positions) {
		return surface, fmt.Errorf("attribute counts differ: %d positions, %d normals, %d texcoords", len(positions), len(normals), len(uvs))
	}

	var colours []mgl32.Vec4
	if colIdx, ok := prim.Attributes[gltf.COLOR_0]; ok {
		raw, err := modeler.ReadAccessor(doc, doc.Accessors[colIdx], nil)
		if err != nil {
			return surface, err
		}
		if colours, err = ConvertColors(raw); err != nil {
			return surface, err
		}
		if len(colours) != len(positions) {
			return surface, fmt.Errorf("%d colours for %d positions", len(colours), len(positions))
		}
	}

	surface.Vertices = make([]metadata.DrawVertex, len(positions))
	for i := range positions {
		v := metadata.DrawVertex{
			Position: positions[i],
			Normal:   normals[i],
			TexCoord: uvs[i],
			Colour:   mgl32.Vec4{1, 1, 1, 1},
		}
		if colours != nil {
			v.Colour = colours[i]
		}
		surface.Vertices[i] = v
	}

	if prim.Indices == nil {
		surface.Indices = make([]uint32, len(positions))
		for i := range surface.Indices {
			surface.Indices[i] = uint32(i)
		}
	} else if surface.Indices, err = readIndices(doc, doc.Accessors[*prim.Indices]); err != nil {
		return surface, err
	}

	if prim.Material != nil && int(*prim.Material) < len(doc.Materials) {
		surface.MaterialName = doc.Materials[*prim.Material].Name
	}
	return surface, nil
}

func readIndices(doc *gltf.Document, acr *gltf.Accessor) ([]uint32, error) {
	if acr.BufferView == nil {
		return nil, fmt.Errorf("index accessor has no buffer view")
	}
	view := doc.BufferViews[*acr.BufferView]
	data, err := modeler.ReadBufferView(doc, view)
	if err != nil {
		return nil, err
	}
	width := int(acr.ComponentType.ByteSize())
	start := int(acr.ByteOffset)
	end := start + int(acr.Count)*width
	if end > len(data) {
		return nil, fmt.Errorf("index accessor overruns its buffer view")
	}
	return ConvertIndices(data[start:end], width)
}

func widenIndices[T constraints.Unsigned](raw []byte, width int, read func([]byte) T) []uint32 {
	out := make([]uint32, len(raw)/width)
	for i := range out {
		out[i] = uint32(read(raw[i*width:]))
	}
	return out
}

/**
 * @brief Converts tightly packed little endian indices of 1, 2, 4 or 8
 * bytes into 32 bit indices.
 */
func ConvertIndices(raw []byte, width int) ([]uint32, error) {
	if width <= 0 || len(raw)%width != 0 {
		return nil, fmt.Errorf("%d bytes are not a whole number of %d byte indices", len(raw), width)
	}
	switch width {
	case 1:
		return widenIndices(raw, 1, func(b []byte) uint8 { return b[0] }), nil
	case 2:
		return widenIndices(raw, 2, binary.LittleEndian.Uint16), nil
	case 4:
		return widenIndices(raw, 4, binary.LittleEndian.Uint32), nil
	case 8:
		return widenIndices(raw, 8, binary.LittleEndian.Uint64), nil
	}
	return nil, fmt.Errorf("unsupported index width %d", width)
}

func normalizeColour[T constraints.Unsigned](c []T, scale float32) mgl32.Vec4 {
	out := mgl32.Vec4{0, 0, 0, 1}
	for i := 0; i < len(c) && i < 4; i++ {
		out[i] = float32(c[i]) / scale
	}
	return out
}

/**
 * @brief Maps COLOR_0 data to float colours. Unsigned shorts are divided
 * by 65536, unsigned bytes by 256, floats pass through. Three component
 * colours get alpha 1.
 */
func ConvertColors(data interface{}) ([]mgl32.Vec4, error) {
	var out []mgl32.Vec4
	switch c := data.(type) {
	case [][4]uint16:
		for _, v := range c {
			out = append(out, normalizeColour(v[:], 65536))
		}
	case [][3]uint16:
		for _, v := range c {
			out = append(out, normalizeColour(v[:], 65536))
		}
	case [][4]uint8:
		for _, v := range c {
			out = append(out, normalizeColour(v[:], 256))
		}
	case [][3]uint8:
		for _, v := range c {
			out = append(out, normalizeColour(v[:], 256))
		}
	case [][4]float32:
		for _, v := range c {
			out = append(out, mgl32.Vec4(v))
		}
	case [][3]float32:
		for _, v := range c {
			out = append(out, mgl32.Vec4{v[0], v[1], v[2], 1})
		}
	default:
		return nil, fmt.Errorf("unsupported colour data %T", data)
	}
	return out, nil
}
