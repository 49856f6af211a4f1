package systems

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const PENTAGON_MODEL_NAME string = "pentagon"

/**
 * @brief The procedural model used when no model file could be loaded:
 * a single vertex coloured pentagon with the default texture.
 */
func PentagonModel() *metadata.ModelData {
	return &metadata.ModelData{
		Name: PENTAGON_MODEL_NAME,
		Surfaces: []metadata.SurfaceData{{
			Vertices: append([]metadata.DrawVertex(nil), metadata.PentagonVertices...),
			Indices:  append([]uint32(nil), metadata.PentagonIndices...),
		}},
	}
}

// QuadModel is a unit quad in the XY plane textured with material.
func QuadModel(name, material string) *metadata.ModelData {
	normal := mgl32.Vec3{0, 0, 1}
	white := mgl32.Vec4{1, 1, 1, 1}
	return &metadata.ModelData{
		Name: name,
		Surfaces: []metadata.SurfaceData{{
			Vertices: []metadata.DrawVertex{
				{Position: mgl32.Vec3{-0.5, -0.5, 0}, Normal: normal, TexCoord: mgl32.Vec2{0, 1}, Colour: white},
				{Position: mgl32.Vec3{0.5, -0.5, 0}, Normal: normal, TexCoord: mgl32.Vec2{1, 1}, Colour: white},
				{Position: mgl32.Vec3{0.5, 0.5, 0}, Normal: normal, TexCoord: mgl32.Vec2{1, 0}, Colour: white},
				{Position: mgl32.Vec3{-0.5, 0.5, 0}, Normal: normal, TexCoord: mgl32.Vec2{0, 0}, Colour: white},
			},
			Indices:      []uint32{0, 1, 2, 2, 3, 0},
			MaterialName: material,
		}},
	}
}

// Translation builds an entity transform from a position.
func Translation(x, y, z float32) mgl32.Mat4 {
	return mgl32.Translate3D(x, y, z)
}
