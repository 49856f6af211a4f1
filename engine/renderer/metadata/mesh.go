package metadata

/**
 * @brief CPU side geometry of one material partition, as produced by a
 * model loader and before upload.
 */
type SurfaceData struct {
	Vertices []DrawVertex
	Indices  []uint32
	/** @brief Empty when the primitive has no material. */
	MaterialName string
}

/**
 * @brief Transient result of parsing a model file.
 */
type ModelData struct {
	/** @brief Typically the file name. */
	Name     string
	Surfaces []SurfaceData
}

func (m *ModelData) VertexCount() int {
	n := 0
	for _, s := range m.Surfaces {
		n += len(s.Vertices)
	}
	return n
}
