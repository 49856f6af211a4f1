package webgpu

/** @brief Alignment of volatile constant buffer versions, the WebGPU minimum for dynamic uniform offsets. */
const WEBGPU_CONSTANT_BUFFER_ALIGNMENT uint64 = 256

/** @brief Row pitch alignment of buffer to texture copies. */
const WEBGPU_COPY_ROW_ALIGNMENT uint32 = 256

/** @brief Buffer copies and queue writes move multiples of this many bytes. */
const WEBGPU_COPY_SIZE_ALIGNMENT uint64 = 4

// Binding numbers inside a bind group. The WGSL sources use the same
// offsets as the SPIR-V builds so both backends share one binding scheme.
const (
	CONSTANT_BUFFER_BINDING_OFFSET uint32 = 0
	TEXTURE_SRV_BINDING_OFFSET     uint32 = 128
	SAMPLER_BINDING_OFFSET         uint32 = 256
)
