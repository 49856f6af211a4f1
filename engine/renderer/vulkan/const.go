package vulkan

/** @brief Descriptor sets a single descriptor pool can hand out. */
const VULKAN_MAX_DESCRIPTOR_SETS uint32 = 1024

/** @brief Descriptors per type in a single descriptor pool. */
const VULKAN_MAX_DESCRIPTORS_PER_TYPE uint32 = 4096

/** @brief Size of a staging chunk used for buffer and texture uploads. */
const VULKAN_UPLOAD_CHUNK_SIZE uint64 = 4 << 20

/** @brief Alignment used for volatile constant buffer versions. */
const VULKAN_CONSTANT_BUFFER_ALIGNMENT uint64 = 256

/** @brief Fence waits are split into slices of this many nanoseconds so a context can cancel them. */
const VULKAN_FENCE_WAIT_SLICE_NS uint64 = 10_000_000
