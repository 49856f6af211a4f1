package metadata

type BufferRole int

const (
	BufferRoleVertex BufferRole = iota
	BufferRoleIndex
	BufferRoleConstant
)

func (r BufferRole) String() string {
	switch r {
	case BufferRoleVertex:
		return "vertex"
	case BufferRoleIndex:
		return "index"
	case BufferRoleConstant:
		return "constant"
	}
	return "unknown"
}

// ReadState is the permanent state a buffer of this role settles in after upload.
func (r BufferRole) ReadState() ResourceState {
	switch r {
	case BufferRoleVertex:
		return ResourceStateVertexBuffer
	case BufferRoleIndex:
		return ResourceStateIndexBuffer
	default:
		return ResourceStateConstantBuffer
	}
}

/**
 * @brief Describes a GPU buffer.
 */
type BufferDesc struct {
	/** @brief Size of the buffer in bytes. */
	ByteSize uint64
	/** @brief The usage role of the buffer. */
	Role BufferRole
	/**
	 * @brief Volatile buffers are only written through command lists and
	 * get a fresh version for every write, so writes for one frame never
	 * alias a version still read by another frame in flight.
	 */
	IsVolatile bool
	/** @brief Upper bound on live versions of a volatile buffer. */
	MaxVersions uint32
	/** @brief State the buffer is in right after creation. */
	InitialState ResourceState
	/** @brief When true the tracker starts from InitialState instead of Unknown. */
	KeepInitialState bool
	DebugName        string
}

func NewConstantBufferDesc(byteSize uint64, debugName string) BufferDesc {
	return BufferDesc{
		ByteSize:         byteSize,
		Role:             BufferRoleConstant,
		InitialState:     ResourceStateConstantBuffer,
		KeepInitialState: true,
		DebugName:        debugName,
	}
}

func NewVolatileConstantBufferDesc(byteSize uint64, debugName string, maxVersions uint32) BufferDesc {
	desc := NewConstantBufferDesc(byteSize, debugName)
	desc.IsVolatile = true
	desc.MaxVersions = maxVersions
	return desc
}
