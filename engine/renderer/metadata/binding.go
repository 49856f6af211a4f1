package metadata

type BindingType int

const (
	BindingTypeNone BindingType = iota
	BindingTypeConstantBuffer
	BindingTypeVolatileConstantBuffer
	BindingTypeTextureSRV
	BindingTypeSampler
)

func (t BindingType) String() string {
	switch t {
	case BindingTypeConstantBuffer:
		return "ConstantBuffer"
	case BindingTypeVolatileConstantBuffer:
		return "VolatileConstantBuffer"
	case BindingTypeTextureSRV:
		return "Texture_SRV"
	case BindingTypeSampler:
		return "Sampler"
	}
	return "None"
}

/**
 * @brief One slot of a binding layout. Slots are numbered per type,
 * so a constant buffer and a texture may both use slot 0.
 */
type BindingLayoutItem struct {
	Slot uint32
	Type BindingType
}

func ConstantBufferItem(slot uint32) BindingLayoutItem {
	return BindingLayoutItem{Slot: slot, Type: BindingTypeConstantBuffer}
}

func VolatileConstantBufferItem(slot uint32) BindingLayoutItem {
	return BindingLayoutItem{Slot: slot, Type: BindingTypeVolatileConstantBuffer}
}

func TextureSRVItem(slot uint32) BindingLayoutItem {
	return BindingLayoutItem{Slot: slot, Type: BindingTypeTextureSRV}
}

func SamplerItem(slot uint32) BindingLayoutItem {
	return BindingLayoutItem{Slot: slot, Type: BindingTypeSampler}
}

/**
 * @brief Declares which resources a group of shader stages expects and where.
 */
type BindingLayoutDesc struct {
	Visibility ShaderType
	/** @brief The descriptor set / bind group index this layout occupies. */
	RegisterSpace uint32
	Bindings      []BindingLayoutItem
	DebugName     string
}

// Find returns the position of (type, slot) in the layout or -1.
func (d BindingLayoutDesc) Find(t BindingType, slot uint32) int {
	for i, b := range d.Bindings {
		if b.Type == t && b.Slot == slot {
			return i
		}
	}
	return -1
}
