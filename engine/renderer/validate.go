package renderer

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Usage rules every backend enforces before touching its API.

func ValidateBufferDesc(desc metadata.BufferDesc) error {
	if desc.ByteSize == 0 {
		return fmt.Errorf("%w: buffer %q has zero size", core.ErrInvalidHandle, desc.DebugName)
	}
	if desc.IsVolatile && desc.MaxVersions == 0 {
		return fmt.Errorf("%w: volatile buffer %q needs MaxVersions", core.ErrInvalidHandle, desc.DebugName)
	}
	return nil
}

// ValidateTextureDesc fills in the sample count and mip levels a zero desc leaves out.
func ValidateTextureDesc(desc *metadata.TextureDesc) error {
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("%w: texture %q has zero extent", core.ErrInvalidHandle, desc.DebugName)
	}
	if metadata.GetFormatInfo(desc.Format).BytesPerBlock == 0 {
		return fmt.Errorf("%w: texture %q has unknown format", core.ErrInvalidHandle, desc.DebugName)
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	return nil
}

func ValidateShader(desc metadata.ShaderDesc, binary []byte) error {
	if len(binary) == 0 {
		return fmt.Errorf("%w: shader %q has an empty binary", core.ErrInvalidHandle, desc.DebugName)
	}
	if desc.EntryName == "" {
		return fmt.Errorf("%w: shader %q has no entry point", core.ErrInvalidHandle, desc.DebugName)
	}
	return nil
}

func ValidateInputLayout(attributes []metadata.VertexAttributeDesc, vertexShader Shader) error {
	if vertexShader == nil || vertexShader.Desc().ShaderType != metadata.ShaderTypeVertex {
		return fmt.Errorf("%w: input layout needs a vertex shader", core.ErrInvalidHandle)
	}
	for _, a := range attributes {
		size := metadata.GetFormatInfo(a.Format).BytesPerBlock
		if a.Offset+size > a.ElementStride {
			return fmt.Errorf("%w: attribute %s overflows its %d byte stride", core.ErrInvalidHandle, a.Name, a.ElementStride)
		}
	}
	return nil
}

func ValidateBindingLayoutDesc(desc metadata.BindingLayoutDesc) error {
	for i, a := range desc.Bindings {
		for _, b := range desc.Bindings[i+1:] {
			if a.Type == b.Type && a.Slot == b.Slot {
				return fmt.Errorf("%w: binding layout %q declares %s(%d) twice", core.ErrInvalidHandle, desc.DebugName, a.Type, a.Slot)
			}
		}
	}
	return nil
}

// ValidateBindingSetDesc checks that every layout slot has exactly one resource.
func ValidateBindingSetDesc(desc BindingSetDesc, layout BindingLayout) error {
	if layout == nil {
		return fmt.Errorf("%w: binding set without layout", core.ErrInvalidHandle)
	}
	ld := layout.Desc()
	if len(desc.Bindings) != len(ld.Bindings) {
		return fmt.Errorf("%w: binding set has %d items, layout %q expects %d", core.ErrInvalidHandle, len(desc.Bindings), ld.DebugName, len(ld.Bindings))
	}
	for _, item := range desc.Bindings {
		if ld.Find(item.Type, item.Slot) < 0 {
			return fmt.Errorf("%w: %s(%d) is not part of layout %q", core.ErrInvalidHandle, item.Type, item.Slot, ld.DebugName)
		}
		missing := false
		switch item.Type {
		case metadata.BindingTypeConstantBuffer, metadata.BindingTypeVolatileConstantBuffer:
			missing = item.Buffer == nil
		case metadata.BindingTypeTextureSRV:
			missing = item.Texture == nil
		case metadata.BindingTypeSampler:
			missing = item.Sampler == nil
		}
		if missing {
			return fmt.Errorf("%w: %s(%d) has no resource", core.ErrInvalidHandle, item.Type, item.Slot)
		}
	}
	return nil
}

// ValidateFramebufferDesc returns the info derived from the attachments.
func ValidateFramebufferDesc(desc FramebufferDesc) (metadata.FramebufferInfo, error) {
	if len(desc.ColorAttachments) == 0 && desc.DepthAttachment == nil {
		return metadata.FramebufferInfo{}, fmt.Errorf("%w: framebuffer without attachments", core.ErrInvalidHandle)
	}
	all := append([]Texture(nil), desc.ColorAttachments...)
	if desc.DepthAttachment != nil {
		all = append(all, desc.DepthAttachment)
	}
	for _, t := range all {
		if t == nil {
			return metadata.FramebufferInfo{}, fmt.Errorf("%w: nil framebuffer attachment", core.ErrInvalidHandle)
		}
	}
	info := FramebufferInfoFromDesc(desc)
	for _, t := range all {
		td := t.Desc()
		if !td.IsRenderTarget {
			return info, fmt.Errorf("%w: texture %q is not a render target", core.ErrInvalidHandle, td.DebugName)
		}
		if td.Width != info.Width || td.Height != info.Height {
			return info, fmt.Errorf("%w: attachment %q is %dx%d, framebuffer is %dx%d", core.ErrInvalidHandle, td.DebugName, td.Width, td.Height, info.Width, info.Height)
		}
	}
	if desc.DepthAttachment != nil && !metadata.GetFormatInfo(desc.DepthAttachment.Desc().Format).HasDepth {
		return info, fmt.Errorf("%w: depth attachment without a depth format", core.ErrInvalidHandle)
	}
	return info, nil
}

func ValidateGraphicsPipelineDesc(desc GraphicsPipelineDesc, framebuffer Framebuffer) error {
	if desc.VS == nil || desc.PS == nil {
		return fmt.Errorf("%w: pipeline %q needs a vertex and a pixel shader", core.ErrInvalidHandle, desc.DebugName)
	}
	if desc.InputLayout == nil {
		return fmt.Errorf("%w: pipeline %q has no input layout", core.ErrInvalidHandle, desc.DebugName)
	}
	if framebuffer == nil {
		return fmt.Errorf("%w: pipeline %q has no framebuffer", core.ErrInvalidHandle, desc.DebugName)
	}
	return nil
}

func ValidateWriteBuffer(desc metadata.BufferDesc, size int, destOffset uint64) error {
	if destOffset+uint64(size) > desc.ByteSize {
		return fmt.Errorf("%w: writing %d bytes at %d overflows buffer %q of %d bytes",
			core.ErrInvalidHandle, size, destOffset, desc.DebugName, desc.ByteSize)
	}
	return nil
}

func ValidateWriteTexture(desc metadata.TextureDesc, arraySlice, mipLevel uint32, size int, rowPitch uint32) error {
	if arraySlice != 0 || mipLevel != 0 {
		return fmt.Errorf("%w: texture %q only has slice 0 mip 0", core.ErrInvalidHandle, desc.DebugName)
	}
	tight := desc.RowPitch()
	if rowPitch < tight || uint64(size) < uint64(rowPitch)*uint64(desc.Height-1)+uint64(tight) {
		return fmt.Errorf("%w: %d bytes with row pitch %d do not cover texture %q (%dx%d %s)",
			core.ErrInvalidHandle, size, rowPitch, desc.DebugName, desc.Width, desc.Height, desc.Format)
	}
	return nil
}

func ValidateClearColor(desc metadata.TextureDesc) error {
	if !desc.IsRenderTarget {
		return fmt.Errorf("%w: texture %q is not a render target", core.ErrInvalidHandle, desc.DebugName)
	}
	return nil
}

func ValidateClearDepth(desc metadata.TextureDesc) error {
	if !metadata.GetFormatInfo(desc.Format).HasDepth {
		return fmt.Errorf("%w: texture %q has no depth", core.ErrInvalidHandle, desc.DebugName)
	}
	return nil
}

// ValidateGraphicsState checks pipeline and framebuffer compatibility and the binding sets against the pipeline layouts.
func ValidateGraphicsState(state GraphicsState) error {
	if state.Pipeline == nil || state.Framebuffer == nil {
		return fmt.Errorf("%w: graphics state needs a pipeline and a framebuffer", core.ErrInvalidHandle)
	}
	if !state.Framebuffer.Info().IsCompatible(state.Pipeline.FramebufferInfo()) {
		return fmt.Errorf("%w: framebuffer is incompatible with pipeline %q", core.ErrInvalidHandle, state.Pipeline.Desc().DebugName)
	}
	layouts := state.Pipeline.Desc().BindingLayouts
	if len(state.Bindings) != len(layouts) {
		return fmt.Errorf("%w: pipeline %q expects %d binding sets, got %d",
			core.ErrInvalidHandle, state.Pipeline.Desc().DebugName, len(layouts), len(state.Bindings))
	}
	for i, set := range state.Bindings {
		if set == nil || set.Layout() != layouts[i] {
			return fmt.Errorf("%w: binding set %d does not match pipeline layout", core.ErrInvalidHandle, i)
		}
	}
	if len(state.Viewport.Viewports) == 0 {
		return fmt.Errorf("%w: graphics state has no viewport", core.ErrInvalidHandle)
	}
	return nil
}

// ValidateDrawIndexed checks an indexed draw against the current state. state may be nil.
func ValidateDrawIndexed(state *GraphicsState, args metadata.DrawArguments) error {
	if state == nil {
		return fmt.Errorf("%w: draw without graphics state", core.ErrInvalidHandle)
	}
	ib := state.IndexBuffer
	if ib.Buffer == nil || len(state.VertexBuffers) == 0 {
		return fmt.Errorf("%w: indexed draw needs vertex and index buffers", core.ErrInvalidHandle)
	}
	indexSize := uint64(metadata.GetFormatInfo(ib.Format).BytesPerBlock)
	if indexSize == 0 {
		return fmt.Errorf("%w: index buffer has no format", core.ErrInvalidHandle)
	}
	available := (ib.Buffer.Desc().ByteSize - uint64(ib.Offset)) / indexSize
	if uint64(args.StartIndexLocation)+uint64(args.VertexCount) > available {
		return fmt.Errorf("%w: drawing %d indices from %d, index buffer holds %d",
			core.ErrInvalidHandle, args.VertexCount, args.StartIndexLocation, available)
	}
	return nil
}
