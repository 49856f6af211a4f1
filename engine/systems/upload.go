package systems

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// submitAndWait records into a fresh command list, executes it and blocks until the device finished it.
func submitAndWait(ctx context.Context, device renderer.Device, record func(cl renderer.CommandList)) error {
	cl, err := device.CreateCommandList()
	if err != nil {
		return fmt.Errorf("failed to create command list: %w", err)
	}
	if err := cl.Open(); err != nil {
		return err
	}
	record(cl)
	if err := cl.Close(); err != nil {
		return err
	}
	submission, err := device.ExecuteCommandList(cl)
	if err != nil {
		return err
	}
	return device.WaitForSubmission(ctx, submission)
}

/**
 * @brief Creates a buffer for role and fills it with data. The buffer is
 * left permanently in the read state of its role, so later draws need no
 * transitions for it. Blocks until the copy has completed.
 * @param ctx Bounds the wait for the upload.
 * @param device The device that owns the buffer.
 * @param data The elements to upload. Must not be empty.
 * @param role Vertex, index or constant.
 * @param name Debug name of the buffer.
 * @return The buffer or an error. On error nothing stays allocated.
 */
func CreateBufferWithData[T any](ctx context.Context, device renderer.Device, data []T, role metadata.BufferRole, name string) (renderer.Buffer, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: no device to upload %q", core.ErrInvalidHandle, name)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot create %s buffer %q from empty data", role, name)
	}
	bytes := metadata.AsBytes(data)

	buffer, err := device.CreateBuffer(metadata.BufferDesc{
		ByteSize:         uint64(len(bytes)),
		Role:             role,
		InitialState:     metadata.ResourceStateCopyDest,
		KeepInitialState: true,
		DebugName:        name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s buffer %q: %w", role, name, err)
	}
	if buffer == nil {
		return nil, fmt.Errorf("%w: device returned no %s buffer for %q", core.ErrInvalidHandle, role, name)
	}

	err = submitAndWait(ctx, device, func(cl renderer.CommandList) {
		cl.BeginTrackingBufferState(buffer, metadata.ResourceStateCopyDest)
		cl.WriteBuffer(buffer, bytes, 0)
		cl.SetPermanentBufferState(buffer, role.ReadState())
	})
	if err != nil {
		buffer.Release()
		return nil, fmt.Errorf("failed to upload %s buffer %q: %w", role, name, err)
	}
	return buffer, nil
}

// ExpandToRGBA widens tightly packed RGB pixels to RGBA with opaque alpha.
func ExpandToRGBA(pixels []uint8) []uint8 {
	count := len(pixels) / 3
	out := make([]uint8, count*4)
	for i := 0; i < count; i++ {
		out[i*4+0] = pixels[i*3+0]
		out[i*4+1] = pixels[i*3+1]
		out[i*4+2] = pixels[i*3+2]
		out[i*4+3] = 255
	}
	return out
}

/**
 * @brief Creates a shader readable 2D texture from tightly packed pixels.
 * One and two channel data keeps its channel count, everything else is
 * stored as RGBA8. The texture is left permanently in ShaderResource.
 */
func CreateTextureWithData(ctx context.Context, device renderer.Device, pixels []uint8, width, height uint32, channels uint8, name string) (renderer.Texture, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: no device to upload %q", core.ErrInvalidHandle, name)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("texture %q has zero extent %dx%d", name, width, height)
	}
	if channels == 3 {
		pixels = ExpandToRGBA(pixels)
		channels = 4
	}
	if channels == 0 || channels > 4 {
		return nil, fmt.Errorf("texture %q has unsupported channel count %d", name, channels)
	}
	rowPitch := width * uint32(channels)
	if uint64(len(pixels)) < uint64(rowPitch)*uint64(height) {
		return nil, fmt.Errorf("texture %q needs %d bytes, got %d", name, uint64(rowPitch)*uint64(height), len(pixels))
	}

	texture, err := device.CreateTexture(metadata.TextureDesc{
		Width:            width,
		Height:           height,
		MipLevels:        1,
		SampleCount:      1,
		Format:           metadata.FormatForChannelCount(channels),
		Dimension:        metadata.TextureDimension2D,
		IsShaderResource: true,
		InitialState:     metadata.ResourceStateCommon,
		DebugName:        name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", name, err)
	}
	if texture == nil {
		return nil, fmt.Errorf("%w: device returned no texture for %q", core.ErrInvalidHandle, name)
	}

	err = submitAndWait(ctx, device, func(cl renderer.CommandList) {
		cl.BeginTrackingTextureState(texture, metadata.ResourceStateCommon)
		cl.WriteTexture(texture, 0, 0, pixels, rowPitch)
		cl.SetPermanentTextureState(texture, metadata.ResourceStateShaderResource)
	})
	if err != nil {
		texture.Release()
		return nil, fmt.Errorf("failed to upload texture %q: %w", name, err)
	}
	return texture, nil
}
