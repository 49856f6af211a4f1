package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type versionClaim struct {
	buffer  *Buffer
	version int
}

/**
 * @brief Records straight into a Vulkan command buffer. Each Open takes a
 * fresh command buffer from the device, ExecuteCommandList hands it to
 * the submission.
 */
type CommandList struct {
	device  *Device
	open    bool
	err     error
	tracker *renderer.StateTracker
	cmd     *VulkanCommandBuffer
	uploads uploadManager

	imageBarriers  []vk.ImageMemoryBarrier
	bufferBarriers []vk.BufferMemoryBarrier
	srcStages      vk.PipelineStageFlags
	dstStages      vk.PipelineStageFlags

	state        *renderer.GraphicsState
	inRenderPass bool
	// dynamic offsets of the descriptor sets bound for state, nil when unbound
	boundOffsets [][]uint32

	claims     []versionClaim
	referenced []*base
}

func newCommandList(d *Device) *CommandList {
	return &CommandList{
		device:  d,
		tracker: renderer.NewStateTracker(d.permanent),
		uploads: uploadManager{device: d},
	}
}

// Release is a no-op, the command buffer is owned by the device.
func (cl *CommandList) Release() {}

func (cl *CommandList) Open() error {
	if cl.open {
		return fmt.Errorf("command list is already open")
	}
	cl.discard()

	cmd, err := cl.device.acquireCommandBuffer()
	if err != nil {
		return fmt.Errorf("failed to allocate command buffer: %w", err)
	}
	if err := cmd.Begin(); err != nil {
		cl.device.mu.Lock()
		cl.device.recycleCommandBuffer(cmd)
		cl.device.mu.Unlock()
		return err
	}
	cl.cmd = cmd
	cl.open = true
	cl.err = nil
	cl.state = nil
	cl.inRenderPass = false
	cl.boundOffsets = nil
	cl.tracker.Reset()
	return nil
}

// discard gives back whatever a recording that was never executed still holds.
func (cl *CommandList) discard() {
	d := cl.device
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, claim := range cl.claims {
		if claim.buffer.versions[claim.version] == volatileVersionPending {
			claim.buffer.versions[claim.version] = 0
		}
	}
	cl.claims = nil
	cl.referenced = nil
	if cl.cmd != nil {
		d.recycleCommandBuffer(cl.cmd)
		cl.cmd = nil
	}
	d.recycleChunks(cl.uploads.detach())
}

func (cl *CommandList) Close() error {
	if !cl.open {
		return fmt.Errorf("%w: close called twice", core.ErrCommandListClosed)
	}
	cl.endRenderPass()
	for _, tr := range cl.tracker.KeepInitialStates() {
		cl.transition(tr)
	}
	cl.flushBarriers()
	cl.open = false
	if err := cl.cmd.End(); err != nil {
		cl.fail(err)
	}
	return cl.err
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = err
	}
}

func (cl *CommandList) recording() bool {
	if !cl.open {
		cl.fail(fmt.Errorf("%w: recording into a closed command list", core.ErrCommandListClosed))
		return false
	}
	return cl.err == nil
}

func (cl *CommandList) use(r renderer.Resource) {
	if h, ok := r.(baseHolder); ok {
		cl.referenced = append(cl.referenced, h.getBase())
	}
}

func (cl *CommandList) buffer(b renderer.Buffer) (*Buffer, bool) {
	vb, ok := b.(*Buffer)
	if !ok || vb == nil || vb.device != cl.device {
		cl.fail(fmt.Errorf("%w: buffer is nil or belongs to another device", core.ErrInvalidHandle))
		return nil, false
	}
	return vb, true
}

func (cl *CommandList) texture(t renderer.Texture) (*Texture, bool) {
	vt, ok := t.(*Texture)
	if !ok || vt == nil || vt.device != cl.device {
		cl.fail(fmt.Errorf("%w: texture is nil or belongs to another device", core.ErrInvalidHandle))
		return nil, false
	}
	return vt, true
}

func (cl *CommandList) imageBarrier(t *Texture, srcStage vk.PipelineStageFlags, srcAccess vk.AccessFlags, oldLayout vk.ImageLayout,
	dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags, newLayout vk.ImageLayout) {
	cl.imageBarriers = append(cl.imageBarriers, vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.image.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(t.desc.Format),
			BaseMipLevel:   0,
			LevelCount:     t.desc.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	cl.srcStages |= srcStage
	cl.dstStages |= dstStage
}

func (cl *CommandList) textureBarrier(t *Texture, before, after metadata.ResourceState) {
	srcStage, srcAccess, oldLayout := convertResourceState(before)
	dstStage, dstAccess, newLayout := convertResourceState(after)
	cl.imageBarrier(t, srcStage, srcAccess, oldLayout, dstStage, dstAccess, newLayout)
}

func (cl *CommandList) transition(tr renderer.Transition) {
	if tr.Texture != nil {
		cl.textureBarrier(tr.Texture.(*Texture), tr.Before, tr.After)
		return
	}
	b := tr.Buffer.(*Buffer)
	if b.desc.IsVolatile {
		return
	}
	srcStage, srcAccess, _ := convertResourceState(tr.Before)
	dstStage, dstAccess, _ := convertResourceState(tr.After)
	cl.bufferBarriers = append(cl.bufferBarriers, vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.buffer.Handle,
		Offset:              0,
		Size:                vk.DeviceSize(b.buffer.Size),
	})
	cl.srcStages |= srcStage
	cl.dstStages |= dstStage
}

func (cl *CommandList) apply(tr renderer.Transition, needed bool, err error) bool {
	if err != nil {
		cl.fail(err)
		return false
	}
	if needed {
		cl.transition(tr)
	}
	return true
}

// flushBarriers records the pending barriers. Never called inside a render pass.
func (cl *CommandList) flushBarriers() {
	if len(cl.imageBarriers) == 0 && len(cl.bufferBarriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(cl.cmd.Handle, cl.srcStages, cl.dstStages, 0,
		0, nil,
		uint32(len(cl.bufferBarriers)), cl.bufferBarriers,
		uint32(len(cl.imageBarriers)), cl.imageBarriers)
	cl.imageBarriers = nil
	cl.bufferBarriers = nil
	cl.srcStages = 0
	cl.dstStages = 0
}

/**
 * @brief Moves a texture out of VK_IMAGE_LAYOUT_UNDEFINED the first time
 * it is used, into the layout of the state the tracker assumes for it.
 * Must run before the tracker is asked for a transition of the texture.
 */
func (cl *CommandList) touch(t *Texture) {
	if !t.layoutPending {
		return
	}
	t.layoutPending = false
	if state := cl.tracker.TextureState(t); state != metadata.ResourceStateUnknown {
		cl.textureBarrier(t, metadata.ResourceStateUnknown, state)
	}
}

func (cl *CommandList) endRenderPass() {
	if cl.inRenderPass {
		RenderpassEnd(cl.cmd)
		cl.inRenderPass = false
	}
	cl.state = nil
	cl.boundOffsets = nil
}

func (cl *CommandList) BeginTrackingBufferState(buffer renderer.Buffer, state metadata.ResourceState) {
	if !cl.recording() {
		return
	}
	if _, ok := cl.buffer(buffer); !ok {
		return
	}
	if err := cl.tracker.BeginTrackingBuffer(buffer, state); err != nil {
		cl.fail(err)
	}
}

func (cl *CommandList) BeginTrackingTextureState(texture renderer.Texture, state metadata.ResourceState) {
	if !cl.recording() {
		return
	}
	t, ok := cl.texture(texture)
	if !ok {
		return
	}
	// the image layout has to match the claimed state
	t.layoutPending = false
	if err := cl.tracker.BeginTrackingTexture(t, state); err != nil {
		cl.fail(err)
		return
	}
	if state != metadata.ResourceStateUnknown {
		cl.endRenderPass()
		cl.textureBarrier(t, metadata.ResourceStateUnknown, state)
	}
}

func (cl *CommandList) SetPermanentBufferState(buffer renderer.Buffer, state metadata.ResourceState) {
	if !cl.recording() {
		return
	}
	if _, ok := cl.buffer(buffer); !ok {
		return
	}
	cl.endRenderPass()
	cl.apply(cl.tracker.SetPermanentBuffer(buffer, state))
}

func (cl *CommandList) SetPermanentTextureState(texture renderer.Texture, state metadata.ResourceState) {
	if !cl.recording() {
		return
	}
	t, ok := cl.texture(texture)
	if !ok {
		return
	}
	cl.endRenderPass()
	cl.touch(t)
	cl.apply(cl.tracker.SetPermanentTexture(t, state))
}

func (cl *CommandList) WriteBuffer(buffer renderer.Buffer, data []byte, destOffset uint64) {
	if !cl.recording() {
		return
	}
	b, ok := cl.buffer(buffer)
	if !ok {
		return
	}
	if err := renderer.ValidateWriteBuffer(b.desc, len(data), destOffset); err != nil {
		cl.fail(err)
		return
	}
	cl.use(b)
	if b.desc.IsVolatile {
		if err := cl.writeVolatile(b, data, destOffset); err != nil {
			cl.fail(err)
		}
		return
	}

	cl.endRenderPass()
	if !cl.apply(cl.tracker.RequireBuffer(b, metadata.ResourceStateCopyDest)) {
		return
	}
	staged, err := cl.uploads.stage(data, 4)
	if err != nil {
		cl.fail(fmt.Errorf("failed to stage %d bytes for buffer %q: %w", len(data), b.desc.DebugName, err))
		return
	}
	cl.flushBarriers()
	vk.CmdCopyBuffer(cl.cmd.Handle, staged.chunk.buffer.Handle, b.buffer.Handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(staged.offset),
		DstOffset: vk.DeviceSize(destOffset),
		Size:      vk.DeviceSize(len(data)),
	}})
}

/**
 * @brief Every write to a volatile buffer produces a new version in a slot
 * that no pending submission reads. A partial write starts from the
 * previous version.
 */
func (cl *CommandList) writeVolatile(b *Buffer, data []byte, offset uint64) error {
	d := cl.device
	d.mu.Lock()
	defer d.mu.Unlock()

	slot := d.claimVersionLocked(b)
	if slot < 0 {
		if err := d.pollLocked(); err != nil {
			return err
		}
		if slot = d.claimVersionLocked(b); slot < 0 {
			return fmt.Errorf("%w: volatile buffer %q exceeded %d versions in flight", core.ErrCapacityExceeded, b.desc.DebugName, b.desc.MaxVersions)
		}
	}
	memory := b.buffer.Bytes()
	next := memory[uint64(slot)*b.stride : uint64(slot)*b.stride+b.desc.ByteSize]
	partial := offset != 0 || uint64(len(data)) != b.desc.ByteSize
	if partial && b.current >= 0 && b.current != slot {
		prev := uint64(b.current) * b.stride
		copy(next, memory[prev:prev+b.desc.ByteSize])
	}
	copy(next[offset:], data)
	b.current = slot
	cl.claims = append(cl.claims, versionClaim{buffer: b, version: slot})
	return nil
}

func (d *Device) claimVersionLocked(b *Buffer) int {
	for i, submission := range b.versions {
		if d.isCompletedLocked(submission) {
			b.versions[i] = volatileVersionPending
			return i
		}
	}
	return -1
}

func (cl *CommandList) WriteTexture(texture renderer.Texture, arraySlice, mipLevel uint32, data []byte, rowPitch uint32) {
	if !cl.recording() {
		return
	}
	t, ok := cl.texture(texture)
	if !ok {
		return
	}
	if err := renderer.ValidateWriteTexture(t.desc, arraySlice, mipLevel, len(data), rowPitch); err != nil {
		cl.fail(err)
		return
	}
	cl.use(t)
	cl.endRenderPass()
	cl.touch(t)
	if !cl.apply(cl.tracker.RequireTexture(t, metadata.ResourceStateCopyDest)) {
		return
	}

	info := metadata.GetFormatInfo(t.desc.Format)
	size := uint64(rowPitch)*uint64(t.desc.Height-1) + uint64(t.desc.RowPitch())
	staged, err := cl.uploads.stage(data[:size], max(uint64(info.BytesPerBlock), 4))
	if err != nil {
		cl.fail(fmt.Errorf("failed to stage texture %q: %w", t.desc.DebugName, err))
		return
	}
	cl.flushBarriers()
	region := vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(staged.offset),
		BufferRowLength:   rowPitch / info.BytesPerBlock,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectMask(t.desc.Format),
			MipLevel:       mipLevel,
			BaseArrayLayer: arraySlice,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: t.desc.Width, Height: t.desc.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cl.cmd.Handle, staged.chunk.buffer.Handle, t.image.Handle,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// clearRange moves t into TRANSFER_DST for the duration of clear and back into state.
func (cl *CommandList) clearRange(t *Texture, state metadata.ResourceState, clear func(vk.ImageSubresourceRange)) {
	stage, access, layout := convertResourceState(state)
	transferStage, transferAccess, transferLayout := convertResourceState(metadata.ResourceStateCopyDest)
	cl.imageBarrier(t, stage, access, layout, transferStage, transferAccess, transferLayout)
	cl.flushBarriers()
	clear(vk.ImageSubresourceRange{
		AspectMask:     aspectMask(t.desc.Format),
		BaseMipLevel:   0,
		LevelCount:     t.desc.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     1,
	})
	cl.imageBarrier(t, transferStage, transferAccess, transferLayout, stage, access, layout)
}

func (cl *CommandList) ClearTextureFloat(texture renderer.Texture, color metadata.Color) {
	if !cl.recording() {
		return
	}
	t, ok := cl.texture(texture)
	if !ok {
		return
	}
	if err := renderer.ValidateClearColor(t.desc); err != nil {
		cl.fail(err)
		return
	}
	cl.use(t)
	cl.endRenderPass()
	cl.touch(t)
	if !cl.apply(cl.tracker.RequireTexture(t, metadata.ResourceStateRenderTarget)) {
		return
	}
	var value vk.ClearValue
	value.SetColor([]float32{color.R, color.G, color.B, color.A})
	// VkClearValue is a union whose first member is the colour
	clearColor := (*vk.ClearColorValue)(unsafe.Pointer(&value))
	cl.clearRange(t, metadata.ResourceStateRenderTarget, func(r vk.ImageSubresourceRange) {
		vk.CmdClearColorImage(cl.cmd.Handle, t.image.Handle, vk.ImageLayoutTransferDstOptimal, clearColor, 1, []vk.ImageSubresourceRange{r})
	})
}

func (cl *CommandList) ClearDepthStencilTexture(texture renderer.Texture, clearDepth bool, depth float32, clearStencil bool, stencil uint8) {
	if !cl.recording() {
		return
	}
	t, ok := cl.texture(texture)
	if !ok {
		return
	}
	if err := renderer.ValidateClearDepth(t.desc); err != nil {
		cl.fail(err)
		return
	}
	cl.use(t)
	cl.endRenderPass()
	cl.touch(t)
	if !cl.apply(cl.tracker.RequireTexture(t, metadata.ResourceStateDepthWrite)) {
		return
	}
	info := metadata.GetFormatInfo(t.desc.Format)
	var aspect vk.ImageAspectFlags
	if clearDepth {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if clearStencil && info.HasStencil {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if aspect == 0 {
		return
	}
	value := vk.ClearDepthStencilValue{Depth: depth, Stencil: uint32(stencil)}
	cl.clearRange(t, metadata.ResourceStateDepthWrite, func(r vk.ImageSubresourceRange) {
		r.AspectMask = aspect
		vk.CmdClearDepthStencilImage(cl.cmd.Handle, t.image.Handle, vk.ImageLayoutTransferDstOptimal, &value, 1, []vk.ImageSubresourceRange{r})
	})
}

/**
 * @brief Issues the transitions the state needs, begins the render pass
 * of its framebuffer and binds pipeline and buffers. Descriptor sets are
 * bound by the first draw, once the volatile offsets are known.
 */
func (cl *CommandList) SetGraphicsState(state renderer.GraphicsState) {
	if !cl.recording() {
		return
	}
	if err := renderer.ValidateGraphicsState(state); err != nil {
		cl.fail(err)
		return
	}
	pipeline, okP := state.Pipeline.(*GraphicsPipeline)
	fb, okF := state.Framebuffer.(*Framebuffer)
	if !okP || !okF || pipeline.device != cl.device || fb.device != cl.device {
		cl.fail(fmt.Errorf("%w: graphics state uses objects of another device", core.ErrInvalidHandle))
		return
	}
	var textures []*Texture
	for _, a := range fb.desc.ColorAttachments {
		textures = append(textures, a.(*Texture))
	}
	if fb.desc.DepthAttachment != nil {
		textures = append(textures, fb.desc.DepthAttachment.(*Texture))
	}
	for _, set := range state.Bindings {
		for _, item := range set.Desc().Bindings {
			if item.Texture != nil {
				textures = append(textures, item.Texture.(*Texture))
			}
		}
	}

	cl.endRenderPass()
	for _, t := range textures {
		cl.touch(t)
	}
	transitions, err := cl.tracker.RequireGraphicsState(state)
	if err != nil {
		cl.fail(err)
		return
	}
	for _, tr := range transitions {
		cl.transition(tr)
	}
	cl.flushBarriers()

	RenderpassBegin(cl.cmd, fb)
	cl.inRenderPass = true
	pipeline.Bind(cl.cmd)
	cl.setViewports(state.Viewport)

	for _, vb := range state.VertexBuffers {
		b := vb.Buffer.(*Buffer)
		vk.CmdBindVertexBuffers(cl.cmd.Handle, vb.Slot, 1, []vk.Buffer{b.buffer.Handle}, []vk.DeviceSize{vk.DeviceSize(vb.Offset)})
		cl.use(b)
	}
	ib := state.IndexBuffer.Buffer.(*Buffer)
	vk.CmdBindIndexBuffer(cl.cmd.Handle, ib.buffer.Handle, vk.DeviceSize(state.IndexBuffer.Offset), convertIndexType(state.IndexBuffer.Format))

	cl.use(pipeline)
	cl.use(fb)
	cl.use(ib)
	for _, t := range textures {
		cl.use(t)
	}
	for _, set := range state.Bindings {
		cl.use(set)
		for _, item := range set.Desc().Bindings {
			if item.Buffer != nil {
				cl.use(item.Buffer)
			}
			if item.Sampler != nil {
				cl.use(item.Sampler)
			}
		}
	}
	s := state
	cl.state = &s
	cl.boundOffsets = make([][]uint32, len(state.Bindings))
}

// setViewports flips Y with a negative viewport height so clip space matches the other backends.
func (cl *CommandList) setViewports(vs metadata.ViewportState) {
	viewports := make([]vk.Viewport, len(vs.Viewports))
	for i, v := range vs.Viewports {
		viewports[i] = vk.Viewport{
			X:        v.MinX,
			Y:        v.MaxY,
			Width:    v.MaxX - v.MinX,
			Height:   -(v.MaxY - v.MinY),
			MinDepth: v.MinZ,
			MaxDepth: v.MaxZ,
		}
	}
	vk.CmdSetViewport(cl.cmd.Handle, 0, uint32(len(viewports)), viewports)

	scissors := make([]vk.Rect2D, 0, len(vs.Viewports))
	for i, v := range vs.Viewports {
		r := metadata.Rect{MinX: int32(v.MinX), MaxX: int32(v.MaxX), MinY: int32(v.MinY), MaxY: int32(v.MaxY)}
		if i < len(vs.ScissorRects) {
			r = vs.ScissorRects[i]
		}
		scissors = append(scissors, vk.Rect2D{
			Offset: vk.Offset2D{X: r.MinX, Y: r.MinY},
			Extent: vk.Extent2D{Width: uint32(r.MaxX - r.MinX), Height: uint32(r.MaxY - r.MinY)},
		})
	}
	vk.CmdSetScissor(cl.cmd.Handle, 0, uint32(len(scissors)), scissors)
}

func (cl *CommandList) DrawIndexed(args metadata.DrawArguments) {
	if !cl.recording() {
		return
	}
	if err := renderer.ValidateDrawIndexed(cl.state, args); err != nil {
		cl.fail(err)
		return
	}
	if err := cl.bindDescriptorSets(); err != nil {
		cl.fail(err)
		return
	}
	vk.CmdDrawIndexed(cl.cmd.Handle, args.VertexCount, max(args.InstanceCount, 1), args.StartIndexLocation, int32(args.StartVertexLocation), 0)
}

// bindDescriptorSets rebinds every set whose volatile buffers moved to a new version.
func (cl *CommandList) bindDescriptorSets() error {
	pipeline := cl.state.Pipeline.(*GraphicsPipeline)
	d := cl.device
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range cl.state.Bindings {
		set := s.(*BindingSet)
		offsets := make([]uint32, len(set.volatiles))
		for j, b := range set.volatiles {
			if b.current < 0 {
				return fmt.Errorf("%w: volatile buffer %q is read before it is written", core.ErrResourceState, b.desc.DebugName)
			}
			offsets[j] = b.dynamicOffset()
		}
		if bound := cl.boundOffsets[i]; bound != nil && equalOffsets(bound, offsets) {
			continue
		}
		vk.CmdBindDescriptorSets(cl.cmd.Handle, vk.PipelineBindPointGraphics, pipeline.PipelineLayout,
			pipeline.setNumbers[i], 1, []vk.DescriptorSet{set.handle}, uint32(len(offsets)), offsets)
		cl.boundOffsets[i] = offsets
	}
	return nil
}

func equalOffsets(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
