package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type versionClaim struct {
	buffer  *Buffer
	version int
}

/**
 * @brief Records into a wgpu command encoder. Close finishes the encoder
 * into a command buffer, ExecuteCommandList submits it.
 *
 * Buffer writes that must be ordered with the recorded commands go
 * through staging buffers and encoder copies. Volatile writes land in a
 * fresh version slot through the queue, and draws select the slot with
 * a dynamic offset.
 */
type CommandList struct {
	device  *Device
	open    bool
	err     error
	tracker *renderer.StateTracker

	encoder  *wgpu.CommandEncoder
	commands *wgpu.CommandBuffer
	pass     *wgpu.RenderPassEncoder
	passFB   *Framebuffer

	state *renderer.GraphicsState
	// dynamic offsets of the bind groups set for state, nil when unset
	boundOffsets [][]uint32

	staging    []*wgpu.Buffer
	claims     []versionClaim
	referenced []*base
}

func newCommandList(d *Device) *CommandList {
	return &CommandList{
		device:  d,
		tracker: renderer.NewStateTracker(d.permanent),
	}
}

func (cl *CommandList) Release() {}

func (cl *CommandList) Open() error {
	if cl.open {
		return fmt.Errorf("command list is already open")
	}
	cl.discard()

	encoder, err := cl.device.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "lumen command list"})
	if err != nil {
		return cl.device.report(fmt.Errorf("failed to create command encoder: %w", err))
	}
	cl.encoder = encoder
	cl.open = true
	cl.err = nil
	cl.state = nil
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
	for _, b := range cl.staging {
		b.Release()
	}
	cl.staging = nil
	if cl.pass != nil {
		cl.pass.Release()
		cl.pass = nil
		cl.passFB = nil
	}
	if cl.encoder != nil {
		cl.encoder.Release()
		cl.encoder = nil
	}
	if cl.commands != nil {
		cl.commands.Release()
		cl.commands = nil
	}
}

func (cl *CommandList) Close() error {
	if !cl.open {
		return fmt.Errorf("%w: close called twice", core.ErrCommandListClosed)
	}
	cl.endRenderPass()
	// transitions are implicit, only the tracked states are brought back
	cl.tracker.KeepInitialStates()
	cl.open = false

	commands, err := cl.encoder.Finish(nil)
	cl.encoder.Release()
	cl.encoder = nil
	if err != nil {
		cl.fail(cl.device.report(fmt.Errorf("failed to finish command encoder: %w", err)))
		return cl.err
	}
	cl.commands = commands
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
	wb, ok := b.(*Buffer)
	if !ok || wb == nil || wb.device != cl.device {
		cl.fail(fmt.Errorf("%w: buffer is nil or belongs to another device", core.ErrInvalidHandle))
		return nil, false
	}
	return wb, true
}

func (cl *CommandList) texture(t renderer.Texture) (*Texture, bool) {
	wt, ok := t.(*Texture)
	if !ok || wt == nil || wt.device != cl.device {
		cl.fail(fmt.Errorf("%w: texture is nil or belongs to another device", core.ErrInvalidHandle))
		return nil, false
	}
	if wt.isBackBuffer && wt.view == nil {
		cl.fail(fmt.Errorf("%w: back buffer is used outside of a frame", core.ErrResourceState))
		return nil, false
	}
	return wt, true
}

// check records a failed state requirement. WebGPU transitions by itself.
func (cl *CommandList) check(_ renderer.Transition, _ bool, err error) bool {
	if err != nil {
		cl.fail(err)
		return false
	}
	return true
}

func (cl *CommandList) endRenderPass() {
	if cl.pass == nil {
		return
	}
	cl.pass.End()
	cl.pass.Release()
	cl.pass = nil
	cl.passFB = nil
	cl.state = nil
	cl.boundOffsets = nil
}

func depthAttachment(t *Texture, loadOp wgpu.LoadOp, depth float32, stencil uint32) *wgpu.RenderPassDepthStencilAttachment {
	a := &wgpu.RenderPassDepthStencilAttachment{
		View:            t.view,
		DepthLoadOp:     loadOp,
		DepthStoreOp:    wgpu.StoreOpStore,
		DepthClearValue: depth,
	}
	if metadata.GetFormatInfo(t.desc.Format).HasStencil {
		a.StencilLoadOp = loadOp
		a.StencilStoreOp = wgpu.StoreOpStore
		a.StencilClearValue = stencil
	}
	return a
}

func (cl *CommandList) beginRenderPass(fb *Framebuffer) {
	desc := &wgpu.RenderPassDescriptor{Label: "lumen pass"}
	for _, t := range fb.color {
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    t.view,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		})
	}
	if fb.depth != nil {
		desc.DepthStencilAttachment = depthAttachment(fb.depth, wgpu.LoadOpLoad, 1, 0)
	}
	cl.pass = cl.encoder.BeginRenderPass(desc)
	cl.passFB = fb
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
	if _, ok := cl.texture(texture); !ok {
		return
	}
	if err := cl.tracker.BeginTrackingTexture(texture, state); err != nil {
		cl.fail(err)
	}
}

func (cl *CommandList) SetPermanentBufferState(buffer renderer.Buffer, state metadata.ResourceState) {
	if !cl.recording() {
		return
	}
	if _, ok := cl.buffer(buffer); !ok {
		return
	}
	cl.check(cl.tracker.SetPermanentBuffer(buffer, state))
}

func (cl *CommandList) SetPermanentTextureState(texture renderer.Texture, state metadata.ResourceState) {
	if !cl.recording() {
		return
	}
	if _, ok := cl.texture(texture); !ok {
		return
	}
	cl.check(cl.tracker.SetPermanentTexture(texture, state))
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

	if destOffset%WEBGPU_COPY_SIZE_ALIGNMENT != 0 {
		cl.fail(fmt.Errorf("%w: WebGPU buffer writes start at multiples of %d bytes, got offset %d",
			core.ErrInvalidHandle, WEBGPU_COPY_SIZE_ALIGNMENT, destOffset))
		return
	}
	if !cl.check(cl.tracker.RequireBuffer(b, metadata.ResourceStateCopyDest)) {
		return
	}
	cl.endRenderPass()
	staging, err := cl.device.createStaging(data)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.staging = append(cl.staging, staging)
	cl.encoder.CopyBufferToBuffer(staging, 0, b.buffer, destOffset, alignUp(uint64(len(data)), WEBGPU_COPY_SIZE_ALIGNMENT))
}

/**
 * @brief Claims a version slot that no pending submission reads and
 * builds its contents. A partial write starts from the previous version.
 */
func (cl *CommandList) nextVersion(b *Buffer, data []byte, offset uint64) (int, error) {
	d := cl.device
	slot := d.claimVersionLocked(b)
	if slot < 0 {
		d.pollLocked()
		if slot = d.claimVersionLocked(b); slot < 0 {
			return -1, fmt.Errorf("%w: volatile buffer %q exceeded %d versions in flight", core.ErrCapacityExceeded, b.desc.DebugName, b.desc.MaxVersions)
		}
	}
	if offset == 0 && uint64(len(data)) == b.desc.ByteSize {
		clear(b.shadow)
	}
	copy(b.shadow[offset:], data)
	b.current = slot
	cl.claims = append(cl.claims, versionClaim{buffer: b, version: slot})
	return slot, nil
}

func (cl *CommandList) writeVolatile(b *Buffer, data []byte, offset uint64) error {
	d := cl.device
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, err := cl.nextVersion(b, data, offset)
	if err != nil {
		return err
	}
	if err := d.queue.WriteBuffer(b.buffer, uint64(slot)*b.stride, b.shadow); err != nil {
		return d.report(fmt.Errorf("failed to write volatile buffer %q: %w", b.desc.DebugName, err))
	}
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
	if t.isBackBuffer {
		cl.fail(fmt.Errorf("%w: back buffers cannot be written", core.ErrInvalidHandle))
		return
	}
	cl.use(t)
	if !cl.check(cl.tracker.RequireTexture(t, metadata.ResourceStateCopyDest)) {
		return
	}
	cl.endRenderPass()

	packed, pitch := packRows(data, rowPitch, t.desc.RowPitch(), t.desc.Height)
	staging, err := cl.device.createStaging(packed)
	if err != nil {
		cl.fail(fmt.Errorf("failed to stage texture %q: %w", t.desc.DebugName, err))
		return
	}
	cl.staging = append(cl.staging, staging)
	cl.encoder.CopyBufferToTexture(
		&wgpu.ImageCopyBuffer{
			Layout: wgpu.TextureDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: t.desc.Height},
			Buffer: staging,
		},
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: mipLevel,
			Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: arraySlice},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.Extent3D{Width: t.desc.Width, Height: t.desc.Height, DepthOrArrayLayers: 1},
	)
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
	if !cl.check(cl.tracker.RequireTexture(t, metadata.ResourceStateRenderTarget)) {
		return
	}
	cl.endRenderPass()
	pass := cl.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "lumen clear",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    t.view,
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: float64(color.R),
				G: float64(color.G),
				B: float64(color.B),
				A: float64(color.A),
			},
		}},
	})
	pass.End()
	pass.Release()
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
	if !cl.check(cl.tracker.RequireTexture(t, metadata.ResourceStateDepthWrite)) {
		return
	}
	hasStencil := metadata.GetFormatInfo(t.desc.Format).HasStencil
	if !clearDepth && !(clearStencil && hasStencil) {
		return
	}
	cl.endRenderPass()
	attachment := depthAttachment(t, wgpu.LoadOpLoad, depth, uint32(stencil))
	if clearDepth {
		attachment.DepthLoadOp = wgpu.LoadOpClear
	}
	if clearStencil && hasStencil {
		attachment.StencilLoadOp = wgpu.LoadOpClear
	}
	pass := cl.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:                  "lumen clear depth",
		DepthStencilAttachment: attachment,
	})
	pass.End()
	pass.Release()
}

/**
 * @brief Validates the state, then begins a pass on its framebuffer
 * unless one is already open and sets pipeline, viewport and buffers.
 * Bind groups are set by the first draw, once the volatile offsets are
 * known.
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
	for _, t := range fb.color {
		if t.isBackBuffer && t.view == nil {
			cl.fail(fmt.Errorf("%w: back buffer is used outside of a frame", core.ErrResourceState))
			return
		}
	}
	if _, err := cl.tracker.RequireGraphicsState(state); err != nil {
		cl.fail(err)
		return
	}

	if cl.pass == nil || cl.passFB != fb {
		cl.endRenderPass()
		cl.beginRenderPass(fb)
	}
	cl.pass.SetPipeline(pipeline.pipeline)
	cl.setViewport(state.Viewport, fb.info)

	for _, vb := range state.VertexBuffers {
		b := vb.Buffer.(*Buffer)
		cl.pass.SetVertexBuffer(vb.Slot, b.buffer, vb.Offset, wgpu.WholeSize)
		cl.use(b)
	}
	ib := state.IndexBuffer.Buffer.(*Buffer)
	format, err := convertIndexFormat(state.IndexBuffer.Format)
	if err != nil {
		cl.fail(fmt.Errorf("%w: %s", core.ErrInvalidHandle, err))
		return
	}
	cl.pass.SetIndexBuffer(ib.buffer, format, uint64(state.IndexBuffer.Offset), wgpu.WholeSize)

	cl.use(pipeline)
	cl.use(fb)
	cl.use(ib)
	for _, t := range fb.color {
		cl.use(t)
	}
	if fb.depth != nil {
		cl.use(fb.depth)
	}
	for _, set := range state.Bindings {
		cl.use(set)
		for _, item := range set.Desc().Bindings {
			if r := bindingResource(item); r != nil {
				cl.use(r)
			}
		}
	}
	s := state
	cl.state = &s
	cl.boundOffsets = make([][]uint32, len(state.Bindings))
}

// setViewport applies the first viewport, WebGPU has no multi-viewport support.
func (cl *CommandList) setViewport(vs metadata.ViewportState, info metadata.FramebufferInfo) {
	v := metadata.NewViewport(float32(info.Width), float32(info.Height))
	if len(vs.Viewports) > 0 {
		v = vs.Viewports[0]
	}
	cl.pass.SetViewport(v.MinX, v.MinY, v.MaxX-v.MinX, v.MaxY-v.MinY, v.MinZ, v.MaxZ)

	r := metadata.Rect{MinX: int32(v.MinX), MaxX: int32(v.MaxX), MinY: int32(v.MinY), MaxY: int32(v.MaxY)}
	if len(vs.ScissorRects) > 0 {
		r = vs.ScissorRects[0]
	}
	x, y, w, h := clampScissor(r, info.Width, info.Height)
	cl.pass.SetScissorRect(x, y, w, h)
}

// clampScissor keeps the rectangle inside the attachments, WebGPU rejects anything larger.
func clampScissor(r metadata.Rect, width, height uint32) (x, y, w, h uint32) {
	clampTo := func(v int32, limit uint32) uint32 {
		if v < 0 {
			return 0
		}
		return min(uint32(v), limit)
	}
	x0, x1 := clampTo(r.MinX, width), clampTo(r.MaxX, width)
	y0, y1 := clampTo(r.MinY, height), clampTo(r.MaxY, height)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return x0, y0, x1 - x0, y1 - y0
}

func (cl *CommandList) DrawIndexed(args metadata.DrawArguments) {
	if !cl.recording() {
		return
	}
	if err := renderer.ValidateDrawIndexed(cl.state, args); err != nil {
		cl.fail(err)
		return
	}
	if err := cl.setBindGroups(); err != nil {
		cl.fail(err)
		return
	}
	cl.pass.DrawIndexed(args.VertexCount, max(args.InstanceCount, 1), args.StartIndexLocation, int32(args.StartVertexLocation), 0)
}

// setBindGroups sets every group whose volatile buffers moved to a new version.
func (cl *CommandList) setBindGroups() error {
	pipeline := cl.state.Pipeline.(*GraphicsPipeline)
	d := cl.device
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range cl.state.Bindings {
		set := s.(*BindingSet)
		offsets, err := volatileOffsets(set)
		if err != nil {
			return err
		}
		if bound := cl.boundOffsets[i]; bound != nil && equalOffsets(bound, offsets) {
			continue
		}
		cl.pass.SetBindGroup(pipeline.groups[i], set.handle, offsets)
		cl.boundOffsets[i] = offsets
	}
	return nil
}

func volatileOffsets(set *BindingSet) ([]uint32, error) {
	offsets := make([]uint32, len(set.volatiles))
	for j, b := range set.volatiles {
		if b.current < 0 {
			return nil, fmt.Errorf("%w: volatile buffer %q is read before it is written", core.ErrResourceState, b.desc.DebugName)
		}
		offsets[j] = b.dynamicOffset()
	}
	return offsets, nil
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
