package vulkan

import (
	"context"
	"fmt"
	"sort"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type submission struct {
	id            uint64
	fence         *VulkanFence
	commandBuffer *VulkanCommandBuffer
	chunks        []*stagingChunk
}

/**
 * @brief renderer.Device over a Vulkan logical device. Every queue
 * submission gets a fence and an increasing id, submissions complete in
 * order, so the device only needs the id of the last completed one.
 */
type Device struct {
	context   *VulkanContext
	permanent *renderer.PermanentStates

	mu          sync.Mutex
	descriptors VulkanDescriptorAllocator
	renderPass  VulkanRenderPassCache

	live     map[*base]struct{}
	deferred []*base

	lastSubmission uint64
	completed      uint64
	inFlight       []*submission

	freeFences         []*VulkanFence
	freeCommandBuffers []*VulkanCommandBuffer
	freeChunks         []*stagingChunk

	// waited on by the next queue submission, e.g. the swapchain acquire
	waitSemaphores []vk.Semaphore
	waitStages     []vk.PipelineStageFlags

	uniformAlignment uint64
}

func newDevice(vc *VulkanContext) *Device {
	alignment := uint64(vc.Device.Properties.Limits.MinUniformBufferOffsetAlignment)
	return &Device{
		context:          vc,
		permanent:        renderer.NewPermanentStates(),
		live:             make(map[*base]struct{}),
		uniformAlignment: max(alignment, VULKAN_CONSTANT_BUFFER_ALIGNMENT),
	}
}

func (d *Device) GraphicsAPI() renderer.BackendType {
	return renderer.BackendVulkan
}

func (d *Device) track(b *base) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[b] = struct{}{}
}

func (d *Device) deferRelease(b *base) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	d.deferred = append(d.deferred, b)
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (renderer.Buffer, error) {
	if err := renderer.ValidateBufferDesc(desc); err != nil {
		return nil, err
	}
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	switch desc.Role {
	case metadata.BufferRoleVertex:
		usage |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	case metadata.BufferRoleIndex:
		usage |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	case metadata.BufferRoleConstant:
		usage |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}

	b := &Buffer{desc: desc, current: -1}
	var err error
	if desc.IsVolatile {
		b.stride = alignUp(desc.ByteSize, d.uniformAlignment)
		b.versions = make([]uint64, desc.MaxVersions)
		b.buffer, err = BufferCreate(d.context, b.stride*uint64(desc.MaxVersions), usage,
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	} else {
		b.buffer, err = BufferCreate(d.context, desc.ByteSize, usage,
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", desc.DebugName, err)
	}
	b.init(d, b, b.buffer.Destroy)
	return b, nil
}

func (d *Device) CreateTexture(desc metadata.TextureDesc) (renderer.Texture, error) {
	if err := renderer.ValidateTextureDesc(&desc); err != nil {
		return nil, err
	}
	format := convertFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("%w: texture %q has a format without a Vulkan equivalent", core.ErrInvalidHandle, desc.DebugName)
	}
	isDepth := metadata.GetFormatInfo(desc.Format).HasDepth
	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	if desc.IsShaderResource {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if desc.IsRenderTarget {
		if isDepth {
			usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		} else {
			usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
		}
	}

	image, err := ImageCreate(d.context, VulkanImageConfig{
		Width:       desc.Width,
		Height:      desc.Height,
		MipLevels:   desc.MipLevels,
		Format:      format,
		Samples:     sampleCountBits(desc.SampleCount),
		Usage:       usage,
		AspectFlags: aspectMask(desc.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", desc.DebugName, err)
	}
	t := &Texture{desc: desc, image: image, layoutPending: true}
	t.init(d, t, image.Destroy)
	return t, nil
}

// wrapBackBuffer turns a swapchain image into a texture that rests in the present state.
func (d *Device) wrapBackBuffer(handle vk.Image, desc metadata.TextureDesc) (*Texture, error) {
	image, err := ImageWrap(d.context, handle, convertFormat(desc.Format), desc.Width, desc.Height)
	if err != nil {
		return nil, err
	}
	t := &Texture{desc: desc, image: image, layoutPending: true}
	t.init(d, t, image.Destroy)
	return t, nil
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (renderer.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               convertFilter(desc.FilterMagnify),
		MinFilter:               convertFilter(desc.FilterMinify),
		MipmapMode:              convertMipmapMode(desc.FilterMip),
		AddressModeU:            convertAddressMode(desc.RepeatU),
		AddressModeV:            convertAddressMode(desc.RepeatV),
		AddressModeW:            convertAddressMode(desc.RepeatW),
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  vk.LodClampNone,
	}
	if desc.MaxAnisotropy > 1 && d.context.Device.Features.SamplerAnisotropy == vk.True {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = min(desc.MaxAnisotropy, d.context.Device.Properties.Limits.MaxSamplerAnisotropy)
	}
	var handle vk.Sampler
	if err := check("vkCreateSampler", vk.CreateSampler(d.context.logicalDevice(), &createInfo, d.context.Allocator, &handle)); err != nil {
		return nil, fmt.Errorf("failed to create sampler %q: %w", desc.DebugName, err)
	}
	s := &Sampler{desc: desc, handle: handle}
	s.init(d, s, func(vc *VulkanContext) {
		vk.DestroySampler(vc.logicalDevice(), s.handle, vc.Allocator)
	})
	return s, nil
}

func (d *Device) CreateShader(desc metadata.ShaderDesc, binary []byte) (renderer.Shader, error) {
	if err := renderer.ValidateShader(desc, binary); err != nil {
		return nil, err
	}
	module, err := NewShaderModule(d.context, desc.DebugName, binary)
	if err != nil {
		return nil, err
	}
	s := &Shader{desc: desc, module: module}
	s.init(d, s, func(vc *VulkanContext) {
		vk.DestroyShaderModule(vc.logicalDevice(), s.module, vc.Allocator)
	})
	return s, nil
}

/**
 * @brief Attribute locations follow the order of attributes, which is the
 * declaration order of the vertex shader inputs.
 */
func (d *Device) CreateInputLayout(attributes []metadata.VertexAttributeDesc, vertexShader renderer.Shader) (renderer.InputLayout, error) {
	if err := renderer.ValidateInputLayout(attributes, vertexShader); err != nil {
		return nil, err
	}
	l := &InputLayout{attributes: append([]metadata.VertexAttributeDesc(nil), attributes...)}
	strides := make(map[uint32]uint32)
	for i, a := range attributes {
		if stride, ok := strides[a.BufferIndex]; ok && stride != a.ElementStride {
			return nil, fmt.Errorf("%w: attributes of buffer %d disagree on the stride", core.ErrInvalidHandle, a.BufferIndex)
		}
		strides[a.BufferIndex] = a.ElementStride
		l.locations = append(l.locations, vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  a.BufferIndex,
			Format:   convertFormat(a.Format),
			Offset:   a.Offset,
		})
	}
	for index, stride := range strides {
		l.bindings = append(l.bindings, vk.VertexInputBindingDescription{
			Binding:   index,
			Stride:    stride,
			InputRate: vk.VertexInputRateVertex,
		})
	}
	sort.Slice(l.bindings, func(i, j int) bool { return l.bindings[i].Binding < l.bindings[j].Binding })
	l.init(d, l, func(*VulkanContext) {})
	return l, nil
}

func (d *Device) CreateBindingLayout(desc metadata.BindingLayoutDesc) (renderer.BindingLayout, error) {
	if err := renderer.ValidateBindingLayoutDesc(desc); err != nil {
		return nil, err
	}
	handle, err := createDescriptorSetLayout(d.context, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create binding layout %q: %w", desc.DebugName, err)
	}
	l := &BindingLayout{desc: desc, handle: handle}
	l.init(d, l, func(vc *VulkanContext) {
		vk.DestroyDescriptorSetLayout(vc.logicalDevice(), l.handle, vc.Allocator)
	})
	return l, nil
}

func (d *Device) CreateBindingSet(desc renderer.BindingSetDesc, layout renderer.BindingLayout) (renderer.BindingSet, error) {
	if err := renderer.ValidateBindingSetDesc(desc, layout); err != nil {
		return nil, err
	}
	vl, ok := layout.(*BindingLayout)
	if !ok || vl.device != d {
		return nil, fmt.Errorf("%w: binding layout belongs to another device", core.ErrInvalidHandle)
	}
	for _, item := range desc.Bindings {
		if !d.owns(bindingResource(item)) {
			return nil, fmt.Errorf("%w: %s(%d) belongs to another device", core.ErrInvalidHandle, item.Type, item.Slot)
		}
	}

	d.mu.Lock()
	handle, pool, err := d.descriptors.Allocate(d.context, vl.handle)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate descriptor set: %w", err)
	}
	s := &BindingSet{desc: desc, layout: vl, handle: handle, pool: pool}
	s.volatiles = writeDescriptorSet(d.context, handle, desc)
	// called by garbage collection with the device lock held
	s.init(d, s, func(vc *VulkanContext) {
		d.descriptors.Free(vc, s.pool, s.handle)
	})
	return s, nil
}

func bindingResource(item renderer.BindingSetItem) renderer.Resource {
	switch {
	case item.Buffer != nil:
		return item.Buffer
	case item.Texture != nil:
		return item.Texture
	case item.Sampler != nil:
		return item.Sampler
	}
	return nil
}

// owns reports whether every non-nil resource was created by d.
func (d *Device) owns(resources ...renderer.Resource) bool {
	for _, r := range resources {
		if r == nil {
			continue
		}
		h, ok := r.(baseHolder)
		if !ok || h.getBase().device != d {
			return false
		}
	}
	return true
}

func (d *Device) CreateFramebuffer(desc renderer.FramebufferDesc) (renderer.Framebuffer, error) {
	info, err := renderer.ValidateFramebufferDesc(desc)
	if err != nil {
		return nil, err
	}
	attachments := append([]renderer.Texture(nil), desc.ColorAttachments...)
	if desc.DepthAttachment != nil {
		attachments = append(attachments, desc.DepthAttachment)
	}
	for _, t := range attachments {
		if vt, ok := t.(*Texture); !ok || vt.device != d {
			return nil, fmt.Errorf("%w: framebuffer attachment belongs to another device", core.ErrInvalidHandle)
		}
	}

	d.mu.Lock()
	renderPass, err := d.renderPass.Get(d.context, info)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	handle, err := FramebufferCreate(d.context, renderPass, desc, info.Width, info.Height)
	if err != nil {
		return nil, err
	}
	f := &Framebuffer{desc: desc, info: info, renderPass: renderPass, handle: handle}
	f.init(d, f, func(vc *VulkanContext) {
		FramebufferDestroy(vc, f.handle)
	})
	return f, nil
}

/**
 * @brief Binding layouts map to descriptor sets by register space, so the
 * spaces of a pipeline's layouts must be 0..n-1 without gaps.
 */
func (d *Device) CreateGraphicsPipeline(desc renderer.GraphicsPipelineDesc, framebuffer renderer.Framebuffer) (renderer.GraphicsPipeline, error) {
	if err := renderer.ValidateGraphicsPipelineDesc(desc, framebuffer); err != nil {
		return nil, err
	}
	vs, okVS := desc.VS.(*Shader)
	ps, okPS := desc.PS.(*Shader)
	il, okIL := desc.InputLayout.(*InputLayout)
	if !okVS || !okPS || !okIL {
		return nil, fmt.Errorf("%w: pipeline %q uses objects of another device", core.ErrInvalidHandle, desc.DebugName)
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(desc.BindingLayouts))
	setNumbers := make([]uint32, len(desc.BindingLayouts))
	for i, l := range desc.BindingLayouts {
		vl, ok := l.(*BindingLayout)
		if !ok {
			return nil, fmt.Errorf("%w: pipeline %q uses a binding layout of another device", core.ErrInvalidHandle, desc.DebugName)
		}
		space := vl.desc.RegisterSpace
		if space >= uint32(len(setLayouts)) || setLayouts[space] != nil {
			return nil, fmt.Errorf("%w: pipeline %q binding layouts must use register spaces 0..%d once each",
				core.ErrInvalidHandle, desc.DebugName, len(setLayouts)-1)
		}
		setLayouts[space] = vl.handle
		setNumbers[i] = space
	}

	info := framebuffer.Info()
	d.mu.Lock()
	renderPass, err := d.renderPass.Get(d.context, info)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pipeline, err := NewGraphicsPipeline(d.context, &VulkanPipelineConfig{
		RenderPass:           renderPass,
		Bindings:             il.bindings,
		Attributes:           il.locations,
		DescriptorSetLayouts: setLayouts,
		Stages:               []vk.PipelineShaderStageCreateInfo{shaderStageCreateInfo(vs), shaderStageCreateInfo(ps)},
		PrimType:             desc.PrimType,
		RenderState:          desc.RenderState,
		SampleCount:          info.SampleCount,
		ColorAttachmentCount: len(info.ColorFormats),
		DebugName:            desc.DebugName,
	})
	if err != nil {
		return nil, err
	}
	p := &GraphicsPipeline{desc: desc, fbInfo: info, VulkanPipeline: pipeline, setNumbers: setNumbers}
	p.init(d, p, p.VulkanPipeline.Destroy)
	return p, nil
}

func (d *Device) CreateCommandList() (renderer.CommandList, error) {
	return newCommandList(d), nil
}

// acquireCommandBuffer hands out a reset command buffer.
func (d *Device) acquireCommandBuffer() (*VulkanCommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.freeCommandBuffers); n > 0 {
		cb := d.freeCommandBuffers[n-1]
		d.freeCommandBuffers = d.freeCommandBuffers[:n-1]
		return cb, nil
	}
	return NewVulkanCommandBuffer(d.context, d.context.Device.GraphicsCommandPool)
}

func (d *Device) recycleCommandBuffer(cb *VulkanCommandBuffer) {
	if err := cb.Reset(); err != nil {
		core.LogWarn("Dropping command buffer that failed to reset: %s", err)
		cb.Free(d.context, d.context.Device.GraphicsCommandPool)
		return
	}
	d.freeCommandBuffers = append(d.freeCommandBuffers, cb)
}

func (d *Device) acquireChunk(size uint64) (*stagingChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if size <= VULKAN_UPLOAD_CHUNK_SIZE {
		if n := len(d.freeChunks); n > 0 {
			chunk := d.freeChunks[n-1]
			d.freeChunks = d.freeChunks[:n-1]
			chunk.used = 0
			return chunk, nil
		}
		size = VULKAN_UPLOAD_CHUNK_SIZE
	}
	return newStagingChunk(d.context, size)
}

func (d *Device) recycleChunks(chunks []*stagingChunk) {
	for _, chunk := range chunks {
		if chunk.buffer.Size != VULKAN_UPLOAD_CHUNK_SIZE {
			chunk.buffer.Destroy(d.context)
			continue
		}
		chunk.used = 0
		d.freeChunks = append(d.freeChunks, chunk)
	}
}

func (d *Device) acquireFenceLocked() (*VulkanFence, error) {
	if n := len(d.freeFences); n > 0 {
		f := d.freeFences[n-1]
		d.freeFences = d.freeFences[:n-1]
		return f, nil
	}
	return NewFence(d.context, false)
}

// addWaitSemaphore makes the next submission wait for sem.
func (d *Device) addWaitSemaphore(sem vk.Semaphore, stage vk.PipelineStageFlags) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitSemaphores = append(d.waitSemaphores, sem)
	d.waitStages = append(d.waitStages, stage)
}

/**
 * @brief Submits cb, which may be nil, and returns the new submission id.
 * Must be called with the device lock held.
 */
func (d *Device) submitLocked(cb *VulkanCommandBuffer, signal []vk.Semaphore, chunks []*stagingChunk) (uint64, error) {
	fence, err := d.acquireFenceLocked()
	if err != nil {
		return 0, err
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(d.waitSemaphores)),
		PWaitSemaphores:      d.waitSemaphores,
		PWaitDstStageMask:    d.waitStages,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	if cb != nil {
		submitInfo.CommandBufferCount = 1
		submitInfo.PCommandBuffers = []vk.CommandBuffer{cb.Handle}
	}

	err = d.context.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(d.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	})
	if err != nil {
		d.freeFences = append(d.freeFences, fence)
		return 0, fmt.Errorf("%w: %s", core.ErrFatalDevice, err)
	}
	if cb != nil {
		cb.UpdateSubmitted()
	}
	d.waitSemaphores = nil
	d.waitStages = nil

	d.lastSubmission++
	d.inFlight = append(d.inFlight, &submission{
		id:            d.lastSubmission,
		fence:         fence,
		commandBuffer: cb,
		chunks:        chunks,
	})
	return d.lastSubmission, nil
}

// signalSemaphore submits no work, only a signal once everything before it has completed.
func (d *Device) signalSemaphore(sem vk.Semaphore) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitLocked(nil, []vk.Semaphore{sem}, nil)
}

func (d *Device) ExecuteCommandList(commandList renderer.CommandList) (uint64, error) {
	cl, ok := commandList.(*CommandList)
	if !ok || cl.device != d {
		return 0, fmt.Errorf("%w: command list belongs to another device", core.ErrInvalidHandle)
	}
	if cl.open {
		return 0, fmt.Errorf("%w: command list must be closed before execution", core.ErrCommandListClosed)
	}
	if cl.err != nil {
		return 0, fmt.Errorf("refusing to execute command list: %w", cl.err)
	}
	if cl.cmd == nil {
		return 0, fmt.Errorf("%w: command list was already executed", core.ErrCommandListClosed)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.submitLocked(cl.cmd, nil, cl.uploads.detach())
	if err != nil {
		return 0, err
	}
	cl.cmd = nil
	for _, claim := range cl.claims {
		claim.buffer.versions[claim.version] = id
	}
	cl.claims = nil
	for _, b := range cl.referenced {
		b.lastUse = id
	}
	cl.referenced = nil
	cl.tracker.CommitPermanent()
	return id, nil
}

// pollLocked retires every submission whose fence has signaled.
func (d *Device) pollLocked() error {
	for len(d.inFlight) > 0 {
		s := d.inFlight[0]
		done, err := s.fence.Status(d.context)
		if err != nil {
			return fmt.Errorf("%w: %s", core.ErrFatalDevice, err)
		}
		if !done {
			return nil
		}
		d.retireLocked(s)
	}
	return nil
}

func (d *Device) retireLocked(s *submission) {
	d.inFlight = d.inFlight[1:]
	d.completed = s.id
	if err := s.fence.Reset(d.context); err != nil {
		core.LogWarn("Dropping fence that failed to reset: %s", err)
		s.fence.Destroy(d.context)
	} else {
		d.freeFences = append(d.freeFences, s.fence)
	}
	if s.commandBuffer != nil {
		d.recycleCommandBuffer(s.commandBuffer)
	}
	d.recycleChunks(s.chunks)
}

// isCompletedLocked reports whether volatile version slot v can be reused.
func (d *Device) isCompletedLocked(submission uint64) bool {
	return submission != volatileVersionPending && submission <= d.completed
}

/**
 * @brief Blocks until the submission has completed. The device lock is
 * held for the wait, other submissions queue up behind it.
 */
func (d *Device) WaitForSubmission(ctx context.Context, id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id > d.lastSubmission {
		return fmt.Errorf("%w: submission %d was never executed", core.ErrInvalidHandle, id)
	}
	for len(d.inFlight) > 0 && d.inFlight[0].id <= id {
		s := d.inFlight[0]
		if err := s.fence.Wait(ctx, d.context); err != nil {
			return err
		}
		d.retireLocked(s)
	}
	return nil
}

func (d *Device) WaitForIdle(ctx context.Context) error {
	d.mu.Lock()
	last := d.lastSubmission
	d.mu.Unlock()
	return d.WaitForSubmission(ctx, last)
}

func (d *Device) IsSubmissionCompleted(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.pollLocked(); err != nil {
		core.LogError("%s", err)
	}
	return id <= d.completed
}

func (d *Device) RunGarbageCollection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.pollLocked(); err != nil {
		core.LogError("%s", err)
	}
	kept := d.deferred[:0]
	for _, b := range d.deferred {
		if b.lastUse > d.completed {
			kept = append(kept, b)
			continue
		}
		d.destroyLocked(b)
	}
	d.deferred = kept
}

func (d *Device) destroyLocked(b *base) {
	b.destroy(d.context)
	delete(d.live, b)
	d.permanent.Forget(b.self)
}

/**
 * @brief Waits for the queue to drain and frees everything the device
 * still owns, released or not.
 */
func (d *Device) destroy() {
	if err := check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.context.logicalDevice())); err != nil {
		core.LogError("%s", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.inFlight) > 0 {
		d.retireLocked(d.inFlight[0])
	}
	if leaked := len(d.live) - len(d.deferred); leaked > 0 {
		core.LogWarn("Destroying %d Vulkan objects that were never released.", leaked)
	}
	// binding sets and framebuffers reference other objects, free them first
	order := func(b *base) int {
		switch b.self.(type) {
		case *BindingSet, *Framebuffer, *GraphicsPipeline:
			return 0
		}
		return 1
	}
	all := make([]*base, 0, len(d.live))
	for b := range d.live {
		all = append(all, b)
	}
	sort.SliceStable(all, func(i, j int) bool { return order(all[i]) < order(all[j]) })
	for _, b := range all {
		d.destroyLocked(b)
	}
	d.deferred = nil

	for _, f := range d.freeFences {
		f.Destroy(d.context)
	}
	d.freeFences = nil
	for _, cb := range d.freeCommandBuffers {
		cb.Free(d.context, d.context.Device.GraphicsCommandPool)
	}
	d.freeCommandBuffers = nil
	for _, chunk := range d.freeChunks {
		chunk.buffer.Destroy(d.context)
	}
	d.freeChunks = nil
	d.descriptors.Destroy(d.context)
	d.renderPass.Destroy(d.context)
}
