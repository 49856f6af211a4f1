package webgpu

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type submission struct {
	id      uint64
	index   wgpu.SubmissionIndex
	staging []*wgpu.Buffer
}

/**
 * @brief renderer.Device over a wgpu device and its queue. WebGPU
 * inserts barriers itself, the state tracker only validates usage here.
 * Queue submissions complete in order, so the device only keeps the id
 * of the last completed one.
 */
type Device struct {
	device    *wgpu.Device
	queue     *wgpu.Queue
	permanent *renderer.PermanentStates
	messages  renderer.MessageCallback

	mu       sync.Mutex
	live     map[*base]struct{}
	deferred []*base

	lastSubmission uint64
	completed      uint64
	inFlight       []*submission
}

func newDevice(device *wgpu.Device, messages renderer.MessageCallback) *Device {
	d := &Device{
		device:    device,
		permanent: renderer.NewPermanentStates(),
		messages:  messages,
		live:      make(map[*base]struct{}),
	}
	if device != nil {
		d.queue = device.GetQueue()
	}
	return d
}

func (d *Device) GraphicsAPI() renderer.BackendType {
	return renderer.BackendWebGPU
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

// report forwards a failed API call to the message callback and returns err.
func (d *Device) report(err error) error {
	if d.messages != nil {
		if fatal := d.messages(metadata.MessageSeverityError, err.Error()); fatal != nil {
			return fatal
		}
	}
	return err
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (renderer.Buffer, error) {
	if err := renderer.ValidateBufferDesc(desc); err != nil {
		return nil, err
	}
	usage := wgpu.BufferUsageCopyDst
	switch desc.Role {
	case metadata.BufferRoleVertex:
		usage |= wgpu.BufferUsageVertex
	case metadata.BufferRoleIndex:
		usage |= wgpu.BufferUsageIndex
	case metadata.BufferRoleConstant:
		usage |= wgpu.BufferUsageUniform
	}

	b := &Buffer{desc: desc, current: -1}
	size := alignUp(desc.ByteSize, WEBGPU_COPY_SIZE_ALIGNMENT)
	if desc.IsVolatile {
		b.stride = alignUp(desc.ByteSize, WEBGPU_CONSTANT_BUFFER_ALIGNMENT)
		b.versions = make([]uint64, desc.MaxVersions)
		b.shadow = make([]byte, size)
		size = b.stride * uint64(desc.MaxVersions)
	}
	handle, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.DebugName,
		Usage: usage,
		Size:  size,
	})
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to create buffer %q: %w", desc.DebugName, err))
	}
	b.buffer = handle
	b.init(d, b, handle.Release)
	return b, nil
}

func textureUsage(desc metadata.TextureDesc) wgpu.TextureUsage {
	usage := wgpu.TextureUsageCopyDst
	if desc.IsShaderResource {
		usage |= wgpu.TextureUsageTextureBinding
	}
	if desc.IsRenderTarget {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	return usage
}

func (d *Device) CreateTexture(desc metadata.TextureDesc) (renderer.Texture, error) {
	if err := renderer.ValidateTextureDesc(&desc); err != nil {
		return nil, err
	}
	format := convertFormat(desc.Format)
	if format == wgpu.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: texture %q has format %s, which WebGPU cannot create", core.ErrInvalidHandle, desc.DebugName, desc.Format)
	}
	handle, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.DebugName,
		Usage:     textureUsage(desc),
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        format,
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.SampleCount,
	})
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to create texture %q: %w", desc.DebugName, err))
	}
	view, err := handle.CreateView(nil)
	if err != nil {
		handle.Release()
		return nil, d.report(fmt.Errorf("failed to create view of texture %q: %w", desc.DebugName, err))
	}
	t := &Texture{desc: desc, texture: handle, view: view}
	t.init(d, t, func() {
		view.Release()
		handle.Release()
	})
	return t, nil
}

// newBackBuffer wraps the surface texture. Its wgpu objects are swapped by the backend every frame.
func (d *Device) newBackBuffer(desc metadata.TextureDesc) *Texture {
	t := &Texture{desc: desc, isBackBuffer: true}
	t.init(d, t, func() {
		if t.view != nil {
			t.view.Release()
			t.view = nil
		}
		t.texture = nil
	})
	return t
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (renderer.Sampler, error) {
	sd := samplerDescriptor(desc)
	handle, err := d.device.CreateSampler(&sd)
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to create sampler %q: %w", desc.DebugName, err))
	}
	s := &Sampler{desc: desc, sampler: handle}
	s.init(d, s, handle.Release)
	return s, nil
}

// CreateShader takes WGSL source as its binary.
func (d *Device) CreateShader(desc metadata.ShaderDesc, binary []byte) (renderer.Shader, error) {
	if err := renderer.ValidateShader(desc, binary); err != nil {
		return nil, err
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.DebugName,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: string(binary)},
	})
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to compile shader %q: %w", desc.DebugName, err))
	}
	s := &Shader{desc: desc, module: module}
	s.init(d, s, module.Release)
	return s, nil
}

func (d *Device) CreateInputLayout(attributes []metadata.VertexAttributeDesc, vertexShader renderer.Shader) (renderer.InputLayout, error) {
	if err := renderer.ValidateInputLayout(attributes, vertexShader); err != nil {
		return nil, err
	}
	buffers, err := vertexBufferLayouts(attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidHandle, err)
	}
	l := &InputLayout{attributes: append([]metadata.VertexAttributeDesc(nil), attributes...), buffers: buffers}
	l.init(d, l, func() {})
	return l, nil
}

func (d *Device) CreateBindingLayout(desc metadata.BindingLayoutDesc) (renderer.BindingLayout, error) {
	if err := renderer.ValidateBindingLayoutDesc(desc); err != nil {
		return nil, err
	}
	handle, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.DebugName,
		Entries: bindGroupLayoutEntries(desc),
	})
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to create binding layout %q: %w", desc.DebugName, err))
	}
	l := &BindingLayout{desc: desc, handle: handle}
	l.init(d, l, handle.Release)
	return l, nil
}

// owns reports whether every resource was created by this device.
func (d *Device) owns(resources ...renderer.Resource) bool {
	for _, r := range resources {
		h, ok := r.(baseHolder)
		if !ok || h.getBase().device != d {
			return false
		}
	}
	return true
}

func bindingResource(item renderer.BindingSetItem) renderer.Resource {
	switch item.Type {
	case metadata.BindingTypeTextureSRV:
		return item.Texture
	case metadata.BindingTypeSampler:
		return item.Sampler
	}
	return item.Buffer
}

func (d *Device) CreateBindingSet(desc renderer.BindingSetDesc, layout renderer.BindingLayout) (renderer.BindingSet, error) {
	if err := renderer.ValidateBindingSetDesc(desc, layout); err != nil {
		return nil, err
	}
	bl, ok := layout.(*BindingLayout)
	if !ok || !d.owns(bl) {
		return nil, fmt.Errorf("%w: binding layout belongs to another device", core.ErrInvalidHandle)
	}

	type numbered struct {
		binding uint32
		entry   wgpu.BindGroupEntry
		buffer  *Buffer
	}
	items := make([]numbered, 0, len(desc.Bindings))
	for _, item := range desc.Bindings {
		if !d.owns(bindingResource(item)) {
			return nil, fmt.Errorf("%w: %s(%d) belongs to another device", core.ErrInvalidHandle, item.Type, item.Slot)
		}
		binding := bindingNumber(metadata.BindingLayoutItem{Slot: item.Slot, Type: item.Type})
		n := numbered{binding: binding, entry: wgpu.BindGroupEntry{Binding: binding}}
		switch item.Type {
		case metadata.BindingTypeConstantBuffer, metadata.BindingTypeVolatileConstantBuffer:
			b := item.Buffer.(*Buffer)
			n.entry.Buffer = b.buffer
			n.entry.Size = wgpu.WholeSize
			if b.desc.IsVolatile {
				// one version, the dynamic offset selects which
				n.entry.Size = alignUp(b.desc.ByteSize, 16)
				n.buffer = b
			}
		case metadata.BindingTypeTextureSRV:
			t := item.Texture.(*Texture)
			if t.isBackBuffer {
				return nil, fmt.Errorf("%w: back buffers cannot be sampled", core.ErrInvalidHandle)
			}
			n.entry.TextureView = t.view
		case metadata.BindingTypeSampler:
			n.entry.Sampler = item.Sampler.(*Sampler).sampler
		}
		items = append(items, n)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].binding < items[j].binding })

	entries := make([]wgpu.BindGroupEntry, 0, len(items))
	var volatiles []*Buffer
	for _, n := range items {
		entries = append(entries, n.entry)
		if n.buffer != nil {
			volatiles = append(volatiles, n.buffer)
		}
	}
	handle, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   bl.desc.DebugName,
		Layout:  bl.handle,
		Entries: entries,
	})
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to create binding set for layout %q: %w", bl.desc.DebugName, err))
	}
	s := &BindingSet{desc: desc, layout: bl, handle: handle, volatiles: volatiles}
	s.init(d, s, handle.Release)
	return s, nil
}

func (d *Device) CreateFramebuffer(desc renderer.FramebufferDesc) (renderer.Framebuffer, error) {
	info, err := renderer.ValidateFramebufferDesc(desc)
	if err != nil {
		return nil, err
	}
	f := &Framebuffer{desc: desc, info: info}
	for _, c := range desc.ColorAttachments {
		t, ok := c.(*Texture)
		if !ok || !d.owns(t) {
			return nil, fmt.Errorf("%w: framebuffer attachment belongs to another device", core.ErrInvalidHandle)
		}
		f.color = append(f.color, t)
	}
	if desc.DepthAttachment != nil {
		t, ok := desc.DepthAttachment.(*Texture)
		if !ok || !d.owns(t) {
			return nil, fmt.Errorf("%w: framebuffer attachment belongs to another device", core.ErrInvalidHandle)
		}
		f.depth = t
	}
	f.init(d, f, func() {})
	return f, nil
}

func depthStencilState(info metadata.FramebufferInfo, rs metadata.DepthStencilState) *wgpu.DepthStencilState {
	if info.DepthFormat == metadata.FormatUnknown {
		return nil
	}
	compare := wgpu.CompareFunctionAlways
	if rs.DepthTestEnable {
		compare = convertCompareFunc(rs.DepthFunc)
	}
	return &wgpu.DepthStencilState{
		Format:            convertFormat(info.DepthFormat),
		DepthWriteEnabled: rs.DepthTestEnable && rs.DepthWriteEnable,
		DepthCompare:      compare,
		StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		StencilReadMask:   0xFFFFFFFF,
		StencilWriteMask:  0xFFFFFFFF,
	}
}

func colorTargets(info metadata.FramebufferInfo, blend metadata.BlendState) []wgpu.ColorTargetState {
	targets := make([]wgpu.ColorTargetState, 0, len(info.ColorFormats))
	for _, f := range info.ColorFormats {
		target := wgpu.ColorTargetState{Format: convertFormat(f), WriteMask: wgpu.ColorWriteMaskAll}
		if blend.BlendEnable {
			target.Blend = &wgpu.BlendState{
				Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorSrcAlpha, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: wgpu.BlendOperationAdd},
				Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: wgpu.BlendOperationAdd},
			}
		}
		targets = append(targets, target)
	}
	return targets
}

func (d *Device) CreateGraphicsPipeline(desc renderer.GraphicsPipelineDesc, framebuffer renderer.Framebuffer) (renderer.GraphicsPipeline, error) {
	if err := renderer.ValidateGraphicsPipelineDesc(desc, framebuffer); err != nil {
		return nil, err
	}
	vs, okVS := desc.VS.(*Shader)
	ps, okPS := desc.PS.(*Shader)
	il, okIL := desc.InputLayout.(*InputLayout)
	if !okVS || !okPS || !okIL || !d.owns(vs, ps, il) {
		return nil, fmt.Errorf("%w: pipeline %q uses objects of another device", core.ErrInvalidHandle, desc.DebugName)
	}

	// bind group indices come from the register space and must be dense
	layouts := make([]*wgpu.BindGroupLayout, len(desc.BindingLayouts))
	groups := make([]uint32, len(desc.BindingLayouts))
	for i, l := range desc.BindingLayouts {
		bl, ok := l.(*BindingLayout)
		if !ok || !d.owns(bl) {
			return nil, fmt.Errorf("%w: pipeline %q uses a binding layout of another device", core.ErrInvalidHandle, desc.DebugName)
		}
		group := bl.desc.RegisterSpace
		if group >= uint32(len(layouts)) || layouts[group] != nil {
			return nil, fmt.Errorf("%w: pipeline %q has binding layouts with register spaces that are not 0..%d",
				core.ErrInvalidHandle, desc.DebugName, len(layouts)-1)
		}
		layouts[group] = bl.handle
		groups[i] = group
	}

	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.DebugName,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to create pipeline layout %q: %w", desc.DebugName, err))
	}

	info := framebuffer.Info()
	frontFace := wgpu.FrontFaceCW
	if desc.RenderState.Raster.FrontCounterClockwise {
		frontFace = wgpu.FrontFaceCCW
	}
	handle, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.DebugName,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs.module,
			EntryPoint: vs.desc.EntryName,
			Buffers:    il.buffers,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  convertTopology(desc.PrimType),
			FrontFace: frontFace,
			CullMode:  convertCullMode(desc.RenderState.Raster.CullMode),
		},
		DepthStencil: depthStencilState(info, desc.RenderState.DepthStencil),
		Multisample: wgpu.MultisampleState{
			Count: max(info.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
		Fragment: &wgpu.FragmentState{
			Module:     ps.module,
			EntryPoint: ps.desc.EntryName,
			Targets:    colorTargets(info, desc.RenderState.Blend),
		},
	})
	if err != nil {
		layout.Release()
		return nil, d.report(fmt.Errorf("failed to create graphics pipeline %q: %w", desc.DebugName, err))
	}
	p := &GraphicsPipeline{desc: desc, fbInfo: info, layout: layout, pipeline: handle, groups: groups}
	p.init(d, p, func() {
		handle.Release()
		layout.Release()
	})
	return p, nil
}

func (d *Device) CreateCommandList() (renderer.CommandList, error) {
	return newCommandList(d), nil
}

// createStaging makes a copy source buffer holding data, padded to the copy alignment.
func (d *Device) createStaging(data []byte) (*wgpu.Buffer, error) {
	padded := padCopy(data)
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "staging",
		Usage: wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(len(padded)),
	})
	if err != nil {
		return nil, d.report(fmt.Errorf("failed to create staging buffer: %w", err))
	}
	if err := d.queue.WriteBuffer(staging, 0, padded); err != nil {
		staging.Release()
		return nil, d.report(fmt.Errorf("failed to fill staging buffer: %w", err))
	}
	return staging, nil
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
	if cl.commands == nil {
		return 0, fmt.Errorf("%w: command list was already executed", core.ErrCommandListClosed)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	index := d.queue.Submit(cl.commands)
	cl.commands.Release()
	cl.commands = nil

	d.lastSubmission++
	id := d.lastSubmission
	d.inFlight = append(d.inFlight, &submission{id: id, index: index, staging: cl.staging})
	cl.staging = nil
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

// pollLocked checks the queue without blocking. WebGPU only tells whether all of it drained.
func (d *Device) pollLocked() {
	if d.device == nil || len(d.inFlight) == 0 {
		return
	}
	if d.device.Poll(false, nil) {
		for len(d.inFlight) > 0 {
			d.retireLocked(d.inFlight[0])
		}
	}
}

func (d *Device) retireLocked(s *submission) {
	d.inFlight = d.inFlight[1:]
	d.completed = s.id
	for _, b := range s.staging {
		b.Release()
	}
}

// isCompletedLocked reports whether volatile version slot v can be reused.
func (d *Device) isCompletedLocked(submission uint64) bool {
	return submission != volatileVersionPending && submission <= d.completed
}

/**
 * @brief Blocks until the submission has completed. The context is only
 * checked before the wait, a blocking poll cannot be interrupted.
 */
func (d *Device) WaitForSubmission(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id > d.lastSubmission {
		return fmt.Errorf("%w: submission %d was never executed", core.ErrInvalidHandle, id)
	}
	var target *submission
	for _, s := range d.inFlight {
		if s.id <= id {
			target = s
		}
	}
	if target == nil {
		return nil
	}
	d.device.Poll(true, &wgpu.WrappedSubmissionIndex{Queue: d.queue, SubmissionIndex: target.index})
	for len(d.inFlight) > 0 && d.inFlight[0].id <= id {
		d.retireLocked(d.inFlight[0])
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
	d.pollLocked()
	return id <= d.completed
}

func (d *Device) RunGarbageCollection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pollLocked()
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
	b.destroy()
	delete(d.live, b)
	d.permanent.Forget(b.self)
}

// destroy drains the queue and frees everything the device still owns, released or not.
func (d *Device) destroy() {
	if err := d.WaitForIdle(context.Background()); err != nil {
		core.LogError("%s", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if leaked := len(d.live) - len(d.deferred); leaked > 0 {
		core.LogWarn("Destroying %d WebGPU objects that were never released.", leaked)
	}
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
	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
}
