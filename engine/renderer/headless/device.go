package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A draw as it was executed, with a snapshot of every constant
 * buffer it could read.
 */
type DrawRecord struct {
	Submission    uint64
	Frame         uint64
	Pipeline      renderer.GraphicsPipeline
	Framebuffer   renderer.Framebuffer
	Bindings      []renderer.BindingSet
	VertexBuffers []renderer.Buffer
	IndexBuffer   renderer.Buffer
	IndexCount    uint32
	Constants     map[renderer.Buffer][]byte
}

type ClearRecord struct {
	Submission uint64
	Texture    renderer.Texture
	Color      metadata.Color
	Depth      float32
	IsDepth    bool
}

/**
 * @brief An in-memory device that validates usage instead of talking to
 * a GPU. Work submitted inside a frame completes when that frame is
 * retired by the swapchain, work submitted outside a frame completes
 * immediately.
 */
type Device struct {
	mu        sync.Mutex
	permanent *renderer.PermanentStates

	live     map[uuid.UUID]*base
	deferred []*base

	lastSubmission uint64
	// submission id -> frame number it belongs to, for work not yet completed
	pending map[uint64]uint64
	// set by the swapchain between BeginFrame and Present
	currentFrame uint64
	retireFrames func(upTo uint64)

	draws  []DrawRecord
	clears []ClearRecord

	bufferFault  func(desc metadata.BufferDesc) error
	textureFault func(desc metadata.TextureDesc) error
}

func NewDevice() *Device {
	return &Device{
		permanent: renderer.NewPermanentStates(),
		live:      make(map[uuid.UUID]*base),
		pending:   make(map[uint64]uint64),
	}
}

func (d *Device) GraphicsAPI() renderer.BackendType {
	return renderer.BackendHeadless
}

func (d *Device) track(b *base) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[b.ID] = b
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

// SetBufferFault makes CreateBuffer fail whenever fn returns an error.
func (d *Device) SetBufferFault(fn func(desc metadata.BufferDesc) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bufferFault = fn
}

// SetTextureFault makes CreateTexture fail whenever fn returns an error.
func (d *Device) SetTextureFault(fn func(desc metadata.TextureDesc) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textureFault = fn
}

// LiveObjects counts objects not yet destroyed.
func (d *Device) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *Device) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DrawRecord, len(d.draws))
	copy(out, d.draws)
	return out
}

func (d *Device) Clears() []ClearRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ClearRecord, len(d.clears))
	copy(out, d.clears)
	return out
}

func (d *Device) ResetRecords() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws = nil
	d.clears = nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (renderer.Buffer, error) {
	d.mu.Lock()
	fault := d.bufferFault
	d.mu.Unlock()
	if fault != nil {
		if err := fault(desc); err != nil {
			return nil, err
		}
	}
	if err := renderer.ValidateBufferDesc(desc); err != nil {
		return nil, err
	}
	b := &Buffer{desc: desc}
	if !desc.IsVolatile {
		b.data = make([]byte, desc.ByteSize)
	}
	b.init(d, b)
	return b, nil
}

func (d *Device) CreateTexture(desc metadata.TextureDesc) (renderer.Texture, error) {
	d.mu.Lock()
	fault := d.textureFault
	d.mu.Unlock()
	if fault != nil {
		if err := fault(desc); err != nil {
			return nil, err
		}
	}
	if err := renderer.ValidateTextureDesc(&desc); err != nil {
		return nil, err
	}
	t := &Texture{desc: desc, data: make([]byte, desc.ByteSize())}
	t.init(d, t)
	return t, nil
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (renderer.Sampler, error) {
	s := &Sampler{desc: desc}
	s.init(d, s)
	return s, nil
}

func (d *Device) CreateShader(desc metadata.ShaderDesc, binary []byte) (renderer.Shader, error) {
	if err := renderer.ValidateShader(desc, binary); err != nil {
		return nil, err
	}
	s := &Shader{desc: desc, binary: append([]byte(nil), binary...)}
	s.init(d, s)
	return s, nil
}

func (d *Device) CreateInputLayout(attributes []metadata.VertexAttributeDesc, vertexShader renderer.Shader) (renderer.InputLayout, error) {
	if err := renderer.ValidateInputLayout(attributes, vertexShader); err != nil {
		return nil, err
	}
	l := &InputLayout{attributes: append([]metadata.VertexAttributeDesc(nil), attributes...)}
	l.init(d, l)
	return l, nil
}

func (d *Device) CreateBindingLayout(desc metadata.BindingLayoutDesc) (renderer.BindingLayout, error) {
	if err := renderer.ValidateBindingLayoutDesc(desc); err != nil {
		return nil, err
	}
	l := &BindingLayout{desc: desc}
	l.init(d, l)
	return l, nil
}

func (d *Device) CreateBindingSet(desc renderer.BindingSetDesc, layout renderer.BindingLayout) (renderer.BindingSet, error) {
	if err := renderer.ValidateBindingSetDesc(desc, layout); err != nil {
		return nil, err
	}
	s := &BindingSet{desc: desc, layout: layout}
	s.init(d, s)
	return s, nil
}

func (d *Device) CreateFramebuffer(desc renderer.FramebufferDesc) (renderer.Framebuffer, error) {
	info, err := renderer.ValidateFramebufferDesc(desc)
	if err != nil {
		return nil, err
	}
	f := &Framebuffer{desc: desc, info: info}
	f.init(d, f)
	return f, nil
}

func (d *Device) CreateGraphicsPipeline(desc renderer.GraphicsPipelineDesc, framebuffer renderer.Framebuffer) (renderer.GraphicsPipeline, error) {
	if err := renderer.ValidateGraphicsPipelineDesc(desc, framebuffer); err != nil {
		return nil, err
	}
	p := &GraphicsPipeline{desc: desc, fbInfo: framebuffer.Info()}
	p.init(d, p)
	return p, nil
}

func (d *Device) CreateCommandList() (renderer.CommandList, error) {
	return newCommandList(d), nil
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

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSubmission++
	submission := d.lastSubmission
	if d.currentFrame != 0 {
		d.pending[submission] = d.currentFrame
	}
	if err := cl.replay(submission, d.currentFrame); err != nil {
		return 0, err
	}
	cl.tracker.CommitPermanent()
	cl.commands = nil
	return submission, nil
}

func (d *Device) isCompletedLocked(submission uint64) bool {
	_, pending := d.pending[submission]
	return !pending && submission <= d.lastSubmission
}

// WaitForSubmission retires frames until the submission has completed.
func (d *Device) WaitForSubmission(ctx context.Context, submission uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if submission > d.lastSubmission {
		d.mu.Unlock()
		return fmt.Errorf("%w: submission %d was never executed", core.ErrInvalidHandle, submission)
	}
	frame, pending := d.pending[submission]
	retire := d.retireFrames
	d.mu.Unlock()
	if !pending {
		return nil
	}
	if retire != nil {
		retire(frame)
	}

	// work of a frame that is still being recorded completes on its own
	d.mu.Lock()
	defer d.mu.Unlock()
	for sub := range d.pending {
		if sub <= submission {
			delete(d.pending, sub)
		}
	}
	return nil
}

func (d *Device) WaitForIdle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	retire := d.retireFrames
	d.mu.Unlock()
	if retire != nil {
		retire(^uint64(0))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = make(map[uint64]uint64)
	return nil
}

// IsSubmissionCompleted reports whether the device finished the work of a submission.
func (d *Device) IsSubmissionCompleted(submission uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isCompletedLocked(submission)
}

// isAttached reports whether a live framebuffer still uses the texture.
func (d *Device) isAttached(t renderer.Texture) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.live {
		fb, ok := b.self.(*Framebuffer)
		if !ok {
			continue
		}
		if fb.desc.DepthAttachment == t {
			return true
		}
		for _, c := range fb.desc.ColorAttachments {
			if c == t {
				return true
			}
		}
	}
	return false
}

// completeFrame is called by the swapchain when a frame retires.
func (d *Device) completeFrame(frame uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sub, f := range d.pending {
		if f <= frame {
			delete(d.pending, sub)
		}
	}
}

func (d *Device) RunGarbageCollection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.deferred[:0]
	for _, b := range d.deferred {
		if b.lastUse != 0 && !d.isCompletedLocked(b.lastUse) {
			kept = append(kept, b)
			continue
		}
		b.destroyed = true
		delete(d.live, b.ID)
		d.permanent.Forget(b.self)
	}
	d.deferred = kept
}
