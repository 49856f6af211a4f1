package headless

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type commandKind int

const (
	cmdBarrier commandKind = iota
	cmdWriteBuffer
	cmdWriteTexture
	cmdClearColor
	cmdClearDepth
	cmdDraw
)

type command struct {
	kind       commandKind
	buffer     *Buffer
	texture    *Texture
	data       []byte
	offset     uint64
	rowPitch   uint32
	color      metadata.Color
	depth      float32
	state      renderer.GraphicsState
	args       metadata.DrawArguments
	transition renderer.Transition
}

type CommandList struct {
	device      *Device
	open        bool
	err         error
	tracker     *renderer.StateTracker
	commands    []command
	transitions []renderer.Transition
	state       *renderer.GraphicsState
}

func newCommandList(d *Device) *CommandList {
	return &CommandList{
		device:  d,
		tracker: renderer.NewStateTracker(d.permanent),
	}
}

// Release is a no-op, command lists hold no device memory.
func (cl *CommandList) Release() {}

func (cl *CommandList) Open() error {
	if cl.open {
		return fmt.Errorf("command list is already open")
	}
	cl.open = true
	cl.err = nil
	cl.commands = nil
	cl.transitions = nil
	cl.state = nil
	cl.tracker.Reset()
	return nil
}

func (cl *CommandList) Close() error {
	if !cl.open {
		return fmt.Errorf("%w: close called twice", core.ErrCommandListClosed)
	}
	for _, tr := range cl.tracker.KeepInitialStates() {
		cl.barrier(tr)
	}
	cl.open = false
	return cl.err
}

// Transitions lists the barriers recorded since Open, including those added by Close.
func (cl *CommandList) Transitions() []renderer.Transition {
	return cl.transitions
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

func (cl *CommandList) barrier(tr renderer.Transition) {
	cl.transitions = append(cl.transitions, tr)
	cl.commands = append(cl.commands, command{kind: cmdBarrier, transition: tr})
}

func (cl *CommandList) apply(tr renderer.Transition, needed bool, err error) bool {
	if err != nil {
		cl.fail(err)
		return false
	}
	if needed {
		cl.barrier(tr)
	}
	return true
}

func (cl *CommandList) buffer(b renderer.Buffer) (*Buffer, bool) {
	hb, ok := b.(*Buffer)
	if !ok || hb == nil || hb.device != cl.device {
		cl.fail(fmt.Errorf("%w: buffer is nil or belongs to another device", core.ErrInvalidHandle))
		return nil, false
	}
	return hb, true
}

func (cl *CommandList) texture(t renderer.Texture) (*Texture, bool) {
	ht, ok := t.(*Texture)
	if !ok || ht == nil || ht.device != cl.device {
		cl.fail(fmt.Errorf("%w: texture is nil or belongs to another device", core.ErrInvalidHandle))
		return nil, false
	}
	return ht, true
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
	cl.apply(cl.tracker.SetPermanentBuffer(buffer, state))
}

func (cl *CommandList) SetPermanentTextureState(texture renderer.Texture, state metadata.ResourceState) {
	if !cl.recording() {
		return
	}
	if _, ok := cl.texture(texture); !ok {
		return
	}
	cl.apply(cl.tracker.SetPermanentTexture(texture, state))
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
	if !b.desc.IsVolatile {
		if !cl.apply(cl.tracker.RequireBuffer(b, metadata.ResourceStateCopyDest)) {
			return
		}
	}
	cl.commands = append(cl.commands, command{
		kind:   cmdWriteBuffer,
		buffer: b,
		data:   append([]byte(nil), data...),
		offset: destOffset,
	})
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
	if !cl.apply(cl.tracker.RequireTexture(t, metadata.ResourceStateCopyDest)) {
		return
	}
	cl.commands = append(cl.commands, command{
		kind:     cmdWriteTexture,
		texture:  t,
		data:     append([]byte(nil), data...),
		rowPitch: rowPitch,
	})
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
	if !cl.apply(cl.tracker.RequireTexture(t, metadata.ResourceStateRenderTarget)) {
		return
	}
	cl.commands = append(cl.commands, command{kind: cmdClearColor, texture: t, color: color})
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
	if !cl.apply(cl.tracker.RequireTexture(t, metadata.ResourceStateDepthWrite)) {
		return
	}
	if clearDepth {
		cl.commands = append(cl.commands, command{kind: cmdClearDepth, texture: t, depth: depth})
	}
}

func (cl *CommandList) SetGraphicsState(state renderer.GraphicsState) {
	if !cl.recording() {
		return
	}
	if err := renderer.ValidateGraphicsState(state); err != nil {
		cl.fail(err)
		return
	}
	transitions, err := cl.tracker.RequireGraphicsState(state)
	if err != nil {
		cl.fail(err)
		return
	}
	for _, tr := range transitions {
		cl.barrier(tr)
	}
	s := state
	cl.state = &s
}

func (cl *CommandList) DrawIndexed(args metadata.DrawArguments) {
	if !cl.recording() {
		return
	}
	if err := renderer.ValidateDrawIndexed(cl.state, args); err != nil {
		cl.fail(err)
		return
	}
	cl.commands = append(cl.commands, command{kind: cmdDraw, state: *cl.state, args: args})
}

type baseHolder interface {
	getBase() *base
}

func (b *base) getBase() *base {
	return b
}

func markUsed(r interface{}, submission uint64) {
	if h, ok := r.(baseHolder); ok && h != nil {
		h.getBase().lastUse = submission
	}
}

// replay runs with the device lock held.
func (cl *CommandList) replay(submission, frame uint64) error {
	d := cl.device
	for _, c := range cl.commands {
		switch c.kind {
		case cmdWriteBuffer:
			b := c.buffer
			markUsed(b, submission)
			if !b.desc.IsVolatile {
				copy(b.data[c.offset:], c.data)
				continue
			}
			if err := d.writeVolatile(b, c.data, c.offset, submission); err != nil {
				return err
			}
		case cmdWriteTexture:
			t := c.texture
			markUsed(t, submission)
			tight := t.desc.RowPitch()
			for y := uint32(0); y < t.desc.Height; y++ {
				src := c.data[uint64(y)*uint64(c.rowPitch):]
				copy(t.data[y*tight:(y+1)*tight], src[:tight])
			}
		case cmdClearColor:
			markUsed(c.texture, submission)
			c.texture.clearColor = c.color
			d.clears = append(d.clears, ClearRecord{Submission: submission, Texture: c.texture, Color: c.color})
		case cmdClearDepth:
			markUsed(c.texture, submission)
			c.texture.clearDepth = c.depth
			d.clears = append(d.clears, ClearRecord{Submission: submission, Texture: c.texture, Depth: c.depth, IsDepth: true})
		case cmdDraw:
			d.draws = append(d.draws, d.recordDraw(c, submission, frame))
		}
	}
	return nil
}

func (d *Device) writeVolatile(b *Buffer, data []byte, offset uint64, submission uint64) error {
	// drop versions no pending submission can read, keeping the latest
	kept := b.versions[:0]
	for i, v := range b.versions {
		if i == len(b.versions)-1 || !d.isCompletedLocked(v.submission) {
			kept = append(kept, v)
		}
	}
	b.versions = kept
	if uint32(len(b.versions)) >= b.desc.MaxVersions {
		return fmt.Errorf("%w: volatile buffer %q exceeded %d versions in flight", core.ErrCapacityExceeded, b.desc.DebugName, b.desc.MaxVersions)
	}
	next := make([]byte, b.desc.ByteSize)
	if n := len(b.versions); n > 0 {
		copy(next, b.versions[n-1].data)
	}
	copy(next[offset:], data)
	b.versions = append(b.versions, bufferVersion{data: next, submission: submission})
	return nil
}

func (d *Device) recordDraw(c command, submission, frame uint64) DrawRecord {
	s := c.state
	rec := DrawRecord{
		Submission:  submission,
		Frame:       frame,
		Pipeline:    s.Pipeline,
		Framebuffer: s.Framebuffer,
		Bindings:    append([]renderer.BindingSet(nil), s.Bindings...),
		IndexBuffer: s.IndexBuffer.Buffer,
		IndexCount:  c.args.VertexCount,
		Constants:   make(map[renderer.Buffer][]byte),
	}
	markUsed(s.Pipeline, submission)
	markUsed(s.Framebuffer, submission)
	markUsed(s.IndexBuffer.Buffer, submission)
	fbDesc := s.Framebuffer.Desc()
	for _, a := range fbDesc.ColorAttachments {
		markUsed(a, submission)
	}
	if fbDesc.DepthAttachment != nil {
		markUsed(fbDesc.DepthAttachment, submission)
	}
	for _, vb := range s.VertexBuffers {
		rec.VertexBuffers = append(rec.VertexBuffers, vb.Buffer)
		markUsed(vb.Buffer, submission)
	}
	for _, set := range s.Bindings {
		markUsed(set, submission)
		for _, item := range set.Desc().Bindings {
			switch {
			case item.Buffer != nil:
				markUsed(item.Buffer, submission)
				b, ok := item.Buffer.(*Buffer)
				if !ok {
					continue
				}
				if b.desc.IsVolatile {
					if n := len(b.versions); n > 0 {
						rec.Constants[b] = b.versions[n-1].data
					}
				} else {
					rec.Constants[b] = append([]byte(nil), b.data...)
				}
			case item.Texture != nil:
				markUsed(item.Texture, submission)
			case item.Sampler != nil:
				markUsed(item.Sampler, submission)
			}
		}
	}
	return rec
}
