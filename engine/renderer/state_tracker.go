package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A state change a backend turns into a barrier. Exactly one of
 * Buffer and Texture is set.
 */
type Transition struct {
	Buffer  Buffer
	Texture Texture
	Before  metadata.ResourceState
	After   metadata.ResourceState
}

/**
 * @brief Permanent states of a device's resources. They are committed
 * when the command list that set them is executed and never change.
 */
type PermanentStates struct {
	mu       sync.RWMutex
	buffers  map[Buffer]metadata.ResourceState
	textures map[Texture]metadata.ResourceState
}

func NewPermanentStates() *PermanentStates {
	return &PermanentStates{
		buffers:  make(map[Buffer]metadata.ResourceState),
		textures: make(map[Texture]metadata.ResourceState),
	}
}

func (p *PermanentStates) Buffer(b Buffer) (metadata.ResourceState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.buffers[b]
	return s, ok
}

func (p *PermanentStates) Texture(t Texture) (metadata.ResourceState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.textures[t]
	return s, ok
}

// Forget drops a destroyed resource.
func (p *PermanentStates) Forget(r Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch v := r.(type) {
	case Buffer:
		delete(p.buffers, v)
	case Texture:
		delete(p.textures, v)
	}
}

type trackedState struct {
	state     metadata.ResourceState
	permanent bool
}

/**
 * @brief Tracks resource states while one command list is recorded.
 *
 * A resource starts from its committed permanent state, from its initial
 * state when the desc asks to keep it, or from an explicit
 * BeginTracking call. Anything else is Unknown.
 */
type StateTracker struct {
	permanent *PermanentStates
	buffers   map[Buffer]*trackedState
	textures  map[Texture]*trackedState
	// insertion order, so transitions come out deterministic
	bufferOrder  []Buffer
	textureOrder []Texture
	pending      []Transition
}

func NewStateTracker(permanent *PermanentStates) *StateTracker {
	t := &StateTracker{permanent: permanent}
	t.Reset()
	return t
}

// Reset forgets everything recorded since the last Reset.
func (t *StateTracker) Reset() {
	t.buffers = make(map[Buffer]*trackedState)
	t.textures = make(map[Texture]*trackedState)
	t.bufferOrder = t.bufferOrder[:0]
	t.textureOrder = t.textureOrder[:0]
	t.pending = t.pending[:0]
}

func (t *StateTracker) buffer(b Buffer) *trackedState {
	if s, ok := t.buffers[b]; ok {
		return s
	}
	s := &trackedState{state: metadata.ResourceStateUnknown}
	if ps, ok := t.permanent.Buffer(b); ok {
		s.state = ps
		s.permanent = true
	} else if d := b.Desc(); d.KeepInitialState {
		s.state = d.InitialState
	}
	t.buffers[b] = s
	t.bufferOrder = append(t.bufferOrder, b)
	return s
}

func (t *StateTracker) texture(tex Texture) *trackedState {
	if s, ok := t.textures[tex]; ok {
		return s
	}
	s := &trackedState{state: metadata.ResourceStateUnknown}
	if ps, ok := t.permanent.Texture(tex); ok {
		s.state = ps
		s.permanent = true
	} else if d := tex.Desc(); d.KeepInitialState {
		s.state = d.InitialState
	}
	t.textures[tex] = s
	t.textureOrder = append(t.textureOrder, tex)
	return s
}

func (t *StateTracker) BufferState(b Buffer) metadata.ResourceState {
	return t.buffer(b).state
}

func (t *StateTracker) TextureState(tex Texture) metadata.ResourceState {
	return t.texture(tex).state
}

func (t *StateTracker) IsBufferPermanent(b Buffer) bool {
	return t.buffer(b).permanent
}

func (t *StateTracker) IsTexturePermanent(tex Texture) bool {
	return t.texture(tex).permanent
}

func (t *StateTracker) BeginTrackingBuffer(b Buffer, state metadata.ResourceState) error {
	s := t.buffer(b)
	if s.permanent {
		return fmt.Errorf("%w: buffer %q already has permanent state %s", core.ErrResourceState, b.Desc().DebugName, s.state)
	}
	s.state = state
	return nil
}

func (t *StateTracker) BeginTrackingTexture(tex Texture, state metadata.ResourceState) error {
	s := t.texture(tex)
	if s.permanent {
		return fmt.Errorf("%w: texture %q already has permanent state %s", core.ErrResourceState, tex.Desc().DebugName, s.state)
	}
	s.state = state
	return nil
}

func requireState(s *trackedState, kind, name string, state metadata.ResourceState) (metadata.ResourceState, bool, error) {
	if s.permanent {
		if !s.state.Has(state) {
			return 0, false, fmt.Errorf("%w: %s %q is permanently %s, %s required", core.ErrResourceState, kind, name, s.state, state)
		}
		return 0, false, nil
	}
	if s.state == state {
		return 0, false, nil
	}
	before := s.state
	s.state = state
	return before, true, nil
}

// RequireBuffer moves the buffer into state, returning the transition if one is needed.
func (t *StateTracker) RequireBuffer(b Buffer, state metadata.ResourceState) (Transition, bool, error) {
	before, changed, err := requireState(t.buffer(b), "buffer", b.Desc().DebugName, state)
	if err != nil || !changed {
		return Transition{}, false, err
	}
	return Transition{Buffer: b, Before: before, After: state}, true, nil
}

func (t *StateTracker) RequireTexture(tex Texture, state metadata.ResourceState) (Transition, bool, error) {
	before, changed, err := requireState(t.texture(tex), "texture", tex.Desc().DebugName, state)
	if err != nil || !changed {
		return Transition{}, false, err
	}
	return Transition{Texture: tex, Before: before, After: state}, true, nil
}

/**
 * @brief Like RequireBuffer, for reads issued by a draw. A buffer whose
 * contents were never finalised (still in an upload state and without a
 * permanent state) is rejected.
 */
func (t *StateTracker) RequireBufferRead(b Buffer, state metadata.ResourceState) (Transition, bool, error) {
	s := t.buffer(b)
	if !s.permanent && s.state.IsUploadState() {
		return Transition{}, false, fmt.Errorf("%w: buffer %q read by a draw while in state %s", core.ErrResourceState, b.Desc().DebugName, s.state)
	}
	return t.RequireBuffer(b, state)
}

func (t *StateTracker) RequireTextureRead(tex Texture, state metadata.ResourceState) (Transition, bool, error) {
	s := t.texture(tex)
	if !s.permanent && s.state.IsUploadState() {
		return Transition{}, false, fmt.Errorf("%w: texture %q read by a draw while in state %s", core.ErrResourceState, tex.Desc().DebugName, s.state)
	}
	return t.RequireTexture(tex, state)
}

// SetPermanentBuffer transitions the buffer and freezes its state once the list executes.
func (t *StateTracker) SetPermanentBuffer(b Buffer, state metadata.ResourceState) (Transition, bool, error) {
	s := t.buffer(b)
	if s.permanent {
		if s.state != state {
			return Transition{}, false, fmt.Errorf("%w: buffer %q permanent state %s cannot become %s", core.ErrResourceState, b.Desc().DebugName, s.state, state)
		}
		return Transition{}, false, nil
	}
	tr := Transition{Buffer: b, Before: s.state, After: state}
	s.state = state
	s.permanent = true
	t.pending = append(t.pending, tr)
	return tr, tr.Before != state, nil
}

func (t *StateTracker) SetPermanentTexture(tex Texture, state metadata.ResourceState) (Transition, bool, error) {
	s := t.texture(tex)
	if s.permanent {
		if s.state != state {
			return Transition{}, false, fmt.Errorf("%w: texture %q permanent state %s cannot become %s", core.ErrResourceState, tex.Desc().DebugName, s.state, state)
		}
		return Transition{}, false, nil
	}
	tr := Transition{Texture: tex, Before: s.state, After: state}
	s.state = state
	s.permanent = true
	t.pending = append(t.pending, tr)
	return tr, tr.Before != state, nil
}

/**
 * @brief Returns the transitions that put keep-initial-state resources
 * back into their initial state. Called when a list is closed so the
 * next list can assume it again.
 */
func (t *StateTracker) KeepInitialStates() []Transition {
	var out []Transition
	for _, b := range t.bufferOrder {
		s := t.buffers[b]
		d := b.Desc()
		if s.permanent || !d.KeepInitialState || s.state == d.InitialState {
			continue
		}
		out = append(out, Transition{Buffer: b, Before: s.state, After: d.InitialState})
		s.state = d.InitialState
	}
	for _, tex := range t.textureOrder {
		s := t.textures[tex]
		d := tex.Desc()
		if s.permanent || !d.KeepInitialState || s.state == d.InitialState {
			continue
		}
		out = append(out, Transition{Texture: tex, Before: s.state, After: d.InitialState})
		s.state = d.InitialState
	}
	return out
}

// CommitPermanent publishes the permanent states set by this list.
func (t *StateTracker) CommitPermanent() {
	if len(t.pending) == 0 {
		return
	}
	t.permanent.mu.Lock()
	defer t.permanent.mu.Unlock()
	for _, tr := range t.pending {
		if tr.Buffer != nil {
			t.permanent.buffers[tr.Buffer] = tr.After
		} else {
			t.permanent.textures[tr.Texture] = tr.After
		}
	}
	t.pending = t.pending[:0]
}

/**
 * @brief Requires every resource a draw reads to be in its read state and
 * every framebuffer attachment to be writable. Returns the transitions in
 * the order they must be issued.
 */
func (t *StateTracker) RequireGraphicsState(state GraphicsState) ([]Transition, error) {
	var out []Transition
	add := func(tr Transition, ok bool, err error) error {
		if err != nil {
			return err
		}
		if ok {
			out = append(out, tr)
		}
		return nil
	}

	for _, set := range state.Bindings {
		if set == nil {
			continue
		}
		for _, item := range set.Desc().Bindings {
			switch item.Type {
			case metadata.BindingTypeConstantBuffer, metadata.BindingTypeVolatileConstantBuffer:
				if item.Buffer == nil {
					continue
				}
				if item.Buffer.Desc().IsVolatile {
					// volatile buffers live in upload memory
					continue
				}
				if err := add(t.RequireBufferRead(item.Buffer, metadata.ResourceStateConstantBuffer)); err != nil {
					return nil, err
				}
			case metadata.BindingTypeTextureSRV:
				if item.Texture == nil {
					continue
				}
				if err := add(t.RequireTextureRead(item.Texture, metadata.ResourceStateShaderResource)); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, vb := range state.VertexBuffers {
		if vb.Buffer == nil {
			continue
		}
		if err := add(t.RequireBufferRead(vb.Buffer, metadata.ResourceStateVertexBuffer)); err != nil {
			return nil, err
		}
	}
	if state.IndexBuffer.Buffer != nil {
		if err := add(t.RequireBufferRead(state.IndexBuffer.Buffer, metadata.ResourceStateIndexBuffer)); err != nil {
			return nil, err
		}
	}
	if state.Framebuffer != nil {
		desc := state.Framebuffer.Desc()
		for _, c := range desc.ColorAttachments {
			if err := add(t.RequireTexture(c, metadata.ResourceStateRenderTarget)); err != nil {
				return nil, err
			}
		}
		if desc.DepthAttachment != nil {
			if err := add(t.RequireTexture(desc.DepthAttachment, metadata.ResourceStateDepthWrite)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
