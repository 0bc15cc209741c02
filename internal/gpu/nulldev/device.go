// Package nulldev is a headless gpu.Device. Buffers live in CPU memory,
// pipelines compile over a configurable number of frames and the command
// context records everything it is asked to do, including a snapshot of
// the constant data each draw would read.
package nulldev

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/meshdelegate/internal/gpu"
)

// Option configures a Device.
type Option func(*Device)

// WithCaps overrides the device capabilities.
func WithCaps(caps gpu.Caps) Option {
	return func(d *Device) { d.caps = caps }
}

// WithCompileFrames makes new pipelines report PipelineCompiling until
// AdvanceFrame has been called n times.
func WithCompileFrames(n int) Option {
	return func(d *Device) { d.compileFrames = n }
}

// WithMemoryLimit makes CreateBuffer fail with gpu.ErrOutOfMemory once the
// live buffer bytes would exceed limit.
func WithMemoryLimit(limit int64) Option {
	return func(d *Device) { d.memLimit = limit }
}

// WithPipelineFailure marks pipelines whose description matches fail as
// PipelineFailed once they finish compiling.
func WithPipelineFailure(fail func(gpu.PipelineDesc) bool) Option {
	return func(d *Device) { d.fail = fail }
}

// Device implements gpu.Device without a GPU.
type Device struct {
	caps          gpu.Caps
	compileFrames int
	memLimit      int64
	fail          func(gpu.PipelineDesc) bool

	nextID    atomic.Uint64
	mu        sync.Mutex
	allocated int64
	compiling []*PipelineState
	counts    map[string]int
}

// New creates a device with gpu.DefaultCaps and instant compilation.
func New(opts ...Option) *Device {
	d := &Device{caps: gpu.DefaultCaps(), counts: make(map[string]int)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Caps implements gpu.Device.
func (d *Device) Caps() gpu.Caps { return d.caps }

// AdvanceFrame moves background pipeline compilation forward one frame.
func (d *Device) AdvanceFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.compiling[:0]
	for _, p := range d.compiling {
		p.framesLeft--
		if p.framesLeft <= 0 {
			p.finish(d.fail)
			continue
		}
		pending = append(pending, p)
	}
	d.compiling = pending
}

// Allocated returns the bytes held by live buffers.
func (d *Device) Allocated() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// Created returns how many resources of a kind ("buffer", "texture",
// "sampler", "pipeline", "binding") were created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[kind]
}

func (d *Device) newID(kind string) uint64 {
	d.mu.Lock()
	d.counts[kind]++
	d.mu.Unlock()
	return d.nextID.Add(1)
}

// CreateBuffer implements gpu.Device.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("nulldev: buffer %q has size %d", desc.Label, desc.Size)
	}
	if d.caps.MaxBufferSize > 0 && desc.Size > d.caps.MaxBufferSize {
		return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", gpu.ErrTooLarge, desc.Label, desc.Size, d.caps.MaxBufferSize)
	}
	d.mu.Lock()
	if d.memLimit > 0 && d.allocated+desc.Size > d.memLimit {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %q needs %d bytes", gpu.ErrOutOfMemory, desc.Label, desc.Size)
	}
	d.allocated += desc.Size
	d.mu.Unlock()

	return &Buffer{
		resource: resource{id: d.newID("buffer"), label: desc.Label},
		dev:      d,
		desc:     desc,
		data:     make([]byte, desc.Size),
	}, nil
}

// CreateTexture implements gpu.Device.
func (d *Device) CreateTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("nulldev: texture %q is %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatRGBA8Unorm
	}
	return &Texture{
		resource: resource{id: d.newID("texture"), label: desc.Label},
		desc:     desc,
		Pixels:   append([]byte(nil), pixels...),
	}, nil
}

// CreateSampler implements gpu.Device.
func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	return &Sampler{resource: resource{id: d.newID("sampler"), label: desc.Label}, desc: desc}, nil
}

// CreatePipelineState implements gpu.Device.
func (d *Device) CreatePipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	p := &PipelineState{
		resource:   resource{id: d.newID("pipeline"), label: desc.Label},
		desc:       desc,
		framesLeft: d.compileFrames,
	}
	if d.compileFrames <= 0 {
		p.finish(d.fail)
		return p, nil
	}
	p.status.Store(int32(gpu.PipelineCompiling))
	d.mu.Lock()
	d.compiling = append(d.compiling, p)
	d.mu.Unlock()
	return p, nil
}

// CreateResourceBinding implements gpu.Device.
func (d *Device) CreateResourceBinding(desc gpu.BindingDesc) (gpu.ResourceBinding, error) {
	for _, tb := range desc.Textures {
		if tb.Texture == nil {
			return nil, fmt.Errorf("nulldev: binding %q slot %d has no texture", desc.Label, tb.Slot)
		}
	}
	return &ResourceBinding{resource: resource{id: d.newID("binding"), label: desc.Label}, Desc: desc}, nil
}

// NewCommandContext implements gpu.Device.
func (d *Device) NewCommandContext() gpu.CommandContext {
	return NewContext()
}

func (d *Device) free(size int64) {
	d.mu.Lock()
	d.allocated -= size
	d.mu.Unlock()
}

type resource struct {
	id       uint64
	label    string
	released atomic.Bool
}

func (r *resource) ID() uint64 { return r.id }
func (r *resource) Label() string { return r.label }
func (r *resource) Released() bool { return r.released.Load() }
func (r *resource) release() bool { return r.released.CompareAndSwap(false, true) }

// Buffer is CPU memory standing in for a device buffer.
type Buffer struct {
	resource
	dev  *Device
	desc gpu.BufferDesc
	data []byte
}

func (b *Buffer) Size() int64 { return b.desc.Size }
func (b *Buffer) Usage() gputypes.BufferUsage { return b.desc.Usage }

// Bytes returns the buffer contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Release frees the buffer.
func (b *Buffer) Release() {
	if b.release() {
		b.dev.free(b.desc.Size)
	}
}

// Texture holds the pixels it was created with.
type Texture struct {
	resource
	desc   gpu.TextureDesc
	Pixels []byte
}

func (t *Texture) Width() int { return t.desc.Width }
func (t *Texture) Height() int { return t.desc.Height }
func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }
func (t *Texture) Release() { t.release() }

// Sampler records its description.
type Sampler struct {
	resource
	desc gpu.SamplerDesc
}

func (s *Sampler) Desc() gpu.SamplerDesc { return s.desc }
func (s *Sampler) Release() { s.release() }

// PipelineState compiles over frames.
type PipelineState struct {
	resource
	desc       gpu.PipelineDesc
	framesLeft int
	status     atomic.Int32
}

func (p *PipelineState) finish(fail func(gpu.PipelineDesc) bool) {
	if fail != nil && fail(p.desc) {
		p.status.Store(int32(gpu.PipelineFailed))
		return
	}
	p.status.Store(int32(gpu.PipelineReady))
}

func (p *PipelineState) Status() gpu.PipelineStatus { return gpu.PipelineStatus(p.status.Load()) }
func (p *PipelineState) Desc() gpu.PipelineDesc { return p.desc }
func (p *PipelineState) Release() { p.release() }

// ResourceBinding keeps its description for inspection.
type ResourceBinding struct {
	resource
	Desc gpu.BindingDesc
}

func (b *ResourceBinding) Release() { b.release() }
