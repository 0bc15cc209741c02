// Package gpu is the graphics API contract the render delegate records
// against. Backends live in subpackages: nulldev for headless use and
// gldev for OpenGL.
package gpu

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Errors returned by devices.
var (
	ErrOutOfMemory = errors.New("gpu: out of memory")
	ErrTooLarge    = errors.New("gpu: buffer exceeds device limit")
	ErrReleased    = errors.New("gpu: resource already released")
)

// Caps describes what the device supports.
type Caps struct {
	// BaseVertex is false when draws cannot offset vertex fetch, so index
	// data must carry absolute vertex numbers.
	BaseVertex bool
	// NativeMultiDraw is true when several draws can be submitted in one
	// call. Without it multi-draws are emulated one draw per item.
	NativeMultiDraw bool
	// ConstantBufferOffsetAlignment is the required alignment of constant
	// buffer bind offsets in bytes.
	ConstantBufferOffsetAlignment int
	// StructuredBuffers allows joint data to be bound as a raw storage
	// buffer instead of aligned constant blocks.
	StructuredBuffers bool
	MaxBufferSize     int64
}

// DefaultCaps matches a desktop GL 4.x class device.
func DefaultCaps() Caps {
	return Caps{
		BaseVertex:                    true,
		NativeMultiDraw:               true,
		ConstantBufferOffsetAlignment: 256,
		StructuredBuffers:             true,
		MaxBufferSize:                 1 << 30,
	}
}

// Resource is anything the device allocates.
type Resource interface {
	ID() uint64
	Label() string
	Release()
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  int64
	Usage gputypes.BufferUsage
}

// Buffer is device memory.
type Buffer interface {
	Resource
	Size() int64
	Usage() gputypes.BufferUsage
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
}

// Texture is a sampled image.
type Texture interface {
	Resource
	Width() int
	Height() int
	Format() gputypes.TextureFormat
}

// SamplerDesc describes texture sampling.
type SamplerDesc struct {
	Label        string
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	Mipmaps      bool
}

// Sampler is a sampling state object.
type Sampler interface {
	Resource
	Desc() SamplerDesc
}

// PipelineStatus reports whether a pipeline can be bound.
type PipelineStatus int

// Pipeline states.
const (
	PipelineCompiling PipelineStatus = iota
	PipelineReady
	PipelineFailed
)

func (s PipelineStatus) String() string {
	switch s {
	case PipelineCompiling:
		return "compiling"
	case PipelineReady:
		return "ready"
	case PipelineFailed:
		return "failed"
	}
	return "unknown"
}

// PipelineDesc describes a pipeline state object.
type PipelineDesc struct {
	Label string
	// ShaderKey selects the shader permutation.
	ShaderKey     uint64
	Primitive     gputypes.PrimitiveState
	VertexBuffers []gputypes.VertexBufferLayout
	// Defines are preprocessor symbols, optionally "NAME VALUE", that
	// select shader code paths.
	Defines []string
	// Blend is nil for opaque output.
	Blend      *gputypes.BlendState
	DepthWrite bool
}

// PipelineState is a compiled pipeline. Devices may compile in the
// background; Status reports progress.
type PipelineState interface {
	Resource
	Status() PipelineStatus
	Desc() PipelineDesc
}

// TextureBinding binds a texture and sampler to a slot.
type TextureBinding struct {
	Slot    int
	Texture Texture
	Sampler Sampler
}

// BindingDesc describes a shader resource binding.
type BindingDesc struct {
	Label    string
	Textures []TextureBinding
}

// ResourceBinding is a committed set of shader resources.
type ResourceBinding interface {
	Resource
}

// Device creates resources and command contexts.
type Device interface {
	Caps() Caps
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateTexture(desc TextureDesc, pixels []byte) (Texture, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	// CreatePipelineState starts compiling a pipeline. The returned state
	// may still be compiling.
	CreatePipelineState(desc PipelineDesc) (PipelineState, error)
	CreateResourceBinding(desc BindingDesc) (ResourceBinding, error)
	NewCommandContext() CommandContext
}

// ResourceState is a buffer usage the context transitions into.
type ResourceState int

// Resource states.
const (
	StateCopyDest ResourceState = iota
	StateVertexBuffer
	StateIndexBuffer
	StateConstantBuffer
	StateShaderResource
	StateCopySource
)

// DrawIndexedArgs is one indexed draw.
type DrawIndexedArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	// FirstInstance carries the per-primitive constant slot.
	FirstInstance uint32
}

// Constant slots.
const (
	SlotPrimitive = 0
	SlotJoints    = 1
)

// CommandContext records GPU commands.
type CommandContext interface {
	UpdateBuffer(buf Buffer, offset int64, data []byte) error
	CopyBuffer(dst Buffer, dstOffset int64, src Buffer, srcOffset, size int64) error
	TransitionBuffer(buf Buffer, state ResourceState)

	SetPipelineState(pso PipelineState)
	CommitResourceBinding(srb ResourceBinding)
	SetVertexBuffers(first int, bufs []Buffer, offsets []int64)
	SetIndexBuffer(buf Buffer, offset int64, format gputypes.IndexFormat)
	// BindConstants binds size bytes of buf at offset to slot. Draws read
	// the block at offset + FirstInstance*stride; a zero stride means the
	// whole range is shared by every draw.
	BindConstants(slot int, buf Buffer, offset, size, stride int64)

	DrawIndexed(args DrawIndexedArgs)
	MultiDrawIndexed(args []DrawIndexedArgs)
	Flush() error
}

// AlignUp rounds n up to a multiple of align. align <= 1 returns n.
func AlignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
