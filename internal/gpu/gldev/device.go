// Package gldev implements the gpu contract over OpenGL 4.1 core.
//
// Every call must come from the thread that owns the GL context. GL 4.1
// has neither base-instance draws nor storage buffers, so the device
// reports no native multi-draw and rebinds the per-primitive constant
// range before each draw.
package gldev

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/pkg/math"
)

var uniformBlocks = map[string]uint32{
	"Primitive": gpu.SlotPrimitive,
	"Joints":    gpu.SlotJoints,
}

// Texture units by sampler name, matching the material slot order.
var samplerUnits = map[string]int32{
	"uBaseColorTex": 0,
	"uNormalTex":    1,
}

// Device is an OpenGL device.
type Device struct {
	caps     gpu.Caps
	nextID   atomic.Uint64
	log      *zap.Logger
	viewProj math.Mat4
}

// New loads GL entry points for the current context.
func New(log *zap.Logger) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gldev: init: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	var align int32
	gl.GetIntegerv(gl.UNIFORM_BUFFER_OFFSET_ALIGNMENT, &align)
	if align <= 0 {
		align = 256
	}
	d := &Device{
		caps: gpu.Caps{
			BaseVertex:                    true,
			NativeMultiDraw:               false,
			ConstantBufferOffsetAlignment: int(align),
			StructuredBuffers:             false,
			MaxBufferSize:                 1 << 30,
		},
		log:      log,
		viewProj: math.Identity(),
	}
	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.PROGRAM_POINT_SIZE)
	gl.Enable(gl.FRAMEBUFFER_SRGB)
	log.Info("OpenGL device ready",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.Int32("ubo_align", align))
	return d, nil
}

// SetViewProjection sets the camera matrix applied by every pipeline.
func (d *Device) SetViewProjection(m math.Mat4) { d.viewProj = m }

// BeginFrame sets the viewport and clears color and depth.
func (d *Device) BeginFrame(width, height int, clear math.Vec4) {
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.ClearColor(clear[0], clear[1], clear[2], clear[3])
	gl.DepthMask(true)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// Caps implements gpu.Device.
func (d *Device) Caps() gpu.Caps { return d.caps }

type resource struct {
	id    uint64
	label string
}

func (r resource) ID() uint64    { return r.id }
func (r resource) Label() string { return r.label }

func (d *Device) resource(label string) resource {
	return resource{id: d.nextID.Add(1), label: label}
}

// Buffer is a GL buffer object.
type Buffer struct {
	resource
	name  uint32
	size  int64
	usage gputypes.BufferUsage
}

// Size implements gpu.Buffer.
func (b *Buffer) Size() int64 { return b.size }

// Usage implements gpu.Buffer.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Release implements gpu.Resource.
func (b *Buffer) Release() {
	if b.name != 0 {
		gl.DeleteBuffers(1, &b.name)
		b.name = 0
	}
}

// CreateBuffer implements gpu.Device.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("gldev: buffer %q has size %d", desc.Label, desc.Size)
	}
	if desc.Size > d.caps.MaxBufferSize {
		return nil, fmt.Errorf("%w: %q is %d bytes", gpu.ErrTooLarge, desc.Label, desc.Size)
	}
	b := &Buffer{resource: d.resource(desc.Label), size: desc.Size, usage: desc.Usage}
	gl.GenBuffers(1, &b.name)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.name)
	gl.BufferData(gl.COPY_WRITE_BUFFER, int(desc.Size), nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	if e := gl.GetError(); e == gl.OUT_OF_MEMORY {
		b.Release()
		return nil, fmt.Errorf("%w: %q", gpu.ErrOutOfMemory, desc.Label)
	}
	return b, nil
}

// Texture is a GL 2D texture.
type Texture struct {
	resource
	name          uint32
	width, height int
	format        gputypes.TextureFormat
}

// Width implements gpu.Texture.
func (t *Texture) Width() int { return t.width }

// Height implements gpu.Texture.
func (t *Texture) Height() int { return t.height }

// Format implements gpu.Texture.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Release implements gpu.Resource.
func (t *Texture) Release() {
	if t.name != 0 {
		gl.DeleteTextures(1, &t.name)
		t.name = 0
	}
}

// CreateTexture implements gpu.Device. pixels are tightly packed RGBA8.
func (d *Device) CreateTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("gldev: texture %q is %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if len(pixels) < desc.Width*desc.Height*4 {
		return nil, fmt.Errorf("gldev: texture %q has %d bytes of pixels", desc.Label, len(pixels))
	}
	t := &Texture{resource: d.resource(desc.Label), width: desc.Width, height: desc.Height, format: desc.Format}
	gl.GenTextures(1, &t.name)
	gl.BindTexture(gl.TEXTURE_2D, t.name)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internalFormat(desc.Format), int32(desc.Width), int32(desc.Height), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return t, nil
}

// Sampler is a GL sampler object.
type Sampler struct {
	resource
	name uint32
	desc gpu.SamplerDesc
}

// Desc implements gpu.Sampler.
func (s *Sampler) Desc() gpu.SamplerDesc { return s.desc }

// Release implements gpu.Resource.
func (s *Sampler) Release() {
	if s.name != 0 {
		gl.DeleteSamplers(1, &s.name)
		s.name = 0
	}
}

// CreateSampler implements gpu.Device.
func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	s := &Sampler{resource: d.resource(desc.Label), desc: desc}
	gl.GenSamplers(1, &s.name)
	gl.SamplerParameteri(s.name, gl.TEXTURE_WRAP_S, addressMode(desc.AddressModeU))
	gl.SamplerParameteri(s.name, gl.TEXTURE_WRAP_T, addressMode(desc.AddressModeV))
	gl.SamplerParameteri(s.name, gl.TEXTURE_MIN_FILTER, minFilter(desc.MinFilter, desc.Mipmaps))
	gl.SamplerParameteri(s.name, gl.TEXTURE_MAG_FILTER, magFilter(desc.MagFilter))
	return s, nil
}

// PipelineState is a linked program, a vertex array object and raster
// state. GL links synchronously, so it is never Compiling.
type PipelineState struct {
	resource
	desc        gpu.PipelineDesc
	status      gpu.PipelineStatus
	program     uint32
	vao         uint32
	locViewProj int32
	attribs     []attribFormat
	mode        uint32
}

// Status implements gpu.PipelineState.
func (p *PipelineState) Status() gpu.PipelineStatus { return p.status }

// Desc implements gpu.PipelineState.
func (p *PipelineState) Desc() gpu.PipelineDesc { return p.desc }

// Release implements gpu.Resource.
func (p *PipelineState) Release() {
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		p.program = 0
	}
	if p.vao != 0 {
		gl.DeleteVertexArrays(1, &p.vao)
		p.vao = 0
	}
}

// CreatePipelineState implements gpu.Device. Compile errors produce a
// Failed pipeline rather than an error.
func (d *Device) CreatePipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	p := &PipelineState{
		resource: d.resource(desc.Label),
		desc:     desc,
		mode:     topology(desc.Primitive.Topology),
	}
	for _, layout := range desc.VertexBuffers {
		if len(layout.Attributes) != 1 {
			return nil, fmt.Errorf("gldev: %s: want one attribute per buffer, got %d", desc.Label, len(layout.Attributes))
		}
		f, err := vertexFormat(layout.Attributes[0].Format)
		if err != nil {
			return nil, err
		}
		p.attribs = append(p.attribs, f)
	}
	program, err := compileProgram(desc.Defines)
	if err != nil {
		d.log.Warn("pipeline failed to compile", zap.String("pipeline", desc.Label), zap.Error(err))
		p.status = gpu.PipelineFailed
		return p, nil
	}
	bindBlocks(program, uniformBlocks, samplerUnits)
	p.program = program
	p.locViewProj = gl.GetUniformLocation(program, gl.Str("uViewProj\x00"))
	gl.GenVertexArrays(1, &p.vao)
	p.status = gpu.PipelineReady
	return p, nil
}

// ResourceBinding is a set of texture and sampler bindings.
type ResourceBinding struct {
	resource
	desc gpu.BindingDesc
}

// Release implements gpu.Resource. Textures and samplers are owned
// elsewhere.
func (b *ResourceBinding) Release() {}

// CreateResourceBinding implements gpu.Device.
func (d *Device) CreateResourceBinding(desc gpu.BindingDesc) (gpu.ResourceBinding, error) {
	for _, tb := range desc.Textures {
		if _, ok := tb.Texture.(*Texture); !ok {
			return nil, fmt.Errorf("gldev: binding %q slot %d has no GL texture", desc.Label, tb.Slot)
		}
	}
	return &ResourceBinding{resource: d.resource(desc.Label), desc: desc}, nil
}

// NewCommandContext implements gpu.Device.
func (d *Device) NewCommandContext() gpu.CommandContext {
	return &Context{dev: d, constants: make(map[int]constBinding)}
}
