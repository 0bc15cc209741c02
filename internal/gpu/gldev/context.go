package gldev

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"

	"github.com/Faultbox/meshdelegate/internal/gpu"
)

type constBinding struct {
	buf                  *Buffer
	offset, size, stride int64
}

// Context executes commands immediately on the current GL context.
type Context struct {
	dev *Device

	pipeline    *PipelineState
	vbufs       []*Buffer
	ibuf        *Buffer
	indexOffset int64
	indexType   uint32
	indexSize   int64
	constants   map[int]constBinding
	// vertexDirty is set when the VAO needs its attribute pointers reset.
	vertexDirty bool
}

func glBuffer(b gpu.Buffer) (*Buffer, error) {
	gb, ok := b.(*Buffer)
	if !ok || gb.name == 0 {
		return nil, fmt.Errorf("%w: %v", gpu.ErrReleased, b)
	}
	return gb, nil
}

// UpdateBuffer implements gpu.CommandContext.
func (c *Context) UpdateBuffer(buf gpu.Buffer, offset int64, data []byte) error {
	b, err := glBuffer(buf)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if offset+int64(len(data)) > b.size {
		return fmt.Errorf("gldev: update of %d bytes at %d overflows %q", len(data), offset, b.label)
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.name)
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, int(offset), len(data), gl.Ptr(data))
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return nil
}

// CopyBuffer implements gpu.CommandContext.
func (c *Context) CopyBuffer(dst gpu.Buffer, dstOffset int64, src gpu.Buffer, srcOffset, size int64) error {
	d, err := glBuffer(dst)
	if err != nil {
		return err
	}
	s, err := glBuffer(src)
	if err != nil {
		return err
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, s.name)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, d.name)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, int(srcOffset), int(dstOffset), int(size))
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return nil
}

// TransitionBuffer implements gpu.CommandContext. GL tracks hazards
// itself.
func (c *Context) TransitionBuffer(gpu.Buffer, gpu.ResourceState) {}

// SetPipelineState implements gpu.CommandContext.
func (c *Context) SetPipelineState(pso gpu.PipelineState) {
	p, ok := pso.(*PipelineState)
	if !ok || p.status != gpu.PipelineReady {
		c.pipeline = nil
		return
	}
	c.pipeline = p
	gl.UseProgram(p.program)
	gl.BindVertexArray(p.vao)
	if p.locViewProj >= 0 {
		gl.UniformMatrix4fv(p.locViewProj, 1, false, &c.dev.viewProj[0])
	}

	switch p.desc.Primitive.CullMode {
	case gputypes.CullModeNone:
		gl.Disable(gl.CULL_FACE)
	case gputypes.CullModeFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}
	gl.DepthMask(p.desc.DepthWrite)
	if p.desc.Blend != nil {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	} else {
		gl.Disable(gl.BLEND)
	}
	c.vertexDirty = true
}

// CommitResourceBinding implements gpu.CommandContext.
func (c *Context) CommitResourceBinding(srb gpu.ResourceBinding) {
	b, ok := srb.(*ResourceBinding)
	if !ok {
		return
	}
	for _, tb := range b.desc.Textures {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(tb.Slot))
		if t, ok := tb.Texture.(*Texture); ok {
			gl.BindTexture(gl.TEXTURE_2D, t.name)
		}
		if s, ok := tb.Sampler.(*Sampler); ok {
			gl.BindSampler(uint32(tb.Slot), s.name)
		}
	}
	gl.ActiveTexture(gl.TEXTURE0)
}

// SetVertexBuffers implements gpu.CommandContext. Offsets are ignored;
// draws address vertices through BaseVertex.
func (c *Context) SetVertexBuffers(first int, bufs []gpu.Buffer, _ []int64) {
	need := first + len(bufs)
	if len(c.vbufs) < need {
		grown := make([]*Buffer, need)
		copy(grown, c.vbufs)
		c.vbufs = grown
	}
	for i, b := range bufs {
		gb, _ := b.(*Buffer)
		c.vbufs[first+i] = gb
	}
	c.vertexDirty = true
}

// SetIndexBuffer implements gpu.CommandContext.
func (c *Context) SetIndexBuffer(buf gpu.Buffer, offset int64, format gputypes.IndexFormat) {
	c.ibuf, _ = buf.(*Buffer)
	c.indexOffset = offset
	c.indexType, c.indexSize = indexFormat(format)
	c.vertexDirty = true
}

// BindConstants implements gpu.CommandContext.
func (c *Context) BindConstants(slot int, buf gpu.Buffer, offset, size, stride int64) {
	b, _ := buf.(*Buffer)
	c.constants[slot] = constBinding{buf: b, offset: offset, size: size, stride: stride}
	if stride == 0 && b != nil {
		gl.BindBufferRange(gl.UNIFORM_BUFFER, uint32(slot), b.name, int(offset), int(jointRange(b, offset, size, slot)))
	}
}

// jointRange widens the joint block to the shader's array size when the
// buffer allows it.
func jointRange(b *Buffer, offset, size int64, slot int) int64 {
	if slot != gpu.SlotJoints {
		return size
	}
	want := int64(MaxJoints * 64)
	if offset+want <= b.size {
		return want
	}
	return size
}

func (c *Context) applyVertexState() bool {
	p := c.pipeline
	if p == nil || c.ibuf == nil {
		return false
	}
	if !c.vertexDirty {
		return true
	}
	for loc, f := range p.attribs {
		if loc >= len(c.vbufs) || c.vbufs[loc] == nil {
			gl.DisableVertexAttribArray(uint32(loc))
			continue
		}
		stride := int32(p.desc.VertexBuffers[loc].ArrayStride)
		gl.BindBuffer(gl.ARRAY_BUFFER, c.vbufs[loc].name)
		gl.EnableVertexAttribArray(uint32(loc))
		if f.integer {
			gl.VertexAttribIPointerWithOffset(uint32(loc), f.size, f.xtype, stride, 0)
		} else {
			gl.VertexAttribPointerWithOffset(uint32(loc), f.size, f.xtype, false, stride, 0)
		}
	}
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, c.ibuf.name)
	c.vertexDirty = false
	return true
}

// bindPrimitive selects the constant block of one draw.
func (c *Context) bindPrimitive(instance uint32) {
	for slot, b := range c.constants {
		if b.stride == 0 || b.buf == nil {
			continue
		}
		gl.BindBufferRange(gl.UNIFORM_BUFFER, uint32(slot), b.buf.name, int(b.offset+int64(instance)*b.stride), int(b.stride))
	}
}

// DrawIndexed implements gpu.CommandContext.
func (c *Context) DrawIndexed(args gpu.DrawIndexedArgs) {
	if !c.applyVertexState() {
		return
	}
	c.bindPrimitive(args.FirstInstance)
	offset := gl.PtrOffset(int(c.indexOffset + int64(args.FirstIndex)*c.indexSize))
	if args.InstanceCount > 1 {
		gl.DrawElementsInstancedBaseVertex(c.pipeline.mode, int32(args.IndexCount), c.indexType, offset,
			int32(args.InstanceCount), args.BaseVertex)
		return
	}
	gl.DrawElementsBaseVertex(c.pipeline.mode, int32(args.IndexCount), c.indexType, offset, args.BaseVertex)
}

// MultiDrawIndexed implements gpu.CommandContext as one draw per entry.
func (c *Context) MultiDrawIndexed(args []gpu.DrawIndexedArgs) {
	for _, a := range args {
		c.DrawIndexed(a)
	}
}

// Flush implements gpu.CommandContext.
func (c *Context) Flush() error {
	gl.Flush()
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("gldev: GL error 0x%x", e)
	}
	return nil
}
