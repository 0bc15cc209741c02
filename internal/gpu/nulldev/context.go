package nulldev

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/meshdelegate/internal/gpu"
)

// CommandKind identifies a recorded command.
type CommandKind int

// Recorded commands.
const (
	CmdUpdateBuffer CommandKind = iota
	CmdCopyBuffer
	CmdTransition
	CmdSetPipeline
	CmdCommitBinding
	CmdSetVertexBuffers
	CmdSetIndexBuffer
	CmdBindConstants
	CmdDraw
	CmdMultiDraw
	CmdFlush
)

// Command is one recorded call.
type Command struct {
	Kind   CommandKind
	Buffer gpu.Buffer
	Offset int64
	Size   int64
	// Count is the number of draws for CmdMultiDraw.
	Count int
	// State is the target of CmdTransition.
	State gpu.ResourceState
}

// Draw is one draw as the GPU would see it.
type Draw struct {
	Pipeline       gpu.PipelineState
	PipelineStatus gpu.PipelineStatus
	Binding        gpu.ResourceBinding
	VertexBuffers  []gpu.Buffer
	IndexBuffer    gpu.Buffer
	IndexOffset    int64
	Args           gpu.DrawIndexedArgs
	// Submission numbers the DrawIndexed/MultiDrawIndexed call.
	Submission int
	// Constants and Joints are copies of the blocks bound to the
	// primitive and joint slots at draw time.
	Constants []byte
	Joints    []byte
}

type constBinding struct {
	buf                  gpu.Buffer
	offset, size, stride int64
}

// Context records commands and applies buffer writes immediately.
type Context struct {
	Commands []Command
	Draws    []Draw

	pipeline      gpu.PipelineState
	binding       gpu.ResourceBinding
	vertexBuffers []gpu.Buffer
	indexBuffer   gpu.Buffer
	indexOffset   int64
	constants     map[int]constBinding
	submissions   int
}

// NewContext creates an empty recorder.
func NewContext() *Context {
	return &Context{constants: make(map[int]constBinding)}
}

// Count returns how many commands of kind were recorded.
func (c *Context) Count(kind CommandKind) int {
	n := 0
	for _, cmd := range c.Commands {
		if cmd.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears the recording but keeps bound state.
func (c *Context) Reset() {
	c.Commands = nil
	c.Draws = nil
}

func bufferData(b gpu.Buffer) ([]byte, error) {
	nb, ok := b.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("nulldev: foreign buffer %T", b)
	}
	if nb.Released() {
		return nil, fmt.Errorf("%w: buffer %q", gpu.ErrReleased, nb.Label())
	}
	return nb.data, nil
}

// UpdateBuffer implements gpu.CommandContext.
func (c *Context) UpdateBuffer(buf gpu.Buffer, offset int64, data []byte) error {
	dst, err := bufferData(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+int64(len(data)) > int64(len(dst)) {
		return fmt.Errorf("nulldev: update of %d bytes at %d overflows %q (%d bytes)", len(data), offset, buf.Label(), len(dst))
	}
	copy(dst[offset:], data)
	c.Commands = append(c.Commands, Command{Kind: CmdUpdateBuffer, Buffer: buf, Offset: offset, Size: int64(len(data))})
	return nil
}

// CopyBuffer implements gpu.CommandContext.
func (c *Context) CopyBuffer(dst gpu.Buffer, dstOffset int64, src gpu.Buffer, srcOffset, size int64) error {
	d, err := bufferData(dst)
	if err != nil {
		return err
	}
	s, err := bufferData(src)
	if err != nil {
		return err
	}
	if srcOffset+size > int64(len(s)) || dstOffset+size > int64(len(d)) {
		return fmt.Errorf("nulldev: copy of %d bytes out of range", size)
	}
	copy(d[dstOffset:dstOffset+size], s[srcOffset:srcOffset+size])
	c.Commands = append(c.Commands, Command{Kind: CmdCopyBuffer, Buffer: dst, Offset: dstOffset, Size: size})
	return nil
}

// TransitionBuffer implements gpu.CommandContext.
func (c *Context) TransitionBuffer(buf gpu.Buffer, state gpu.ResourceState) {
	c.Commands = append(c.Commands, Command{Kind: CmdTransition, Buffer: buf, State: state})
}

// SetPipelineState implements gpu.CommandContext.
func (c *Context) SetPipelineState(pso gpu.PipelineState) {
	c.pipeline = pso
	c.Commands = append(c.Commands, Command{Kind: CmdSetPipeline})
}

// CommitResourceBinding implements gpu.CommandContext.
func (c *Context) CommitResourceBinding(srb gpu.ResourceBinding) {
	c.binding = srb
	c.Commands = append(c.Commands, Command{Kind: CmdCommitBinding})
}

// SetVertexBuffers implements gpu.CommandContext.
func (c *Context) SetVertexBuffers(first int, bufs []gpu.Buffer, offsets []int64) {
	need := first + len(bufs)
	if len(c.vertexBuffers) < need {
		grown := make([]gpu.Buffer, need)
		copy(grown, c.vertexBuffers)
		c.vertexBuffers = grown
	}
	copy(c.vertexBuffers[first:], bufs)
	c.Commands = append(c.Commands, Command{Kind: CmdSetVertexBuffers, Count: len(bufs)})
}

// SetIndexBuffer implements gpu.CommandContext.
func (c *Context) SetIndexBuffer(buf gpu.Buffer, offset int64, _ gputypes.IndexFormat) {
	c.indexBuffer = buf
	c.indexOffset = offset
	c.Commands = append(c.Commands, Command{Kind: CmdSetIndexBuffer, Buffer: buf, Offset: offset})
}

// BindConstants implements gpu.CommandContext.
func (c *Context) BindConstants(slot int, buf gpu.Buffer, offset, size, stride int64) {
	c.constants[slot] = constBinding{buf: buf, offset: offset, size: size, stride: stride}
	c.Commands = append(c.Commands, Command{Kind: CmdBindConstants, Buffer: buf, Offset: offset, Size: size})
}

func (c *Context) snapshot(slot int, instance uint32) []byte {
	b, ok := c.constants[slot]
	if !ok || b.buf == nil {
		return nil
	}
	data, err := bufferData(b.buf)
	if err != nil {
		return nil
	}
	start, n := b.offset, b.size
	if b.stride > 0 {
		start += int64(instance) * b.stride
		n = b.stride
	}
	if start+n > int64(len(data)) {
		return nil
	}
	return append([]byte(nil), data[start:start+n]...)
}

func (c *Context) record(args gpu.DrawIndexedArgs) {
	d := Draw{
		Pipeline:      c.pipeline,
		Binding:       c.binding,
		VertexBuffers: append([]gpu.Buffer(nil), c.vertexBuffers...),
		IndexBuffer:   c.indexBuffer,
		IndexOffset:   c.indexOffset,
		Args:          args,
		Submission:    c.submissions,
		Constants:     c.snapshot(gpu.SlotPrimitive, args.FirstInstance),
		Joints:        c.snapshot(gpu.SlotJoints, args.FirstInstance),
	}
	if c.pipeline != nil {
		d.PipelineStatus = c.pipeline.Status()
	}
	c.Draws = append(c.Draws, d)
}

// DrawIndexed implements gpu.CommandContext.
func (c *Context) DrawIndexed(args gpu.DrawIndexedArgs) {
	c.record(args)
	c.submissions++
	c.Commands = append(c.Commands, Command{Kind: CmdDraw, Count: 1})
}

// MultiDrawIndexed implements gpu.CommandContext.
func (c *Context) MultiDrawIndexed(args []gpu.DrawIndexedArgs) {
	for _, a := range args {
		c.record(a)
	}
	c.submissions++
	c.Commands = append(c.Commands, Command{Kind: CmdMultiDraw, Count: len(args)})
}

// Flush implements gpu.CommandContext.
func (c *Context) Flush() error {
	c.Commands = append(c.Commands, Command{Kind: CmdFlush})
	return nil
}
