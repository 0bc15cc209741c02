package renderpass

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/meshdelegate/internal/gpu"
)

// ring stages constant blocks on the CPU and uploads them to one GPU
// buffer per flush. Capacity bounds the staging memory.
type ring struct {
	buf      gpu.Buffer
	staging  []byte
	capacity int64
}

func newRing(dev gpu.Device, label string, capacity int64) (*ring, error) {
	buf, err := dev.CreateBuffer(gpu.BufferDesc{
		Label: label,
		Size:  capacity,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("renderpass: %s: %w", label, err)
	}
	return &ring{buf: buf, staging: make([]byte, 0, capacity), capacity: capacity}, nil
}

// fits reports whether a block of size bytes can be appended.
func (r *ring) fits(size int64) bool {
	return int64(len(r.staging))+size <= r.capacity
}

// write appends data padded to size bytes and returns its offset.
func (r *ring) write(data []byte, size int64) int64 {
	off := int64(len(r.staging))
	r.staging = append(r.staging, data...)
	for pad := size - int64(len(data)); pad > 0; pad-- {
		r.staging = append(r.staging, 0)
	}
	return off
}

func (r *ring) used() int64 { return int64(len(r.staging)) }

// upload copies the staged blocks to the GPU buffer.
func (r *ring) upload(ctx gpu.CommandContext) error {
	if len(r.staging) == 0 {
		return nil
	}
	if err := ctx.UpdateBuffer(r.buf, 0, r.staging); err != nil {
		return err
	}
	ctx.TransitionBuffer(r.buf, gpu.StateConstantBuffer)
	return nil
}

func (r *ring) reset() { r.staging = r.staging[:0] }

func (r *ring) release() {
	if r != nil && r.buf != nil {
		r.buf.Release()
		r.buf = nil
	}
}
