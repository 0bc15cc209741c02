package geompool

import (
	"github.com/Faultbox/meshdelegate/internal/gpu"
)

// handle is a weak reference to a region: the pool, the arena and the
// region id. It resolves to nothing once released or once the pool closes.
type handle struct {
	pool  *Pool
	arena *arena
	id    uint64
	name  string
	count uint32
}

func (h *handle) region() *region {
	if h.pool.closed {
		return nil
	}
	return h.arena.regions[h.id]
}

func (h *handle) start() (uint32, bool) {
	r := h.region()
	if r == nil || !r.placed {
		return 0, false
	}
	return r.start, true
}

func (h *handle) ready() bool {
	r := h.region()
	return r != nil && r.placed && r.ready && r.end() <= h.arena.physical
}

func (h *handle) release() {
	if r := h.region(); r != nil {
		h.arena.release(r)
	}
}

// VertexAllocation is a range of vertices in the buffers of one layout.
// Methods are safe on a nil allocation.
type VertexAllocation struct {
	handle
	names []string
}

// StartVertex returns the first vertex of the range. It is valid after
// Commit, or immediately for allocations made with disallowReuse.
func (a *VertexAllocation) StartVertex() (uint32, bool) {
	if a == nil {
		return 0, false
	}
	return a.start()
}

// Live reports whether the allocation has not been released.
func (a *VertexAllocation) Live() bool { return a != nil && a.region() != nil }

// Ready reports whether the range is placed and its data uploaded.
func (a *VertexAllocation) Ready() bool { return a != nil && a.ready() }

// Count returns the number of vertices.
func (a *VertexAllocation) Count() uint32 {
	if a == nil {
		return 0
	}
	return a.count
}

// Buffers returns one buffer per stream in Names order. Nil until the
// allocation is ready.
func (a *VertexAllocation) Buffers() []gpu.Buffer {
	if !a.Ready() {
		return nil
	}
	return a.arena.buffers
}

// Names returns the attribute name of every stream.
func (a *VertexAllocation) Names() []string {
	if a == nil {
		return nil
	}
	return a.names
}

// Layout returns the byte size of every stream.
func (a *VertexAllocation) Layout() []uint32 {
	if a == nil {
		return nil
	}
	return a.arena.strides
}

// LayoutKey returns the layout signature shared by compatible meshes.
func (a *VertexAllocation) LayoutKey() string {
	if a == nil {
		return ""
	}
	return a.arena.key
}

// Release returns the range to the pool. Releasing twice does nothing.
func (a *VertexAllocation) Release() {
	if a != nil {
		a.release()
	}
}

// IndexAllocation is a range of the shared 32-bit index buffer.
// Methods are safe on a nil allocation.
type IndexAllocation struct {
	handle
}

// StartIndex returns the first index of the range, valid after Commit.
func (a *IndexAllocation) StartIndex() (uint32, bool) {
	if a == nil {
		return 0, false
	}
	return a.start()
}

// Live reports whether the allocation has not been released.
func (a *IndexAllocation) Live() bool { return a != nil && a.region() != nil }

// Ready reports whether the range is placed and its data uploaded.
func (a *IndexAllocation) Ready() bool { return a != nil && a.ready() }

// Count returns the number of indices.
func (a *IndexAllocation) Count() uint32 {
	if a == nil {
		return 0
	}
	return a.count
}

// Buffer returns the index buffer, nil until the allocation is ready.
func (a *IndexAllocation) Buffer() gpu.Buffer {
	if !a.Ready() {
		return nil
	}
	return a.arena.buffers[0]
}

// Release returns the range to the pool. Releasing twice does nothing.
func (a *IndexAllocation) Release() {
	if a != nil {
		a.release()
	}
}
