// Package geompool packs the vertex and index data of many meshes into
// shared device buffers. Vertex data is grouped by layout, the ordered
// byte sizes of its attributes, and every layout gets one buffer per
// attribute stream. Placement is deferred to Commit unless the caller
// needs the start vertex right away.
package geompool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
)

// Pool errors.
var (
	ErrPoolClosed      = errors.New("geompool: pool closed")
	ErrLiveAllocations = errors.New("geompool: allocations still live")
)

const indexKey = "index"

// Pool owns the shared geometry buffers.
type Pool struct {
	dev gpu.Device
	cfg config.PoolConfig
	log *zap.Logger

	vertex map[string]*arena
	index  *arena
	nextID uint64
	closed bool
}

// New creates an empty pool. Buffers are created on the first Commit.
func New(dev gpu.Device, cfg config.PoolConfig, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	maxBytes := cfg.MaxBufferBytes
	if limit := dev.Caps().MaxBufferSize; limit > 0 && (maxBytes <= 0 || limit < maxBytes) {
		maxBytes = limit
	}
	cfg.MaxBufferBytes = maxBytes
	p := &Pool{
		dev:    dev,
		cfg:    cfg,
		log:    log,
		vertex: make(map[string]*arena),
	}
	p.index = newArena(indexKey, "geompool/index", []uint32{4}, gputypes.BufferUsageIndex,
		uint32(cfg.InitialIndices), maxBytes, log)
	return p
}

func (p *Pool) vertexArena(key string, layout []uint32) *arena {
	a, ok := p.vertex[key]
	if !ok {
		a = newArena(key, "geompool/vertex("+key+")", append([]uint32(nil), layout...),
			gputypes.BufferUsageVertex, uint32(p.cfg.InitialVertices), p.cfg.MaxBufferBytes, p.log)
		p.vertex[key] = a
	}
	return a
}

func (p *Pool) newRegion(a *arena, count uint32, data [][]byte) *region {
	p.nextID++
	r := &region{id: p.nextID, span: span{count: count}, data: data}
	a.regions[r.id] = r
	a.queue(r)
	return r
}

// AllocateVertices stages data for upload and returns its allocation. A
// live prev with the same layout and vertex count is reused in place when
// reuse is allowed. Otherwise prev is released and a new range is
// requested. With disallowReuse the range is placed immediately so
// StartVertex is valid before Commit. Returns nil when the data is empty
// or the pool cannot hold it.
func (p *Pool) AllocateVertices(name string, data *primvar.VertexData, prev *VertexAllocation, disallowReuse bool) *VertexAllocation {
	if p.closed {
		p.log.Warn("vertex allocation on closed pool", zap.String("name", name))
		return nil
	}
	if data == nil || data.Len() == 0 || data.ElementCount() == 0 {
		prev.Release()
		return nil
	}
	layout := data.Layout()
	key := data.LayoutKey()
	count := uint32(data.ElementCount())

	streams := make([][]byte, 0, data.Len())
	for i := 0; i < data.Len(); i++ {
		attr, arr := data.At(i)
		b, err := primvar.Bytes(arr)
		if err != nil {
			p.log.Warn("vertex stream not uploadable", zap.String("name", name), zap.String("primvar", attr), zap.Error(err))
			prev.Release()
			return nil
		}
		streams = append(streams, b)
	}

	if prev != nil && !disallowReuse && p.cfg.AllowReuse {
		if r := prev.region(); r != nil && prev.arena.key == key && r.count == count {
			r.data = streams
			prev.arena.queue(r)
			prev.names = data.Names()
			return prev
		}
	}
	prev.Release()

	a := p.vertexArena(key, layout)
	r := p.newRegion(a, count, streams)
	if disallowReuse {
		if !a.place(r) {
			a.release(r)
			p.log.Warn("geometry pool exhausted",
				zap.String("name", name), zap.String("layout", key), zap.Uint32("vertices", count))
			return nil
		}
	} else {
		a.pending = append(a.pending, r)
	}
	return &VertexAllocation{handle: handle{pool: p, arena: a, id: r.id, name: name, count: count}, names: data.Names()}
}

// AllocateIndices stages indices for upload. A non-zero bakedStartVertex
// is added to every index first, for devices that cannot offset vertex
// fetch at draw time. A live prev with the same count is reused.
func (p *Pool) AllocateIndices(name string, indices []uint32, bakedStartVertex uint32, prev *IndexAllocation) *IndexAllocation {
	if p.closed {
		p.log.Warn("index allocation on closed pool", zap.String("name", name))
		return nil
	}
	if len(indices) == 0 {
		prev.Release()
		return nil
	}
	buf := make([]byte, 4*len(indices))
	for i, v := range indices {
		binary.LittleEndian.PutUint32(buf[4*i:], v+bakedStartVertex)
	}
	count := uint32(len(indices))

	if prev != nil && p.cfg.AllowReuse {
		if r := prev.region(); r != nil && r.count == count {
			r.data = [][]byte{buf}
			p.index.queue(r)
			return prev
		}
	}
	prev.Release()

	r := p.newRegion(p.index, count, [][]byte{buf})
	p.index.pending = append(p.index.pending, r)
	return &IndexAllocation{handle: handle{pool: p, arena: p.index, id: r.id, name: name, count: count}}
}

// Commit places deferred allocations, grows buffers and uploads staged
// data. It runs once per frame before any pass reads the buffers.
func (p *Pool) Commit(ctx gpu.CommandContext) error {
	if p.closed {
		return ErrPoolClosed
	}
	var err error
	for _, key := range p.sortedKeys() {
		err = multierr.Append(err, p.vertex[key].commit(p.dev, ctx))
	}
	return multierr.Append(err, p.index.commit(p.dev, ctx))
}

func (p *Pool) sortedKeys() []string {
	keys := make([]string, 0, len(p.vertex))
	for k := range p.vertex {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ArenaStats describes one buffer set.
type ArenaStats struct {
	Layout      string
	Streams     int
	Capacity    uint32
	Used        uint32
	Allocations int
	Bytes       int64
}

// Stats returns one entry per layout followed by the index buffer.
func (p *Pool) Stats() []ArenaStats {
	arenas := make([]*arena, 0, len(p.vertex)+1)
	for _, k := range p.sortedKeys() {
		arenas = append(arenas, p.vertex[k])
	}
	arenas = append(arenas, p.index)

	out := make([]ArenaStats, 0, len(arenas))
	for _, a := range arenas {
		var bytes int64
		for _, b := range a.buffers {
			bytes += b.Size()
		}
		out = append(out, ArenaStats{
			Layout:      a.key,
			Streams:     len(a.strides),
			Capacity:    a.physical,
			Used:        a.used(),
			Allocations: len(a.regions),
			Bytes:       bytes,
		})
	}
	return out
}

// Close releases every buffer. It reports ErrLiveAllocations when handles
// were not released first; those handles become invalid.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	live := len(p.index.regions)
	for _, a := range p.vertex {
		live += len(a.regions)
		a.close()
	}
	p.index.close()
	if live > 0 {
		return fmt.Errorf("%w: %d", ErrLiveAllocations, live)
	}
	return nil
}
