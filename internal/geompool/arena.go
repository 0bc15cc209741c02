package geompool

import (
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/gpu"
)

type span struct {
	start, count uint32
}

func (s span) end() uint32 { return s.start + s.count }

// region is one sub-allocation. It is reachable only through the arena's
// region table, so handles to a released region see nothing.
type region struct {
	id uint64
	span
	placed bool
	ready  bool
	queued bool // on the arena's upload list
	warned bool // exhaustion already reported
	// data holds one byte slice per stream until the next commit uploads it.
	data [][]byte
}

// arena packs regions with one layout into a set of buffers, one buffer
// per attribute stream. Offsets are in elements and never move: growth
// copies the old contents to the same offsets of larger buffers.
type arena struct {
	key     string
	label   string
	strides []uint32
	usage   gputypes.BufferUsage

	buffers  []gpu.Buffer
	physical uint32 // elements backed by buffers
	capacity uint32 // elements reserved by placement
	end      uint32 // high-water mark of placed regions
	limit    uint32 // max elements any buffer may hold
	free     []span

	regions map[uint64]*region
	pending []*region
	uploads []*region
	log     *zap.Logger
}

func newArena(key, label string, strides []uint32, usage gputypes.BufferUsage, initial uint32, maxBytes int64, log *zap.Logger) *arena {
	var widest uint32 = 1
	for _, s := range strides {
		if s > widest {
			widest = s
		}
	}
	limit := maxBytes / int64(widest)
	if limit > int64(^uint32(0)) {
		limit = int64(^uint32(0))
	}
	if initial == 0 {
		initial = 1
	}
	if int64(initial) > limit {
		initial = uint32(limit)
	}
	return &arena{
		key:      key,
		label:    label,
		strides:  strides,
		usage:    usage,
		capacity: initial,
		limit:    uint32(limit),
		regions:  make(map[uint64]*region),
		log:      log,
	}
}

// place finds room for r, first fit in the free list, then at the end.
func (a *arena) place(r *region) bool {
	for i, f := range a.free {
		if f.count < r.count {
			continue
		}
		r.start = f.start
		if f.count == r.count {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{start: f.start + r.count, count: f.count - r.count}
		}
		r.placed = true
		return true
	}
	need := uint64(a.end) + uint64(r.count)
	if need > uint64(a.limit) {
		return false
	}
	r.start = a.end
	a.end = uint32(need)
	for a.capacity < a.end {
		grown := uint64(a.capacity) * 2
		if grown > uint64(a.limit) {
			grown = uint64(a.limit)
		}
		a.capacity = uint32(grown)
	}
	r.placed = true
	return true
}

// release returns the region's range to the free list, merging neighbours
// and pulling the high-water mark back when the range was the last one.
func (a *arena) release(r *region) {
	delete(a.regions, r.id)
	r.data = nil
	if !r.placed {
		return
	}
	r.placed = false
	s := r.span
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].start > s.start })
	if i > 0 && a.free[i-1].end() == s.start {
		s = span{start: a.free[i-1].start, count: a.free[i-1].count + s.count}
		a.free = append(a.free[:i-1], a.free[i:]...)
		i--
	}
	if i < len(a.free) && s.end() == a.free[i].start {
		s.count += a.free[i].count
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	if s.end() == a.end {
		a.end = s.start
		return
	}
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s
}

// queue schedules r's staged data for the next commit.
func (a *arena) queue(r *region) {
	if !r.queued {
		r.queued = true
		a.uploads = append(a.uploads, r)
	}
}

func (a *arena) used() uint32 {
	used := a.end
	for _, f := range a.free {
		used -= f.count
	}
	return used
}

// commit places deferred regions, grows the buffers to the reserved
// capacity and uploads pending data. Regions that do not fit stay pending
// with their data and are retried on the next commit.
func (a *arena) commit(dev gpu.Device, ctx gpu.CommandContext) error {
	waiting := a.pending[:0]
	for _, r := range a.pending {
		if _, live := a.regions[r.id]; !live || r.placed {
			continue
		}
		if a.place(r) {
			continue
		}
		if !r.warned {
			r.warned = true
			a.log.Warn("geometry pool exhausted",
				zap.String("layout", a.key), zap.Uint32("elements", r.count), zap.Uint32("limit", a.limit))
		}
		waiting = append(waiting, r)
	}
	a.pending = waiting

	if a.capacity > a.physical && a.end > 0 {
		if err := a.grow(dev, ctx); err != nil {
			return err
		}
	}

	remaining := a.uploads[:0]
	for _, r := range a.uploads {
		if _, live := a.regions[r.id]; !live {
			r.queued = false
			continue
		}
		if !r.placed || r.end() > a.physical {
			remaining = append(remaining, r)
			continue
		}
		for s, buf := range a.buffers {
			if s >= len(r.data) || len(r.data[s]) == 0 {
				continue
			}
			if err := ctx.UpdateBuffer(buf, int64(r.start)*int64(a.strides[s]), r.data[s]); err != nil {
				return fmt.Errorf("upload %s stream %d: %w", a.label, s, err)
			}
		}
		r.data = nil
		r.ready = true
		r.queued = false
	}
	a.uploads = remaining
	return nil
}

func (a *arena) grow(dev gpu.Device, ctx gpu.CommandContext) error {
	bufs := make([]gpu.Buffer, len(a.strides))
	for s, stride := range a.strides {
		b, err := dev.CreateBuffer(gpu.BufferDesc{
			Label: fmt.Sprintf("%s[%d]", a.label, s),
			Size:  int64(a.capacity) * int64(stride),
			Usage: a.usage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
		})
		if err != nil {
			for _, done := range bufs[:s] {
				done.Release()
			}
			return fmt.Errorf("grow %s to %d elements: %w", a.label, a.capacity, err)
		}
		bufs[s] = b
	}
	if a.physical > 0 {
		for s, old := range a.buffers {
			ctx.TransitionBuffer(old, gpu.StateCopySource)
			ctx.TransitionBuffer(bufs[s], gpu.StateCopyDest)
			if err := ctx.CopyBuffer(bufs[s], 0, old, 0, int64(a.physical)*int64(a.strides[s])); err != nil {
				for _, b := range bufs {
					b.Release()
				}
				return fmt.Errorf("grow %s: %w", a.label, err)
			}
		}
	}
	for _, old := range a.buffers {
		old.Release()
	}
	a.log.Debug("geometry pool grown",
		zap.String("layout", a.key), zap.Uint32("from", a.physical), zap.Uint32("to", a.capacity))
	a.buffers = bufs
	a.physical = a.capacity
	return nil
}

func (a *arena) close() {
	for _, b := range a.buffers {
		b.Release()
	}
	a.buffers = nil
	a.physical = 0
}
