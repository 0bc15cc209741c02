// Package drawitem keeps the draw items meshes publish to render passes.
//
// Items are addressed by Handle, a weak reference: a handle whose item
// was removed resolves to nothing instead of a stale item, so owners do
// not need to outlive the registry or the other way round.
package drawitem

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/geompool"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/pkg/math"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

// ErrLiveItems is returned by Close while items are still registered.
var ErrLiveItems = errors.New("drawitem: registry closed with live items")

// Source is the mesh state a render pass reads for each item.
type Source interface {
	ID() string
	// Ordinal is a stable per-mesh sort key.
	Ordinal() uint64
	// Version moves whenever geometry or material bindings change.
	Version() uint64
	Transform() math.Mat4
	PrevTransform() math.Mat4
	// BaseColor is the per-primitive color override, if authored.
	BaseColor() (math.Vec4, bool)
	Features() pso.Features
	CullMode() gputypes.CullMode
	// Joints returns the joint transforms and their hash; nil when the
	// mesh is not skinned.
	Joints() ([]math.Mat4, uint64)
}

// Item is one drawable piece of a mesh, usually one geometry subset.
type Item struct {
	Source     Source
	Subset     int
	MaterialID string
	RenderTag  string
	Visible    bool

	Vertices  *geompool.VertexAllocation
	Streams   []pso.Stream
	Triangles *geompool.IndexAllocation
	Range     topology.SubsetRange
	Edges     *geompool.IndexAllocation
	Points    *geompool.IndexAllocation
}

// Handle is a weak reference to a registered item.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool { return h.generation == 0 }

func (h Handle) String() string { return fmt.Sprintf("item#%d.%d", h.index, h.generation) }

type slot struct {
	item       *Item
	generation uint32
}

// Registry owns every draw item. It is used from the frame thread only.
type Registry struct {
	slots   []slot
	free    []uint32
	live    int
	version uint64
	log     *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log}
}

// Add registers item and returns its handle.
func (r *Registry) Add(item *Item) Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	s.generation++
	s.item = item
	r.live++
	r.version++
	return Handle{index: idx, generation: s.generation}
}

// Get resolves h. It returns false once the item was removed.
func (r *Registry) Get(h Handle) (*Item, bool) {
	if h.IsZero() || int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[h.index]
	if s.generation != h.generation || s.item == nil {
		return nil, false
	}
	return s.item, true
}

// Remove unregisters the item behind h. Stale handles are ignored.
func (r *Registry) Remove(h Handle) bool {
	if _, ok := r.Get(h); !ok {
		return false
	}
	r.slots[h.index].item = nil
	r.free = append(r.free, h.index)
	r.live--
	r.version++
	return true
}

// Len returns the number of live items.
func (r *Registry) Len() int { return r.live }

// Version increases whenever items are added or removed.
func (r *Registry) Version() uint64 { return r.version }

// Each calls fn for every live item in slot order.
func (r *Registry) Each(fn func(Handle, *Item)) {
	for i, s := range r.slots {
		if s.item != nil {
			fn(Handle{index: uint32(i), generation: s.generation}, s.item)
		}
	}
}

// Close checks that every item was removed.
func (r *Registry) Close() error {
	if r.live > 0 {
		r.log.Error("draw item registry closed with live items", zap.Int("live", r.live))
		return fmt.Errorf("%w: %d", ErrLiveItems, r.live)
	}
	return nil
}
