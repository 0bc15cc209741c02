package renderpass

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/drawitem"
	"github.com/Faultbox/meshdelegate/internal/frame"
	"github.com/Faultbox/meshdelegate/internal/geompool"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/internal/material"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/scene"
)

// textureFeatures need a texture coordinate stream.
const textureFeatures = pso.FeatureBaseColorTexture | pso.FeatureNormalTexture | pso.FeatureTexCoordTransform

// entry caches the per-item state derived at revalidation.
type entry struct {
	handle drawitem.Handle
	item   *drawitem.Item

	version    uint64 // source version at revalidation
	matVersion uint64
	material   *material.Material

	key     pso.Key
	streams []pso.Stream
	// empty entries have nothing to draw in the current mode.
	empty  bool
	warned bool
}

// updateDrawList rebuilds the candidate list when items were added or
// removed, subset items changed, visibility changed or params asked for
// it. With material tags set, material and binding changes rebuild it
// too. It reports whether the list was rebuilt.
func (p *Pass) updateDrawList() bool {
	sig := listSignature{
		items:   p.deps.Items.Version(),
		subsets: p.deps.Versions.Get(frame.SubsetDrawItems),
		culling: p.deps.Versions.Get(frame.MeshCulling),
	}
	if len(p.params.MaterialTags) > 0 {
		sig.materials = p.deps.Versions.Get(frame.Material)
		sig.meshMaterials = p.deps.Versions.Get(frame.MeshMaterial)
	}
	if p.hasList && sig == p.listSig {
		return false
	}
	entries := make(map[drawitem.Handle]*entry, len(p.entries))
	list := p.list[:0]
	p.deps.Items.Each(func(h drawitem.Handle, item *drawitem.Item) {
		if !item.Visible || !p.params.Collection.Contains(item.Source.ID()) || !tagAllowed(p.params.RenderTags, item.RenderTag) {
			return
		}
		if !alphaAllowed(p.params.MaterialTags, p.deps.Materials.Get(item.MaterialID).Alpha()) {
			return
		}
		e, ok := p.entries[h]
		if !ok || e.item != item {
			e = &entry{handle: h, item: item}
		}
		entries[h] = e
		list = append(list, e)
	})
	p.entries, p.list = entries, list
	p.listSig, p.hasList = sig, true
	p.log.Debug("draw list rebuilt", zap.Int("items", len(list)))
	return true
}

// filterSelection applies the selection filter. It runs every frame.
func (p *Pass) filterSelection() []*entry {
	if p.params.Selection == scene.SelectAll {
		return p.list
	}
	out := make([]*entry, 0, len(p.list))
	for _, e := range p.list {
		if p.params.Selection.Accepts(p.deps.Selection.Contains(e.item.Source.ID())) {
			out = append(out, e)
		}
	}
	return out
}

// updateGPUResources revalidates entries whose source or material moved,
// or every entry when pass state or any material changed.
func (p *Pass) updateGPUResources(list []*entry) int {
	global := p.stateDirty || p.deps.Versions.Get(frame.Material) != p.materialVersion
	n := 0
	for _, e := range list {
		mat := p.deps.Materials.Get(e.item.MaterialID)
		if !global && e.material == mat && e.version == e.item.Source.Version() && e.matVersion == mat.Version() {
			continue
		}
		p.revalidate(e, mat)
		n++
	}
	p.stateDirty = false
	p.materialVersion = p.deps.Versions.Get(frame.Material)
	return n
}

func (p *Pass) revalidate(e *entry, mat *material.Material) {
	src := e.item.Source
	e.version = src.Version()
	e.material = mat
	e.matVersion = mat.Version()
	e.warned = false

	mode := p.params.RenderMode
	streams := e.item.Streams
	var features pso.Features
	layout := e.item.Vertices.LayoutKey()
	switch mode {
	case pso.ModeSolid:
		features = src.Features() | mat.Features()
		if !features.Has(pso.FeatureTexCoords) {
			features &^= textureFeatures
		}
	default:
		// Edges and points only read positions.
		if len(streams) > 0 {
			streams = streams[:1]
			layout = fmt.Sprint(streams[0].Stride)
		}
	}
	e.streams = streams
	e.key = pso.Key{
		Features: features,
		Alpha:    mat.Alpha(),
		Cull:     src.CullMode(),
		Mode:     mode,
		Debug:    p.params.DebugView,
		Shadows:  p.params.Shadows,
		Layout:   layout,
	}
	if mode != pso.ModeSolid {
		e.key.Cull = gputypes.CullModeNone
	}
	e.empty = len(streams) == 0 || p.indices(e) == nil
}

// indices returns the index allocation the current mode draws from.
// Edges and points are drawn once per mesh, by its first item.
func (p *Pass) indices(e *entry) *geompool.IndexAllocation {
	switch p.params.RenderMode {
	case pso.ModeEdges:
		if e.item.Subset == 0 {
			return e.item.Edges
		}
	case pso.ModePoints:
		if e.item.Subset == 0 {
			return e.item.Points
		}
	default:
		if e.item.Range.IndexCount > 0 {
			return e.item.Triangles
		}
	}
	return nil
}

// geometry resolves the buffers and draw arguments of e. Pool growth can
// replace buffers without a source version change, so this runs every
// frame. It returns false while the geometry is not uploaded.
func (p *Pass) geometry(e *entry) (vbufs []gpu.Buffer, ibuf gpu.Buffer, args gpu.DrawIndexedArgs, ok bool) {
	verts := e.item.Vertices
	idx := p.indices(e)
	if !verts.Ready() || !idx.Ready() {
		return nil, nil, args, false
	}
	vbufs = verts.Buffers()[:len(e.streams)]
	ibuf = idx.Buffer()
	start, _ := idx.StartIndex()

	args.InstanceCount = 1
	args.FirstIndex = start
	args.IndexCount = idx.Count()
	if p.params.RenderMode == pso.ModeSolid {
		r := e.item.Range
		if p.deps.Config.DebugChecks && uint32(r.StartIndex+r.IndexCount) > idx.Count() {
			panic(fmt.Sprintf("renderpass: %s subset %d range %d+%d exceeds %d indices",
				e.item.Source.ID(), e.item.Subset, r.StartIndex, r.IndexCount, idx.Count()))
		}
		args.FirstIndex += uint32(r.StartIndex)
		args.IndexCount = uint32(r.IndexCount)
	}
	if p.caps.BaseVertex {
		sv, _ := verts.StartVertex()
		args.BaseVertex = int32(sv)
	}
	return vbufs, ibuf, args, true
}
