// Package mesh syncs host meshes into pooled GPU geometry and publishes
// their draw items.
package mesh

import (
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/drawitem"
	"github.com/Faultbox/meshdelegate/internal/frame"
	"github.com/Faultbox/meshdelegate/internal/geompool"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/internal/skinning"
	"github.com/Faultbox/meshdelegate/pkg/math"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

// SyncContext carries the services a mesh sync uses.
type SyncContext struct {
	Pool     *geompool.Pool
	Items    *drawitem.Registry
	Versions *frame.Versions
	Caps     gpu.Caps
	Log      *zap.Logger
}

func (c *SyncContext) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// Mesh is the delegate-side state of one host mesh.
type Mesh struct {
	id      string
	ordinal uint64

	topo        topology.Topology
	proc        *topology.Processor
	faceVarying bool
	points      []math.Vec3

	vertices  *geompool.VertexAllocation
	streams   []pso.Stream
	triangles *geompool.IndexAllocation
	edges     *geompool.IndexAllocation
	pointIdx  *geompool.IndexAllocation
	ranges    []topology.SubsetRange
	items     []drawitem.Handle

	geometryVersion  uint64
	materialVersion  uint64
	cullingVersion   uint64
	transformVersion uint64

	transform     math.Mat4
	prevTransform math.Mat4
	baseColor     math.Vec4
	hasBaseColor  bool
	features      pso.Features
	cull          gputypes.CullMode
	visible       bool
	materialID    string
	renderTag     string
	bounds        math.Bounds

	skinned bool
	joints  skinning.TransformCache
	jointIx []int32
	jointW  []float32
}

// New returns an unsynced mesh. ordinal orders meshes inside a pass.
func New(id string, ordinal uint64) *Mesh {
	return &Mesh{
		id:            id,
		ordinal:       ordinal,
		transform:     math.Identity(),
		prevTransform: math.Identity(),
		cull:          gputypes.CullModeBack,
		bounds:        math.EmptyBounds(),
	}
}

// ID implements drawitem.Source.
func (m *Mesh) ID() string { return m.id }

// Ordinal implements drawitem.Source.
func (m *Mesh) Ordinal() uint64 { return m.ordinal }

// Version implements drawitem.Source. It moves with the geometry and
// material versions.
func (m *Mesh) Version() uint64 { return m.geometryVersion + m.materialVersion }

// GeometryVersion counts vertex or index data changes.
func (m *Mesh) GeometryVersion() uint64 { return m.geometryVersion }

// MaterialVersion counts material binding and cull style changes.
func (m *Mesh) MaterialVersion() uint64 { return m.materialVersion }

// CullingVersion counts visibility changes.
func (m *Mesh) CullingVersion() uint64 { return m.cullingVersion }

// TransformVersion counts transform changes.
func (m *Mesh) TransformVersion() uint64 { return m.transformVersion }

// Transform implements drawitem.Source.
func (m *Mesh) Transform() math.Mat4 { return m.transform }

// PrevTransform implements drawitem.Source.
func (m *Mesh) PrevTransform() math.Mat4 { return m.prevTransform }

// BaseColor implements drawitem.Source.
func (m *Mesh) BaseColor() (math.Vec4, bool) { return m.baseColor, m.hasBaseColor }

// Features implements drawitem.Source.
func (m *Mesh) Features() pso.Features { return m.features }

// CullMode implements drawitem.Source.
func (m *Mesh) CullMode() gputypes.CullMode { return m.cull }

// Joints implements drawitem.Source.
func (m *Mesh) Joints() ([]math.Mat4, uint64) {
	if !m.skinned {
		return nil, 0
	}
	return m.joints.Transforms(), m.joints.Hash()
}

// DrawItems returns the handles of the published items.
func (m *Mesh) DrawItems() []drawitem.Handle { return m.items }

// FaceVarying reports whether vertex data is laid out per face corner.
func (m *Mesh) FaceVarying() bool { return m.faceVarying }

// Bounds returns the object-space bounds, posed when skinned.
func (m *Mesh) Bounds() math.Bounds { return m.bounds }

// Visible reports the host visibility.
func (m *Mesh) Visible() bool { return m.visible }

// Topology returns the last synced topology.
func (m *Mesh) Topology() topology.Topology { return m.topo }

// Ranges returns the per-subset triangle ranges.
func (m *Mesh) Ranges() []topology.SubsetRange { return m.ranges }

// Vertices returns the pooled vertex allocation.
func (m *Mesh) Vertices() *geompool.VertexAllocation { return m.vertices }

// Triangles returns the pooled triangle indices.
func (m *Mesh) Triangles() *geompool.IndexAllocation { return m.triangles }

// BeginFrame makes the current transform the previous one.
func (m *Mesh) BeginFrame() { m.prevTransform = m.transform }

// Sync applies the host changes flagged in dirty and returns the bits
// left dirty. Points stay dirty when the pool could not hold the vertex
// data, so the next frame retries.
func (m *Mesh) Sync(ctx *SyncContext, del scene.Delegate, dirty scene.DirtyBits) scene.DirtyBits {
	if dirty == scene.Clean {
		return scene.Clean
	}
	log := ctx.log().With(zap.String("prim", m.id))

	geometryChanged := false
	indicesDirty := false
	left := scene.Clean
	itemsChanged := len(m.items) == 0

	if dirty.Has(scene.DirtyTopology) {
		topo := del.Topology(m.id)
		if err := topo.Validate(); err != nil {
			log.Warn("topology has errors, repairing", zap.Error(err))
		}
		m.topo = topo
		m.proc = topology.NewProcessor(topo, log)
		indicesDirty = true
		itemsChanged = true
		dirty |= scene.GeometryBits | scene.DirtyMaterialID
	}
	if m.proc == nil {
		m.proc = topology.NewProcessor(m.topo, log)
	}

	if dirty.Has(scene.GeometryBits) {
		if !m.syncVertices(ctx, del, log, &indicesDirty) {
			left |= scene.DirtyPoints
		}
		geometryChanged = true
	} else if dirty.Has(scene.DirtySkinning) {
		m.syncPose(del)
	}

	if indicesDirty {
		m.syncIndices(ctx)
		geometryChanged = true
	}

	if dirty.Has(scene.DirtyTransform) {
		xf := del.Transform(m.id)
		if m.transformVersion == 0 {
			m.prevTransform = xf
		}
		m.transform = xf
		m.transformVersion++
	}
	if dirty.Has(scene.DirtyVisibility) {
		m.visible = del.Visible(m.id)
		m.cullingVersion++
		ctx.Versions.Bump(frame.MeshCulling)
	}
	if dirty.Has(scene.DirtyRenderTag) {
		m.renderTag = del.RenderTag(m.id)
		itemsChanged = true
	}
	if dirty.Has(scene.DirtyMaterialID | scene.DirtyDoubleSided) {
		m.materialID = del.MaterialID(m.id)
		m.cull = gputypes.CullModeBack
		if del.DoubleSided(m.id) {
			m.cull = gputypes.CullModeNone
		}
		m.materialVersion++
		ctx.Versions.Bump(frame.MeshMaterial)
	}
	if geometryChanged {
		m.geometryVersion++
		ctx.Versions.Bump(frame.MeshGeometry)
	}
	if itemsChanged {
		m.rebuildItems(ctx)
		ctx.Versions.Bump(frame.SubsetDrawItems)
	}
	m.publish(ctx)
	return left
}

// syncPose updates joint transforms without touching vertex data.
func (m *Mesh) syncPose(del scene.Delegate) {
	sk, ok := del.Skinning(m.id)
	if !ok || !m.skinned {
		return
	}
	if m.joints.Update(sk.Transforms) {
		m.bounds = math.BoundsOf(skinning.Deform(m.points, m.jointIx, m.jointW, sk.Transforms))
	}
}

func (m *Mesh) syncIndices(ctx *SyncContext) {
	useFaceIndices := !m.faceVarying
	tris, ranges := m.proc.Triangulate(useFaceIndices, m.points)
	m.ranges = ranges

	flat := make([]uint32, 0, len(tris)*3)
	for _, t := range tris {
		flat = append(flat, t[0], t[1], t[2])
	}
	edges32 := m.proc.ComputeEdgeIndices(useFaceIndices, false)
	edges := make([]uint32, len(edges32))
	for i, e := range edges32 {
		edges[i] = uint32(e)
	}
	points := m.proc.ComputePointIndices(m.faceVarying)

	var baked uint32
	if !ctx.Caps.BaseVertex {
		baked, _ = m.vertices.StartVertex()
	}
	m.triangles = ctx.Pool.AllocateIndices(m.id+"/triangles", flat, baked, m.triangles)
	m.edges = ctx.Pool.AllocateIndices(m.id+"/edges", edges, baked, m.edges)
	m.pointIdx = ctx.Pool.AllocateIndices(m.id+"/points", points, baked, m.pointIdx)
}

// materialFor returns the material of range i: the subset's own binding,
// or the mesh binding for the unassigned remainder.
func (m *Mesh) materialFor(i int) string {
	if i < len(m.topo.Subsets) && m.topo.Subsets[i].MaterialID != "" {
		return m.topo.Subsets[i].MaterialID
	}
	return m.materialID
}

func (m *Mesh) rebuildItems(ctx *SyncContext) {
	for _, h := range m.items {
		ctx.Items.Remove(h)
	}
	m.items = m.items[:0]
	n := len(m.ranges)
	if n == 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		m.items = append(m.items, ctx.Items.Add(&drawitem.Item{Source: m, Subset: i}))
	}
}

// publish copies the current buffers and bindings into every item.
func (m *Mesh) publish(ctx *SyncContext) {
	for i, h := range m.items {
		item, ok := ctx.Items.Get(h)
		if !ok {
			continue
		}
		item.MaterialID = m.materialFor(i)
		item.RenderTag = m.renderTag
		item.Visible = m.visible
		item.Vertices = m.vertices
		item.Streams = m.streams
		item.Triangles = m.triangles
		item.Edges = m.edges
		item.Points = m.pointIdx
		if i < len(m.ranges) {
			item.Range = m.ranges[i]
		} else {
			item.Range = topology.SubsetRange{}
		}
	}
}

// Release returns every pooled allocation and removes the draw items.
func (m *Mesh) Release(ctx *SyncContext) {
	for _, h := range m.items {
		ctx.Items.Remove(h)
	}
	m.items = nil
	m.vertices.Release()
	m.triangles.Release()
	m.edges.Release()
	m.pointIdx.Release()
	m.vertices, m.triangles, m.edges, m.pointIdx = nil, nil, nil, nil
	ctx.Versions.Bump(frame.SubsetDrawItems)
}
