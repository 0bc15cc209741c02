package scene

import (
	"sort"

	"github.com/Faultbox/meshdelegate/pkg/math"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

// Primvar is a primvar description with its value.
type Primvar struct {
	PrimvarDesc
	Value primvar.Array
}

// Mesh is the authored state of one mesh in a Memory host.
type Mesh struct {
	Topology    topology.Topology
	Primvars    []Primvar
	Transform   math.Mat4
	Hidden      bool
	MaterialID  string
	DoubleSided bool
	Skinning    *Skinning
	RenderTag   string
}

type memMesh struct {
	Mesh
	dirty DirtyBits
}

type memMaterial struct {
	Material
	dirty bool
}

// Memory is an in-memory Host. Every setter marks the matching dirty
// bits, which the delegate clears after syncing.
type Memory struct {
	meshes    map[string]*memMesh
	materials map[string]*memMaterial
	selected  []string
}

// NewMemory returns an empty scene.
func NewMemory() *Memory {
	return &Memory{
		meshes:    make(map[string]*memMesh),
		materials: make(map[string]*memMaterial),
	}
}

// AddMesh inserts or replaces a mesh and marks it fully dirty.
func (m *Memory) AddMesh(id string, mesh Mesh) {
	if mesh.Transform == (math.Mat4{}) {
		mesh.Transform = math.Identity()
	}
	m.meshes[id] = &memMesh{Mesh: mesh, dirty: AllDirty}
}

// RemoveMesh deletes a mesh.
func (m *Memory) RemoveMesh(id string) { delete(m.meshes, id) }

// AddMaterial inserts or replaces a material and marks it dirty.
func (m *Memory) AddMaterial(mat Material) {
	m.materials[mat.ID] = &memMaterial{Material: mat, dirty: true}
}

func (m *Memory) mark(id string, bits DirtyBits, apply func(*memMesh)) {
	mm, ok := m.meshes[id]
	if !ok {
		return
	}
	apply(mm)
	mm.dirty |= bits
}

// SetTopology replaces the topology of a mesh.
func (m *Memory) SetTopology(id string, topo topology.Topology) {
	m.mark(id, DirtyTopology, func(mm *memMesh) { mm.Topology = topo })
}

// SetPrimvar inserts or replaces a primvar. Points and normals mark
// their own bits.
func (m *Memory) SetPrimvar(id string, pv Primvar) {
	bits := DirtyPrimvar
	switch pv.Role {
	case RolePoint:
		bits = DirtyPoints
	case RoleNormal:
		bits = DirtyNormals
	}
	m.mark(id, bits, func(mm *memMesh) {
		for i := range mm.Primvars {
			if mm.Primvars[i].Name == pv.Name {
				mm.Primvars[i] = pv
				return
			}
		}
		mm.Primvars = append(mm.Primvars, pv)
	})
}

// SetPoints replaces the points primvar.
func (m *Memory) SetPoints(id string, points []math.Vec3) {
	m.SetPrimvar(id, Primvar{
		PrimvarDesc: PrimvarDesc{Name: "points", Interpolation: primvar.Vertex, Role: RolePoint},
		Value:       primvar.FromVec3s(points),
	})
}

// SetTransform moves a mesh.
func (m *Memory) SetTransform(id string, xf math.Mat4) {
	m.mark(id, DirtyTransform, func(mm *memMesh) { mm.Transform = xf })
}

// SetVisible shows or hides a mesh.
func (m *Memory) SetVisible(id string, visible bool) {
	m.mark(id, DirtyVisibility, func(mm *memMesh) { mm.Hidden = !visible })
}

// SetMaterialID rebinds a mesh's material.
func (m *Memory) SetMaterialID(id, material string) {
	m.mark(id, DirtyMaterialID, func(mm *memMesh) { mm.MaterialID = material })
}

// SetDoubleSided toggles back-face culling.
func (m *Memory) SetDoubleSided(id string, doubleSided bool) {
	m.mark(id, DirtyDoubleSided, func(mm *memMesh) { mm.DoubleSided = doubleSided })
}

// SetJointTransforms poses a skinned mesh.
func (m *Memory) SetJointTransforms(id string, mats []math.Mat4) {
	m.mark(id, DirtySkinning, func(mm *memMesh) {
		if mm.Skinning != nil {
			mm.Skinning.Transforms = mats
		}
	})
}

// SetRenderTag changes the tag passes filter on.
func (m *Memory) SetRenderTag(id, tag string) {
	m.mark(id, DirtyRenderTag, func(mm *memMesh) { mm.RenderTag = tag })
}

// Selected returns the ids selected in the loaded scene file.
func (m *Memory) Selected() []string { return m.selected }

// MeshIDs implements Host. Ids are sorted.
func (m *Memory) MeshIDs() []string { return sortedKeys(m.meshes) }

// MaterialIDs implements Host. Ids are sorted.
func (m *Memory) MaterialIDs() []string { return sortedKeys(m.materials) }

// Material implements Host.
func (m *Memory) Material(id string) (Material, bool) {
	mat, ok := m.materials[id]
	if !ok {
		return Material{}, false
	}
	return mat.Material, true
}

// MeshDirtyBits implements ChangeTracker.
func (m *Memory) MeshDirtyBits(id string) DirtyBits {
	if mm, ok := m.meshes[id]; ok {
		return mm.dirty
	}
	return Clean
}

// MarkMeshClean implements ChangeTracker.
func (m *Memory) MarkMeshClean(id string, bits DirtyBits) {
	if mm, ok := m.meshes[id]; ok {
		mm.dirty &^= bits
	}
}

// MaterialDirty implements ChangeTracker.
func (m *Memory) MaterialDirty(id string) bool {
	mat, ok := m.materials[id]
	return ok && mat.dirty
}

// MarkMaterialClean implements ChangeTracker.
func (m *Memory) MarkMaterialClean(id string) {
	if mat, ok := m.materials[id]; ok {
		mat.dirty = false
	}
}

// Topology implements Delegate.
func (m *Memory) Topology(id string) topology.Topology {
	if mm, ok := m.meshes[id]; ok {
		return mm.Topology
	}
	return topology.Topology{}
}

// Primvars implements Delegate.
func (m *Memory) Primvars(id string) []PrimvarDesc {
	mm, ok := m.meshes[id]
	if !ok {
		return nil
	}
	out := make([]PrimvarDesc, len(mm.Primvars))
	for i, pv := range mm.Primvars {
		out[i] = pv.PrimvarDesc
	}
	return out
}

// Primvar implements Delegate.
func (m *Memory) Primvar(id, name string) primvar.Array {
	if mm, ok := m.meshes[id]; ok {
		for _, pv := range mm.Primvars {
			if pv.Name == name {
				return pv.Value
			}
		}
	}
	return nil
}

// Transform implements Delegate.
func (m *Memory) Transform(id string) math.Mat4 {
	if mm, ok := m.meshes[id]; ok {
		return mm.Transform
	}
	return math.Identity()
}

// Visible implements Delegate.
func (m *Memory) Visible(id string) bool {
	mm, ok := m.meshes[id]
	return ok && !mm.Hidden
}

// MaterialID implements Delegate.
func (m *Memory) MaterialID(id string) string {
	if mm, ok := m.meshes[id]; ok {
		return mm.MaterialID
	}
	return ""
}

// DoubleSided implements Delegate.
func (m *Memory) DoubleSided(id string) bool {
	mm, ok := m.meshes[id]
	return ok && mm.DoubleSided
}

// Skinning implements Delegate.
func (m *Memory) Skinning(id string) (Skinning, bool) {
	mm, ok := m.meshes[id]
	if !ok || mm.Skinning == nil {
		return Skinning{}, false
	}
	return *mm.Skinning, true
}

// RenderTag implements Delegate.
func (m *Memory) RenderTag(id string) string {
	if mm, ok := m.meshes[id]; ok {
		return mm.RenderTag
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Host = (*Memory)(nil)
