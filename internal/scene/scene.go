// Package scene defines what the render delegate consumes from the host
// scene graph: per-prim queries, dirty bits, collections and selection.
package scene

import (
	"strings"

	"github.com/Faultbox/meshdelegate/internal/texture"
	"github.com/Faultbox/meshdelegate/pkg/math"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

// DirtyBits flags what changed on a mesh since its last sync.
type DirtyBits uint32

// Mesh dirty bits.
const (
	DirtyTopology DirtyBits = 1 << iota
	DirtyPoints
	DirtyNormals
	DirtyPrimvar
	DirtyTransform
	DirtyVisibility
	DirtyMaterialID
	DirtyDoubleSided
	DirtySkinning
	DirtyRenderTag
)

// Aggregate masks.
const (
	Clean    DirtyBits = 0
	AllDirty           = DirtyRenderTag<<1 - 1
)

// GeometryBits are the bits that force vertex data to be refetched.
const GeometryBits = DirtyTopology | DirtyPoints | DirtyNormals | DirtyPrimvar

var dirtyNames = []string{
	"topology", "points", "normals", "primvar", "transform",
	"visibility", "material_id", "double_sided", "skinning", "render_tag",
}

// Has reports whether any bit of b is set.
func (d DirtyBits) Has(b DirtyBits) bool { return d&b != 0 }

func (d DirtyBits) String() string {
	if d == Clean {
		return "clean"
	}
	var parts []string
	for i, name := range dirtyNames {
		if d&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Role tells the delegate what a primvar means.
type Role uint8

// Primvar roles.
const (
	RoleNone Role = iota
	RolePoint
	RoleNormal
	RoleTexCoord
	RoleColor
)

// ParseRole parses point, normal, texcoord or color.
func ParseRole(s string) Role {
	switch s {
	case "point":
		return RolePoint
	case "normal":
		return RoleNormal
	case "texcoord", "textureCoordinate":
		return RoleTexCoord
	case "color":
		return RoleColor
	}
	return RoleNone
}

// PrimvarDesc describes one primvar authored on a mesh.
type PrimvarDesc struct {
	Name          string
	Interpolation primvar.Interpolation
	Role          Role
}

// Skinning is the rest pose and joint influences of a skinned mesh.
type Skinning struct {
	RestPoints          []math.Vec3
	JointIndices        []int32
	JointWeights        []float32
	InfluencesPerVertex int
	Transforms          []math.Mat4
}

// TextureRef points a material slot at an image file.
type TextureRef struct {
	Path    string
	Sampler texture.SamplerTokens
}

// Texture slots.
const (
	SlotBaseColor = "base_color"
	SlotNormal    = "normal"
	SlotMetallic  = "metallic_roughness"
	SlotOcclusion = "occlusion"
	SlotEmissive  = "emissive"
)

// Material is the resolved parameter set of a material.
type Material struct {
	ID          string
	BaseColor   math.Vec4
	AlphaMode   string
	AlphaCutoff float32
	Clearcoat   float32
	// TexCoordTransform is set when any texture uses a UV transform.
	TexCoordTransform bool
	Textures          map[string]TextureRef
}

// Delegate answers per-prim queries for meshes.
type Delegate interface {
	Topology(id string) topology.Topology
	Primvars(id string) []PrimvarDesc
	Primvar(id, name string) primvar.Array
	Transform(id string) math.Mat4
	Visible(id string) bool
	MaterialID(id string) string
	DoubleSided(id string) bool
	Skinning(id string) (Skinning, bool)
	RenderTag(id string) string
}

// ChangeTracker reports and clears dirty state.
type ChangeTracker interface {
	MeshDirtyBits(id string) DirtyBits
	MarkMeshClean(id string, bits DirtyBits)
	MaterialDirty(id string) bool
	MarkMaterialClean(id string)
}

// Host is the full scene graph a delegate syncs from.
type Host interface {
	Delegate
	ChangeTracker
	MeshIDs() []string
	MaterialIDs() []string
	Material(id string) (Material, bool)
}

// Collection selects prims by path prefix.
type Collection struct {
	Name    string
	Include []string
	Exclude []string
}

// Contains reports whether id is under an include root and not under an
// exclude root. An empty include list includes everything.
func (c Collection) Contains(id string) bool {
	for _, root := range c.Exclude {
		if underPath(id, root) {
			return false
		}
	}
	if len(c.Include) == 0 {
		return true
	}
	for _, root := range c.Include {
		if underPath(id, root) {
			return true
		}
	}
	return false
}

// Signature identifies the collection's contents for change detection.
func (c Collection) Signature() string {
	return c.Name + "+" + strings.Join(c.Include, ",") + "-" + strings.Join(c.Exclude, ",")
}

func underPath(id, root string) bool {
	if root == "/" || root == id {
		return true
	}
	return strings.HasPrefix(id, strings.TrimSuffix(root, "/")+"/")
}

// SelectionFilter picks items by selection state.
type SelectionFilter uint8

// Selection filters.
const (
	SelectAll SelectionFilter = iota
	SelectSelected
	SelectUnselected
)

// Selection is the set of selected prim ids.
type Selection struct {
	ids     map[string]bool
	version uint64
}

// Set replaces the selection.
func (s *Selection) Set(ids ...string) {
	s.ids = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.ids[id] = true
	}
	s.version++
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool { return s != nil && s.ids[id] }

// Version increases on every Set.
func (s *Selection) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Accepts reports whether an item passes the filter.
func (f SelectionFilter) Accepts(selected bool) bool {
	switch f {
	case SelectSelected:
		return selected
	case SelectUnselected:
		return !selected
	}
	return true
}
