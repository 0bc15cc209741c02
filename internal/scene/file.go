package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshdelegate/internal/texture"
	"github.com/Faultbox/meshdelegate/pkg/math"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

// File is the YAML scene format read by LoadFile.
type File struct {
	Materials []MaterialFile `yaml:"materials"`
	Meshes    []MeshFile     `yaml:"meshes"`
	Selection []string       `yaml:"selection"`
}

// MaterialFile is one material entry.
type MaterialFile struct {
	ID                string                 `yaml:"id"`
	BaseColor         []float32              `yaml:"base_color"`
	AlphaMode         string                 `yaml:"alpha_mode"`
	AlphaCutoff       float32                `yaml:"alpha_cutoff"`
	Clearcoat         float32                `yaml:"clearcoat"`
	TexCoordTransform bool                   `yaml:"texcoord_transform"`
	Textures          map[string]TextureFile `yaml:"textures"`
}

// TextureFile is one material texture slot.
type TextureFile struct {
	Path                  string `yaml:"path"`
	texture.SamplerTokens `yaml:",inline"`
}

// MeshFile is one mesh entry.
type MeshFile struct {
	ID                string        `yaml:"id"`
	Points            [][]float32   `yaml:"points"`
	FaceVertexCounts  []int32       `yaml:"face_vertex_counts"`
	FaceVertexIndices []int32       `yaml:"face_vertex_indices"`
	Orientation       string        `yaml:"orientation"`
	Subsets           []SubsetFile  `yaml:"subsets"`
	Material          string        `yaml:"material"`
	DoubleSided       bool          `yaml:"double_sided"`
	Hidden            bool          `yaml:"hidden"`
	RenderTag         string        `yaml:"render_tag"`
	Translate         []float32     `yaml:"translate"`
	Scale             []float32     `yaml:"scale"`
	Primvars          []PrimvarFile `yaml:"primvars"`
	Skinning          *SkinningFile `yaml:"skinning"`
}

// SubsetFile is a geometry subset.
type SubsetFile struct {
	Name     string  `yaml:"name"`
	Faces    []int32 `yaml:"faces"`
	Material string  `yaml:"material"`
}

// PrimvarFile is a primvar with flat values.
type PrimvarFile struct {
	Name          string    `yaml:"name"`
	Interpolation string    `yaml:"interpolation"`
	Type          string    `yaml:"type"`
	Role          string    `yaml:"role"`
	Values        []float32 `yaml:"values"`
}

// SkinningFile holds joint influences and a pose given as one
// translation per joint.
type SkinningFile struct {
	InfluencesPerVertex int         `yaml:"influences_per_vertex"`
	JointIndices        []int32     `yaml:"joint_indices"`
	JointWeights        []float32   `yaml:"joint_weights"`
	JointTranslations   [][]float32 `yaml:"joint_translations"`
}

// LoadFile reads a YAML scene into a Memory host.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	m, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Load parses a YAML scene.
func Load(data []byte) (*Memory, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scene: %w", err)
	}
	m := NewMemory()
	for _, mf := range f.Materials {
		m.AddMaterial(mf.material())
	}
	for _, mf := range f.Meshes {
		if mf.ID == "" {
			return nil, fmt.Errorf("mesh without id")
		}
		mesh, err := mf.mesh()
		if err != nil {
			return nil, fmt.Errorf("mesh %s: %w", mf.ID, err)
		}
		m.AddMesh(mf.ID, mesh)
	}
	m.selected = f.Selection
	return m, nil
}

func (mf MaterialFile) material() Material {
	mat := Material{
		ID:                mf.ID,
		BaseColor:         math.Vec4{1, 1, 1, 1},
		AlphaMode:         mf.AlphaMode,
		AlphaCutoff:       mf.AlphaCutoff,
		Clearcoat:         mf.Clearcoat,
		TexCoordTransform: mf.TexCoordTransform,
		Textures:          make(map[string]TextureRef, len(mf.Textures)),
	}
	copy(mat.BaseColor[:], mf.BaseColor)
	for slot, tf := range mf.Textures {
		mat.Textures[slot] = TextureRef{Path: tf.Path, Sampler: tf.SamplerTokens}
	}
	return mat
}

func (mf MeshFile) mesh() (Mesh, error) {
	orient, err := topology.ParseOrientation(mf.Orientation)
	if err != nil {
		return Mesh{}, err
	}
	points := make([]math.Vec3, len(mf.Points))
	for i, p := range mf.Points {
		points[i] = math.Vec3FromSlice(p)
	}
	topo := topology.Topology{
		FaceVertexCounts:  mf.FaceVertexCounts,
		FaceVertexIndices: mf.FaceVertexIndices,
		Orientation:       orient,
		NumPoints:         len(points),
	}
	for _, s := range mf.Subsets {
		topo.Subsets = append(topo.Subsets, topology.Subset{Name: s.Name, FaceIndices: s.Faces, MaterialID: s.Material})
	}

	xf := math.Identity()
	if len(mf.Scale) > 0 {
		s := math.Vec3FromSlice(mf.Scale)
		if len(mf.Scale) == 1 {
			s = math.Vec3{X: s.X, Y: s.X, Z: s.X}
		}
		xf = math.Scale(s.X, s.Y, s.Z)
	}
	if len(mf.Translate) > 0 {
		t := math.Vec3FromSlice(mf.Translate)
		xf = math.Translate(t.X, t.Y, t.Z).Mul(xf)
	}

	mesh := Mesh{
		Topology:    topo,
		Transform:   xf,
		Hidden:      mf.Hidden,
		MaterialID:  mf.Material,
		DoubleSided: mf.DoubleSided,
		RenderTag:   mf.RenderTag,
	}
	mesh.Primvars = append(mesh.Primvars, Primvar{
		PrimvarDesc: PrimvarDesc{Name: "points", Interpolation: primvar.Vertex, Role: RolePoint},
		Value:       primvar.FromVec3s(points),
	})
	for _, pf := range mf.Primvars {
		pv, err := pf.primvar()
		if err != nil {
			return Mesh{}, err
		}
		mesh.Primvars = append(mesh.Primvars, pv)
	}

	if sf := mf.Skinning; sf != nil {
		sk := &Skinning{
			RestPoints:          points,
			JointIndices:        sf.JointIndices,
			JointWeights:        sf.JointWeights,
			InfluencesPerVertex: sf.InfluencesPerVertex,
		}
		for _, t := range sf.JointTranslations {
			v := math.Vec3FromSlice(t)
			sk.Transforms = append(sk.Transforms, math.Translate(v.X, v.Y, v.Z))
		}
		mesh.Skinning = sk
	}
	return mesh, nil
}

func (pf PrimvarFile) primvar() (Primvar, error) {
	interp, ok := primvar.ParseInterpolation(pf.Interpolation)
	if !ok && pf.Interpolation != "" {
		return Primvar{}, fmt.Errorf("primvar %s: unknown interpolation %q", pf.Name, pf.Interpolation)
	}
	typ, err := primvar.ParseElementType(pf.Type)
	if err != nil {
		return Primvar{}, fmt.Errorf("primvar %s: %w", pf.Name, err)
	}
	role := ParseRole(pf.Role)
	if role == RoleNone && pf.Name == "normals" {
		role = RoleNormal
	}
	var value primvar.Array
	if typ.IsFloat() {
		value = &primvar.Floats{Width: typ.Components(), Data: pf.Values}
	} else {
		ints := make([]int32, len(pf.Values))
		for i, v := range pf.Values {
			ints[i] = int32(v)
		}
		value = &primvar.Ints{Width: typ.Components(), Data: ints}
	}
	return Primvar{
		PrimvarDesc: PrimvarDesc{Name: pf.Name, Interpolation: interp, Role: role},
		Value:       value,
	}, nil
}
