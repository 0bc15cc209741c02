package mesh

import (
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/internal/skinning"
	"github.com/Faultbox/meshdelegate/pkg/math"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

// Primvar names the pipeline reads or writes.
const (
	PointsName       = "points"
	NormalsName      = "normals"
	DisplayColorName = "displayColor"
	OpacityName      = "displayOpacity"
	JointIndicesName = "jointIndices"
	JointWeightsName = "jointWeights"
)

// staging builds the vertex data of one sync.
type staging struct {
	topo        topology.Topology
	faceVarying bool
	numPoints   int
	data        *primvar.VertexData
	log         *zap.Logger
}

// expected returns the element count an interpolation mode needs.
func (s *staging) expected(interp primvar.Interpolation) int {
	switch interp {
	case primvar.Constant:
		return 1
	case primvar.Uniform:
		return len(s.topo.FaceVertexCounts)
	case primvar.FaceVarying:
		return s.topo.NumFaceVaryings()
	}
	return s.numPoints
}

// add repairs the element count of a, converts it to the set's domain
// and appends it. Problems are logged and the primvar skipped.
func (s *staging) add(name string, interp primvar.Interpolation, a primvar.Array) bool {
	if a == nil {
		return false
	}
	if a.Type() == primvar.Invalid {
		s.log.Warn("unsupported primvar type, skipping", zap.String("primvar", name))
		return false
	}
	want := s.expected(interp)
	if got := a.Len(); got != want {
		s.log.Warn("primvar element count mismatch, resizing",
			zap.String("primvar", name), zap.Int("expected", want), zap.Int("got", got))
		resized, err := primvar.Resize(a, want)
		if err != nil {
			s.log.Warn("primvar resize failed", zap.String("primvar", name), zap.Error(err))
			return false
		}
		a = resized
	}

	if s.faceVarying {
		var err error
		switch interp {
		case primvar.Vertex, primvar.Varying:
			a, err = primvar.ConvertVertexToFaceVarying(a, 1, s.topo.FaceVertexIndices)
		case primvar.Uniform:
			a, err = primvar.ConvertUniformToFaceVarying(a, s.topo.FaceVertexCounts)
		}
		if err != nil {
			s.log.Warn("face-varying conversion failed", zap.String("primvar", name), zap.Error(err))
			return false
		}
	}
	if err := s.data.Add(name, a); err != nil {
		s.log.Warn("primvar rejected", zap.String("primvar", name), zap.Error(err))
		return false
	}
	return true
}

func isPoints(d scene.PrimvarDesc) bool  { return d.Role == scene.RolePoint || d.Name == PointsName }
func isNormals(d scene.PrimvarDesc) bool { return d.Role == scene.RoleNormal || d.Name == NormalsName }

// syncVertices refetches every primvar and reallocates vertex storage.
// It sets indicesDirty when index data must be rebuilt: the face-varying
// mode flipped, or start vertices are baked into indices and moved. It
// reports false when the pool had no room for non-empty data.
func (m *Mesh) syncVertices(ctx *SyncContext, del scene.Delegate, log *zap.Logger, indicesDirty *bool) bool {
	descs := del.Primvars(m.id)

	fv := false
	hasNormals := false
	for _, d := range descs {
		if d.Interpolation == primvar.FaceVarying || d.Interpolation == primvar.Uniform {
			fv = true
		}
		if isNormals(d) && d.Interpolation != primvar.Constant {
			hasNormals = true
		}
	}
	if fv != m.faceVarying {
		m.faceVarying = fv
		*indicesDirty = true
	}

	st := &staging{
		topo:        m.topo,
		faceVarying: fv,
		numPoints:   m.topo.PointCount(),
		data:        primvar.NewVertexData(),
		log:         log,
	}

	sk, skinned := del.Skinning(m.id)
	var points []math.Vec3
	if skinned {
		points = sk.RestPoints
	} else {
		for _, d := range descs {
			if !isPoints(d) {
				continue
			}
			p, err := primvar.Vec3s(del.Primvar(m.id, d.Name))
			if err != nil {
				log.Warn("points are not float3", zap.Error(err))
			}
			points = p
			break
		}
	}
	if len(points) != st.numPoints {
		log.Warn("point count does not match topology, resizing",
			zap.String("primvar", PointsName), zap.Int("expected", st.numPoints), zap.Int("got", len(points)))
		resized := make([]math.Vec3, st.numPoints)
		copy(resized, points)
		points = resized
	}
	m.points = points
	st.add(PointsName, primvar.Vertex, primvar.FromVec3s(points))

	features := pso.FeatureNormals
	if !hasNormals {
		normals := topology.NewAdjacency(m.topo).SmoothNormals(points)
		st.add(NormalsName, primvar.Vertex, primvar.FromVec3s(normals[:st.numPoints]))
	}

	m.hasBaseColor = false
	m.baseColor = math.Vec4{1, 1, 1, 1}
	semantics := map[string]pso.Semantic{
		PointsName:       pso.SemanticPosition,
		NormalsName:      pso.SemanticNormal,
		JointIndicesName: pso.SemanticJoints,
		JointWeightsName: pso.SemanticWeights,
	}
	for _, d := range descs {
		if isPoints(d) {
			continue
		}
		a := del.Primvar(m.id, d.Name)
		if d.Interpolation == primvar.Constant {
			m.applyConstant(d.Name, a)
			continue
		}
		if !st.add(d.Name, d.Interpolation, a) {
			continue
		}
		switch d.Role {
		case scene.RoleTexCoord:
			features |= pso.FeatureTexCoords
			semantics[d.Name] = pso.SemanticTexCoord
		case scene.RoleColor:
			features |= pso.FeatureVertexColor
			semantics[d.Name] = pso.SemanticColor
		}
	}

	m.skinned = false
	if skinned {
		ix, w, err := skinning.NormalizeInfluences(sk.JointIndices, sk.JointWeights, sk.InfluencesPerVertex)
		switch {
		case err != nil:
			log.Warn("invalid joint influences, drawing rest pose", zap.Error(err))
		case len(ix) != st.numPoints*skinning.MaxInfluences:
			log.Warn("joint influences do not cover every point, drawing rest pose",
				zap.Int("expected", st.numPoints*skinning.MaxInfluences), zap.Int("got", len(ix)))
		default:
			ok := st.add(JointIndicesName, primvar.Vertex, &primvar.Ints{Width: skinning.MaxInfluences, Data: ix}) &&
				st.add(JointWeightsName, primvar.Vertex, &primvar.Floats{Width: skinning.MaxInfluences, Data: w})
			if ok {
				m.skinned = true
				m.jointIx, m.jointW = ix, w
				m.joints.Update(sk.Transforms)
				features |= pso.FeatureJoints
			}
		}
	}
	if m.skinned {
		m.bounds = math.BoundsOf(skinning.Deform(points, m.jointIx, m.jointW, m.joints.Transforms()))
	} else {
		m.bounds = math.BoundsOf(points)
	}
	m.features = features

	prev := m.vertices
	m.vertices = ctx.Pool.AllocateVertices(m.id, st.data, prev, !ctx.Caps.BaseVertex)
	allocated := m.vertices != nil || st.data.ElementCount() <= 0
	if !allocated {
		log.Warn("no vertex storage, mesh skipped this frame")
	}
	if !ctx.Caps.BaseVertex && m.vertices != prev {
		*indicesDirty = true
	}

	streams := make([]pso.Stream, 0, st.data.Len())
	for i := 0; i < st.data.Len(); i++ {
		name, a := st.data.At(i)
		streams = append(streams, pso.Stream{
			Name:     name,
			Format:   a.Type().VertexFormat(),
			Stride:   uint64(a.Type().ByteSize()),
			Semantic: semantics[name],
		})
	}
	m.streams = streams
	return allocated
}

// applyConstant handles constant primvars, which become the
// per-primitive color override instead of vertex streams.
func (m *Mesh) applyConstant(name string, a primvar.Array) {
	f, ok := a.(*primvar.Floats)
	if !ok || f.Len() < 1 {
		return
	}
	switch name {
	case DisplayColorName:
		if f.Width >= 3 {
			copy(m.baseColor[:3], f.Data[:3])
			if f.Width == 4 {
				m.baseColor[3] = f.Data[3]
			}
			m.hasBaseColor = true
		}
	case OpacityName:
		if f.Width == 1 {
			m.baseColor[3] = f.Data[0]
			m.hasBaseColor = true
		}
	}
}
