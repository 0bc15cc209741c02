package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

func quad() Topology {
	return Topology{
		FaceVertexCounts:  []int32{4},
		FaceVertexIndices: []int32{0, 1, 2, 3},
	}
}

func TestTriangulateQuadFan(t *testing.T) {
	tris, ranges := NewProcessor(quad(), nil).Triangulate(true, nil)
	assert.Equal(t, [][3]uint32{{0, 1, 2}, {0, 2, 3}}, tris)
	assert.Equal(t, []SubsetRange{{StartIndex: 0, IndexCount: 6}}, ranges)
}

func TestTriangulateLeftHandedSwapsWinding(t *testing.T) {
	topo := quad()
	topo.Orientation = LeftHanded
	tris, _ := NewProcessor(topo, nil).Triangulate(true, nil)
	assert.Equal(t, [][3]uint32{{0, 2, 1}, {0, 3, 2}}, tris)
}

func TestTriangulateFaceVaryingSlots(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3, 4},
		FaceVertexIndices: []int32{5, 6, 7, 1, 2, 3, 4},
	}
	tris, _ := NewProcessor(topo, nil).Triangulate(false, nil)
	assert.Equal(t, [][3]uint32{{0, 1, 2}, {3, 4, 5}, {3, 5, 6}}, tris)
}

func TestTriangulateTriangleCount(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3, 4, 5, 2, 0, 6},
		FaceVertexIndices: make([]int32, 3+4+5+2+6),
	}
	tris, ranges := NewProcessor(topo, nil).Triangulate(true, nil)
	assert.Len(t, tris, 1+2+3+4)
	assert.Equal(t, topo.NumTriangles(), len(tris))
	require.Len(t, ranges, 1)
	assert.Equal(t, len(tris)*3, ranges[0].IndexCount)
}

func TestTriangulateSubsets(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3, 3},
		FaceVertexIndices: []int32{0, 1, 2, 0, 2, 3},
		Subsets: []Subset{
			{Name: "a", FaceIndices: []int32{0}},
			{Name: "b", FaceIndices: []int32{1}},
		},
	}
	tris, ranges := NewProcessor(topo, nil).Triangulate(true, nil)
	assert.Equal(t, []SubsetRange{{0, 3}, {3, 3}}, ranges)
	assert.Equal(t, [][3]uint32{{0, 1, 2}, {0, 2, 3}}, tris)
}

func TestTriangulateSubsetReorderAndRemainder(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3, 4, 3},
		FaceVertexIndices: []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		Subsets: []Subset{
			{Name: "last", FaceIndices: []int32{2}},
			// face 2 again is ignored, 99 does not exist
			{Name: "quad", FaceIndices: []int32{1, 2, 99}},
		},
	}
	tris, ranges := NewProcessor(topo, nil).Triangulate(true, nil)
	assert.Equal(t, [][3]uint32{
		{7, 8, 9},
		{3, 4, 5}, {3, 5, 6},
		{0, 1, 2},
	}, tris)
	require.Len(t, ranges, 3)
	assert.Equal(t, SubsetRange{0, 3}, ranges[0])
	assert.Equal(t, SubsetRange{3, 6}, ranges[1])
	assert.Equal(t, SubsetRange{9, 3}, ranges[2])
	assert.Equal(t, 1, ranges[1].StartTriangle())
	assert.Equal(t, 2, ranges[1].TriangleCount())

	total := 0
	for _, r := range ranges {
		total += r.IndexCount
	}
	assert.Equal(t, len(tris)*3, total)
}

func TestTriangulateClampsBadIndices(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3},
		FaceVertexIndices: []int32{0, -4, 7},
		NumPoints:         3,
	}
	tris, _ := NewProcessor(topo, nil).Triangulate(true, nil)
	assert.Equal(t, [][3]uint32{{0, 0, 0}}, tris)
}

func TestTriangulateTruncatedIndices(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3, 3},
		FaceVertexIndices: []int32{0, 1, 2, 3},
	}
	tris, ranges := NewProcessor(topo, nil).Triangulate(true, nil)
	assert.Equal(t, [][3]uint32{{0, 1, 2}}, tris)
	assert.Equal(t, []SubsetRange{{0, 3}}, ranges)
}

func TestTriangulateConcavePolygon(t *testing.T) {
	// An arrow pointing up. The fan from corner 0 would leave the outline.
	points := []math.Vec3{
		{X: 0, Y: 0},
		{X: 2, Y: 1},
		{X: 4, Y: 0},
		{X: 4, Y: 3},
		{X: 2, Y: 4},
		{X: 0, Y: 3},
	}
	topo := Topology{
		FaceVertexCounts:  []int32{6},
		FaceVertexIndices: []int32{0, 1, 2, 3, 4, 5},
	}
	tris, _ := NewProcessor(topo, nil).Triangulate(true, points)
	require.Len(t, tris, 4)
	for _, tri := range tris {
		a, b, c := points[tri[0]], points[tri[1]], points[tri[2]]
		n := b.Sub(a).Cross(c.Sub(a))
		assert.GreaterOrEqual(t, n.Z, float32(0), "triangle %v flips winding", tri)
	}
	// corner 1 is reflex and must not be the apex of a fan triangle
	assert.NotContains(t, tris, [3]uint32{0, 1, 2})
}

func TestComputeEdgeIndices(t *testing.T) {
	p := NewProcessor(Topology{
		FaceVertexCounts:  []int32{3},
		FaceVertexIndices: []int32{4, 5, 6},
	}, nil)

	assert.Equal(t, []int32{4, 5, 5, 6, 6, 4}, p.ComputeEdgeIndices(true, false))
	assert.Equal(t, []int32{4, 5, 6, 4, -1}, p.ComputeEdgeIndices(true, true))
	assert.Equal(t, []int32{0, 1, 1, 2, 2, 0}, p.ComputeEdgeIndices(false, false))
}

func TestComputeEdgeCount(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3, 4, 5},
		FaceVertexIndices: make([]int32, 12),
	}
	edges := NewProcessor(topo, nil).ComputeEdgeIndices(true, false)
	assert.Len(t, edges, 12*2)
}

func TestComputePointIndices(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3, 3},
		FaceVertexIndices: []int32{0, 1, 2, 2, 1, 3},
	}
	p := NewProcessor(topo, nil)
	assert.Equal(t, []uint32{0, 1, 2, 3}, p.ComputePointIndices(false))
	assert.Equal(t, []uint32{0, 1, 2, 5}, p.ComputePointIndices(true))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, quad().Validate())

	bad := Topology{
		FaceVertexCounts:  []int32{4},
		FaceVertexIndices: []int32{0, 1, 9},
		NumPoints:         4,
		Subsets:           []Subset{{Name: "s", FaceIndices: []int32{3}}},
	}
	err := bad.Validate()
	assert.ErrorIs(t, err, ErrCountMismatch)
	assert.ErrorIs(t, err, ErrBadIndex)
	assert.ErrorIs(t, err, ErrBadSubsetFace)
}

func TestParseOrientation(t *testing.T) {
	o, err := ParseOrientation("leftHanded")
	require.NoError(t, err)
	assert.Equal(t, LeftHanded, o)

	_, err = ParseOrientation("sideways")
	assert.Error(t, err)
}
