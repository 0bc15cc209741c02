package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

func TestSmoothNormalsSingleTriangle(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3},
		FaceVertexIndices: []int32{0, 1, 2},
	}
	points := []math.Vec3{{X: 0}, {X: 1}, {Y: 1}}
	normals := NewAdjacency(topo).SmoothNormals(points)

	assert.Len(t, normals, 3)
	for _, n := range normals {
		assert.True(t, n.ApproxEqual(math.Vec3{Z: 1}, 1e-6), "normal %v", n)
	}
}

func TestSmoothNormalsLeftHanded(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3},
		FaceVertexIndices: []int32{0, 1, 2},
		Orientation:       LeftHanded,
	}
	points := []math.Vec3{{X: 0}, {X: 1}, {Y: 1}}
	normals := NewAdjacency(topo).SmoothNormals(points)
	assert.True(t, normals[0].ApproxEqual(math.Vec3{Z: -1}, 1e-6))
}

func TestSmoothNormalsAveragesFaces(t *testing.T) {
	// Two unit quads folded 90 degrees along the shared edge 1-4.
	pts := []math.Vec3{
		{X: 0, Y: 0, Z: 0},  // 0
		{X: 1, Y: 0, Z: 0},  // 1 shared
		{X: 1, Y: 1, Z: 0},  // 2 shared
		{X: 0, Y: 1, Z: 0},  // 3
		{X: 1, Y: 0, Z: -1}, // 4
		{X: 1, Y: 1, Z: -1}, // 5
	}
	topo := Topology{
		FaceVertexCounts:  []int32{4, 4},
		FaceVertexIndices: []int32{0, 1, 2, 3, 1, 4, 5, 2},
	}
	adj := NewAdjacency(topo)
	assert.Equal(t, []int32{0, 1}, adj.FacesOf(1))
	assert.Equal(t, []int32{1}, adj.FacesOf(4))
	assert.Nil(t, adj.FacesOf(17))

	normals := adj.SmoothNormals(pts)
	assert.True(t, normals[0].ApproxEqual(math.Vec3{Z: 1}, 1e-6), "got %v", normals[0])
	assert.True(t, normals[4].ApproxEqual(math.Vec3{X: 1}, 1e-6), "got %v", normals[4])
	diag := math.Vec3{X: 1, Z: 1}.Normalize()
	assert.True(t, normals[1].ApproxEqual(diag, 1e-6), "got %v", normals[1])
}

func TestSmoothNormalsUnreferencedPoint(t *testing.T) {
	topo := Topology{
		FaceVertexCounts:  []int32{3},
		FaceVertexIndices: []int32{0, 1, 2},
	}
	points := []math.Vec3{{X: 0}, {X: 1}, {Y: 1}, {Z: 5}}
	normals := NewAdjacency(topo).SmoothNormals(points)
	assert.Len(t, normals, 4)
	assert.Equal(t, math.Vec3{}, normals[3])
}
