package primvar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

func TestPackVertexPositionsRoundTrip(t *testing.T) {
	points := []math.Vec3{{X: -1, Y: 0, Z: 2}, {X: 3, Y: 5, Z: 2}, {X: 1, Y: 2.5, Z: 2}}
	packed, scale, bias := PackVertexPositions(points)

	assert.Equal(t, math.Vec3{X: -1, Y: 0, Z: 2}, bias)
	assert.Equal(t, math.Vec3{X: 4, Y: 5, Z: 0}, scale)
	for i, p := range packed {
		got := UnpackVertexPosition(p, scale, bias)
		assert.True(t, got.ApproxEqual(points[i], 1e-5), "point %d: got %v want %v", i, got, points[i])
	}
}

func TestPackVertexPositionsEmpty(t *testing.T) {
	packed, scale, bias := PackVertexPositions(nil)
	assert.Nil(t, packed)
	assert.Equal(t, math.Vec3{}, scale)
	assert.Equal(t, math.Vec3{}, bias)
}

func TestPackVertexNormals(t *testing.T) {
	normals := []math.Vec3{{X: 0, Y: 0, Z: 2}, {X: -1, Y: 0, Z: 0}, {}, {X: 1, Y: 1, Z: 0}}
	packed := PackVertexNormals(normals)

	assert.True(t, UnpackVertexNormal(packed[0]).ApproxEqual(math.Vec3{Z: 1}, 1e-3))
	assert.True(t, UnpackVertexNormal(packed[1]).ApproxEqual(math.Vec3{X: -1}, 1e-3))
	assert.Equal(t, uint32(0), packed[2])
	n := UnpackVertexNormal(packed[3])
	assert.InDelta(t, 0.7071, n.X, 3e-3)
	assert.InDelta(t, 0.7071, n.Y, 3e-3)
}
