package skinning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

func TestNormalizeKeepsTopFour(t *testing.T) {
	indices := []int32{10, 11, 12, 13, 14, 15}
	weights := []float32{0.05, 0.3, 0.1, 0.25, 0.2, 0.1}

	joints, w, err := NormalizeInfluences(indices, weights, 6)
	require.NoError(t, err)
	require.Len(t, joints, 4)
	assert.Equal(t, []int32{11, 13, 14, 12}, joints)

	var sum float32
	for _, x := range w {
		sum += x
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, 0.3/0.85, w[0], 1e-6)
	assert.GreaterOrEqual(t, w[0], w[1])
	assert.GreaterOrEqual(t, w[1], w[2])
	assert.GreaterOrEqual(t, w[2], w[3])
}

func TestNormalizePadsShortInfluences(t *testing.T) {
	joints, w, err := NormalizeInfluences([]int32{3, 4, 5, 6}, []float32{1, 1, 2, 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 4, 0, 0, 5, 6, 0, 0}, joints)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0, 0.5, 0.5, 0, 0}, w)
}

func TestNormalizeZeroWeights(t *testing.T) {
	joints, w, err := NormalizeInfluences([]int32{7}, []float32{0}, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(7), joints[0])
	assert.Equal(t, float32(1), w[0])
}

func TestNormalizeRejectsMismatch(t *testing.T) {
	_, _, err := NormalizeInfluences([]int32{1, 2, 3}, []float32{1, 2}, 1)
	assert.ErrorIs(t, err, ErrInfluenceCount)
	_, _, err = NormalizeInfluences([]int32{1, 2, 3}, []float32{1, 2, 3}, 2)
	assert.ErrorIs(t, err, ErrInfluenceCount)
	_, _, err = NormalizeInfluences(nil, nil, 0)
	assert.ErrorIs(t, err, ErrInfluenceCount)
}

func TestTransformCache(t *testing.T) {
	var c TransformCache
	assert.Equal(t, uint64(0), c.Hash())

	pose := []math.Mat4{math.Identity(), math.Translate(1, 0, 0)}
	assert.True(t, c.Update(pose))
	h := c.Hash()
	assert.NotZero(t, h)
	assert.Len(t, c.Bytes(), 2*math.Mat4Size)

	assert.False(t, c.Update([]math.Mat4{math.Identity(), math.Translate(1, 0, 0)}), "same pose")
	assert.Equal(t, h, c.Hash())

	assert.True(t, c.Update([]math.Mat4{math.Identity(), math.Translate(2, 0, 0)}))
	assert.NotEqual(t, h, c.Hash())
	assert.Equal(t, HashTransforms(c.Transforms()), c.Hash())
}

func TestDeform(t *testing.T) {
	rest := []math.Vec3{{X: 1}}
	mats := []math.Mat4{math.Identity(), math.Translate(0, 2, 0)}
	out := Deform(rest, []int32{0, 1, 0, 0}, []float32{0.5, 0.5, 0, 0}, mats)
	assert.True(t, out[0].ApproxEqual(math.Vec3{X: 1, Y: 1}, 1e-6), "got %v", out[0])

	// missing influences leave the rest pose
	out = Deform(rest, nil, nil, mats)
	assert.Equal(t, rest[0], out[0])
}
