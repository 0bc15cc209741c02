package skinning

import (
	"hash/maphash"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

// seed is shared so equal poses hash equally across meshes and passes.
var seed = maphash.MakeSeed()

// HashTransforms hashes a joint transform set.
func HashTransforms(mats []math.Mat4) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	var buf [math.Mat4Size]byte
	for i := range mats {
		h.Write(mats[i].AppendBytes(buf[:0]))
	}
	return h.Sum64()
}

// TransformCache holds the joint transforms of the last pose and their
// hash. Unchanged poses keep the hash, so no re-upload is needed.
type TransformCache struct {
	mats  []math.Mat4
	hash  uint64
	bytes []byte
}

// Update stores mats when they differ from the cached pose and reports
// whether anything changed.
func (c *TransformCache) Update(mats []math.Mat4) bool {
	h := HashTransforms(mats)
	if c.mats != nil && h == c.hash && len(mats) == len(c.mats) {
		return false
	}
	c.mats = append(c.mats[:0], mats...)
	c.hash = h
	c.bytes = c.bytes[:0]
	for i := range c.mats {
		c.bytes = c.mats[i].AppendBytes(c.bytes)
	}
	return true
}

// Hash returns the hash of the cached pose, zero when empty.
func (c *TransformCache) Hash() uint64 {
	if len(c.mats) == 0 {
		return 0
	}
	return c.hash
}

// Transforms returns the cached pose.
func (c *TransformCache) Transforms() []math.Mat4 { return c.mats }

// Bytes returns the cached pose packed as column-major float32 matrices.
func (c *TransformCache) Bytes() []byte { return c.bytes }

// Deform skins rest points on the CPU with four influences per vertex.
// The result is used for bounds; the GPU does the drawing deformation.
func Deform(rest []math.Vec3, joints []int32, weights []float32, mats []math.Mat4) []math.Vec3 {
	out := make([]math.Vec3, len(rest))
	for v, p := range rest {
		base := v * MaxInfluences
		if base+MaxInfluences > len(joints) || base+MaxInfluences > len(weights) {
			out[v] = p
			continue
		}
		var acc math.Vec3
		for k := 0; k < MaxInfluences; k++ {
			w := weights[base+k]
			j := joints[base+k]
			if w == 0 || j < 0 || int(j) >= len(mats) {
				continue
			}
			acc = acc.Add(mats[j].TransformPoint(p).Scale(w))
		}
		out[v] = acc
	}
	return out
}
