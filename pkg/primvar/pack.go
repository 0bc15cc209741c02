package primvar

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

const (
	positionBits = 21
	positionMax  = 1<<positionBits - 1
	normalMax    = 511
)

// PackVertexPositions quantizes points into 21 bits per axis relative to
// their bounding box. Each packed value holds the low and high words of
// x | y<<21 | z<<42. The returned scale and bias reconstruct a position
// as unpacked*scale + bias.
func PackVertexPositions(points []math.Vec3) (packed [][2]uint32, scale, bias math.Vec3) {
	if len(points) == 0 {
		return nil, math.Vec3{}, math.Vec3{}
	}
	b := math.BoundsOf(points)
	bias = b.Min
	scale = b.Size()

	quantize := func(v, lo, extent float32) uint64 {
		if extent <= 0 {
			return 0
		}
		n := (v - lo) / extent
		n = math32.Max(0, math32.Min(1, n))
		return uint64(math32.Round(n * positionMax))
	}

	packed = make([][2]uint32, len(points))
	for i, p := range points {
		v := quantize(p.X, bias.X, scale.X) |
			quantize(p.Y, bias.Y, scale.Y)<<positionBits |
			quantize(p.Z, bias.Z, scale.Z)<<(2*positionBits)
		packed[i] = [2]uint32{uint32(v), uint32(v >> 32)}
	}
	return packed, scale, bias
}

// UnpackVertexPosition reverses PackVertexPositions for one value.
func UnpackVertexPosition(p [2]uint32, scale, bias math.Vec3) math.Vec3 {
	v := uint64(p[0]) | uint64(p[1])<<32
	n := math.Vec3{
		X: float32(v&positionMax) / positionMax,
		Y: float32(v>>positionBits&positionMax) / positionMax,
		Z: float32(v>>(2*positionBits)&positionMax) / positionMax,
	}
	return n.Mul(scale).Add(bias)
}

// PackVertexNormals normalizes each normal and packs it as three signed
// 10-bit components. Zero-length normals pack to zero.
func PackVertexNormals(normals []math.Vec3) []uint32 {
	out := make([]uint32, len(normals))
	for i, n := range normals {
		n = n.Normalize()
		out[i] = packSnorm10(n.X) | packSnorm10(n.Y)<<10 | packSnorm10(n.Z)<<20
	}
	return out
}

func packSnorm10(c float32) uint32 {
	c = math32.Max(-1, math32.Min(1, c))
	return uint32(int32(math32.Round(c*normalMax))) & 0x3FF
}

func unpackSnorm10(bits uint32) float32 {
	v := int32(bits<<22) >> 22
	return math32.Max(-1, float32(v)/normalMax)
}

// UnpackVertexNormal reverses PackVertexNormals for one value.
func UnpackVertexNormal(p uint32) math.Vec3 {
	return math.Vec3{
		X: unpackSnorm10(p & 0x3FF),
		Y: unpackSnorm10(p >> 10 & 0x3FF),
		Z: unpackSnorm10(p >> 20 & 0x3FF),
	}
}
