package topology

import (
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

// SubsetRange is a contiguous run of the triangle index list, expressed in
// index units (three per triangle).
type SubsetRange struct {
	StartIndex int
	IndexCount int
}

// StartTriangle returns the first triangle of the range.
func (r SubsetRange) StartTriangle() int { return r.StartIndex / 3 }

// TriangleCount returns the number of triangles in the range.
func (r SubsetRange) TriangleCount() int { return r.IndexCount / 3 }

// Processor computes index lists for one topology.
type Processor struct {
	topo      Topology
	numPoints int
	log       *zap.Logger

	badIndices int
}

// NewProcessor creates a processor. A nil logger discards warnings.
func NewProcessor(topo Topology, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{topo: topo, numPoints: topo.PointCount(), log: log}
}

// Topology returns the processed topology.
func (p *Processor) Topology() Topology { return p.topo }

// slot maps corner k of the face starting at corner to an output index.
// With useFaceIndices the corner goes through the face-vertex index table,
// otherwise it stays a flat face-varying slot.
func (p *Processor) slot(corner, k int, useFaceIndices bool) uint32 {
	c := corner + k
	if !useFaceIndices {
		return uint32(c)
	}
	v := p.topo.FaceVertexIndices[c]
	if v < 0 || int(v) >= p.numPoints {
		p.badIndices++
		return 0
	}
	return uint32(v)
}

// faces calls fn with the first corner of every face that has at least
// three vertices. The walk stops at the first face that runs past the
// index list.
func (p *Processor) faces(fn func(face, corner, n int)) {
	counts := p.topo.FaceVertexCounts
	numCorners := len(p.topo.FaceVertexIndices)
	corner := 0
	for f, c := range counts {
		n := int(c)
		if n <= 0 {
			continue
		}
		if corner+n > numCorners {
			p.log.Warn("face runs past face-vertex indices",
				zap.Int("face", f), zap.Int("corner", corner), zap.Int("count", n), zap.Int("indices", numCorners))
			return
		}
		if n >= 3 {
			fn(f, corner, n)
		}
		corner += n
	}
}

func (p *Processor) reportBadIndices(op string) {
	if p.badIndices > 0 {
		p.log.Warn("face-vertex indices out of range, clamped to 0",
			zap.String("op", op), zap.Int("count", p.badIndices), zap.Int("points", p.numPoints))
		p.badIndices = 0
	}
}

// Triangulate splits every face into triangles. Faces with up to four
// vertices, or all faces when points is nil, use a fan from corner 0.
// Larger faces go through TriangulatePolygon over their point positions
// and keep the fan when that fails. Left-handed topology has the second
// and third index of every triangle swapped. When the topology has
// geometry subsets the triangles are grouped subset by subset, followed
// by one range for faces no subset claims.
func (p *Processor) Triangulate(useFaceIndices bool, points []math.Vec3) ([][3]uint32, []SubsetRange) {
	numFaces := len(p.topo.FaceVertexCounts)
	faceTriStart := make([]int, numFaces+1)
	tris := make([][3]uint32, 0, p.topo.NumTriangles())

	filled := 0
	p.faces(func(face, corner, n int) {
		for ; filled <= face; filled++ {
			faceTriStart[filled] = len(tris)
		}
		start := len(tris)
		for i := 0; i < n-2; i++ {
			tris = append(tris, [3]uint32{
				p.slot(corner, 0, useFaceIndices),
				p.slot(corner, i+1, useFaceIndices),
				p.slot(corner, i+2, useFaceIndices),
			})
		}
		if n > 4 && points != nil {
			p.triangulateFace(face, corner, n, useFaceIndices, points, tris[start:])
		}
	})
	for ; filled <= numFaces; filled++ {
		faceTriStart[filled] = len(tris)
	}
	p.reportBadIndices("triangulate")

	if p.topo.Orientation != RightHanded {
		for i := range tris {
			tris[i][1], tris[i][2] = tris[i][2], tris[i][1]
		}
	}
	return p.groupBySubset(tris, faceTriStart)
}

func (p *Processor) triangulateFace(face, corner, n int, useFaceIndices bool, points []math.Vec3, out [][3]uint32) {
	poly := make([]math.Vec3, n)
	for k := range poly {
		v := p.topo.FaceVertexIndices[corner+k]
		if v < 0 || int(v) >= len(points) {
			p.log.Warn("polygon corner has no point position, keeping fan",
				zap.Int("face", face), zap.Int32("index", v), zap.Int("points", len(points)))
			return
		}
		poly[k] = points[v]
	}
	local, err := TriangulatePolygon(poly)
	if err != nil {
		p.log.Warn("polygon triangulation failed, keeping fan", zap.Int("face", face), zap.Error(err))
		return
	}
	for i, t := range local {
		out[i] = [3]uint32{
			p.slot(corner, t[0], useFaceIndices),
			p.slot(corner, t[1], useFaceIndices),
			p.slot(corner, t[2], useFaceIndices),
		}
	}
}

func (p *Processor) groupBySubset(tris [][3]uint32, faceTriStart []int) ([][3]uint32, []SubsetRange) {
	if len(p.topo.Subsets) == 0 {
		return tris, []SubsetRange{{StartIndex: 0, IndexCount: len(tris) * 3}}
	}
	numFaces := len(faceTriStart) - 1
	assigned := make([]bool, numFaces)
	out := make([][3]uint32, 0, len(tris))
	ranges := make([]SubsetRange, 0, len(p.topo.Subsets)+1)

	for _, s := range p.topo.Subsets {
		start := len(out)
		for _, f := range s.FaceIndices {
			if f < 0 || int(f) >= numFaces {
				p.log.Warn("geometry subset references missing face",
					zap.String("subset", s.Name), zap.Int32("face", f), zap.Int("faces", numFaces))
				continue
			}
			if assigned[f] {
				continue
			}
			assigned[f] = true
			out = append(out, tris[faceTriStart[f]:faceTriStart[f+1]]...)
		}
		ranges = append(ranges, SubsetRange{StartIndex: start * 3, IndexCount: (len(out) - start) * 3})
	}

	if len(out) < len(tris) {
		start := len(out)
		for f := 0; f < numFaces; f++ {
			if !assigned[f] {
				out = append(out, tris[faceTriStart[f]:faceTriStart[f+1]]...)
			}
		}
		ranges = append(ranges, SubsetRange{StartIndex: start * 3, IndexCount: (len(out) - start) * 3})
	}
	return out, ranges
}

// ComputeEdgeIndices returns the boundary edges of every face. In line
// list mode each edge is a pair of indices. In line strip mode each face
// is its corner loop closed back to the first corner and followed by a -1
// primitive restart.
func (p *Processor) ComputeEdgeIndices(useFaceIndices, asLineStrip bool) []int32 {
	var out []int32
	p.faces(func(_, corner, n int) {
		if asLineStrip {
			for k := 0; k < n; k++ {
				out = append(out, int32(p.slot(corner, k, useFaceIndices)))
			}
			out = append(out, int32(p.slot(corner, 0, useFaceIndices)), -1)
			return
		}
		for k := 0; k < n; k++ {
			out = append(out,
				int32(p.slot(corner, k, useFaceIndices)),
				int32(p.slot(corner, (k+1)%n, useFaceIndices)))
		}
	})
	p.reportBadIndices("edges")
	return out
}

// ComputePointIndices returns the indices used to draw the mesh as points.
// Without conversion this is 0..NumPoints-1. With conversion to
// face-varying data every point is drawn once through the first face
// corner that references it.
func (p *Processor) ComputePointIndices(convertToFaceVarying bool) []uint32 {
	if !convertToFaceVarying {
		out := make([]uint32, p.numPoints)
		for i := range out {
			out[i] = uint32(i)
		}
		return out
	}
	visited := newBitset(p.numPoints)
	out := make([]uint32, 0, p.numPoints)
	for c, v := range p.topo.FaceVertexIndices {
		if v < 0 || int(v) >= p.numPoints || visited.test(int(v)) {
			continue
		}
		visited.set(int(v))
		out = append(out, uint32(c))
	}
	return out
}

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)       { b[i/64] |= 1 << (i % 64) }
func (b bitset) test(i int) bool { return b[i/64]&(1<<(i%64)) != 0 }
