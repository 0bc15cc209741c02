package topology

import (
	"github.com/Faultbox/meshdelegate/pkg/math"
)

// Adjacency maps every point to the faces that reference it.
type Adjacency struct {
	topo      Topology
	numPoints int
	// faceCorner is the first corner of each face, -1 for skipped faces.
	faceCorner []int
	offsets    []int
	faces      []int32
}

// NewAdjacency builds the point-to-face table of topo. Faces with fewer
// than three vertices and out-of-range indices are left out.
func NewAdjacency(topo Topology) *Adjacency {
	a := &Adjacency{
		topo:       topo,
		numPoints:  topo.PointCount(),
		faceCorner: make([]int, len(topo.FaceVertexCounts)),
	}
	for f := range a.faceCorner {
		a.faceCorner[f] = -1
	}
	counts := make([]int, a.numPoints+1)
	corner := 0
	for f, c := range topo.FaceVertexCounts {
		n := int(c)
		if n <= 0 {
			continue
		}
		if corner+n > len(topo.FaceVertexIndices) {
			break
		}
		if n >= 3 {
			a.faceCorner[f] = corner
			for _, v := range topo.FaceVertexIndices[corner : corner+n] {
				if v >= 0 && int(v) < a.numPoints {
					counts[v+1]++
				}
			}
		}
		corner += n
	}

	a.offsets = make([]int, a.numPoints+1)
	for i := 1; i <= a.numPoints; i++ {
		a.offsets[i] = a.offsets[i-1] + counts[i]
	}
	a.faces = make([]int32, a.offsets[a.numPoints])
	fill := make([]int, a.numPoints)
	copy(fill, a.offsets)
	for f, start := range a.faceCorner {
		if start < 0 {
			continue
		}
		n := int(topo.FaceVertexCounts[f])
		for _, v := range topo.FaceVertexIndices[start : start+n] {
			if v >= 0 && int(v) < a.numPoints {
				a.faces[fill[v]] = int32(f)
				fill[v]++
			}
		}
	}
	return a
}

// NumPoints returns the number of points in the table.
func (a *Adjacency) NumPoints() int { return a.numPoints }

// FacesOf returns the faces touching point. A face that lists the point
// more than once appears more than once.
func (a *Adjacency) FacesOf(point int) []int32 {
	if point < 0 || point >= a.numPoints {
		return nil
	}
	return a.faces[a.offsets[point]:a.offsets[point+1]]
}

// FaceNormals returns the area-weighted normal of every face, oriented by
// the topology winding. Skipped faces get a zero normal.
func (a *Adjacency) FaceNormals(points []math.Vec3) []math.Vec3 {
	out := make([]math.Vec3, len(a.faceCorner))
	poly := make([]math.Vec3, 0, 8)
	for f, start := range a.faceCorner {
		if start < 0 {
			continue
		}
		n := int(a.topo.FaceVertexCounts[f])
		poly = poly[:0]
		for _, v := range a.topo.FaceVertexIndices[start : start+n] {
			if v >= 0 && int(v) < len(points) {
				poly = append(poly, points[v])
			}
		}
		if len(poly) < 3 {
			continue
		}
		nrm := newellNormal(poly)
		if a.topo.Orientation == LeftHanded {
			nrm = nrm.Scale(-1)
		}
		out[f] = nrm
	}
	return out
}

// SmoothNormals returns one unit normal per point, the normalized sum of
// the area-weighted normals of its adjacent faces. Points that touch no
// face with area get a zero normal.
func (a *Adjacency) SmoothNormals(points []math.Vec3) []math.Vec3 {
	faceNormals := a.FaceNormals(points)
	n := len(points)
	if a.numPoints > n {
		n = a.numPoints
	}
	out := make([]math.Vec3, n)
	for p := 0; p < a.numPoints; p++ {
		var sum math.Vec3
		for _, f := range a.FacesOf(p) {
			sum = sum.Add(faceNormals[f])
		}
		out[p] = sum.Normalize()
	}
	return out
}
