package topology

import (
	"errors"

	"github.com/chewxy/math32"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

// Polygon triangulation errors.
var (
	ErrTooFewVertices = errors.New("topology: polygon needs at least 3 vertices")
	ErrDegenerate     = errors.New("topology: polygon has no area")
	ErrNoEar          = errors.New("topology: no ear found, polygon self-intersects")
)

const polygonEpsilon = 1e-12

// TriangulatePolygon triangulates a simple planar polygon by ear clipping.
// The polygon is projected onto the plane of its Newell normal, so the
// output triangles keep the winding of the input. Indices refer to pts.
// A successful result always holds len(pts)-2 triangles.
func TriangulatePolygon(pts []math.Vec3) ([][3]int, error) {
	n := len(pts)
	if n < 3 {
		return nil, ErrTooFewVertices
	}
	normal := newellNormal(pts)
	if normal.Length() < 1e-20 {
		return nil, ErrDegenerate
	}
	proj := projectToPlane(pts, normal.Normalize())

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	tris := make([][3]int, 0, n-2)
	for len(idx) > 3 {
		i := findEar(proj, idx, false)
		if i < 0 {
			// Collinear corners are never strictly convex. Clip one of them
			// as a zero-area triangle so the count stays n-2.
			i = findEar(proj, idx, true)
		}
		if i < 0 {
			return nil, ErrNoEar
		}
		m := len(idx)
		tris = append(tris, [3]int{idx[(i+m-1)%m], idx[i], idx[(i+1)%m]})
		idx = append(idx[:i], idx[i+1:]...)
	}
	tris = append(tris, [3]int{idx[0], idx[1], idx[2]})
	return tris, nil
}

// newellNormal returns the area-weighted normal of a polygon. Its length
// is twice the polygon area.
func newellNormal(pts []math.Vec3) math.Vec3 {
	var nrm math.Vec3
	for i, cur := range pts {
		next := pts[(i+1)%len(pts)]
		nrm.X += (cur.Y - next.Y) * (cur.Z + next.Z)
		nrm.Y += (cur.Z - next.Z) * (cur.X + next.X)
		nrm.Z += (cur.X - next.X) * (cur.Y + next.Y)
	}
	return nrm
}

// projectToPlane maps points into a 2D basis (u, v) with u x v = normal,
// which makes a polygon wound around normal counter-clockwise in 2D.
func projectToPlane(pts []math.Vec3, normal math.Vec3) []math.Vec2 {
	axis := math.Vec3{X: 1}
	ax, ay, az := math32.Abs(normal.X), math32.Abs(normal.Y), math32.Abs(normal.Z)
	if ay <= ax && ay <= az {
		axis = math.Vec3{Y: 1}
	} else if az <= ax && az <= ay {
		axis = math.Vec3{Z: 1}
	}
	u := axis.Cross(normal).Normalize()
	v := normal.Cross(u)

	out := make([]math.Vec2, len(pts))
	for i, p := range pts {
		out[i] = math.Vec2{X: p.Dot(u), Y: p.Dot(v)}
	}
	return out
}

// findEar returns the position in idx of a clippable corner, or -1.
func findEar(proj []math.Vec2, idx []int, allowFlat bool) int {
	m := len(idx)
	for i := 0; i < m; i++ {
		a, b, c := proj[idx[(i+m-1)%m]], proj[idx[i]], proj[idx[(i+1)%m]]
		turn := b.Sub(a).Cross(c.Sub(b))
		if allowFlat {
			if math32.Abs(turn) > polygonEpsilon {
				continue
			}
		} else if turn <= polygonEpsilon {
			continue
		}
		if !allowFlat && containsOther(proj, idx, i, a, b, c) {
			continue
		}
		return i
	}
	return -1
}

// containsOther reports whether any polygon corner other than the ear's
// own three lies inside or on the triangle abc.
func containsOther(proj []math.Vec2, idx []int, ear int, a, b, c math.Vec2) bool {
	m := len(idx)
	for j := 0; j < m; j++ {
		if j == ear || j == (ear+m-1)%m || j == (ear+1)%m {
			continue
		}
		p := proj[idx[j]]
		if p == a || p == b || p == c {
			continue
		}
		if b.Sub(a).Cross(p.Sub(a)) >= 0 &&
			c.Sub(b).Cross(p.Sub(b)) >= 0 &&
			a.Sub(c).Cross(p.Sub(c)) >= 0 {
			return true
		}
	}
	return false
}
