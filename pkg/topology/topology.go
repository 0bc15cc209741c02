// Package topology turns polygonal mesh topology into GPU-ready index
// lists: triangles (optionally grouped by geometry subset), edges and
// points. It also derives smooth vertex normals from face adjacency.
package topology

import (
	"errors"
	"fmt"
)

// Orientation is the winding order of the faces.
type Orientation uint8

const (
	// RightHanded faces wind counter-clockwise. This is the canonical order.
	RightHanded Orientation = iota
	// LeftHanded faces wind clockwise.
	LeftHanded
)

// ParseOrientation parses "rightHanded" or "leftHanded".
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "", "rightHanded":
		return RightHanded, nil
	case "leftHanded":
		return LeftHanded, nil
	}
	return RightHanded, fmt.Errorf("topology: unknown orientation %q", s)
}

// Subset is a named partition of the mesh faces with its own material.
type Subset struct {
	Name        string
	FaceIndices []int32
	MaterialID  string
}

// Topology describes the polygons of a mesh.
type Topology struct {
	FaceVertexCounts  []int32
	FaceVertexIndices []int32
	Orientation       Orientation
	Subsets           []Subset
	// NumPoints is the number of shared vertices. When zero it is derived
	// from the largest face-vertex index.
	NumPoints int
}

// PointCount returns the number of shared vertices.
func (t Topology) PointCount() int {
	if t.NumPoints > 0 {
		return t.NumPoints
	}
	n := 0
	for _, v := range t.FaceVertexIndices {
		if int(v)+1 > n {
			n = int(v) + 1
		}
	}
	return n
}

// NumFaceVaryings returns the number of face corners.
func (t Topology) NumFaceVaryings() int {
	return len(t.FaceVertexIndices)
}

// NumTriangles returns the number of triangles Triangulate emits: n-2 for
// every face with at least three vertices.
func (t Topology) NumTriangles() int {
	n := 0
	for _, c := range t.FaceVertexCounts {
		if c >= 3 {
			n += int(c) - 2
		}
	}
	return n
}

// Validation errors.
var (
	ErrCountMismatch = errors.New("topology: face vertex counts do not match index count")
	ErrBadIndex      = errors.New("topology: face vertex index out of range")
	ErrBadSubsetFace = errors.New("topology: subset face index out of range")
)

// Validate checks the topology invariants. Triangulation tolerates every
// reported problem; callers use the result for diagnostics.
func (t Topology) Validate() error {
	var errs []error
	sum := 0
	for _, c := range t.FaceVertexCounts {
		if c > 0 {
			sum += int(c)
		}
	}
	if sum != len(t.FaceVertexIndices) {
		errs = append(errs, fmt.Errorf("%w: sum=%d indices=%d", ErrCountMismatch, sum, len(t.FaceVertexIndices)))
	}
	if t.NumPoints > 0 {
		for i, v := range t.FaceVertexIndices {
			if v < 0 || int(v) >= t.NumPoints {
				errs = append(errs, fmt.Errorf("%w: index %d is %d (points=%d)", ErrBadIndex, i, v, t.NumPoints))
				break
			}
		}
	}
	for _, s := range t.Subsets {
		for _, f := range s.FaceIndices {
			if f < 0 || int(f) >= len(t.FaceVertexCounts) {
				errs = append(errs, fmt.Errorf("%w: subset %q face %d", ErrBadSubsetFace, s.Name, f))
				break
			}
		}
	}
	return errors.Join(errs...)
}
