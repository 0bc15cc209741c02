package primvar

import (
	"golang.org/x/exp/constraints"
)

type scalar interface {
	constraints.Integer | constraints.Float
}

// gather builds one output element group per index by copying the
// group src[idx]. Indices outside src leave the group zero-filled.
func gather[T scalar](src []T, stride int, indices []int32) []T {
	out := make([]T, len(indices)*stride)
	n := len(src) / stride
	for i, idx := range indices {
		if idx < 0 || int(idx) >= n {
			continue
		}
		copy(out[i*stride:(i+1)*stride], src[int(idx)*stride:(int(idx)+1)*stride])
	}
	return out
}

// replicate repeats group f of src counts[f] times.
func replicate[T scalar](src []T, stride int, counts []int32) []T {
	total := 0
	for _, c := range counts {
		if c > 0 {
			total += int(c)
		}
	}
	out := make([]T, total*stride)
	n := len(src) / stride
	pos := 0
	for f, c := range counts {
		for j := int32(0); j < c; j++ {
			if f < n {
				copy(out[pos*stride:(pos+1)*stride], src[f*stride:(f+1)*stride])
			}
			pos++
		}
	}
	return out
}

func resize[T scalar](src []T, n int) []T {
	if n <= len(src) {
		return src[:n:n]
	}
	out := make([]T, n)
	copy(out, src)
	return out
}

// ConvertVertexToFaceVarying expands a per-vertex array to one entry per
// face-vertex index. valuesPerVertex is the number of consecutive
// elements that belong to one vertex (joint influences carry several).
// Indices outside the source produce zero-filled output.
func ConvertVertexToFaceVarying(a Array, valuesPerVertex int, faceVertexIndices []int32) (Array, error) {
	if valuesPerVertex < 1 {
		valuesPerVertex = 1
	}
	var out Array
	err := Match(a, Cases{
		Floats: func(f *Floats) error {
			out = &Floats{Width: f.Width, Data: gather(f.Data, f.Width*valuesPerVertex, faceVertexIndices)}
			return nil
		},
		Ints: func(v *Ints) error {
			out = &Ints{Width: v.Width, Data: gather(v.Data, v.Width*valuesPerVertex, faceVertexIndices)}
			return nil
		},
	})
	return out, err
}

// ConvertUniformToFaceVarying expands a per-face array so every corner of
// face f carries element f.
func ConvertUniformToFaceVarying(a Array, faceVertexCounts []int32) (Array, error) {
	var out Array
	err := Match(a, Cases{
		Floats: func(f *Floats) error {
			out = &Floats{Width: f.Width, Data: replicate(f.Data, f.Width, faceVertexCounts)}
			return nil
		},
		Ints: func(v *Ints) error {
			out = &Ints{Width: v.Width, Data: replicate(v.Data, v.Width, faceVertexCounts)}
			return nil
		},
	})
	return out, err
}

// Resize truncates or zero-pads a to n elements.
func Resize(a Array, n int) (Array, error) {
	if n < 0 {
		n = 0
	}
	var out Array
	err := Match(a, Cases{
		Floats: func(f *Floats) error {
			out = &Floats{Width: f.Width, Data: resize(f.Data, n*f.Width)}
			return nil
		},
		Ints: func(v *Ints) error {
			out = &Ints{Width: v.Width, Data: resize(v.Data, n*v.Width)}
			return nil
		},
	})
	return out, err
}
