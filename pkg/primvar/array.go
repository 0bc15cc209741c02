// Package primvar holds per-geometry attribute arrays (primvars) and the
// conversions the mesh pipeline applies to them before GPU upload.
//
// Arrays are a closed set of variants: Floats and Ints with one to four
// components per element, and Opaque for any host type the pipeline does
// not convert. Code that needs the concrete data dispatches with Match.
package primvar

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

// ErrUnsupportedType is returned when an array's element type has no
// conversion.
var ErrUnsupportedType = errors.New("primvar: unsupported element type")

// ElementType is the runtime type tag of one array element.
type ElementType uint8

// Element types.
const (
	Invalid ElementType = iota
	Float
	Float2
	Float3
	Float4
	Int
	Int2
	Int3
	Int4
)

var elementTypeNames = [...]string{"invalid", "float", "float2", "float3", "float4", "int", "int2", "int3", "int4"}

func (t ElementType) String() string {
	if int(t) < len(elementTypeNames) {
		return elementTypeNames[t]
	}
	return fmt.Sprintf("ElementType(%d)", t)
}

// ParseElementType parses names such as "float3" or "int".
func ParseElementType(s string) (ElementType, error) {
	for i, name := range elementTypeNames {
		if i > 0 && name == s {
			return ElementType(i), nil
		}
	}
	return Invalid, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

// Components returns the number of scalars per element.
func (t ElementType) Components() int {
	switch t {
	case Float, Int:
		return 1
	case Float2, Int2:
		return 2
	case Float3, Int3:
		return 3
	case Float4, Int4:
		return 4
	}
	return 0
}

// IsFloat reports whether the scalars are float32.
func (t ElementType) IsFloat() bool {
	return t >= Float && t <= Float4
}

// ByteSize returns the size of one element in bytes.
func (t ElementType) ByteSize() uint32 {
	return uint32(t.Components()) * 4
}

// VertexFormat returns the vertex input format for one element.
func (t ElementType) VertexFormat() gputypes.VertexFormat {
	switch t {
	case Float:
		return gputypes.VertexFormatFloat32
	case Float2:
		return gputypes.VertexFormatFloat32x2
	case Float3:
		return gputypes.VertexFormatFloat32x3
	case Float4:
		return gputypes.VertexFormatFloat32x4
	case Int:
		return gputypes.VertexFormatSint32
	case Int2:
		return gputypes.VertexFormatSint32x2
	case Int3:
		return gputypes.VertexFormatSint32x3
	case Int4:
		return gputypes.VertexFormatSint32x4
	}
	return gputypes.VertexFormatUndefined
}

// Interpolation is the domain a primvar varies over.
type Interpolation uint8

// Interpolation modes.
const (
	Constant Interpolation = iota
	Uniform
	Vertex
	Varying
	FaceVarying
)

var interpolationNames = [...]string{"constant", "uniform", "vertex", "varying", "faceVarying"}

func (i Interpolation) String() string {
	if int(i) < len(interpolationNames) {
		return interpolationNames[i]
	}
	return fmt.Sprintf("Interpolation(%d)", i)
}

// ParseInterpolation parses an interpolation token. Unknown tokens
// return Vertex and false.
func ParseInterpolation(s string) (Interpolation, bool) {
	for i, name := range interpolationNames {
		if name == s {
			return Interpolation(i), true
		}
	}
	return Vertex, false
}

// Array is a typed, variable-arity numeric array.
type Array interface {
	// Type returns the element type tag.
	Type() ElementType
	// Len returns the number of elements.
	Len() int
	array()
}

// Floats is an array of float32 elements with Width components each.
type Floats struct {
	Width int
	Data  []float32
}

// Ints is an array of int32 elements with Width components each.
type Ints struct {
	Width int
	Data  []int32
}

// Opaque stands for a host value type the pipeline cannot convert
// (strings, matrices, doubles).
type Opaque struct {
	TypeName string
	Count    int
}

func (*Floats) array() {}
func (*Ints) array()   {}
func (*Opaque) array() {}

// Type implements Array.
func (f *Floats) Type() ElementType {
	if f.Width < 1 || f.Width > 4 {
		return Invalid
	}
	return Float + ElementType(f.Width-1)
}

// Len implements Array.
func (f *Floats) Len() int {
	if f.Width < 1 {
		return 0
	}
	return len(f.Data) / f.Width
}

// Vec3 returns element i of a three-wide array.
func (f *Floats) Vec3(i int) math.Vec3 {
	return math.Vec3FromSlice(f.Data[i*f.Width : (i+1)*f.Width])
}

// Type implements Array.
func (a *Ints) Type() ElementType {
	if a.Width < 1 || a.Width > 4 {
		return Invalid
	}
	return Int + ElementType(a.Width-1)
}

// Len implements Array.
func (a *Ints) Len() int {
	if a.Width < 1 {
		return 0
	}
	return len(a.Data) / a.Width
}

// Type implements Array.
func (*Opaque) Type() ElementType { return Invalid }

// Len implements Array.
func (o *Opaque) Len() int { return o.Count }

// Cases holds one handler per convertible variant.
type Cases struct {
	Floats func(*Floats) error
	Ints   func(*Ints) error
}

// Match dispatches a to the handler for its variant. Opaque arrays,
// arrays with an invalid width and missing handlers return
// ErrUnsupportedType.
func Match(a Array, c Cases) error {
	switch v := a.(type) {
	case *Floats:
		if c.Floats != nil && v.Type() != Invalid {
			return c.Floats(v)
		}
	case *Ints:
		if c.Ints != nil && v.Type() != Invalid {
			return c.Ints(v)
		}
	case *Opaque:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, v.TypeName)
	case nil:
		return fmt.Errorf("%w: nil array", ErrUnsupportedType)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, a.Type())
}

// FromVec3s wraps points as a three-wide float array.
func FromVec3s(v []math.Vec3) *Floats {
	data := make([]float32, 0, len(v)*3)
	for _, p := range v {
		data = append(data, p.X, p.Y, p.Z)
	}
	return &Floats{Width: 3, Data: data}
}

// Vec3s returns the elements of a float3 array as vectors.
func Vec3s(a Array) ([]math.Vec3, error) {
	f, ok := a.(*Floats)
	if !ok || f.Width != 3 {
		return nil, fmt.Errorf("%w: want float3, got %s", ErrUnsupportedType, typeOf(a))
	}
	out := make([]math.Vec3, f.Len())
	for i := range out {
		out[i] = f.Vec3(i)
	}
	return out, nil
}

// Bytes returns the little-endian encoding of the array for upload.
func Bytes(a Array) ([]byte, error) {
	var out []byte
	err := Match(a, Cases{
		Floats: func(f *Floats) error {
			out = make([]byte, 0, len(f.Data)*4)
			for _, v := range f.Data {
				out = binary.LittleEndian.AppendUint32(out, gomath.Float32bits(v))
			}
			return nil
		},
		Ints: func(v *Ints) error {
			out = make([]byte, 0, len(v.Data)*4)
			for _, x := range v.Data {
				out = binary.LittleEndian.AppendUint32(out, uint32(x))
			}
			return nil
		},
	})
	return out, err
}

func typeOf(a Array) string {
	if a == nil {
		return "nil"
	}
	if o, ok := a.(*Opaque); ok {
		return o.TypeName
	}
	return a.Type().String()
}
