package primvar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cogentcore.org/core/base/ordmap"
)

// ErrElementCount is returned when an array added to VertexData does not
// match the set's element count.
var ErrElementCount = errors.New("primvar: element count mismatch")

// VertexData is the staging set of named vertex attributes for one mesh.
// Every source shares one element count. Iteration order is insertion
// order, which also defines the vertex layout.
type VertexData struct {
	sources *ordmap.Map[string, Array]
	count   int
}

// NewVertexData returns an empty set.
func NewVertexData() *VertexData {
	return &VertexData{sources: ordmap.New[string, Array](), count: -1}
}

// Add inserts or replaces the named source. The first source fixes the
// element count.
func (d *VertexData) Add(name string, a Array) error {
	if a.Type() == Invalid {
		return fmt.Errorf("%w: %s is %s", ErrUnsupportedType, name, typeOf(a))
	}
	if d.count >= 0 && a.Len() != d.count {
		if _, replacing := d.sources.IndexByKeyTry(name); !replacing || d.sources.Len() > 1 {
			return fmt.Errorf("%w: %s has %d elements, want %d", ErrElementCount, name, a.Len(), d.count)
		}
	}
	d.sources.Add(name, a)
	d.count = a.Len()
	return nil
}

// Get returns the named source.
func (d *VertexData) Get(name string) (Array, bool) {
	return d.sources.ValueByKeyTry(name)
}

// Has reports whether name is present.
func (d *VertexData) Has(name string) bool {
	_, ok := d.sources.IndexByKeyTry(name)
	return ok
}

// Names returns the source names in layout order.
func (d *VertexData) Names() []string {
	return d.sources.Keys()
}

// Len returns the number of sources.
func (d *VertexData) Len() int {
	return d.sources.Len()
}

// At returns the name and array at layout position i.
func (d *VertexData) At(i int) (string, Array) {
	return d.sources.KeyByIndex(i), d.sources.ValueByIndex(i)
}

// ElementCount returns the shared element count, zero when empty.
func (d *VertexData) ElementCount() int {
	if d.count < 0 {
		return 0
	}
	return d.count
}

// Layout returns the per-attribute element byte sizes in layout order.
func (d *VertexData) Layout() []uint32 {
	out := make([]uint32, 0, d.sources.Len())
	for _, kv := range d.sources.Order {
		out = append(out, kv.Value.Type().ByteSize())
	}
	return out
}

// LayoutKey returns Layout encoded as a comparable string such as
// "12,12,8".
func (d *VertexData) LayoutKey() string {
	layout := d.Layout()
	parts := make([]string, len(layout))
	for i, s := range layout {
		parts[i] = strconv.FormatUint(uint64(s), 10)
	}
	return strings.Join(parts, ",")
}
