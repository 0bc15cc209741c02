// Package frame holds the per-frame generation counters shared by the mesh
// update and render pass steps.
package frame

// Category is a class of scene attributes tracked by its own counter.
type Category int

// Tracked categories.
const (
	Material Category = iota
	MeshGeometry
	MeshMaterial
	MeshCulling
	SubsetDrawItems
	numCategories
)

var categoryNames = [numCategories]string{
	"material",
	"mesh_geometry",
	"mesh_material",
	"mesh_culling",
	"subset_draw_items",
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return "unknown"
	}
	return categoryNames[c]
}

// Versions counts changes per category. It is owned by the delegate and
// passed by pointer to the steps that bump or read it. It is not safe for
// concurrent use.
type Versions struct {
	counters [numCategories]uint64
}

// Bump records a change in c and returns the new generation.
func (v *Versions) Bump(c Category) uint64 {
	v.counters[c]++
	return v.counters[c]
}

// Get returns the current generation of c.
func (v *Versions) Get(c Category) uint64 {
	return v.counters[c]
}

// Snapshot copies every counter.
func (v *Versions) Snapshot() Snapshot {
	return Snapshot(v.counters)
}

// Snapshot is a point-in-time copy of Versions.
type Snapshot [numCategories]uint64

// Changed reports whether any of cats moved between s and now.
func (s Snapshot) Changed(now Snapshot, cats ...Category) bool {
	for _, c := range cats {
		if s[c] != now[c] {
			return true
		}
	}
	return false
}

// Sum folds the given categories into one comparable value.
func (s Snapshot) Sum(cats ...Category) uint64 {
	var sum uint64
	for _, c := range cats {
		sum += s[c]
	}
	return sum
}
