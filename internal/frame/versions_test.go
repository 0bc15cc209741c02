package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionsBump(t *testing.T) {
	var v Versions
	assert.Equal(t, uint64(0), v.Get(MeshGeometry))
	assert.Equal(t, uint64(1), v.Bump(MeshGeometry))
	assert.Equal(t, uint64(2), v.Bump(MeshGeometry))
	assert.Equal(t, uint64(0), v.Get(Material))
}

func TestSnapshotChanged(t *testing.T) {
	var v Versions
	before := v.Snapshot()
	v.Bump(MeshCulling)
	after := v.Snapshot()

	assert.True(t, before.Changed(after, MeshCulling))
	assert.True(t, before.Changed(after, Material, MeshCulling))
	assert.False(t, before.Changed(after, Material, MeshGeometry))
	assert.Equal(t, uint64(1), after.Sum(MeshCulling, Material))
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "mesh_geometry", MeshGeometry.String())
	assert.Equal(t, "unknown", Category(42).String())
}
