package primvar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertexDataLayout(t *testing.T) {
	d := NewVertexData()
	require.NoError(t, d.Add("points", &Floats{Width: 3, Data: make([]float32, 12)}))
	require.NoError(t, d.Add("normals", &Floats{Width: 3, Data: make([]float32, 12)}))
	require.NoError(t, d.Add("st", &Floats{Width: 2, Data: make([]float32, 8)}))

	assert.Equal(t, 4, d.ElementCount())
	assert.Equal(t, []string{"points", "normals", "st"}, d.Names())
	assert.Equal(t, []uint32{12, 12, 8}, d.Layout())
	assert.Equal(t, "12,12,8", d.LayoutKey())
}

func TestVertexDataRejectsMismatchedCount(t *testing.T) {
	d := NewVertexData()
	require.NoError(t, d.Add("points", &Floats{Width: 3, Data: make([]float32, 9)}))
	err := d.Add("st", &Floats{Width: 2, Data: make([]float32, 8)})
	assert.ErrorIs(t, err, ErrElementCount)
	assert.False(t, d.Has("st"))
}

func TestVertexDataRejectsOpaque(t *testing.T) {
	d := NewVertexData()
	err := d.Add("names", &Opaque{TypeName: "token[]", Count: 3})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
