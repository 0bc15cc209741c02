package drawitem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGetRemove(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Add(&Item{MaterialID: "a"})
	b := r.Add(&Item{MaterialID: "b"})
	assert.Equal(t, 2, r.Len())

	item, ok := r.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a", item.MaterialID)

	assert.True(t, r.Remove(a))
	_, ok = r.Get(a)
	assert.False(t, ok)
	assert.False(t, r.Remove(a))
	assert.Equal(t, 1, r.Len())

	_, ok = r.Get(b)
	assert.True(t, ok)
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	r := NewRegistry(nil)
	old := r.Add(&Item{MaterialID: "old"})
	r.Remove(old)
	fresh := r.Add(&Item{MaterialID: "new"})

	assert.Equal(t, old.index, fresh.index)
	_, ok := r.Get(old)
	assert.False(t, ok)
	item, ok := r.Get(fresh)
	require.True(t, ok)
	assert.Equal(t, "new", item.MaterialID)
}

func TestZeroHandle(t *testing.T) {
	r := NewRegistry(nil)
	var h Handle
	assert.True(t, h.IsZero())
	_, ok := r.Get(h)
	assert.False(t, ok)
	assert.False(t, r.Remove(h))
}

func TestVersionAndEach(t *testing.T) {
	r := NewRegistry(nil)
	v0 := r.Version()
	a := r.Add(&Item{MaterialID: "a"})
	r.Add(&Item{MaterialID: "b"})
	r.Remove(a)
	assert.Equal(t, v0+3, r.Version())

	var seen []string
	r.Each(func(_ Handle, it *Item) { seen = append(seen, it.MaterialID) })
	assert.Equal(t, []string{"b"}, seen)
}

func TestCloseWithLiveItems(t *testing.T) {
	r := NewRegistry(nil)
	h := r.Add(&Item{})
	assert.ErrorIs(t, r.Close(), ErrLiveItems)
	r.Remove(h)
	assert.NoError(t, r.Close())
}
