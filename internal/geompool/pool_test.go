package geompool

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/internal/gpu/nulldev"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
)

func testPool(t *testing.T, mutate func(*config.PoolConfig)) (*Pool, *nulldev.Device) {
	t.Helper()
	cfg := config.Default().Pool
	cfg.InitialVertices = 8
	cfg.InitialIndices = 16
	if mutate != nil {
		mutate(&cfg)
	}
	dev := nulldev.New()
	return New(dev, cfg, nil), dev
}

// points returns n float3 points whose x equals base+i.
func points(t *testing.T, n int, base float32) *primvar.VertexData {
	t.Helper()
	data := make([]float32, 0, 3*n)
	for i := 0; i < n; i++ {
		data = append(data, base+float32(i), 0, 0)
	}
	vd := primvar.NewVertexData()
	require.NoError(t, vd.Add("points", &primvar.Floats{Width: 3, Data: data}))
	return vd
}

func commit(t *testing.T, p *Pool) {
	t.Helper()
	require.NoError(t, p.Commit(nulldev.NewContext()))
}

func readX(t *testing.T, a *VertexAllocation, vertex uint32) float32 {
	t.Helper()
	bufs := a.Buffers()
	require.NotEmpty(t, bufs)
	raw := bufs[0].(*nulldev.Buffer).Bytes()
	return math.Float32frombits(binary.LittleEndian.Uint32(raw[vertex*12:]))
}

func TestAllocationsAreDisjoint(t *testing.T) {
	p, _ := testPool(t, nil)
	a := p.AllocateVertices("a", points(t, 4, 0), nil, false)
	b := p.AllocateVertices("b", points(t, 4, 100), nil, false)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.LayoutKey(), b.LayoutKey())

	commit(t, p)
	sa, ok := a.StartVertex()
	require.True(t, ok)
	sb, ok := b.StartVertex()
	require.True(t, ok)
	assert.True(t, sa+a.Count() <= sb || sb+b.Count() <= sa, "ranges [%d,+4) and [%d,+4) overlap", sa, sb)

	assert.Equal(t, float32(0), readX(t, a, sa))
	assert.Equal(t, float32(103), readX(t, b, sb+3))
}

func TestDeferredStartVertex(t *testing.T) {
	p, _ := testPool(t, nil)
	deferred := p.AllocateVertices("deferred", points(t, 3, 0), nil, false)
	_, ok := deferred.StartVertex()
	assert.False(t, ok, "deferred allocation has no offset before commit")
	assert.False(t, deferred.Ready())

	sync := p.AllocateVertices("sync", points(t, 3, 0), nil, true)
	start, ok := sync.StartVertex()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), start)
	assert.False(t, sync.Ready(), "data is only uploaded by commit")

	commit(t, p)
	assert.True(t, deferred.Ready())
	assert.True(t, sync.Ready())
	ds, _ := deferred.StartVertex()
	assert.Equal(t, uint32(3), ds)
}

func TestReuseInPlace(t *testing.T) {
	p, _ := testPool(t, nil)
	a := p.AllocateVertices("mesh", points(t, 4, 0), nil, false)
	commit(t, p)
	start, _ := a.StartVertex()

	again := p.AllocateVertices("mesh", points(t, 4, 50), a, false)
	assert.Same(t, a, again)
	commit(t, p)
	s2, _ := again.StartVertex()
	assert.Equal(t, start, s2)
	assert.Equal(t, float32(50), readX(t, again, s2))

	resized := p.AllocateVertices("mesh", points(t, 5, 0), again, false)
	assert.NotSame(t, again, resized)
	assert.False(t, again.Live(), "replaced allocation is released")
	assert.True(t, resized.Live())
}

func TestDisallowReuseReplaces(t *testing.T) {
	p, _ := testPool(t, nil)
	a := p.AllocateVertices("mesh", points(t, 4, 0), nil, false)
	commit(t, p)
	b := p.AllocateVertices("mesh", points(t, 4, 0), a, true)
	assert.NotSame(t, a, b)
	assert.False(t, a.Live())
	start, ok := b.StartVertex()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), start, "freed range is reused first fit")
}

func TestReuseDisabledByConfig(t *testing.T) {
	p, _ := testPool(t, func(c *config.PoolConfig) { c.AllowReuse = false })
	a := p.AllocateVertices("mesh", points(t, 4, 0), nil, false)
	b := p.AllocateVertices("mesh", points(t, 4, 0), a, false)
	assert.NotSame(t, a, b)
}

func TestGrowthKeepsOffsetsAndData(t *testing.T) {
	p, dev := testPool(t, func(c *config.PoolConfig) { c.InitialVertices = 4 })
	a := p.AllocateVertices("a", points(t, 3, 10), nil, false)
	commit(t, p)
	first := a.Buffers()[0]
	assert.Equal(t, int64(4*12), first.Size())

	b := p.AllocateVertices("b", points(t, 3, 20), nil, false)
	ctx := nulldev.NewContext()
	require.NoError(t, p.Commit(ctx))
	assert.Equal(t, 1, ctx.Count(nulldev.CmdCopyBuffer))
	var states []gpu.ResourceState
	for _, cmd := range ctx.Commands {
		if cmd.Kind == nulldev.CmdTransition && cmd.Buffer.ID() == first.ID() {
			states = append(states, cmd.State)
		}
	}
	assert.Equal(t, []gpu.ResourceState{gpu.StateCopySource}, states, "old buffer is only read by the copy")

	grown := a.Buffers()[0]
	assert.NotEqual(t, first.ID(), grown.ID())
	assert.Equal(t, int64(8*12), grown.Size())
	assert.True(t, first.(*nulldev.Buffer).Released())

	sa, _ := a.StartVertex()
	sb, _ := b.StartVertex()
	assert.Equal(t, float32(12), readX(t, a, sa+2))
	assert.Equal(t, float32(20), readX(t, b, sb))
	assert.Equal(t, int64(8*12), dev.Allocated(), "index buffer is not created while empty")
}

func TestFreeListCoalesces(t *testing.T) {
	p, _ := testPool(t, nil)
	a := p.AllocateVertices("a", points(t, 2, 0), nil, true)
	b := p.AllocateVertices("b", points(t, 2, 0), nil, true)
	c := p.AllocateVertices("c", points(t, 2, 0), nil, true)
	a.Release()
	b.Release()

	d := p.AllocateVertices("d", points(t, 4, 0), nil, true)
	start, _ := d.StartVertex()
	assert.Equal(t, uint32(0), start, "a and b merge into one 4-vertex hole")

	c.Release()
	d.Release()
	e := p.AllocateVertices("e", points(t, 6, 0), nil, true)
	start, _ = e.StartVertex()
	assert.Equal(t, uint32(0), start)
}

func TestAllocateIndicesBakesStartVertex(t *testing.T) {
	p, _ := testPool(t, nil)
	idx := p.AllocateIndices("tris", []uint32{0, 1, 2}, 7, nil)
	commit(t, p)
	require.True(t, idx.Ready())
	start, _ := idx.StartIndex()

	raw := idx.Buffer().(*nulldev.Buffer).Bytes()
	for i, want := range []uint32{7, 8, 9} {
		assert.Equal(t, want, binary.LittleEndian.Uint32(raw[(start+uint32(i))*4:]))
	}

	same := p.AllocateIndices("tris", []uint32{3, 4, 5}, 0, idx)
	assert.Same(t, idx, same)
}

func TestExhaustion(t *testing.T) {
	p, _ := testPool(t, func(c *config.PoolConfig) { c.MaxBufferBytes = 10 * 12 })
	assert.Nil(t, p.AllocateVertices("huge", points(t, 11, 0), nil, true))

	deferred := p.AllocateVertices("huge", points(t, 11, 0), nil, false)
	require.NotNil(t, deferred)
	commit(t, p)
	assert.False(t, deferred.Ready())
	assert.Nil(t, deferred.Buffers())
}

func TestDeferredRetriesAfterSpaceFrees(t *testing.T) {
	p, _ := testPool(t, func(c *config.PoolConfig) { c.MaxBufferBytes = 10 * 12 })
	a := p.AllocateVertices("a", points(t, 6, 0), nil, true)
	require.NotNil(t, a)
	b := p.AllocateVertices("b", points(t, 6, 50), nil, false)
	require.NotNil(t, b)
	commit(t, p)
	assert.False(t, b.Ready(), "no room while a is live")

	a.Release()
	commit(t, p)
	require.True(t, b.Ready())
	sb, ok := b.StartVertex()
	require.True(t, ok)
	assert.Equal(t, float32(50), readX(t, b, sb))
	assert.Equal(t, float32(55), readX(t, b, sb+5))
}

func TestEmptyDataReleasesPrev(t *testing.T) {
	p, _ := testPool(t, nil)
	a := p.AllocateVertices("a", points(t, 2, 0), nil, false)
	assert.Nil(t, p.AllocateVertices("a", primvar.NewVertexData(), a, false))
	assert.False(t, a.Live())
	assert.Nil(t, p.AllocateIndices("i", nil, 0, nil))
}

func TestNilAllocationIsSafe(t *testing.T) {
	var v *VertexAllocation
	var i *IndexAllocation
	v.Release()
	i.Release()
	assert.False(t, v.Ready())
	assert.Nil(t, v.Buffers())
	assert.Nil(t, i.Buffer())
	_, ok := i.StartIndex()
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	p, _ := testPool(t, nil)
	p.AllocateVertices("a", points(t, 3, 0), nil, false)
	p.AllocateIndices("i", []uint32{0, 1, 2}, 0, nil)
	commit(t, p)

	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "12", stats[0].Layout)
	assert.Equal(t, uint32(3), stats[0].Used)
	assert.Equal(t, uint32(8), stats[0].Capacity)
	assert.Equal(t, indexKey, stats[1].Layout)
	assert.Equal(t, 1, stats[1].Allocations)
}

func TestCloseReportsLiveAllocations(t *testing.T) {
	p, dev := testPool(t, nil)
	a := p.AllocateVertices("a", points(t, 3, 0), nil, false)
	commit(t, p)

	err := p.Close()
	assert.ErrorIs(t, err, ErrLiveAllocations)
	assert.False(t, a.Live(), "handles die with the pool")
	assert.Equal(t, int64(0), dev.Allocated())
	assert.ErrorIs(t, p.Commit(nulldev.NewContext()), ErrPoolClosed)
	assert.Nil(t, p.AllocateVertices("b", points(t, 1, 0), nil, false))
}

func TestCloseClean(t *testing.T) {
	p, _ := testPool(t, nil)
	a := p.AllocateVertices("a", points(t, 3, 0), nil, false)
	commit(t, p)
	a.Release()
	assert.NoError(t, p.Close())
}

var _ gpu.Buffer = (*nulldev.Buffer)(nil)
