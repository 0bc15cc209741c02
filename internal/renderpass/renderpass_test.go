package renderpass

import (
	"encoding/binary"
	gomath "math"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/drawitem"
	"github.com/Faultbox/meshdelegate/internal/frame"
	"github.com/Faultbox/meshdelegate/internal/geompool"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/internal/gpu/nulldev"
	"github.com/Faultbox/meshdelegate/internal/material"
	"github.com/Faultbox/meshdelegate/internal/mesh"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/internal/texture"
	"github.com/Faultbox/meshdelegate/pkg/math"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

type fixture struct {
	dev       *nulldev.Device
	sync      *mesh.SyncContext
	materials *material.Registry
	psos      *pso.Cache
	selection *scene.Selection
	host      *scene.Memory
	meshes    []*mesh.Mesh
	cfg       config.RenderConfig
}

func newFixture(t *testing.T, opts ...nulldev.Option) *fixture {
	t.Helper()
	dev := nulldev.New(opts...)
	pool := config.Default().Pool
	pool.InitialVertices = 64
	pool.InitialIndices = 256
	versions := &frame.Versions{}

	loader, err := texture.NewLoader(dev, config.TextureConfig{Workers: 1, QueueSize: 4, MemoryBudgetMB: 1, Root: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { loader.Close() })
	materials, err := material.NewRegistry(dev, loader, versions, false, nil)
	require.NoError(t, err)
	psos, err := pso.NewCache(dev, 32, nil)
	require.NoError(t, err)

	return &fixture{
		dev: dev,
		sync: &mesh.SyncContext{
			Pool:     geompool.New(dev, pool, nil),
			Items:    drawitem.NewRegistry(nil),
			Versions: versions,
			Caps:     dev.Caps(),
		},
		materials: materials,
		psos:      psos,
		selection: &scene.Selection{},
		host:      scene.NewMemory(),
		cfg:       config.Default().Render,
	}
}

func triangle(xf math.Mat4) scene.Mesh {
	return scene.Mesh{
		Topology: topology.Topology{FaceVertexCounts: []int32{3}, FaceVertexIndices: []int32{0, 1, 2}},
		Primvars: []scene.Primvar{{
			PrimvarDesc: scene.PrimvarDesc{Name: mesh.PointsName, Interpolation: primvar.Vertex, Role: scene.RolePoint},
			Value:       primvar.FromVec3s([]math.Vec3{{}, {X: 1}, {Y: 1}}),
		}},
		Transform: xf,
	}
}

func (f *fixture) add(id string, m scene.Mesh) {
	f.host.AddMesh(id, m)
	f.meshes = append(f.meshes, mesh.New(id, uint64(len(f.meshes)+1)))
}

func (f *fixture) update(t *testing.T) {
	t.Helper()
	f.materials.Sync(f.host)
	for _, m := range f.meshes {
		dirty := f.host.MeshDirtyBits(m.ID())
		m.Sync(f.sync, f.host, dirty)
		f.host.MarkMeshClean(m.ID(), dirty)
	}
	require.NoError(t, f.sync.Pool.Commit(nulldev.NewContext()))
}

func (f *fixture) pass(params Params) *Pass {
	return New(params, Deps{
		Device:    f.dev,
		Items:     f.sync.Items,
		Materials: f.materials,
		PSOs:      f.psos,
		Versions:  f.sync.Versions,
		Selection: f.selection,
		Config:    f.cfg,
	})
}

func solid() Params {
	return Params{RenderMode: pso.ModeSolid, UseFallbackPSO: true}
}

func execute(t *testing.T, p *Pass) (Result, *nulldev.Context) {
	t.Helper()
	ctx := nulldev.NewContext()
	res, err := p.Execute(ctx)
	require.NoError(t, err)
	return res, ctx
}

func word(b []byte, i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }

func float(b []byte, i int) float32 { return gomath.Float32frombits(word(b, i)) }

func TestExecuteBatchesIdenticalItems(t *testing.T) {
	f := newFixture(t)
	f.add("/a", triangle(math.Translate(1, 0, 0)))
	f.add("/b", triangle(math.Translate(2, 0, 0)))
	f.update(t)
	p := f.pass(solid())

	res, ctx := execute(t, p)
	assert.Equal(t, Completed, res.Status)
	assert.True(t, res.Stats.ListRebuilt)
	assert.Equal(t, 2, res.Stats.Items)
	assert.Equal(t, 2, res.Stats.Revalidated)
	assert.Equal(t, 2, res.Stats.Draws)
	assert.Equal(t, 1, res.Stats.Batches)
	assert.Equal(t, 1, res.Stats.MultiDraws)
	assert.Equal(t, 1, res.Stats.DrawCalls)
	assert.Equal(t, 1, res.Stats.PipelineBinds)
	assert.Equal(t, 1, res.Stats.RingFlushes)
	assert.Equal(t, 1, ctx.Count(nulldev.CmdMultiDraw))

	require.Len(t, ctx.Draws, 2)
	for i, d := range ctx.Draws {
		assert.Equal(t, uint32(i), d.Args.FirstInstance)
		assert.Equal(t, uint32(3), d.Args.IndexCount)
		assert.Equal(t, gpu.PipelineReady, d.PipelineStatus)
		require.Len(t, d.Constants, int(p.BlockSize()))
		assert.Equal(t, float32(i+1), float(d.Constants, 12), "translation x")
		assert.Equal(t, uint32(i+1), word(d.Constants, 36), "ordinal")
	}

	res, _ = execute(t, p)
	assert.False(t, res.Stats.ListRebuilt)
	assert.Zero(t, res.Stats.Revalidated)
	assert.Equal(t, 2, res.Stats.Draws)
}

func TestRingFlushesWhenFull(t *testing.T) {
	f := newFixture(t)
	f.cfg.ConstantRingBytes = 512
	for i := 0; i < 5; i++ {
		f.add("/m"+string(rune('a'+i)), triangle(math.Translate(float32(i), 0, 0)))
	}
	f.update(t)
	p := f.pass(solid())
	require.Equal(t, int64(256), p.BlockSize())

	res, ctx := execute(t, p)
	assert.Equal(t, 3, res.Stats.RingFlushes)
	assert.Equal(t, 3, ctx.Count(nulldev.CmdBindConstants))
	assert.Equal(t, 5, res.Stats.Draws)
	assert.Equal(t, 3, res.Stats.Batches)

	require.Len(t, ctx.Draws, 5)
	for i, d := range ctx.Draws {
		assert.Equal(t, uint32(i%2), d.Args.FirstInstance)
		assert.Equal(t, float32(i), float(d.Constants, 12))
		assert.Equal(t, uint32(i+1), word(d.Constants, 36))
	}
}

func TestSortGroupsByPipeline(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		m := triangle(math.Identity())
		m.DoubleSided = i%2 == 1
		f.add("/m"+string(rune('a'+i)), m)
	}
	f.update(t)

	res, ctx := execute(t, f.pass(solid()))
	assert.Equal(t, 2, res.Stats.PipelineBinds)
	assert.Equal(t, 2, res.Stats.Batches)
	require.Len(t, ctx.Draws, 4)

	var ordinals []uint32
	for _, d := range ctx.Draws {
		ordinals = append(ordinals, word(d.Constants, 36))
	}
	assert.Equal(t, ctx.Draws[0].Pipeline, ctx.Draws[1].Pipeline)
	assert.NotEqual(t, ctx.Draws[1].Pipeline, ctx.Draws[2].Pipeline)
	assert.ElementsMatch(t, []uint32{1, 2, 3, 4}, ordinals)
	assert.Less(t, ordinals[0], ordinals[1])
	assert.Less(t, ordinals[2], ordinals[3])
}

func TestEmulatedMultiDraw(t *testing.T) {
	caps := gpu.DefaultCaps()
	caps.NativeMultiDraw = false
	f := newFixture(t, nulldev.WithCaps(caps))
	f.add("/a", triangle(math.Identity()))
	f.add("/b", triangle(math.Identity()))
	f.update(t)

	res, ctx := execute(t, f.pass(solid()))
	assert.Equal(t, 2, res.Stats.DrawCalls)
	assert.Zero(t, ctx.Count(nulldev.CmdMultiDraw))
	require.Len(t, ctx.Draws, 2)
	assert.Equal(t, uint32(0), ctx.Draws[0].Args.FirstInstance)
	assert.Equal(t, uint32(1), ctx.Draws[1].Args.FirstInstance)
}

func TestMultiDrawChunks(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxMultiDraw = 2
	for i := 0; i < 5; i++ {
		f.add("/m"+string(rune('a'+i)), triangle(math.Identity()))
	}
	f.update(t)

	res, ctx := execute(t, f.pass(solid()))
	assert.Equal(t, 1, res.Stats.Batches)
	assert.Equal(t, 2, res.Stats.MultiDraws)
	assert.Equal(t, 3, res.Stats.DrawCalls)
	assert.Equal(t, 1, ctx.Count(nulldev.CmdDraw))
}

func TestFallbackWhilePipelinesCompile(t *testing.T) {
	f := newFixture(t, nulldev.WithCompileFrames(2))
	f.dev.AdvanceFrame()
	f.dev.AdvanceFrame()
	require.Equal(t, gpu.PipelineReady, f.psos.Fallback(pso.ModeSolid).Status())

	f.add("/a", triangle(math.Identity()))
	f.update(t)
	p := f.pass(solid())

	res, ctx := execute(t, p)
	assert.Equal(t, Fallback, res.Status)
	assert.Equal(t, 1, res.Stats.FallbackDraws)
	require.Len(t, ctx.Draws, 1)
	assert.Equal(t, f.psos.Fallback(pso.ModeSolid), ctx.Draws[0].Pipeline)
	assert.Len(t, ctx.Draws[0].VertexBuffers, 1)
	assert.Equal(t, uint32(2), word(ctx.Draws[0].Constants, 39)&2)

	f.dev.AdvanceFrame()
	f.dev.AdvanceFrame()
	res, ctx = execute(t, p)
	assert.Equal(t, Completed, res.Status)
	require.Len(t, ctx.Draws, 1)
	assert.NotEqual(t, f.psos.Fallback(pso.ModeSolid), ctx.Draws[0].Pipeline)
}

func TestSkipsWithoutFallback(t *testing.T) {
	f := newFixture(t, nulldev.WithCompileFrames(2))
	f.add("/a", triangle(math.Identity()))
	f.update(t)
	params := solid()
	params.UseFallbackPSO = false

	res, ctx := execute(t, f.pass(params))
	assert.Equal(t, Skipped, res.Status)
	assert.Empty(t, ctx.Commands)
}

func TestSkipsWhenFallbackNotReady(t *testing.T) {
	f := newFixture(t, nulldev.WithCompileFrames(2))
	f.add("/a", triangle(math.Identity()))
	f.update(t)

	res, ctx := execute(t, f.pass(solid()))
	assert.Equal(t, Skipped, res.Status)
	assert.Empty(t, ctx.Commands)
}

func TestFallbackWhileTexturesLoad(t *testing.T) {
	f := newFixture(t)
	f.host.AddMaterial(scene.Material{
		ID:        "/mat/tex",
		BaseColor: math.Vec4{1, 1, 1, 1},
		Textures:  map[string]scene.TextureRef{scene.SlotBaseColor: {Path: filepath.Join(t.TempDir(), "missing.png")}},
	})
	m := triangle(math.Identity())
	m.MaterialID = "/mat/tex"
	f.add("/a", m)
	f.update(t)
	require.False(t, f.materials.Get("/mat/tex").Ready())

	res, ctx := execute(t, f.pass(solid()))
	assert.Equal(t, Fallback, res.Status)
	require.Len(t, ctx.Draws, 1)
	assert.Equal(t, f.materials.Default().Binding(), ctx.Draws[0].Binding)
}

func TestFailedPipelineSkipsItem(t *testing.T) {
	f := newFixture(t, nulldev.WithPipelineFailure(func(d gpu.PipelineDesc) bool {
		return d.Primitive.CullMode == gputypes.CullModeNone
	}))
	f.add("/a", triangle(math.Identity()))
	double := triangle(math.Identity())
	double.DoubleSided = true
	f.add("/b", double)
	f.update(t)

	res, ctx := execute(t, f.pass(solid()))
	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, 1, res.Stats.SkippedItems)
	require.Len(t, ctx.Draws, 1)
	assert.Equal(t, uint32(1), word(ctx.Draws[0].Constants, 36))
}

func skinned(offset float32) scene.Mesh {
	m := triangle(math.Identity())
	m.Skinning = &scene.Skinning{
		RestPoints:          []math.Vec3{{}, {X: 1}, {Y: 1}},
		JointIndices:        []int32{0, 1, 1},
		JointWeights:        []float32{1, 1, 1},
		InfluencesPerVertex: 1,
		Transforms:          []math.Mat4{math.Identity(), math.Translate(0, 0, offset)},
	}
	return m
}

func TestJointChangeEndsBatch(t *testing.T) {
	f := newFixture(t)
	f.add("/a", skinned(2))
	f.add("/b", skinned(3))
	f.update(t)

	res, ctx := execute(t, f.pass(solid()))
	assert.Equal(t, 2, res.Stats.JointUploads)
	assert.Equal(t, 2, res.Stats.Batches)
	assert.Equal(t, 1, res.Stats.PipelineBinds)
	require.Len(t, ctx.Draws, 2)
	for i, d := range ctx.Draws {
		require.Len(t, d.Joints, 2*math.Mat4Size)
		assert.Equal(t, float32(i+2), float(d.Joints, 16+14), "second joint z translation")
	}
}

func TestSelectionFilter(t *testing.T) {
	f := newFixture(t)
	f.add("/a", triangle(math.Identity()))
	f.add("/b", triangle(math.Identity()))
	f.update(t)
	f.selection.Set("/a")

	params := solid()
	params.Selection = scene.SelectSelected
	p := f.pass(params)
	res, ctx := execute(t, p)
	assert.Equal(t, 1, res.Stats.Items)
	require.Len(t, ctx.Draws, 1)
	assert.Equal(t, uint32(1), word(ctx.Draws[0].Constants, 39)&1)

	f.selection.Set("/a", "/b")
	res, _ = execute(t, p)
	assert.False(t, res.Stats.ListRebuilt)
	assert.Equal(t, 2, res.Stats.Draws)
}

func TestDrawListFilters(t *testing.T) {
	f := newFixture(t)
	f.add("/world/a", triangle(math.Identity()))
	hidden := triangle(math.Identity())
	hidden.Hidden = true
	f.add("/world/hidden", hidden)
	guide := triangle(math.Identity())
	guide.RenderTag = "guide"
	f.add("/world/guide", guide)
	f.add("/other/c", triangle(math.Identity()))
	f.update(t)

	params := solid()
	params.Collection = scene.Collection{Name: "world", Include: []string{"/world"}}
	params.RenderTags = []string{"", "geometry"}
	p := f.pass(params)
	res, _ := execute(t, p)
	assert.Equal(t, 1, res.Stats.Draws)

	f.host.SetVisible("/world/hidden", true)
	f.update(t)
	res, _ = execute(t, p)
	assert.True(t, res.Stats.ListRebuilt)
	assert.Equal(t, 2, res.Stats.Draws)

	params.RenderTags = nil
	p.SetParams(params)
	res, _ = execute(t, p)
	assert.True(t, res.Stats.ListRebuilt)
	assert.Equal(t, 3, res.Stats.Draws)
}

func TestMaterialTagsSplitPasses(t *testing.T) {
	f := newFixture(t)
	f.host.AddMaterial(scene.Material{ID: "/mat/solid", BaseColor: math.Vec4{1, 1, 1, 1}})
	f.host.AddMaterial(scene.Material{ID: "/mat/glass", BaseColor: math.Vec4{1, 1, 1, 0.5}, AlphaMode: "blend"})
	a := triangle(math.Identity())
	a.MaterialID = "/mat/solid"
	b := triangle(math.Translate(1, 0, 0))
	b.MaterialID = "/mat/glass"
	f.add("/a", a)
	f.add("/b", b)
	f.update(t)

	opaqueParams := solid()
	opaqueParams.MaterialTags = []pso.AlphaMode{pso.AlphaOpaque, pso.AlphaMask}
	blendParams := solid()
	blendParams.MaterialTags = []pso.AlphaMode{pso.AlphaBlend}
	opaque := f.pass(opaqueParams)
	blend := f.pass(blendParams)

	res, ctx := execute(t, opaque)
	assert.Equal(t, 1, res.Stats.Items)
	require.Len(t, ctx.Draws, 1)
	assert.Equal(t, pso.AlphaOpaque, f.materials.Get("/mat/solid").Alpha())
	res, _ = execute(t, blend)
	assert.Equal(t, 1, res.Stats.Items)
	assert.Equal(t, 1, res.Stats.Draws)

	res, _ = execute(t, opaque)
	assert.False(t, res.Stats.ListRebuilt)

	f.host.SetMaterialID("/a", "/mat/glass")
	f.update(t)
	res, _ = execute(t, opaque)
	assert.True(t, res.Stats.ListRebuilt)
	assert.Zero(t, res.Stats.Draws)
	res, _ = execute(t, blend)
	assert.Equal(t, 2, res.Stats.Draws)

	f.host.AddMaterial(scene.Material{ID: "/mat/glass", BaseColor: math.Vec4{1, 1, 1, 1}})
	f.update(t)
	res, _ = execute(t, opaque)
	assert.Equal(t, 2, res.Stats.Draws)
	res, _ = execute(t, blend)
	assert.Zero(t, res.Stats.Items)

	blendParams.MaterialTags = nil
	blend.SetParams(blendParams)
	res, _ = execute(t, blend)
	assert.True(t, res.Stats.ListRebuilt)
	assert.Equal(t, 2, res.Stats.Items)
}

func TestEdgesModeDrawsOncePerMesh(t *testing.T) {
	f := newFixture(t)
	quad := scene.Mesh{
		Topology: topology.Topology{
			FaceVertexCounts:  []int32{3, 3},
			FaceVertexIndices: []int32{0, 1, 2, 0, 2, 3},
			Subsets:           []topology.Subset{{Name: "a", FaceIndices: []int32{0}}, {Name: "b", FaceIndices: []int32{1}}},
		},
		Primvars: []scene.Primvar{{
			PrimvarDesc: scene.PrimvarDesc{Name: mesh.PointsName, Interpolation: primvar.Vertex, Role: scene.RolePoint},
			Value:       primvar.FromVec3s([]math.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}),
		}},
	}
	f.add("/quad", quad)
	f.update(t)
	p := f.pass(solid())

	res, ctx := execute(t, p)
	assert.Equal(t, 2, res.Stats.Draws)
	for _, d := range ctx.Draws {
		assert.Equal(t, uint32(3), d.Args.IndexCount)
	}

	params := solid()
	params.RenderMode = pso.ModeEdges
	p.SetParams(params)
	res, ctx = execute(t, p)
	assert.Equal(t, 2, res.Stats.Revalidated)
	assert.Equal(t, 1, res.Stats.Draws)
	require.Len(t, ctx.Draws, 1)
	d := ctx.Draws[0]
	assert.Len(t, d.VertexBuffers, 1)
	assert.Equal(t, uint32(12), d.Args.IndexCount)
	desc := d.Pipeline.(*nulldev.PipelineState).Desc()
	assert.Equal(t, gputypes.PrimitiveTopologyLineList, desc.Primitive.Topology)
	assert.Equal(t, gputypes.CullModeNone, desc.Primitive.CullMode)
}

func TestMaterialColorWithoutOverride(t *testing.T) {
	f := newFixture(t)
	f.host.AddMaterial(scene.Material{ID: "/mat/red", BaseColor: math.Vec4{1, 0, 0, 1}})
	m := triangle(math.Identity())
	m.MaterialID = "/mat/red"
	f.add("/a", m)
	f.update(t)
	p := f.pass(solid())

	_, ctx := execute(t, p)
	require.Len(t, ctx.Draws, 1)
	assert.Equal(t, []float32{1, 0, 0, 1}, []float32{
		float(ctx.Draws[0].Constants, 32), float(ctx.Draws[0].Constants, 33),
		float(ctx.Draws[0].Constants, 34), float(ctx.Draws[0].Constants, 35),
	})

	f.host.AddMaterial(scene.Material{ID: "/mat/red", BaseColor: math.Vec4{0, 1, 0, 1}})
	f.update(t)
	res, ctx := execute(t, p)
	assert.Equal(t, 1, res.Stats.Revalidated)
	assert.Equal(t, float32(1), float(ctx.Draws[0].Constants, 33))
}

func TestCloseReleasesRings(t *testing.T) {
	f := newFixture(t)
	f.add("/a", triangle(math.Identity()))
	f.update(t)
	p := f.pass(solid())
	_, _ = execute(t, p)
	ring := p.constants.buf.(*nulldev.Buffer)
	require.NoError(t, p.Close())
	assert.True(t, ring.Released())
}
