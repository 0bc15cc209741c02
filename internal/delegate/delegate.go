// Package delegate is the render delegate a host application drives once
// per frame: Sync pulls scene changes into meshes and materials, Commit
// uploads pooled geometry and Render executes render passes.
package delegate

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/drawitem"
	"github.com/Faultbox/meshdelegate/internal/frame"
	"github.com/Faultbox/meshdelegate/internal/geompool"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/internal/material"
	"github.com/Faultbox/meshdelegate/internal/mesh"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/renderpass"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/internal/texture"
	"github.com/Faultbox/meshdelegate/pkg/math"
)

// Delegate owns every service of one rendering context.
type Delegate struct {
	ID uuid.UUID

	cfg *config.Config
	dev gpu.Device
	log *zap.Logger

	versions  *frame.Versions
	pool      *geompool.Pool
	items     *drawitem.Registry
	loader    *texture.Loader
	materials *material.Registry
	psos      *pso.Cache
	selection *scene.Selection
	syncCtx   *mesh.SyncContext

	meshes  map[string]*mesh.Mesh
	ordinal uint64
	passes  []*renderpass.Pass
	frame   uint64
}

// Stats summarizes the delegate's resources.
type Stats struct {
	Frame           uint64
	Meshes          int
	DrawItems       int
	Materials       int
	PendingTextures int
	Pipelines       int
	Pool            []geompool.ArenaStats
}

// New creates a delegate rendering to dev.
func New(cfg *config.Config, dev gpu.Device, log *zap.Logger) (*Delegate, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.New()
	log = log.With(zap.String("delegate", id.String()))

	d := &Delegate{
		ID:        id,
		cfg:       cfg,
		dev:       dev,
		log:       log,
		versions:  &frame.Versions{},
		items:     drawitem.NewRegistry(log.Named("drawitem")),
		selection: &scene.Selection{},
		meshes:    make(map[string]*mesh.Mesh),
	}
	d.pool = geompool.New(dev, cfg.Pool, log.Named("geompool"))

	var err error
	d.loader, err = texture.NewLoader(dev, cfg.Texture, log.Named("texture"))
	if err != nil {
		return nil, fmt.Errorf("delegate: %w", err)
	}
	d.materials, err = material.NewRegistry(dev, d.loader, d.versions, cfg.Render.DebugChecks, log.Named("material"))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("delegate: %w", err), d.loader.Close())
	}
	d.psos, err = pso.NewCache(dev, cfg.PSO.CacheSize, log.Named("pso"))
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("delegate: %w", err), d.materials.Close(), d.loader.Close())
	}
	d.syncCtx = &mesh.SyncContext{
		Pool:     d.pool,
		Items:    d.items,
		Versions: d.versions,
		Caps:     dev.Caps(),
		Log:      log.Named("mesh"),
	}
	log.Info("render delegate created",
		zap.Bool("base_vertex", dev.Caps().BaseVertex),
		zap.Bool("multi_draw", dev.Caps().NativeMultiDraw),
		zap.Int("cbuffer_align", dev.Caps().ConstantBufferOffsetAlignment))
	return d, nil
}

// Versions returns the frame attribute versions.
func (d *Delegate) Versions() *frame.Versions { return d.versions }

// Selection returns the selection render passes filter on.
func (d *Delegate) Selection() *scene.Selection { return d.selection }

// Mesh returns the synced mesh for id.
func (d *Delegate) Mesh(id string) (*mesh.Mesh, bool) {
	m, ok := d.meshes[id]
	return m, ok
}

// MeshIDs returns the ids of every synced mesh in sorted order.
func (d *Delegate) MeshIDs() []string {
	ids := make([]string, 0, len(d.meshes))
	for id := range d.meshes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WorldBounds returns the world-space bounds of a visible mesh, or empty
// bounds for hidden and unknown meshes.
func (d *Delegate) WorldBounds(id string) math.Bounds {
	b := math.EmptyBounds()
	m, ok := d.meshes[id]
	if !ok || !m.Visible() || m.Bounds().IsEmpty() {
		return b
	}
	xf := m.Transform()
	for _, c := range corners(m.Bounds()) {
		b = b.Extend(xf.TransformPoint(c))
	}
	return b
}

// Bounds returns the world-space bounds of every visible mesh.
func (d *Delegate) Bounds() math.Bounds {
	b := math.EmptyBounds()
	for id := range d.meshes {
		wb := d.WorldBounds(id)
		if wb.IsEmpty() {
			continue
		}
		b = b.Extend(wb.Min).Extend(wb.Max)
	}
	return b
}

func corners(b math.Bounds) [8]math.Vec3 {
	var out [8]math.Vec3
	for i := range out {
		p := b.Min
		if i&1 != 0 {
			p.X = b.Max.X
		}
		if i&2 != 0 {
			p.Y = b.Max.Y
		}
		if i&4 != 0 {
			p.Z = b.Max.Z
		}
		out[i] = p
	}
	return out
}

// Sync pulls every change from host. Meshes the host no longer has are
// released; new ones are created in host order.
func (d *Delegate) Sync(host scene.Host) error {
	d.frame++
	d.psos.BeginFrame()
	d.materials.Sync(host)
	if n := d.materials.Update(); n > 0 {
		d.log.Debug("materials rebound", zap.Int("count", n))
	}

	ids := host.MeshIDs()
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		live[id] = true
	}
	for id, m := range d.meshes {
		if !live[id] {
			m.Release(d.syncCtx)
			delete(d.meshes, id)
			d.log.Debug("mesh removed", zap.String("prim", id))
		}
	}

	for _, id := range ids {
		m, ok := d.meshes[id]
		if !ok {
			d.ordinal++
			m = mesh.New(id, d.ordinal)
			d.meshes[id] = m
		}
		m.BeginFrame()
		dirty := host.MeshDirtyBits(id)
		if !ok {
			dirty = scene.AllDirty
		}
		if dirty == scene.Clean {
			continue
		}
		left := m.Sync(d.syncCtx, host, dirty)
		host.MarkMeshClean(id, dirty&^left)
	}
	return nil
}

// Commit uploads pooled geometry. It must run after Sync and before
// Render in every frame.
func (d *Delegate) Commit(ctx gpu.CommandContext) error {
	if err := d.pool.Commit(ctx); err != nil {
		return fmt.Errorf("delegate: commit: %w", err)
	}
	return nil
}

// DefaultParams returns pass parameters from the render config.
func (d *Delegate) DefaultParams() (renderpass.Params, error) {
	mode, err := pso.ParseRenderMode(d.cfg.Render.RenderMode)
	if err != nil {
		return renderpass.Params{}, err
	}
	view, err := pso.ParseDebugView(d.cfg.Render.DebugView)
	if err != nil {
		return renderpass.Params{}, err
	}
	return renderpass.Params{
		RenderMode:     mode,
		DebugView:      view,
		Shadows:        d.cfg.Render.Shadows,
		UseFallbackPSO: d.cfg.Render.UseFallbackPSO,
	}, nil
}

// NewRenderPass creates a pass owned by the delegate.
func (d *Delegate) NewRenderPass(params renderpass.Params) *renderpass.Pass {
	p := renderpass.New(params, renderpass.Deps{
		Device:    d.dev,
		Items:     d.items,
		Materials: d.materials,
		PSOs:      d.psos,
		Versions:  d.versions,
		Selection: d.selection,
		Config:    d.cfg.Render,
		Log:       d.log.Named("renderpass"),
	})
	d.passes = append(d.passes, p)
	return p
}

// Render executes pass into ctx.
func (d *Delegate) Render(ctx gpu.CommandContext, pass *renderpass.Pass) (renderpass.Result, error) {
	res, err := pass.Execute(ctx)
	if err != nil {
		return res, fmt.Errorf("delegate: render: %w", err)
	}
	if res.Status != renderpass.Completed {
		d.log.Debug("pass not completed",
			zap.Uint64("frame", d.frame),
			zap.Stringer("status", res.Status),
			zap.Int("fallback_draws", res.Stats.FallbackDraws))
	}
	return res, nil
}

// Stats returns resource counts.
func (d *Delegate) Stats() Stats {
	return Stats{
		Frame:           d.frame,
		Meshes:          len(d.meshes),
		DrawItems:       d.items.Len(),
		Materials:       d.materials.Len(),
		PendingTextures: d.materials.Pending(),
		Pipelines:       d.psos.Len(),
		Pool:            d.pool.Stats(),
	}
}

// Close releases every mesh, pass and service. Errors from independent
// services are combined.
func (d *Delegate) Close() error {
	for id, m := range d.meshes {
		m.Release(d.syncCtx)
		delete(d.meshes, id)
	}
	var err error
	for _, p := range d.passes {
		err = multierr.Append(err, p.Close())
	}
	d.passes = nil
	err = multierr.Combine(err,
		d.items.Close(),
		d.materials.Close(),
		d.psos.Close(),
		d.loader.Close(),
		d.pool.Close(),
	)
	if err != nil {
		d.log.Error("render delegate closed with errors", zap.Error(err))
		return err
	}
	d.log.Info("render delegate closed", zap.Uint64("frames", d.frame))
	return nil
}
