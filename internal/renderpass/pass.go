// Package renderpass turns draw items into batched GPU draws.
//
// Each Execute runs the same steps: refresh the candidate list when the
// scene's item set changed, revalidate items whose versions moved, gate on
// pipeline and texture readiness, sort by state and submit multi-draw
// batches. Per-primitive constants go through a fixed-size ring that is
// flushed whenever it fills up.
package renderpass

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/drawitem"
	"github.com/Faultbox/meshdelegate/internal/frame"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/internal/material"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/pkg/math"
)

// Status is the outcome of one Execute.
type Status int

// Execution results.
const (
	// Completed means every item drew with its own pipeline.
	Completed Status = iota
	// Fallback means some items drew with the fallback pipeline.
	Fallback
	// Skipped means nothing was submitted; retry next frame.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Fallback:
		return "fallback"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Stats counts the work of one Execute.
type Stats struct {
	Items         int // candidates after filtering
	Revalidated   int
	Draws         int // items drawn
	DrawCalls     int // DrawIndexed plus MultiDrawIndexed calls
	MultiDraws    int
	Batches       int
	PipelineBinds int
	BindingBinds  int
	BufferBinds   int
	RingFlushes   int
	JointUploads  int
	FallbackDraws int
	SkippedItems  int
	ListRebuilt   bool
}

// Result is returned by Execute.
type Result struct {
	Status Status
	Stats  Stats
}

// Params select what a pass draws and how.
type Params struct {
	Collection     scene.Collection
	RenderTags     []string // empty accepts every tag
	MaterialTags   []pso.AlphaMode // material alpha modes kept, empty accepts all
	Selection      scene.SelectionFilter
	RenderMode     pso.RenderMode
	DebugView      pso.DebugView
	Shadows        bool
	UseFallbackPSO bool
}

func (p Params) listEqual(o Params) bool {
	return p.Collection.Signature() == o.Collection.Signature() &&
		slices.Equal(p.RenderTags, o.RenderTags) &&
		slices.Equal(p.MaterialTags, o.MaterialTags)
}

func (p Params) stateEqual(o Params) bool {
	return p.RenderMode == o.RenderMode && p.DebugView == o.DebugView && p.Shadows == o.Shadows
}

// Deps are the services a pass reads from. Selection may be nil.
type Deps struct {
	Device    gpu.Device
	Items     *drawitem.Registry
	Materials *material.Registry
	PSOs      *pso.Cache
	Versions  *frame.Versions
	Selection *scene.Selection
	Config    config.RenderConfig
	Log       *zap.Logger
}

// ConstantsSize is the unaligned size of one per-primitive block:
// transform, previous transform, base color and four id words.
const ConstantsSize = 2*math.Mat4Size + 16 + 16

type listSignature struct {
	items         uint64
	subsets       uint64
	culling       uint64
	materials     uint64 // tracked only with material tags
	meshMaterials uint64
}

// Pass is one render pass over the draw item registry. It is used from
// the frame thread only.
type Pass struct {
	params Params
	deps   Deps
	caps   gpu.Caps
	log    *zap.Logger

	entries map[drawitem.Handle]*entry
	list    []*entry
	listSig listSignature
	hasList bool

	stateDirty      bool
	materialVersion uint64

	constants  *ring
	joints     *ring
	blockSize  int64
	jointAlign int64
}

// New returns a pass. Ring buffers are created on first Execute.
func New(params Params, deps Deps) *Pass {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	caps := deps.Device.Caps()
	jointAlign := int64(caps.ConstantBufferOffsetAlignment)
	if caps.StructuredBuffers {
		jointAlign = math.Mat4Size
	}
	return &Pass{
		params:     params,
		deps:       deps,
		caps:       caps,
		log:        log,
		entries:    make(map[drawitem.Handle]*entry),
		stateDirty: true,
		blockSize:  gpu.AlignUp(ConstantsSize, int64(caps.ConstantBufferOffsetAlignment)),
		jointAlign: jointAlign,
	}
}

// Params returns the current parameters.
func (p *Pass) Params() Params { return p.params }

// SetParams changes what the pass draws. Collection, render tag or
// material tag changes rebuild the draw list; mode, debug view or shadow changes revalidate
// every item.
func (p *Pass) SetParams(params Params) {
	if !params.listEqual(p.params) {
		p.hasList = false
	}
	if !params.stateEqual(p.params) {
		p.stateDirty = true
	}
	p.params = params
}

// BlockSize returns the aligned size of one per-primitive constant block.
func (p *Pass) BlockSize() int64 { return p.blockSize }

func (p *Pass) ensureRings() error {
	if p.constants != nil {
		return nil
	}
	size := int64(p.deps.Config.ConstantRingBytes)
	if size < p.blockSize {
		size = p.blockSize
	}
	c, err := newRing(p.deps.Device, "renderpass/constants", size)
	if err != nil {
		return err
	}
	jsize := int64(p.deps.Config.JointRingBytes)
	if jsize < p.jointAlign {
		jsize = p.jointAlign
	}
	j, err := newRing(p.deps.Device, "renderpass/joints", jsize)
	if err != nil {
		c.release()
		return err
	}
	p.constants, p.joints = c, j
	return nil
}

// Execute draws the pass into ctx. A Skipped result submits nothing.
func (p *Pass) Execute(ctx gpu.CommandContext) (Result, error) {
	var res Result
	if err := p.ensureRings(); err != nil {
		return Result{Status: Skipped}, err
	}

	res.Stats.ListRebuilt = p.updateDrawList()
	visible := p.filterSelection()
	res.Stats.Items = len(visible)
	res.Stats.Revalidated = p.updateGPUResources(visible)

	draws, status := p.gate(visible, &res.Stats)
	res.Status = status
	if status == Skipped {
		p.log.Debug("pass skipped, pipelines or textures not ready", zap.Int("items", len(visible)))
		return res, nil
	}
	sortDraws(draws)
	s := submitter{p: p, ctx: ctx, stats: &res.Stats}
	if err := s.run(draws); err != nil {
		return res, err
	}
	return res, nil
}

// Close releases the ring buffers.
func (p *Pass) Close() error {
	p.constants.release()
	p.joints.release()
	p.constants, p.joints = nil, nil
	p.entries = make(map[drawitem.Handle]*entry)
	p.list = nil
	p.hasList = false
	return nil
}

func tagAllowed(tags []string, tag string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func alphaAllowed(modes []pso.AlphaMode, mode pso.AlphaMode) bool {
	return len(modes) == 0 || slices.Contains(modes, mode)
}
