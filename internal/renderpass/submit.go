package renderpass

import (
	"encoding/binary"
	stdmath "math"
	"slices"

	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/pkg/math"
)

// draw is one item ready for submission.
type draw struct {
	e        *entry
	pipeline gpu.PipelineState
	binding  gpu.ResourceBinding
	vbufs    []gpu.Buffer
	ibuf     gpu.Buffer
	args     gpu.DrawIndexedArgs
	selected bool
	fallback bool
}

// gate resolves pipelines and geometry. Items whose pipeline is still
// compiling or whose material is still loading textures either switch to
// the fallback pipeline or, without a usable fallback, skip the pass.
func (p *Pass) gate(list []*entry, stats *Stats) ([]draw, Status) {
	draws := make([]draw, 0, len(list))
	var waiting []int
	for _, e := range list {
		if e.empty {
			continue
		}
		vbufs, ibuf, args, ok := p.geometry(e)
		if !ok {
			stats.SkippedItems++
			continue
		}
		pipeline, err := p.deps.PSOs.Get(e.key, e.streams)
		if err != nil {
			p.warnOnce(e, "pipeline unavailable", err)
			stats.SkippedItems++
			continue
		}
		if pipeline.Status() == gpu.PipelineFailed {
			p.warnOnce(e, "pipeline failed to compile", nil)
			stats.SkippedItems++
			continue
		}
		d := draw{
			e:        e,
			pipeline: pipeline,
			binding:  e.material.Binding(),
			vbufs:    vbufs,
			ibuf:     ibuf,
			args:     args,
			selected: p.deps.Selection.Contains(e.item.Source.ID()),
		}
		if pipeline.Status() != gpu.PipelineReady || !e.material.Ready() {
			waiting = append(waiting, len(draws))
		}
		draws = append(draws, d)
	}
	if len(waiting) == 0 {
		return draws, Completed
	}

	fb := p.deps.PSOs.Fallback(p.params.RenderMode)
	def := p.deps.Materials.Default()
	if !p.params.UseFallbackPSO || fb == nil || fb.Status() != gpu.PipelineReady || !def.Ready() {
		return nil, Skipped
	}
	for _, i := range waiting {
		d := &draws[i]
		d.pipeline = fb
		d.binding = def.Binding()
		d.vbufs = d.vbufs[:1]
		d.fallback = true
	}
	stats.FallbackDraws = len(waiting)
	return draws, Fallback
}

func (p *Pass) warnOnce(e *entry, msg string, err error) {
	if e.warned {
		return
	}
	e.warned = true
	p.log.Warn(msg,
		zap.String("mesh", e.item.Source.ID()),
		zap.Int("subset", e.item.Subset),
		zap.Stringer("key", e.key),
		zap.Error(err))
}

func resourceID(r gpu.Resource) uint64 {
	if r == nil {
		return 0
	}
	return r.ID()
}

// sortDraws orders by pipeline, then binding, then mesh ordinal and subset.
func sortDraws(draws []draw) {
	slices.SortStableFunc(draws, func(a, b draw) int {
		if x, y := a.pipeline.ID(), b.pipeline.ID(); x != y {
			return cmp(x, y)
		}
		if x, y := resourceID(a.binding), resourceID(b.binding); x != y {
			return cmp(x, y)
		}
		if x, y := a.e.item.Source.Ordinal(), b.e.item.Source.Ordinal(); x != y {
			return cmp(x, y)
		}
		return a.e.item.Subset - b.e.item.Subset
	})
}

func cmp(a, b uint64) int {
	if a < b {
		return -1
	}
	return 1
}

// batch is a run of state-identical draws.
type batch struct {
	pipeline  gpu.PipelineState
	binding   gpu.ResourceBinding
	vbufs     []gpu.Buffer
	ibuf      gpu.Buffer
	jointHash uint64
	jointOff  int64
	jointSize int64
	args      []gpu.DrawIndexedArgs
}

func (b *batch) accepts(d *draw, jointHash uint64) bool {
	return b.pipeline == d.pipeline &&
		b.binding == d.binding &&
		b.ibuf == d.ibuf &&
		b.jointHash == jointHash &&
		slices.Equal(b.vbufs, d.vbufs)
}

// submitter walks sorted draws. Constant blocks and joint sets are staged
// in the rings; batches referencing them stay pending until the rings are
// uploaded, so no draw is submitted before its data.
type submitter struct {
	p     *Pass
	ctx   gpu.CommandContext
	stats *Stats

	pending []*batch
	cur     *batch

	// joint set staged in the current ring epoch
	jointHash uint64
	jointOff  int64
	jointSize int64

	// bound state
	pipeline gpu.PipelineState
	binding  gpu.ResourceBinding
	vbufs    []gpu.Buffer
	ibuf     gpu.Buffer
}

func (s *submitter) run(draws []draw) error {
	p := s.p
	block := make([]byte, 0, ConstantsSize)
	for i := range draws {
		d := &draws[i]
		mats, hash := d.e.item.Source.Joints()
		var jsize int64
		if len(mats) > 0 {
			jsize = gpu.AlignUp(int64(len(mats))*math.Mat4Size, p.jointAlign)
			if jsize > p.joints.capacity {
				p.warnOnce(d.e, "joint set exceeds joint ring", nil)
				s.stats.SkippedItems++
				continue
			}
		} else {
			hash = 0
		}
		newJoints := jsize > 0 && (s.jointSize == 0 || s.jointHash != hash)
		if !p.constants.fits(p.blockSize) || (newJoints && !p.joints.fits(jsize)) {
			if err := s.flush(); err != nil {
				return err
			}
			newJoints = jsize > 0
		}
		if newJoints {
			s.jointOff = p.joints.write(jointBytes(mats), jsize)
			s.jointHash, s.jointSize = hash, jsize
			s.stats.JointUploads++
		}

		block = p.appendConstants(block[:0], d)
		slot := p.constants.write(block, p.blockSize) / p.blockSize

		if s.cur == nil || !s.cur.accepts(d, hash) {
			s.cur = &batch{
				pipeline:  d.pipeline,
				binding:   d.binding,
				vbufs:     d.vbufs,
				ibuf:      d.ibuf,
				jointHash: hash,
			}
			if jsize > 0 {
				s.cur.jointOff, s.cur.jointSize = s.jointOff, s.jointSize
			}
			s.pending = append(s.pending, s.cur)
		}
		args := d.args
		args.FirstInstance = uint32(slot)
		s.cur.args = append(s.cur.args, args)
	}
	return s.flush()
}

// flush uploads both rings, binds the constant ring and submits every
// pending batch.
func (s *submitter) flush() error {
	p := s.p
	if p.constants.used() == 0 {
		return nil
	}
	if err := p.constants.upload(s.ctx); err != nil {
		return err
	}
	if err := p.joints.upload(s.ctx); err != nil {
		return err
	}
	s.ctx.BindConstants(gpu.SlotPrimitive, p.constants.buf, 0, p.constants.used(), p.blockSize)
	s.stats.RingFlushes++
	for _, b := range s.pending {
		s.submit(b)
	}
	p.constants.reset()
	p.joints.reset()
	s.pending = s.pending[:0]
	s.cur = nil
	s.jointHash, s.jointOff, s.jointSize = 0, 0, 0
	return nil
}

func (s *submitter) submit(b *batch) {
	ctx := s.ctx
	if b.pipeline != s.pipeline {
		ctx.SetPipelineState(b.pipeline)
		s.pipeline = b.pipeline
		s.stats.PipelineBinds++
	}
	if b.binding != s.binding {
		ctx.CommitResourceBinding(b.binding)
		s.binding = b.binding
		s.stats.BindingBinds++
	}
	if !slices.Equal(b.vbufs, s.vbufs) {
		ctx.SetVertexBuffers(0, b.vbufs, make([]int64, len(b.vbufs)))
		s.vbufs = b.vbufs
		s.stats.BufferBinds++
	}
	if b.ibuf != s.ibuf {
		ctx.SetIndexBuffer(b.ibuf, 0, gputypes.IndexFormatUint32)
		s.ibuf = b.ibuf
		s.stats.BufferBinds++
	}
	if b.jointSize > 0 {
		ctx.BindConstants(gpu.SlotJoints, s.p.joints.buf, b.jointOff, b.jointSize, 0)
	}
	s.stats.Batches++
	s.stats.Draws += len(b.args)

	if !s.p.caps.NativeMultiDraw {
		for _, a := range b.args {
			ctx.DrawIndexed(a)
			s.stats.DrawCalls++
		}
		return
	}
	chunk := s.p.deps.Config.MaxMultiDraw
	if chunk <= 0 {
		chunk = len(b.args)
	}
	for args := b.args; len(args) > 0; {
		n := min(chunk, len(args))
		if n == 1 {
			ctx.DrawIndexed(args[0])
		} else {
			ctx.MultiDrawIndexed(args[:n])
			s.stats.MultiDraws++
		}
		s.stats.DrawCalls++
		args = args[n:]
	}
}

// appendConstants encodes the per-primitive block of d.
func (p *Pass) appendConstants(buf []byte, d *draw) []byte {
	src := d.e.item.Source
	buf = src.Transform().AppendBytes(buf)
	buf = src.PrevTransform().AppendBytes(buf)
	color, ok := src.BaseColor()
	if !ok {
		color = d.e.material.BaseColor()
	}
	for _, c := range color {
		buf = binary.LittleEndian.AppendUint32(buf, stdmath.Float32bits(c))
	}
	var flags uint32
	if d.selected {
		flags |= 1
	}
	if d.fallback {
		flags |= 2
	}
	ord := src.Ordinal()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ord))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ord>>32))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.e.item.Subset))
	buf = binary.LittleEndian.AppendUint32(buf, flags)
	return buf
}

func jointBytes(mats []math.Mat4) []byte {
	out := make([]byte, 0, len(mats)*math.Mat4Size)
	for _, m := range mats {
		out = m.AppendBytes(out)
	}
	return out
}
